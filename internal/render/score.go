// Package render turns a finished song into something playable.
package render

import (
	"songevo/internal/song"
)

// ChordEvent is a chord voicing held for Duration beats. A nil Pitches is a
// rest: the chord was silenced.
type ChordEvent struct {
	Pitches  []int   `json:"pitches,omitempty"`
	Duration float64 `json:"duration"`
}

// NoteEvent is a melody note; Pitch may be song.Rest.
type NoteEvent struct {
	Pitch    int     `json:"pitch"`
	Duration float64 `json:"duration"`
}

// Score is a song flattened in playback order into one chord stream and one
// melody stream.
type Score struct {
	Tempo  float64      `json:"tempo"`
	Chords []ChordEvent `json:"chords"`
	Melody []NoteEvent  `json:"melody"`
}

func FromSong(s *song.Song) Score {
	score := Score{Tempo: s.Tempo}
	for _, c := range s.Chords() {
		event := ChordEvent{Duration: c.Duration()}
		if c.Play {
			event.Pitches = c.Voicing()
		}
		score.Chords = append(score.Chords, event)
		for _, n := range c.Melody {
			score.Melody = append(score.Melody, NoteEvent{Pitch: n.Pitch, Duration: n.Beats})
		}
	}
	return score
}

func (s Score) ChordDuration() float64 {
	total := 0.0
	for _, c := range s.Chords {
		total += c.Duration
	}
	return total
}

func (s Score) MelodyDuration() float64 {
	total := 0.0
	for _, n := range s.Melody {
		total += n.Duration
	}
	return total
}

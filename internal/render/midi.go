package render

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"songevo/internal/song"
)

const (
	TicksPerBeat = 960

	chordChannel  = 0
	melodyChannel = 1

	// General MIDI programs: acoustic grand piano and vibraphone.
	chordProgram  = 0
	melodyProgram = 11

	velocity = 90
	// A tempo event holds at most 2^24-1 microseconds per beat, about 3.6 bpm.
	minTempo = 4.0
)

type Renderer interface {
	Render(w io.Writer, s *song.Song) error
}

// MIDIRenderer writes a format 1 Standard MIDI File: a tempo track, a piano
// track for the chords and a vibraphone track for the melody.
type MIDIRenderer struct{}

func (MIDIRenderer) Render(w io.Writer, s *song.Song) error {
	score := FromSong(s)

	file := smf.New()
	file.TimeFormat = smf.MetricTicks(TicksPerBeat)

	var conductor smf.Track
	conductor.Add(0, smf.MetaMeter(4, 4))
	conductor.Add(0, smf.MetaTempo(max(score.Tempo, minTempo)))
	conductor.Close(0)

	tracks := []smf.Track{
		conductor,
		voiceTrack("chords", chordChannel, chordProgram, chordEvents(score.Chords)),
		voiceTrack("melody", melodyChannel, melodyProgram, melodyEvents(score.Melody)),
	}
	for _, tr := range tracks {
		if err := file.Add(tr); err != nil {
			return fmt.Errorf("add track: %w", err)
		}
	}
	if _, err := file.WriteTo(w); err != nil {
		return fmt.Errorf("write midi: %w", err)
	}
	return nil
}

// RenderFile renders s to path, creating parent directories.
func RenderFile(r Renderer, path string, s *song.Song) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := r.Render(f, s); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

type noteEvent struct {
	tick uint32
	on   bool
	key  uint8
}

func chordEvents(chords []ChordEvent) []noteEvent {
	var out []noteEvent
	var at float64
	for _, c := range chords {
		start, end := beatsToTicks(at), beatsToTicks(at+c.Duration)
		for _, p := range c.Pitches {
			out = append(out, sounding(p, start, end)...)
		}
		at += c.Duration
	}
	return out
}

func melodyEvents(notes []NoteEvent) []noteEvent {
	var out []noteEvent
	var at float64
	for _, n := range notes {
		if n.Pitch != song.Rest {
			out = append(out, sounding(n.Pitch, beatsToTicks(at), beatsToTicks(at+n.Duration))...)
		}
		at += n.Duration
	}
	return out
}

func sounding(pitch int, start, end uint32) []noteEvent {
	if end <= start {
		return nil
	}
	key := uint8(min(max(pitch, 0), 127))
	return []noteEvent{{tick: start, on: true, key: key}, {tick: end, on: false, key: key}}
}

// voiceTrack turns absolute note events into a delta-timed track. At equal
// ticks note-offs come first so repeated pitches retrigger.
func voiceTrack(name string, channel, program uint8, events []noteEvent) smf.Track {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].tick != events[j].tick {
			return events[i].tick < events[j].tick
		}
		return !events[i].on && events[j].on
	})

	var tr smf.Track
	tr.Add(0, smf.MetaTrackSequenceName(name))
	tr.Add(0, midi.ProgramChange(channel, program))
	var last uint32
	for _, ev := range events {
		delta := ev.tick - last
		last = ev.tick
		if ev.on {
			tr.Add(delta, midi.NoteOn(channel, ev.key, velocity))
		} else {
			tr.Add(delta, midi.NoteOff(channel, ev.key))
		}
	}
	tr.Close(0)
	return tr
}

func beatsToTicks(beats float64) uint32 {
	return uint32(math.Round(beats * TicksPerBeat))
}

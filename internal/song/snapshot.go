package song

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
)

// Snapshot is the tree-expanded, serializable form of a song. Aliased
// phrases and verses are written once per position.
type Snapshot struct {
	Tempo        float64         `json:"tempo"`
	Root         int             `json:"root"`
	LegalPitches []int           `json:"legal_pitches"`
	Verses       []VerseSnapshot `json:"verses"`
}

type VerseSnapshot struct {
	Phrases []PhraseSnapshot `json:"phrases"`
}

type PhraseSnapshot struct {
	Chords []ChordSnapshot `json:"chords"`
}

type ChordSnapshot struct {
	Root      int            `json:"root"`
	Scale     []int          `json:"scale"`
	Inversion int            `json:"inversion"`
	Play      bool           `json:"play"`
	Melody    []NoteSnapshot `json:"melody,omitempty"`
}

type NoteSnapshot struct {
	Pitch    int     `json:"pitch"`
	Duration float64 `json:"duration"`
}

func (s *Song) Snapshot() Snapshot {
	out := Snapshot{
		Tempo:        s.Tempo,
		Root:         s.Root,
		LegalPitches: append([]int(nil), s.LegalPitches...),
		Verses:       make([]VerseSnapshot, 0, len(s.Verses)),
	}
	for _, v := range s.Verses {
		vs := VerseSnapshot{Phrases: make([]PhraseSnapshot, 0, len(v.Phrases))}
		for _, p := range v.Phrases {
			ps := PhraseSnapshot{Chords: make([]ChordSnapshot, 0, len(p.Chords))}
			for _, c := range p.Chords {
				cs := ChordSnapshot{
					Root:      c.Root,
					Scale:     append([]int(nil), c.Scale[:]...),
					Inversion: c.Inversion,
					Play:      c.Play,
				}
				for _, n := range c.Melody {
					cs.Melody = append(cs.Melody, NoteSnapshot{Pitch: n.Pitch, Duration: n.Beats})
				}
				ps.Chords = append(ps.Chords, cs)
			}
			vs.Phrases = append(vs.Phrases, ps)
		}
		out.Verses = append(out.Verses, vs)
	}
	return out
}

// FromSnapshot rebuilds a song with default mutation probabilities.
func FromSnapshot(snap Snapshot) (*Song, error) {
	s := New(snap.Root, snap.Tempo, snap.LegalPitches)
	for vi, vs := range snap.Verses {
		phrases := make([]*Phrase, 0, len(vs.Phrases))
		for pi, ps := range vs.Phrases {
			chords := make([]*Chord, 0, len(ps.Chords))
			for ci, cs := range ps.Chords {
				scale, err := ParseScale(cs.Scale)
				if err != nil {
					return nil, fmt.Errorf("verse %d phrase %d chord %d: %w", vi, pi, ci, err)
				}
				c, err := NewChord(cs.Root, scale)
				if err != nil {
					return nil, fmt.Errorf("verse %d phrase %d chord %d: %w", vi, pi, ci, err)
				}
				if cs.Inversion >= 1 && cs.Inversion <= 3 {
					c.Inversion = cs.Inversion
				}
				c.Play = cs.Play
				for _, ns := range cs.Melody {
					c.Melody = append(c.Melody, NewNote(ns.Pitch, ns.Duration))
				}
				chords = append(chords, c)
			}
			phrases = append(phrases, NewPhrase(chords))
		}
		s.AddVerses(NewVerse(phrases))
	}
	return s, nil
}

// Fingerprint is a short stable hash of the song's playable content.
func (s *Song) Fingerprint() string {
	var b strings.Builder
	fmt.Fprintf(&b, "t=%g|r=%d", s.Tempo, s.Root)
	for _, v := range s.Verses {
		b.WriteString("|v")
		for _, p := range v.Phrases {
			b.WriteString("|p")
			for _, c := range p.Chords {
				fmt.Fprintf(&b, "|c%d/%d/%t", c.Root, c.Inversion, c.Play)
				for _, n := range c.Melody {
					fmt.Fprintf(&b, ",%d:%g", n.Pitch, n.Beats)
				}
			}
		}
	}
	digest := sha1.Sum([]byte(b.String()))
	return hex.EncodeToString(digest[:8])
}

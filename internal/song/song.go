// Package song holds the mutable composition tree: a Song owns Verses, a
// Verse owns Phrases, a Phrase owns Chords and a Chord owns the melody Notes
// played over it.
//
// Phrases and Verses may appear at several positions of their parent at
// birth (see compose.RandomSong). Copy never preserves that aliasing: every
// call deep-copies its subtree independently.
package song

import (
	"errors"
	"fmt"
	"math"
)

// Rest is the reserved pitch value for silence.
const Rest = math.MinInt32

const (
	DefaultNoteMutateProb   = 0.005
	DefaultChordMutateProb  = 0.05
	DefaultPhraseMutateProb = 0.15
	DefaultVerseMutateProb  = 0.1
	DefaultSongMutateProb   = 0.1

	// unsetChordDuration is reported by a chord whose melody was never initialized.
	unsetChordDuration = 1.0
)

var ErrInvalidChord = errors.New("invalid chord")

// Scale is the seven absolute pitches a chord is voiced from.
type Scale [7]int

// ParseScale validates a scale read from configuration.
func ParseScale(pitches []int) (Scale, error) {
	var s Scale
	if len(pitches) != len(s) {
		return s, fmt.Errorf("%w: scale length must be %d, got %d", ErrInvalidChord, len(s), len(pitches))
	}
	copy(s[:], pitches)
	return s, nil
}

// Intervals returns the scale relative to its first degree.
func (s Scale) Intervals() [7]int {
	var out [7]int
	for i, p := range s {
		out[i] = p - s[0]
	}
	return out
}

// Mutatable is a node of the composition tree.
type Mutatable interface {
	Duration() float64
	Notes() []*Note
	Children() []Mutatable
	mutate(p *Pass)
	guard() *node
}

// Element is what the structural sequence operators need from the items of
// an ordered sequence.
type Element[T any] interface {
	Mutatable
	Copy() T
	ScaleDuration(factor float64)
}

// node carries the per-generation mutation marker.
type node struct {
	mark uint64
}

func (n *node) guard() *node { return n }

// Note is a single pitch (or Rest) held for Duration beats.
type Note struct {
	node
	Pitch      int
	Beats      float64
	MutateProb float64
}

func NewNote(pitch int, duration float64) *Note {
	return &Note{Pitch: pitch, Beats: duration, MutateProb: DefaultNoteMutateProb}
}

func (n *Note) IsRest() bool { return n.Pitch == Rest }

func (n *Note) Duration() float64 { return n.Beats }

func (n *Note) Notes() []*Note { return []*Note{n} }

func (n *Note) Children() []Mutatable { return nil }

func (n *Note) ScaleDuration(factor float64) { n.Beats *= factor }

func (n *Note) Copy() *Note {
	return &Note{Pitch: n.Pitch, Beats: n.Beats, MutateProb: n.MutateProb}
}

// Chord is a triad built on Root of Scale, carrying the melody notes played
// while it sounds. Play controls whether the triad itself is audible.
type Chord struct {
	node
	Root       int
	Scale      Scale
	Inversion  int
	Play       bool
	Melody     []*Note
	MutateProb float64
}

// NewChord returns a chord in root position with no melody. Root may be in
// [0,8); degree 7 is the octave of degree 0.
func NewChord(root int, scale Scale) (*Chord, error) {
	if root < 0 || root >= 8 {
		return nil, fmt.Errorf("%w: root %d outside [0,8)", ErrInvalidChord, root)
	}
	return &Chord{
		Root:       root,
		Scale:      scale,
		Inversion:  1,
		Play:       true,
		MutateProb: DefaultChordMutateProb,
	}, nil
}

// Pitches voices the chord for the given inversion (1, 2 or 3).
func (c *Chord) Pitches(inversion int) []int {
	root := c.Scale[c.Root%7]
	third := c.Scale[(c.Root+2)%7]
	fifth := c.Scale[(c.Root+4)%7]
	switch inversion {
	case 2:
		return []int{root + 12, third, fifth}
	case 3:
		return []int{root + 12, third + 12, fifth}
	default:
		return []int{root, third, fifth}
	}
}

// Voicing is the chord's pitches for its own inversion.
func (c *Chord) Voicing() []int { return c.Pitches(c.Inversion) }

// Duration is the length of the melody, or a fixed beat when the melody was
// never initialized.
func (c *Chord) Duration() float64 {
	if c.Melody == nil {
		return unsetChordDuration
	}
	return sumDurations(c.Melody)
}

func (c *Chord) Notes() []*Note { return c.Melody }

func (c *Chord) Children() []Mutatable { return asMutatables(c.Melody) }

func (c *Chord) ScaleDuration(factor float64) { scaleUnique(c.Notes(), factor) }

func (c *Chord) Copy() *Chord {
	var melody []*Note
	if c.Melody != nil {
		melody = make([]*Note, len(c.Melody))
		for i, n := range c.Melody {
			melody[i] = n.Copy()
		}
	}
	return &Chord{
		Root:       c.Root,
		Scale:      c.Scale,
		Inversion:  c.Inversion,
		Play:       c.Play,
		Melody:     melody,
		MutateProb: c.MutateProb,
	}
}

// Phrase is an ordered run of chords.
type Phrase struct {
	node
	Chords     []*Chord
	MutateProb float64
}

func NewPhrase(chords []*Chord) *Phrase {
	return &Phrase{Chords: chords, MutateProb: DefaultPhraseMutateProb}
}

func (p *Phrase) Duration() float64 { return sumDurations(p.Chords) }

func (p *Phrase) Notes() []*Note { return collectNotes(p.Chords) }

func (p *Phrase) Children() []Mutatable { return asMutatables(p.Chords) }

func (p *Phrase) ScaleDuration(factor float64) { scaleUnique(p.Notes(), factor) }

func (p *Phrase) Copy() *Phrase {
	chords := make([]*Chord, len(p.Chords))
	for i, c := range p.Chords {
		chords[i] = c.Copy()
	}
	return &Phrase{Chords: chords, MutateProb: p.MutateProb}
}

// Verse is an ordered run of phrases.
type Verse struct {
	node
	Phrases    []*Phrase
	MutateProb float64
}

func NewVerse(phrases []*Phrase) *Verse {
	return &Verse{Phrases: phrases, MutateProb: DefaultVerseMutateProb}
}

func (v *Verse) Duration() float64 { return sumDurations(v.Phrases) }

func (v *Verse) Notes() []*Note { return collectNotes(v.Phrases) }

func (v *Verse) Children() []Mutatable { return asMutatables(v.Phrases) }

func (v *Verse) ScaleDuration(factor float64) { scaleUnique(v.Notes(), factor) }

func (v *Verse) Copy() *Verse {
	phrases := make([]*Phrase, len(v.Phrases))
	for i, p := range v.Phrases {
		phrases[i] = p.Copy()
	}
	return &Verse{Phrases: phrases, MutateProb: v.MutateProb}
}

// Song is the root of a composition.
type Song struct {
	node
	Tempo        float64
	Root         int
	LegalPitches []int
	Verses       []*Verse
	MutateProb   float64

	epoch uint64
}

func New(root int, tempo float64, legalPitches []int) *Song {
	return &Song{
		Tempo:        tempo,
		Root:         root,
		LegalPitches: append([]int(nil), legalPitches...),
		MutateProb:   DefaultSongMutateProb,
		epoch:        nextEpoch(),
	}
}

func (s *Song) AddVerses(verses ...*Verse) {
	s.Verses = append(s.Verses, verses...)
}

func (s *Song) Duration() float64 { return sumDurations(s.Verses) }

func (s *Song) Notes() []*Note { return collectNotes(s.Verses) }

func (s *Song) Children() []Mutatable { return asMutatables(s.Verses) }

func (s *Song) ScaleDuration(factor float64) { scaleUnique(s.Notes(), factor) }

// Chords lists every chord in playback order, following aliased phrases once
// per position.
func (s *Song) Chords() []*Chord {
	var out []*Chord
	for _, v := range s.Verses {
		for _, p := range v.Phrases {
			out = append(out, p.Chords...)
		}
	}
	return out
}

func (s *Song) Copy() *Song {
	out := New(s.Root, s.Tempo, s.LegalPitches)
	out.MutateProb = s.MutateProb
	out.Verses = make([]*Verse, len(s.Verses))
	for i, v := range s.Verses {
		out.Verses[i] = v.Copy()
	}
	return out
}

func sumDurations[T Mutatable](items []T) float64 {
	total := 0.0
	for _, item := range items {
		total += item.Duration()
	}
	return total
}

func collectNotes[T Mutatable](items []T) []*Note {
	var out []*Note
	for _, item := range items {
		out = append(out, item.Notes()...)
	}
	return out
}

func asMutatables[T Mutatable](items []T) []Mutatable {
	out := make([]Mutatable, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out
}

// scaleUnique scales each distinct note once, however many paths reach it.
func scaleUnique(notes []*Note, factor float64) {
	seen := make(map[*Note]struct{}, len(notes))
	for _, n := range notes {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		n.ScaleDuration(factor)
	}
}

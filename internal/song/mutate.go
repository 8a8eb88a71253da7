package song

import (
	"errors"
	"math/rand"
	"slices"
	"sync/atomic"
)

const (
	chordInversionProb = 0.25
	chordRootProb      = 0.25
	chordResizeProb    = 0.05
	chordSwapProb      = 0.05
	chordToggleProb    = 0.5

	sequenceResizeProb  = 0.1
	sequenceSwapProb    = 0.1
	sequenceRepeatProb  = 0.1
	sequenceRefreshProb = 0.1

	songTempoProb     = 0.5
	songTempoMaxShift = 10
	songSwapProb      = 0.05

	notePitchMaxShift = 3
)

var epochs atomic.Uint64

func nextEpoch() uint64 { return epochs.Add(1) }

// Pass is one generation's mutation traversal of a song. Nodes stamped with
// the pass epoch are skipped, so a node reached through several parents is
// mutated once.
type Pass struct {
	rng   *rand.Rand
	epoch uint64
	legal []int
	errs  []error
}

// RecursiveMutate mutates the song and every node reachable from it at most
// once for the current generation. Calling it again before ResetGeneration is
// a no-op. Rolled-back structural edits are reported through the returned
// error; the rest of the pass still runs.
func (s *Song) RecursiveMutate(rng *rand.Rand) error {
	p := &Pass{rng: rng, epoch: s.epoch, legal: s.LegalPitches}
	p.visit(s)
	return errors.Join(p.errs...)
}

// ResetGeneration opens a new generation so every node may mutate again.
func (s *Song) ResetGeneration() {
	s.epoch = nextEpoch()
}

func (p *Pass) visit(m Mutatable) {
	g := m.guard()
	if g.mark == p.epoch {
		return
	}
	g.mark = p.epoch
	m.mutate(p)
	for _, child := range m.Children() {
		p.visit(child)
	}
}

func (p *Pass) chance(prob float64) bool {
	return p.rng.Float64() < prob
}

func (n *Note) mutate(p *Pass) {
	if !p.chance(n.MutateProb) || len(p.legal) == 0 {
		return
	}
	idx := slices.Index(p.legal, n.Pitch)
	if idx < 0 {
		idx = 0
	}
	shift := p.rng.Intn(2*notePitchMaxShift+1) - notePitchMaxShift
	n.Pitch = p.legal[wrap(idx+shift, len(p.legal))]
}

func (c *Chord) mutate(p *Pass) {
	if !p.chance(c.MutateProb) {
		return
	}
	if p.chance(chordInversionProb) {
		c.Inversion = 1 + p.rng.Intn(3)
	}
	if p.chance(chordRootProb) {
		c.Root = p.rng.Intn(7)
		c.ResetMelody(p.rng)
	}
	if p.chance(chordResizeProb) {
		c.Melody = resize(p, c.Melody)
	}
	if p.chance(chordSwapProb) {
		Swap(p.rng, c.Melody)
	}
	if p.chance(chordToggleProb) {
		c.Play = !c.Play
	}
}

func (ph *Phrase) mutate(p *Pass) {
	ph.Chords = mutateSequence(p, ph.MutateProb, ph.Chords)
}

func (v *Verse) mutate(p *Pass) {
	v.Phrases = mutateSequence(p, v.MutateProb, v.Phrases)
}

func (s *Song) mutate(p *Pass) {
	if !p.chance(s.MutateProb) {
		return
	}
	if p.chance(songTempoProb) {
		s.Tempo += float64(p.rng.Intn(2*songTempoMaxShift+1) - songTempoMaxShift)
	}
	if p.chance(songSwapProb) {
		Swap(p.rng, s.Verses)
	}
}

func mutateSequence[T Element[T]](p *Pass, prob float64, seq []T) []T {
	if !p.chance(prob) {
		return seq
	}
	if p.chance(sequenceResizeProb) {
		seq = resize(p, seq)
	}
	if p.chance(sequenceSwapProb) {
		Swap(p.rng, seq)
	}
	if p.chance(sequenceRepeatProb) {
		seq = Repeat(p.rng, seq)
	}
	if p.chance(sequenceRefreshProb) {
		Refresh(p.rng, seq)
	}
	return seq
}

// resize merges or splits with equal odds.
func resize[T Element[T]](p *Pass, seq []T) []T {
	var (
		out []T
		err error
	)
	if p.chance(0.5) {
		out, err = Merge(p.rng, seq)
	} else {
		out, err = Split(p.rng, seq)
	}
	if err != nil {
		p.errs = append(p.errs, err)
	}
	return out
}

// NotesFromChord draws n notes from the chord's root-position tones or rest,
// sharing the chord's current duration equally.
func (c *Chord) NotesFromChord(rng *rand.Rand, n int) []*Note {
	if n <= 0 {
		return nil
	}
	pitches := append([]int{Rest}, c.Pitches(1)...)
	each := c.Duration() / float64(n)
	notes := make([]*Note, n)
	for i := range notes {
		notes[i] = NewNote(pitches[rng.Intn(len(pitches))], each)
	}
	return notes
}

// ResetMelody redraws the melody from the chord's tones, keeping its note
// count and duration.
func (c *Chord) ResetMelody(rng *rand.Rand) {
	if len(c.Melody) == 0 {
		return
	}
	c.Melody = c.NotesFromChord(rng, len(c.Melody))
}

// InitMelody sets a single one-beat note of the given pitch.
func (c *Chord) InitMelody(pitch int) {
	c.Melody = []*Note{NewNote(pitch, 1.0)}
}

// InitRandomMelody sets a single note drawn from the chord's tones.
func (c *Chord) InitRandomMelody(rng *rand.Rand) {
	c.Melody = c.NotesFromChord(rng, 1)
}

func wrap(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

// Package compose builds the initial population members.
package compose

import (
	"fmt"
	"math/rand"

	"songevo/internal/song"
)

const (
	C4 = 60
	C5 = 72
)

// MajorIntervals are the semitone offsets of a major scale.
var MajorIntervals = [7]int{0, 2, 4, 5, 7, 9, 11}

// CMajor is the C4 major scale used by default.
func CMajor() song.Scale {
	var s song.Scale
	for i, interval := range MajorIntervals {
		s[i] = C4 + interval
	}
	return s
}

// DefaultLegalPitches is the C major scale plus rest and the octave.
func DefaultLegalPitches() []int {
	scale := CMajor()
	return append(scale[:], song.Rest, C5)
}

type Options struct {
	Root         int
	Scale        song.Scale
	LegalPitches []int
	Tempo        float64
	NumVerses    int
	NumPhrases   int
	PhraseLength int
	Mutations    int
}

func DefaultOptions() Options {
	return Options{
		Root:         0,
		Scale:        CMajor(),
		LegalPitches: DefaultLegalPitches(),
		Tempo:        80,
		NumVerses:    2,
		NumPhrases:   3,
		PhraseLength: 4,
	}
}

// RandomSong builds a song of NumVerses copies of one verse, each made of
// NumPhrases copies of one phrase of PhraseLength resting chords. The copies
// are the same objects, so the song starts as a DAG. Mutations generations
// of mutation are applied before returning.
func RandomSong(rng *rand.Rand, opts Options) (*song.Song, error) {
	if opts.NumVerses < 0 || opts.NumPhrases < 0 || opts.PhraseLength < 0 {
		return nil, fmt.Errorf("song shape must be non-negative: verses=%d phrases=%d length=%d", opts.NumVerses, opts.NumPhrases, opts.PhraseLength)
	}
	s := song.New(opts.Root, opts.Tempo, opts.LegalPitches)

	chords := make([]*song.Chord, opts.PhraseLength)
	for i := range chords {
		c, err := song.NewChord(opts.Root, opts.Scale)
		if err != nil {
			return nil, err
		}
		c.InitMelody(song.Rest)
		chords[i] = c
	}

	phrase := song.NewPhrase(chords)
	phrases := make([]*song.Phrase, opts.NumPhrases)
	for i := range phrases {
		phrases[i] = phrase
	}
	verse := song.NewVerse(phrases)
	for i := 0; i < opts.NumVerses; i++ {
		s.AddVerses(verse)
	}

	for i := 0; i < opts.Mutations; i++ {
		// Drift errors are rolled back inside the pass; seeding keeps going.
		_ = s.RecursiveMutate(rng)
		s.ResetGeneration()
	}
	return s, nil
}

// Population builds size independent songs.
func Population(rng *rand.Rand, size int, opts Options) ([]*song.Song, error) {
	out := make([]*song.Song, 0, size)
	for i := 0; i < size; i++ {
		s, err := RandomSong(rng, opts)
		if err != nil {
			return nil, fmt.Errorf("seed song %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

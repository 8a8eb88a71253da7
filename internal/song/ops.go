package song

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"slices"
)

const (
	// DurationTolerance bounds the total-duration drift allowed across a
	// merge or split.
	DurationTolerance = 2e-4
	// MinSplitDuration stops splitting once any leaf note gets this short.
	MinSplitDuration = 0.25
)

var ErrDurationDrift = errors.New("sequence duration drift")

// Swap exchanges two positions picked with replacement.
func Swap[T any](rng *rand.Rand, seq []T) {
	if len(seq) < 2 {
		return
	}
	a := rng.Intn(len(seq))
	b := rng.Intn(len(seq))
	seq[a], seq[b] = seq[b], seq[a]
}

// Merge replaces a random element and its successor by a copy of the element
// stretched over both. On drift the input is returned unchanged along with
// ErrDurationDrift.
func Merge[T Element[T]](rng *rand.Rand, seq []T) ([]T, error) {
	if len(seq) < 2 {
		return seq, nil
	}
	before := sumDurations(seq)

	i := rng.Intn(len(seq) - 1)
	first := seq[i].Duration()
	second := seq[i+1].Duration()
	if first <= 0 || len(seq[i].Notes()) == 0 {
		return seq, nil
	}

	merged := seq[i].Copy()
	merged.ScaleDuration((first + second) / first)

	out := make([]T, 0, len(seq)-1)
	out = append(out, seq[:i]...)
	out = append(out, merged)
	out = append(out, seq[i+2:]...)
	if err := checkDrift("merge", before, sumDurations(out)); err != nil {
		return seq, err
	}
	return out, nil
}

// Split halves a random element and plays it twice. Elements holding a note
// shorter than MinSplitDuration are left alone.
func Split[T Element[T]](rng *rand.Rand, seq []T) ([]T, error) {
	if len(seq) == 0 {
		return seq, nil
	}
	before := sumDurations(seq)

	idx := rng.Intn(len(seq))
	notes := seq[idx].Notes()
	if len(notes) == 0 {
		return seq, nil
	}
	for _, n := range notes {
		if n.Beats < MinSplitDuration {
			return seq, nil
		}
	}

	half := seq[idx].Copy()
	half.ScaleDuration(0.5)
	out := make([]T, 0, len(seq)+1)
	out = append(out, seq[:idx]...)
	out = append(out, half, half.Copy())
	out = append(out, seq[idx+1:]...)
	if err := checkDrift("split", before, sumDurations(out)); err != nil {
		return seq, err
	}
	return out, nil
}

// Repeat inserts a copy of a random element at a random position, growing
// the sequence by that element's duration.
func Repeat[T Element[T]](rng *rand.Rand, seq []T) []T {
	if len(seq) == 0 {
		return seq
	}
	dup := seq[rng.Intn(len(seq))].Copy()
	return slices.Insert(seq, rng.Intn(len(seq)+1), dup)
}

// Refresh replaces a random element by a fresh copy of itself.
func Refresh[T Element[T]](rng *rand.Rand, seq []T) {
	if len(seq) == 0 {
		return
	}
	idx := rng.Intn(len(seq))
	seq[idx] = seq[idx].Copy()
}

func checkDrift(op string, before, after float64) error {
	if math.Abs(before-after) > DurationTolerance {
		return fmt.Errorf("%w: %s changed %.4f to %.4f", ErrDurationDrift, op, before, after)
	}
	return nil
}

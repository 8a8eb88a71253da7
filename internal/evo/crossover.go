package evo

import (
	"math/rand"
	"slices"

	"songevo/internal/song"
)

// Crossover builds one child from two scored parents. Children never share
// structure with their parents.
type Crossover interface {
	Name() string
	Cross(rng *rand.Rand, a, b Scored) *song.Song
}

// AsexualCrossover copies the fitter parent; ties go to b.
type AsexualCrossover struct{}

func (AsexualCrossover) Name() string {
	return "asexual"
}

func (AsexualCrossover) Cross(_ *rand.Rand, a, b Scored) *song.Song {
	if a.Fitness > b.Fitness {
		return a.Song.Copy()
	}
	return b.Song.Copy()
}

// SinglePointCrossover cuts both verse lists at one pivot no larger than the
// shorter list: the child is b's verses before the pivot followed by a's
// verses from the pivot on.
type SinglePointCrossover struct{}

func (SinglePointCrossover) Name() string {
	return "single_point"
}

func (SinglePointCrossover) Cross(rng *rand.Rand, a, b Scored) *song.Song {
	pivot := rng.Intn(min(len(a.Song.Verses), len(b.Song.Verses)) + 1)
	child := b.Song.Copy()
	child.Verses = slices.Concat(child.Verses[:pivot], copyVerses(a.Song.Verses[pivot:]))
	return child
}

// TwoPointCrossover replaces a range of the fitter parent's verses with a
// range of the other parent's verses. Both ranges are drawn independently.
// Parents with fewer than two verses fall back to AsexualCrossover.
type TwoPointCrossover struct{}

func (TwoPointCrossover) Name() string {
	return "two_point"
}

func (TwoPointCrossover) Cross(rng *rand.Rand, a, b Scored) *song.Song {
	better, other := b, a
	if a.Fitness > b.Fitness {
		better, other = a, b
	}
	if len(better.Song.Verses) < 2 || len(other.Song.Verses) < 2 {
		return AsexualCrossover{}.Cross(rng, a, b)
	}
	c0, c1 := sortedPair(rng, len(other.Song.Verses))
	i0, i1 := sortedPair(rng, len(better.Song.Verses))

	child := better.Song.Copy()
	child.Verses = slices.Concat(
		child.Verses[:i0],
		copyVerses(other.Song.Verses[c0:c1]),
		child.Verses[i1:],
	)
	return child
}

// BandedCrossover draws r in [0,1): r < SinglePointRate splices at one
// point, r < SinglePointRate+TwoPointRate splices at two points, anything
// else is asexual.
type BandedCrossover struct {
	SinglePointRate float64
	TwoPointRate    float64
}

func (BandedCrossover) Name() string {
	return "banded"
}

func (c BandedCrossover) Cross(rng *rand.Rand, a, b Scored) *song.Song {
	r := rng.Float64()
	switch {
	case r < c.SinglePointRate:
		return SinglePointCrossover{}.Cross(rng, a, b)
	case r < c.SinglePointRate+c.TwoPointRate:
		return TwoPointCrossover{}.Cross(rng, a, b)
	default:
		return AsexualCrossover{}.Cross(rng, a, b)
	}
}

// sortedPair draws two distinct indices in [0,n) in ascending order.
func sortedPair(rng *rand.Rand, n int) (int, int) {
	perm := rng.Perm(n)
	return min(perm[0], perm[1]), max(perm[0], perm[1])
}

func copyVerses(verses []*song.Verse) []*song.Verse {
	out := make([]*song.Verse, len(verses))
	for i, v := range verses {
		out[i] = v.Copy()
	}
	return out
}

package evo

import (
	"fmt"
	"math/rand"
)

// Selector chooses the survivors of a generation from a population ranked
// by descending fitness.
type Selector interface {
	Name() string
	Select(rng *rand.Rand, ranked []Scored) ([]Scored, error)
}

// TruncationSelector keeps the top floor(n*SurvivalRate) individuals, at
// least one, then samples floor(rest*SurvivalNoise) more uniformly without
// replacement from the rest.
type TruncationSelector struct {
	SurvivalRate  float64
	SurvivalNoise float64
}

func (TruncationSelector) Name() string {
	return "truncation"
}

func (s TruncationSelector) Select(rng *rand.Rand, ranked []Scored) ([]Scored, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if len(ranked) == 0 {
		return nil, ErrEmptyPopulation
	}
	if s.SurvivalRate <= 0 || s.SurvivalRate > 1 {
		return nil, fmt.Errorf("%w: survival rate %v outside (0,1]", ErrInvalidConfig, s.SurvivalRate)
	}
	if s.SurvivalNoise < 0 || s.SurvivalNoise > 1 {
		return nil, fmt.Errorf("%w: survival noise %v outside [0,1]", ErrInvalidConfig, s.SurvivalNoise)
	}

	keep := int(float64(len(ranked)) * s.SurvivalRate)
	if keep < 1 {
		keep = 1
	}
	survivors := make([]Scored, 0, len(ranked))
	survivors = append(survivors, ranked[:keep]...)

	rest := ranked[keep:]
	spots := int(float64(len(rest)) * s.SurvivalNoise)
	for _, idx := range rng.Perm(len(rest))[:spots] {
		survivors = append(survivors, rest[idx])
	}
	return survivors, nil
}

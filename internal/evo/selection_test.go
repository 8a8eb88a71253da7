package evo

import (
	"errors"
	"math/rand"
	"testing"
)

func scoredTempos(t *testing.T, tempos ...float64) []Scored {
	t.Helper()
	songs := tempoSongs(t, tempos...)
	out := make([]Scored, len(songs))
	for i, s := range songs {
		out[i] = Scored{Song: s, Fitness: s.Tempo}
	}
	return Rank(out)
}

func TestTruncationSelectorKeepsTopFraction(t *testing.T) {
	ranked := scoredTempos(t, 10, 90, 20, 80, 30, 70, 40, 60, 50, 100)
	survivors, err := TruncationSelector{SurvivalRate: 0.5}.Select(rand.New(rand.NewSource(1)), ranked)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(survivors) != 5 {
		t.Fatalf("expected 5 survivors, got %d", len(survivors))
	}
	for i, want := range []float64{100, 90, 80, 70, 60} {
		if survivors[i].Fitness != want {
			t.Fatalf("survivor %d: expected %f got %f", i, want, survivors[i].Fitness)
		}
	}
}

func TestTruncationSelectorAddsNoiseWithoutReplacement(t *testing.T) {
	ranked := scoredTempos(t, 10, 90, 20, 80, 30, 70, 40, 60, 50, 100)
	selector := TruncationSelector{SurvivalRate: 0.5, SurvivalNoise: 0.4}
	rng := rand.New(rand.NewSource(3))
	for trial := 0; trial < 50; trial++ {
		survivors, err := selector.Select(rng, ranked)
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		if len(survivors) != 7 {
			t.Fatalf("expected 5 + floor(5*0.4) survivors, got %d", len(survivors))
		}
		seen := map[float64]bool{}
		for i, s := range survivors {
			if seen[s.Fitness] {
				t.Fatalf("survivor %v picked twice", s.Fitness)
			}
			seen[s.Fitness] = true
			if i >= 5 && s.Fitness > 50 {
				t.Fatalf("noise survivor %v came from the kept set", s.Fitness)
			}
		}
	}
}

func TestTruncationSelectorKeepsAtLeastOne(t *testing.T) {
	ranked := scoredTempos(t, 10, 20, 30)
	survivors, err := TruncationSelector{SurvivalRate: 0.1}.Select(rand.New(rand.NewSource(1)), ranked)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(survivors) != 1 || survivors[0].Fitness != 30 {
		t.Fatalf("expected the single best survivor, got %d", len(survivors))
	}
}

func TestTruncationSelectorValidation(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	if _, err := (TruncationSelector{SurvivalRate: 0.5}).Select(rng, nil); !errors.Is(err, ErrEmptyPopulation) {
		t.Fatalf("expected ErrEmptyPopulation, got %v", err)
	}
	ranked := scoredTempos(t, 10)
	if _, err := (TruncationSelector{SurvivalRate: 0}).Select(rng, ranked); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if _, err := (TruncationSelector{SurvivalRate: 1}).Select(nil, ranked); err == nil {
		t.Fatal("expected missing random source error")
	}
}

package critic

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrCriticExists   = errors.New("critic already registered")
	ErrCriticNotFound = errors.New("critic not found")
)

// Factory builds a fresh critic with its default parameters.
type Factory func() Critic

var criticRegistry = struct {
	mu sync.RWMutex
	m  map[string]Factory
}{
	m: make(map[string]Factory),
}

func init() {
	initializeBuiltInCritics()
}

func initializeBuiltInCritics() {
	MustRegisterCritic("Tempo", func() Critic { return Tempo{Target: 40} })
	MustRegisterCritic("TempoValue", func() Critic { return TempoValue{} })
	MustRegisterCritic("Length", func() Critic { return Length{Target: 16} })
	MustRegisterCritic("ChordCount", func() Critic { return ChordCount{Target: 4} })
	MustRegisterCritic("AscendingMelody", func() Critic { return AscendingMelody{} })
	MustRegisterCritic("DescendingMelody", func() Critic { return DescendingMelody{} })
	MustRegisterCritic("Rhythm", func() Critic { return Rhythm{Target: 10} })
	MustRegisterCritic("Major", func() Critic { return Major{} })
	MustRegisterCritic("Minor", func() Critic { return Minor{} })
	MustRegisterCritic("ChordProgression", func() Critic {
		return ChordProgression{Progression: []int{0, 3, 4}}
	})
	MustRegisterCritic("FollowingEm", func() Critic { return FollowingEm{From: 3, To: []int{4, 6}} })
	MustRegisterCritic("MeterDuration", func() Critic {
		return MeterDuration{Patterns: [][]float64{Iamb, Anapest, Trochee, Dactyl, Amphibrach}}
	})
	MustRegisterCritic("ChordDurationRepetition", func() Critic { return ChordDurationRepetition{} })
	MustRegisterCritic("RestRatio", func() Critic { return RestRatio{Target: 4} })
}

func RegisterCritic(name string, factory Factory) error {
	if name == "" {
		return errors.New("critic name is required")
	}
	if factory == nil {
		return errors.New("critic factory is required")
	}

	criticRegistry.mu.Lock()
	defer criticRegistry.mu.Unlock()

	if _, exists := criticRegistry.m[name]; exists {
		return fmt.Errorf("%w: %s", ErrCriticExists, name)
	}
	criticRegistry.m[name] = factory
	return nil
}

func MustRegisterCritic(name string, factory Factory) {
	if err := RegisterCritic(name, factory); err != nil {
		panic(err)
	}
}

// Resolve builds the critic registered under name.
func Resolve(name string) (Critic, error) {
	criticRegistry.mu.RLock()
	factory, ok := criticRegistry.m[name]
	criticRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCriticNotFound, name)
	}
	return factory(), nil
}

// ResolveAll builds the critics for a configured list of names, in order.
func ResolveAll(names []string) ([]Critic, error) {
	out := make([]Critic, 0, len(names))
	for _, name := range names {
		c, err := Resolve(name)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func ListCritics() []string {
	criticRegistry.mu.RLock()
	defer criticRegistry.mu.RUnlock()

	names := make([]string, 0, len(criticRegistry.m))
	for name := range criticRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resetCriticRegistryForTests() {
	criticRegistry.mu.Lock()
	criticRegistry.m = make(map[string]Factory)
	criticRegistry.mu.Unlock()
	initializeBuiltInCritics()
}

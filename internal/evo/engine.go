// Package evo runs the generation loop: score every song with the configured
// critics, keep the fittest, mutate them and breed the next population.
package evo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"songevo/internal/compose"
	"songevo/internal/critic"
	"songevo/internal/model"
	"songevo/internal/song"
)

const defaultReportEvery = 10

var (
	ErrInvalidConfig   = errors.New("invalid engine config")
	ErrEmptyPopulation = errors.New("population is empty")
)

type Scored struct {
	Song        *song.Song
	Fitness     float64
	Fingerprint string
}

// GenerationDiagnostics is stored as-is, so it is the persisted record.
type GenerationDiagnostics = model.GenerationDiagnostics

type RunResult struct {
	// FirstBest and FinalBest are copies taken when they were ranked, so
	// later generations cannot change them.
	FirstBest             Scored
	FinalBest             Scored
	BestByGeneration      []float64
	GenerationDiagnostics []GenerationDiagnostics
	FinalPopulation       []Scored
}

type Config struct {
	Critics        []critic.Critic
	PopulationSize int
	SurvivalRate   float64
	SurvivalNoise  float64
	CrossoverRate  float64
	TwoPointRate   float64
	Generations    int
	Workers        int
	Seed           int64
	// Compose shapes seeded songs; a zero scale selects compose.DefaultOptions.
	Compose compose.Options
	// Selector and Crossover default to truncation on the survival rates
	// and banded crossover on the crossover rates.
	Selector    Selector
	Crossover   Crossover
	ReportEvery int
	Logger      *slog.Logger
}

type Engine struct {
	cfg        Config
	rng        *rand.Rand
	log        *slog.Logger
	population []*song.Song
}

func NewEngine(cfg Config) (*Engine, error) {
	if cfg.PopulationSize <= 0 {
		return nil, fmt.Errorf("%w: population size must be > 0", ErrInvalidConfig)
	}
	if cfg.SurvivalRate <= 0 || cfg.SurvivalRate > 1 {
		return nil, fmt.Errorf("%w: survival rate must be in (0,1]", ErrInvalidConfig)
	}
	if cfg.SurvivalNoise < 0 || cfg.SurvivalNoise > 1 {
		return nil, fmt.Errorf("%w: survival noise must be in [0,1]", ErrInvalidConfig)
	}
	if cfg.CrossoverRate < 0 || cfg.TwoPointRate < 0 || cfg.CrossoverRate+cfg.TwoPointRate > 1 {
		return nil, fmt.Errorf("%w: crossover rates must be >= 0 and sum to <= 1", ErrInvalidConfig)
	}
	if cfg.Generations < 0 {
		return nil, fmt.Errorf("%w: generations must be >= 0", ErrInvalidConfig)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.ReportEvery <= 0 {
		cfg.ReportEvery = defaultReportEvery
	}
	if cfg.Compose.Scale == (song.Scale{}) {
		cfg.Compose = compose.DefaultOptions()
	}
	if cfg.Selector == nil {
		cfg.Selector = TruncationSelector{SurvivalRate: cfg.SurvivalRate, SurvivalNoise: cfg.SurvivalNoise}
	}
	if cfg.Crossover == nil {
		cfg.Crossover = BandedCrossover{SinglePointRate: cfg.CrossoverRate, TwoPointRate: cfg.TwoPointRate}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Critics) == 0 {
		logger.Warn("no critics configured; every song scores 0")
	}

	return &Engine{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
		log: logger,
	}, nil
}

// Seed replaces the population with PopulationSize freshly composed songs.
func (e *Engine) Seed() error {
	pop, err := compose.Population(e.rng, e.cfg.PopulationSize, e.cfg.Compose)
	if err != nil {
		return err
	}
	e.population = pop
	return nil
}

// SetPopulation installs an existing population. The songs must not share
// structure with each other.
func (e *Engine) SetPopulation(pop []*song.Song) {
	e.population = append([]*song.Song(nil), pop...)
}

func (e *Engine) Population() []*song.Song {
	return append([]*song.Song(nil), e.population...)
}

func (e *Engine) Fitness(s *song.Song) float64 {
	return critic.Sum(e.cfg.Critics, s)
}

// Evaluate scores every song on the worker pool and returns the scores in
// population order.
func (e *Engine) Evaluate(ctx context.Context, population []*song.Song) ([]Scored, error) {
	if len(population) == 0 {
		return nil, nil
	}

	scored := make([]Scored, len(population))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i, s := range population {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			scored[i] = Scored{
				Song:        s,
				Fitness:     e.Fitness(s),
				Fingerprint: s.Fingerprint(),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// The feeding loop can stop on a cancellation no goroutine saw.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return scored, nil
}

// Rank orders scores by descending fitness. Equal scores keep their
// population order.
func Rank(scored []Scored) []Scored {
	ranked := append([]Scored(nil), scored...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Fitness > ranked[j].Fitness
	})
	return ranked
}

// Best returns the fittest member of the current population.
func (e *Engine) Best(ctx context.Context) (Scored, error) {
	ranked, err := e.rank(ctx)
	if err != nil {
		return Scored{}, err
	}
	return ranked[0], nil
}

// SelectSurvivors scores the current population and applies the selector.
func (e *Engine) SelectSurvivors(ctx context.Context) ([]*song.Song, error) {
	ranked, err := e.rank(ctx)
	if err != nil {
		return nil, err
	}
	survivors, err := e.cfg.Selector.Select(e.rng, ranked)
	if err != nil {
		return nil, err
	}
	return songsOf(survivors), nil
}

// MutateSurvivors runs one mutation pass over each survivor in parallel, one
// goroutine per song, then opens a new generation on each. A survivor whose
// pass reported an invariant violation is logged and kept; the count of such
// survivors is returned.
func (e *Engine) MutateSurvivors(ctx context.Context, survivors []*song.Song) (int, error) {
	seeds := make([]int64, len(survivors))
	for i := range seeds {
		seeds[i] = e.rng.Int63()
	}

	var faults atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i, s := range survivors {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := s.RecursiveMutate(rand.New(rand.NewSource(seeds[i]))); err != nil {
				faults.Add(1)
				e.log.Warn("mutation rolled back", "individual", i, "err", err)
			}
			s.ResetGeneration()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return int(faults.Load()), nil
}

// Repopulate shuffles the survivors and breeds target children from
// consecutive pairs, wrapping around the survivor list.
func (e *Engine) Repopulate(ctx context.Context, survivors []*song.Song, target int) ([]*song.Song, error) {
	if len(survivors) == 0 {
		return nil, ErrEmptyPopulation
	}
	parents, err := e.Evaluate(ctx, survivors)
	if err != nil {
		return nil, err
	}
	e.rng.Shuffle(len(parents), func(i, j int) {
		parents[i], parents[j] = parents[j], parents[i]
	})

	children := make([]*song.Song, 0, target)
	for idx := 0; len(children) < target; idx += 2 {
		a := parents[idx%len(parents)]
		b := parents[(idx+1)%len(parents)]
		children = append(children, e.cfg.Crossover.Cross(e.rng, a, b))
	}
	return children, nil
}

// Step advances one generation and reports on the population it started
// from.
func (e *Engine) Step(ctx context.Context, generation int) (GenerationDiagnostics, error) {
	ranked, err := e.rank(ctx)
	if err != nil {
		return GenerationDiagnostics{}, err
	}
	diag := summarizeGeneration(ranked, generation)

	kept, err := e.cfg.Selector.Select(e.rng, ranked)
	if err != nil {
		return GenerationDiagnostics{}, err
	}
	survivors := songsOf(kept)
	diag.Survivors = len(survivors)

	diag.MutationFaults, err = e.MutateSurvivors(ctx, survivors)
	if err != nil {
		return GenerationDiagnostics{}, err
	}

	e.population, err = e.Repopulate(ctx, survivors, e.cfg.PopulationSize)
	if err != nil {
		return GenerationDiagnostics{}, err
	}
	return diag, nil
}

// Run seeds the population if needed and evolves it for the configured
// number of generations.
func (e *Engine) Run(ctx context.Context) (RunResult, error) {
	if len(e.population) == 0 {
		if err := e.Seed(); err != nil {
			return RunResult{}, err
		}
	}

	first, err := e.Best(ctx)
	if err != nil {
		return RunResult{}, err
	}
	first.Song = first.Song.Copy()

	bestHistory := make([]float64, 0, e.cfg.Generations)
	diagnostics := make([]GenerationDiagnostics, 0, e.cfg.Generations)
	for gen := 0; gen < e.cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return RunResult{}, err
		}

		diag, err := e.Step(ctx, gen+1)
		if err != nil {
			return RunResult{}, err
		}
		bestHistory = append(bestHistory, diag.BestFitness)
		diagnostics = append(diagnostics, diag)

		e.log.Debug("generation complete",
			"generation", diag.Generation,
			"best", diag.BestFitness,
			"mean", diag.MeanFitness,
			"diversity", diag.FingerprintDiversity,
		)
		if gen%e.cfg.ReportEvery == 0 {
			e.log.Info("generation", "generation", diag.Generation, "best_fitness", diag.BestFitness)
		}
	}

	final, err := e.rank(ctx)
	if err != nil {
		return RunResult{}, err
	}
	finalBest := final[0]
	finalBest.Song = finalBest.Song.Copy()

	return RunResult{
		FirstBest:             first,
		FinalBest:             finalBest,
		BestByGeneration:      bestHistory,
		GenerationDiagnostics: diagnostics,
		FinalPopulation:       final,
	}, nil
}

func (e *Engine) rank(ctx context.Context) ([]Scored, error) {
	if len(e.population) == 0 {
		return nil, ErrEmptyPopulation
	}
	scored, err := e.Evaluate(ctx, e.population)
	if err != nil {
		return nil, err
	}
	return Rank(scored), nil
}

func summarizeGeneration(ranked []Scored, generation int) GenerationDiagnostics {
	if len(ranked) == 0 {
		return GenerationDiagnostics{Generation: generation}
	}

	total := 0.0
	minFitness := ranked[0].Fitness
	fingerprints := make(map[string]struct{}, len(ranked))
	for _, item := range ranked {
		total += item.Fitness
		if item.Fitness < minFitness {
			minFitness = item.Fitness
		}
		fingerprints[item.Fingerprint] = struct{}{}
	}

	return GenerationDiagnostics{
		Generation:           generation,
		BestFitness:          ranked[0].Fitness,
		MeanFitness:          total / float64(len(ranked)),
		MinFitness:           minFitness,
		FingerprintDiversity: len(fingerprints),
	}
}

func songsOf(scored []Scored) []*song.Song {
	out := make([]*song.Song, len(scored))
	for i, s := range scored {
		out[i] = s.Song
	}
	return out
}

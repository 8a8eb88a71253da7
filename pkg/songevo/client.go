// Package songevo is the programmatic entry point: it runs evolutions from a
// config.Run, persists their results and renders the songs they produced.
package songevo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"songevo/internal/config"
	"songevo/internal/critic"
	"songevo/internal/evo"
	"songevo/internal/model"
	"songevo/internal/render"
	"songevo/internal/song"
	"songevo/internal/stats"
	"songevo/internal/storage"
)

const (
	defaultOutputDir = "runs"
	defaultDBPath    = "songevo.db"

	LabelFirst = "first"
	LabelFinal = "final"
)

var (
	ErrRunNotFound    = errors.New("run not found")
	ErrNoRuns         = errors.New("no runs available")
	ErrAmbiguousRunID = errors.New("use either run id or latest")
	ErrMissingRunID   = errors.New("run id or latest is required")
)

type Options struct {
	StoreKind string
	DBPath    string
	OutputDir string
	Logger    *slog.Logger
	// Renderer defaults to render.MIDIRenderer.
	Renderer render.Renderer
	// Now defaults to time.Now.
	Now func() time.Time
}

type Client struct {
	store     storage.Store
	outputDir string
	log       *slog.Logger
	renderer  render.Renderer
	now       func() time.Time

	mu          sync.Mutex
	initialized bool
}

type RunSummary struct {
	RunID            string
	ArtifactsDir     string
	BestByGeneration []float64
	FirstBestFitness float64
	FinalBestFitness float64
	FirstMIDIPath    string
	FinalMIDIPath    string
	// FitnessPlotPath is empty when the run had no generations.
	FitnessPlotPath string
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID            string   `json:"run_id"`
	CreatedAtUTC     string   `json:"created_at_utc"`
	Critics          []string `json:"critics"`
	Seed             int64    `json:"seed"`
	Population       int      `json:"population_size"`
	Generations      int      `json:"generations"`
	FirstBestFitness float64  `json:"first_best_fitness"`
	FinalBestFitness float64  `json:"final_best_fitness"`
}

type FitnessHistoryRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type DiagnosticsRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type RenderRequest struct {
	RunID  string
	Latest bool
	// Label is LabelFirst or LabelFinal; empty means LabelFinal.
	Label   string
	OutPath string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = defaultOutputDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	renderer := opts.Renderer
	if renderer == nil {
		renderer = render.MIDIRenderer{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:     store,
		outputDir: outputDir,
		log:       logger,
		renderer:  renderer,
		now:       now,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	c.initialized = true
	return nil
}

// Run evolves a population as cfg describes. It stores the run, writes
// its artifacts under the output directory and renders the first and
// final best songs.
func (c *Client) Run(ctx context.Context, cfg config.Run) (RunSummary, error) {
	if err := cfg.Validate(); err != nil {
		return RunSummary{}, err
	}
	if err := c.Init(ctx); err != nil {
		return RunSummary{}, err
	}
	critics, err := critic.ResolveAll(cfg.Critics)
	if err != nil {
		return RunSummary{}, err
	}
	composeOpts, err := cfg.ComposeOptions()
	if err != nil {
		return RunSummary{}, err
	}

	runID := uuid.NewString()
	log := c.log.With("run_id", runID)
	engine, err := evo.NewEngine(evo.Config{
		Critics:        critics,
		PopulationSize: cfg.PopulationSize,
		SurvivalRate:   cfg.SurvivalRate,
		SurvivalNoise:  cfg.SurvivalNoise,
		CrossoverRate:  cfg.CrossoverRate,
		TwoPointRate:   cfg.TwoPointRate,
		Generations:    cfg.Generations,
		Workers:        cfg.Workers,
		Seed:           cfg.Seed,
		Compose:        composeOpts,
		Logger:         log,
	})
	if err != nil {
		return RunSummary{}, err
	}

	log.Info("run started", "critics", cfg.Critics, "population", cfg.PopulationSize, "generations", cfg.Generations)
	result, err := engine.Run(ctx)
	if err != nil {
		return RunSummary{}, err
	}

	createdAt := c.now().UTC()
	first := newSongRecord(runID, LabelFirst, result.FirstBest)
	final := newSongRecord(runID, LabelFinal, result.FinalBest)
	run := model.RunRecord{
		VersionedRecord:  storage.CurrentVersion(),
		ID:               runID,
		CreatedAt:        createdAt,
		Critics:          append([]string(nil), cfg.Critics...),
		PopulationSize:   cfg.PopulationSize,
		Generations:      cfg.Generations,
		SurvivalRate:     cfg.SurvivalRate,
		SurvivalNoise:    cfg.SurvivalNoise,
		CrossoverRate:    cfg.CrossoverRate,
		TwoPointRate:     cfg.TwoPointRate,
		Seed:             cfg.Seed,
		FirstBestFitness: first.Fitness,
		FinalBestFitness: final.Fitness,
		FirstSongID:      first.ID,
		FinalSongID:      final.ID,
	}

	if err := c.persist(ctx, run, result, first, final); err != nil {
		return RunSummary{}, err
	}

	runDir, err := stats.WriteRunArtifacts(c.outputDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:          runID,
			Critics:        run.Critics,
			PopulationSize: cfg.PopulationSize,
			Generations:    cfg.Generations,
			SurvivalRate:   cfg.SurvivalRate,
			SurvivalNoise:  cfg.SurvivalNoise,
			CrossoverRate:  cfg.CrossoverRate,
			TwoPointRate:   cfg.TwoPointRate,
			Seed:           cfg.Seed,
			Workers:        cfg.Workers,
			Root:           cfg.Song.Root,
			Tempo:          cfg.Song.Tempo,
			Verses:         cfg.Song.Verses,
			Phrases:        cfg.Song.Phrases,
			PhraseLength:   cfg.Song.PhraseLength,
		},
		BestByGeneration:      result.BestByGeneration,
		GenerationDiagnostics: result.GenerationDiagnostics,
		FirstSong:             first,
		FinalSong:             final,
	})
	if err != nil {
		return RunSummary{}, fmt.Errorf("write artifacts: %w", err)
	}
	if err := stats.AppendRunIndex(c.outputDir, stats.RunIndexEntry{
		RunID:            runID,
		Critics:          run.Critics,
		PopulationSize:   cfg.PopulationSize,
		Generations:      cfg.Generations,
		Seed:             cfg.Seed,
		FirstBestFitness: first.Fitness,
		FinalBestFitness: final.Fitness,
		CreatedAtUTC:     createdAt.Format(time.RFC3339Nano),
	}); err != nil {
		return RunSummary{}, fmt.Errorf("update run index: %w", err)
	}

	summary := RunSummary{
		RunID:            runID,
		ArtifactsDir:     runDir,
		BestByGeneration: append([]float64(nil), result.BestByGeneration...),
		FirstBestFitness: first.Fitness,
		FinalBestFitness: final.Fitness,
		FirstMIDIPath:    filepath.Join(runDir, stats.FirstMIDIFile),
		FinalMIDIPath:    filepath.Join(runDir, stats.FinalMIDIFile),
	}
	if err := render.RenderFile(c.renderer, summary.FirstMIDIPath, result.FirstBest.Song); err != nil {
		return RunSummary{}, fmt.Errorf("render first song: %w", err)
	}
	if err := render.RenderFile(c.renderer, summary.FinalMIDIPath, result.FinalBest.Song); err != nil {
		return RunSummary{}, fmt.Errorf("render final song: %w", err)
	}
	if len(result.GenerationDiagnostics) > 0 {
		summary.FitnessPlotPath = filepath.Join(runDir, stats.FitnessPlotFile)
		title := fmt.Sprintf("%v (seed %d)", cfg.Critics, cfg.Seed)
		if err := stats.WriteFitnessPlot(summary.FitnessPlotPath, title, result.GenerationDiagnostics); err != nil {
			return RunSummary{}, fmt.Errorf("plot fitness: %w", err)
		}
	}

	log.Info("run finished",
		"first_best_fitness", first.Fitness,
		"final_best_fitness", final.Fitness,
		"artifacts", runDir,
	)
	return summary, nil
}

// Runs lists known runs newest first. The artifact index and the store are
// merged, so runs recorded by only one of them are still listed.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	entries, err := stats.ListRunIndex(c.outputDir)
	if err != nil {
		return nil, err
	}
	records, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stored runs: %w", err)
	}

	items := make([]RunItem, 0, len(entries)+len(records))
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		seen[entry.RunID] = struct{}{}
		items = append(items, RunItem{
			RunID:            entry.RunID,
			CreatedAtUTC:     entry.CreatedAtUTC,
			Critics:          append([]string(nil), entry.Critics...),
			Seed:             entry.Seed,
			Population:       entry.PopulationSize,
			Generations:      entry.Generations,
			FirstBestFitness: entry.FirstBestFitness,
			FinalBestFitness: entry.FinalBestFitness,
		})
	}
	for _, run := range records {
		if _, ok := seen[run.ID]; ok {
			continue
		}
		items = append(items, RunItem{
			RunID:            run.ID,
			CreatedAtUTC:     run.CreatedAt.UTC().Format(time.RFC3339Nano),
			Critics:          append([]string(nil), run.Critics...),
			Seed:             run.Seed,
			Population:       run.PopulationSize,
			Generations:      run.Generations,
			FirstBestFitness: run.FirstBestFitness,
			FinalBestFitness: run.FinalBestFitness,
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		return parseCreatedAt(items[i].CreatedAtUTC).After(parseCreatedAt(items[j].CreatedAtUTC))
	})

	if req.Limit > 0 && len(items) > req.Limit {
		items = items[:req.Limit]
	}
	return items, nil
}

func parseCreatedAt(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

// FitnessHistory returns the best fitness per generation. The store is
// consulted first, then the run's artifacts.
func (c *Client) FitnessHistory(ctx context.Context, req FitnessHistoryRequest) ([]float64, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}

	history, ok, err := c.store.GetFitnessHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		history, ok, err = stats.ReadFitnessSeries(c.outputDir, runID)
		if err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, fmt.Errorf("%w: fitness history for %s", ErrRunNotFound, runID)
	}
	if req.Limit > 0 && len(history) > req.Limit {
		history = history[:req.Limit]
	}
	return append([]float64(nil), history...), nil
}

func (c *Client) Diagnostics(ctx context.Context, req DiagnosticsRequest) ([]model.GenerationDiagnostics, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}

	diagnostics, ok, err := c.store.GetGenerationDiagnostics(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		diagnostics, ok, err = stats.ReadGenerationDiagnostics(c.outputDir, runID)
		if err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, fmt.Errorf("%w: diagnostics for %s", ErrRunNotFound, runID)
	}
	if req.Limit > 0 && len(diagnostics) > req.Limit {
		diagnostics = diagnostics[:req.Limit]
	}
	out := make([]model.GenerationDiagnostics, len(diagnostics))
	copy(out, diagnostics)
	return out, nil
}

// RenderSong renders a stored run's first or final best song to
// req.OutPath and returns the path written.
func (c *Client) RenderSong(ctx context.Context, req RenderRequest) (string, error) {
	if req.OutPath == "" {
		return "", errors.New("output path is required")
	}
	label := req.Label
	if label == "" {
		label = LabelFinal
	}
	if label != LabelFirst && label != LabelFinal {
		return "", fmt.Errorf("unknown song label %q", label)
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return "", err
	}

	record, err := c.songRecord(ctx, runID, label)
	if err != nil {
		return "", err
	}
	s, err := song.FromSnapshot(record.Song)
	if err != nil {
		return "", fmt.Errorf("rebuild song %s: %w", record.ID, err)
	}
	if err := render.RenderFile(c.renderer, req.OutPath, s); err != nil {
		return "", err
	}
	c.log.Info("song rendered", "run_id", runID, "label", label, "path", req.OutPath)
	return req.OutPath, nil
}

func (c *Client) persist(ctx context.Context, run model.RunRecord, result evo.RunResult, first, final model.SongRecord) error {
	if err := c.store.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	if err := c.store.SaveFitnessHistory(ctx, run.ID, result.BestByGeneration); err != nil {
		return fmt.Errorf("save fitness history: %w", err)
	}
	if err := c.store.SaveGenerationDiagnostics(ctx, run.ID, result.GenerationDiagnostics); err != nil {
		return fmt.Errorf("save diagnostics: %w", err)
	}
	for _, record := range []model.SongRecord{first, final} {
		if err := c.store.SaveSong(ctx, record); err != nil {
			return fmt.Errorf("save %s song: %w", record.Label, err)
		}
	}
	return nil
}

func (c *Client) songRecord(ctx context.Context, runID, label string) (model.SongRecord, error) {
	if err := c.Init(ctx); err != nil {
		return model.SongRecord{}, err
	}
	run, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return model.SongRecord{}, err
	}
	if ok {
		id := run.FinalSongID
		if label == LabelFirst {
			id = run.FirstSongID
		}
		record, found, err := c.store.GetSong(ctx, id)
		if err != nil {
			return model.SongRecord{}, err
		}
		if found {
			return record, nil
		}
	}

	record, ok, err := stats.ReadSongRecord(c.outputDir, runID, label)
	if err != nil {
		return model.SongRecord{}, err
	}
	if !ok {
		return model.SongRecord{}, fmt.Errorf("%w: %s song for %s", ErrRunNotFound, label, runID)
	}
	return record, nil
}

func (c *Client) resolveRunID(runID string, latest bool) (string, error) {
	if runID != "" && latest {
		return "", ErrAmbiguousRunID
	}
	if !latest {
		if runID == "" {
			return "", ErrMissingRunID
		}
		return runID, nil
	}
	entries, err := stats.ListRunIndex(c.outputDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", ErrNoRuns
	}
	return entries[0].RunID, nil
}

func newSongRecord(runID, label string, scored evo.Scored) model.SongRecord {
	return model.SongRecord{
		VersionedRecord: storage.CurrentVersion(),
		ID:              uuid.NewString(),
		RunID:           runID,
		Label:           label,
		Fitness:         scored.Fitness,
		Fingerprint:     scored.Fingerprint,
		Song:            scored.Song.Snapshot(),
	}
}

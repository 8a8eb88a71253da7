package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"

	"songevo/internal/config"
	"songevo/internal/critic"
	"songevo/pkg/songevo"
)

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "load .env:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	global := flag.NewFlagSet("songevoctl", flag.ContinueOnError)
	global.SetOutput(stderr)
	debug := global.Bool("debug", false, "log at debug level")
	if err := global.Parse(args); err != nil {
		return err
	}
	args = global.Args()
	if len(args) == 0 {
		return usageError("missing command")
	}
	logger := newLogger(stderr, *debug)

	switch args[0] {
	case "run":
		return runRun(ctx, logger, args[1:])
	case "critics":
		return runCritics(args[1:])
	case "runs":
		return runRuns(ctx, logger, args[1:])
	case "fitness":
		return runFitness(ctx, logger, args[1:])
	case "diagnostics":
		return runDiagnostics(ctx, logger, args[1:])
	case "render":
		return runRender(ctx, logger, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// storeFlags are shared by every command that opens a client.
type storeFlags struct {
	configPath *string
	storeKind  *string
	dbPath     *string
	outputDir  *string
}

func addStoreFlags(fs *flag.FlagSet) storeFlags {
	return storeFlags{
		configPath: fs.String("config", "", "YAML run config; SONGEVO_* variables override it"),
		storeKind:  fs.String("store", "", "store backend: memory|sqlite (default from config)"),
		dbPath:     fs.String("db-path", "", "sqlite database path (default from config)"),
		outputDir:  fs.String("out", "", "artifact directory (default from config)"),
	}
}

// load layers the config file, the environment and the store flags.
func (f storeFlags) load() (config.Run, error) {
	cfg, err := config.LoadOrDefault(*f.configPath)
	if err != nil {
		return config.Run{}, err
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		return config.Run{}, err
	}
	if *f.storeKind != "" {
		cfg.Store.Kind = *f.storeKind
	}
	if *f.dbPath != "" {
		cfg.Store.Path = *f.dbPath
	}
	if *f.outputDir != "" {
		cfg.OutputDir = *f.outputDir
	}
	return cfg, nil
}

func newClient(cfg config.Run, logger *slog.Logger) (*songevo.Client, error) {
	return songevo.New(songevo.Options{
		StoreKind: cfg.Store.Kind,
		DBPath:    cfg.Store.Path,
		OutputDir: cfg.OutputDir,
		Logger:    logger,
	})
}

func runRun(ctx context.Context, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	sf := addStoreFlags(fs)
	pop := fs.Int("pop", 0, "population size")
	gens := fs.Int("gens", 0, "generations")
	critics := fs.String("critics", "", "comma-separated critic names")
	seed := fs.Int64("seed", 0, "random seed")
	workers := fs.Int("workers", 0, "fitness and mutation workers")
	survival := fs.Float64("survival", 0, "survival rate in (0,1]")
	noise := fs.Float64("noise", 0, "survival noise in [0,1]")
	crossover := fs.Float64("crossover", 0, "single-point crossover rate")
	twoPoint := fs.Float64("two-point", 0, "two-point crossover rate")
	tempo := fs.Float64("tempo", 0, "seed tempo in bpm")
	mutations := fs.Int("seed-mutations", 0, "mutation passes applied to each seeded song")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := sf.load()
	if err != nil {
		return err
	}
	// Only flags given on the command line override lower layers.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "pop":
			cfg.PopulationSize = *pop
		case "gens":
			cfg.Generations = *gens
		case "critics":
			cfg.Critics = splitList(*critics)
		case "seed":
			cfg.Seed = *seed
		case "workers":
			cfg.Workers = *workers
		case "survival":
			cfg.SurvivalRate = *survival
		case "noise":
			cfg.SurvivalNoise = *noise
		case "crossover":
			cfg.CrossoverRate = *crossover
		case "two-point":
			cfg.TwoPointRate = *twoPoint
		case "tempo":
			cfg.Song.Tempo = *tempo
		case "seed-mutations":
			cfg.Song.Mutations = *mutations
		}
	})

	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Run(ctx, cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "run_id=%s first_best_fitness=%.6f final_best_fitness=%.6f artifacts=%s\n",
		summary.RunID,
		summary.FirstBestFitness,
		summary.FinalBestFitness,
		summary.ArtifactsDir,
	)
	fmt.Fprintf(stdout, "first=%s final=%s\n", summary.FirstMIDIPath, summary.FinalMIDIPath)
	return nil
}

func runCritics(args []string) error {
	fs := flag.NewFlagSet("critics", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	for _, name := range critic.ListCritics() {
		fmt.Fprintln(stdout, name)
	}
	return nil
}

func runRuns(ctx context.Context, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	fs.SetOutput(stderr)
	sf := addStoreFlags(fs)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	cfg, err := sf.load()
	if err != nil {
		return err
	}
	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	items, err := client.Runs(ctx, songevo.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(items)
	}
	if len(items) == 0 {
		fmt.Fprintln(stdout, "no runs found")
		return nil
	}
	for _, item := range items {
		fmt.Fprintf(stdout, "run_id=%s created_at=%s critics=%s seed=%d pop=%d gens=%d first_best_fitness=%.6f final_best_fitness=%.6f\n",
			item.RunID,
			item.CreatedAtUTC,
			strings.Join(item.Critics, ","),
			item.Seed,
			item.Population,
			item.Generations,
			item.FirstBestFitness,
			item.FinalBestFitness,
		)
	}
	return nil
}

func runFitness(ctx context.Context, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("fitness", flag.ContinueOnError)
	fs.SetOutput(stderr)
	sf := addStoreFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run")
	limit := fs.Int("limit", 0, "max generations to print (0 for all)")
	jsonOut := fs.Bool("json", false, "emit fitness history as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := sf.load()
	if err != nil {
		return err
	}
	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	history, err := client.FitnessHistory(ctx, songevo.FitnessHistoryRequest{
		RunID:  *runID,
		Latest: *latest,
		Limit:  *limit,
	})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(history)
	}
	if len(history) == 0 {
		fmt.Fprintln(stdout, "no fitness history")
		return nil
	}
	for i, best := range history {
		fmt.Fprintf(stdout, "generation=%d best_fitness=%.6f\n", i+1, best)
	}
	return nil
}

func runDiagnostics(ctx context.Context, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("diagnostics", flag.ContinueOnError)
	fs.SetOutput(stderr)
	sf := addStoreFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run")
	limit := fs.Int("limit", 0, "max generations to print (0 for all)")
	jsonOut := fs.Bool("json", false, "emit diagnostics as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := sf.load()
	if err != nil {
		return err
	}
	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	diagnostics, err := client.Diagnostics(ctx, songevo.DiagnosticsRequest{
		RunID:  *runID,
		Latest: *latest,
		Limit:  *limit,
	})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(diagnostics)
	}
	if len(diagnostics) == 0 {
		fmt.Fprintln(stdout, "no diagnostics")
		return nil
	}
	for _, d := range diagnostics {
		fmt.Fprintf(stdout, "generation=%d best=%.6f mean=%.6f min=%.6f diversity=%d survivors=%d mutation_faults=%d\n",
			d.Generation,
			d.BestFitness,
			d.MeanFitness,
			d.MinFitness,
			d.FingerprintDiversity,
			d.Survivors,
			d.MutationFaults,
		)
	}
	return nil
}

func runRender(ctx context.Context, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	fs.SetOutput(stderr)
	sf := addStoreFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run")
	label := fs.String("label", songevo.LabelFinal, "song to render: first|final")
	outPath := fs.String("o", "", "output MIDI file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *outPath == "" {
		return errors.New("render requires -o")
	}

	cfg, err := sf.load()
	if err != nil {
		return err
	}
	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	path, err := client.RenderSong(ctx, songevo.RenderRequest{
		RunID:   *runID,
		Latest:  *latest,
		Label:   *label,
		OutPath: *outPath,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "rendered=%s\n", path)
	return nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func writeJSON(value any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: songevoctl [-debug] <run|critics|runs|fitness|diagnostics|render> [flags]", msg)
}

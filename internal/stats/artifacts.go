package stats

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"songevo/internal/model"
)

const (
	runIndexFile    = "run_index.json"
	configFile      = "config.json"
	historyFile     = "fitness_history.json"
	diagnosticsFile = "generation_diagnostics.json"
	seriesFile      = "fitness_series.csv"
	summaryFile     = "summary.json"
	firstSongFile   = "first_song.json"
	finalSongFile   = "final_song.json"
	FitnessPlotFile = "fitness.png"
	FirstMIDIFile   = "first.mid"
	FinalMIDIFile   = "final.mid"
)

var ErrMissingRunID = errors.New("run id is required")

// RunConfig is the resolved configuration recorded next to a run's outputs.
type RunConfig struct {
	RunID          string   `json:"run_id"`
	Critics        []string `json:"critics"`
	PopulationSize int      `json:"population_size"`
	Generations    int      `json:"generations"`
	SurvivalRate   float64  `json:"survival_rate"`
	SurvivalNoise  float64  `json:"survival_noise"`
	CrossoverRate  float64  `json:"crossover_rate"`
	TwoPointRate   float64  `json:"two_point_rate"`
	Seed           int64    `json:"seed"`
	Workers        int      `json:"workers"`
	Root           int      `json:"root"`
	Tempo          float64  `json:"tempo"`
	Verses         int      `json:"verses"`
	Phrases        int      `json:"phrases"`
	PhraseLength   int      `json:"phrase_length"`
}

type RunArtifacts struct {
	Config                RunConfig                     `json:"config"`
	BestByGeneration      []float64                     `json:"best_by_generation"`
	GenerationDiagnostics []model.GenerationDiagnostics `json:"generation_diagnostics,omitempty"`
	FirstSong             model.SongRecord              `json:"first_song"`
	FinalSong             model.SongRecord              `json:"final_song"`
}

type RunIndexEntry struct {
	RunID            string   `json:"run_id"`
	Critics          []string `json:"critics"`
	PopulationSize   int      `json:"population_size"`
	Generations      int      `json:"generations"`
	Seed             int64    `json:"seed"`
	FirstBestFitness float64  `json:"first_best_fitness"`
	FinalBestFitness float64  `json:"final_best_fitness"`
	CreatedAtUTC     string   `json:"created_at_utc"`
}

// WriteRunArtifacts writes the JSON and CSV outputs of a run under
// baseDir/<run id> and returns that directory.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", ErrMissingRunID
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, configFile), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, historyFile), map[string]any{
		"best_by_generation": artifacts.BestByGeneration,
		"first_best_fitness": artifacts.FirstSong.Fitness,
		"final_best_fitness": artifacts.FinalSong.Fitness,
	}); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, diagnosticsFile), artifacts.GenerationDiagnostics); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, firstSongFile), artifacts.FirstSong); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, finalSongFile), artifacts.FinalSong); err != nil {
		return "", err
	}
	if err := WriteFitnessSeries(runDir, artifacts.BestByGeneration); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, summaryFile), Summarize(artifacts.Config.RunID, artifacts.BestByGeneration)); err != nil {
		return "", err
	}

	return runDir, nil
}

// AppendRunIndex adds entry to baseDir's run index, replacing any entry
// with the same run id.
func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return ErrMissingRunID
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns the index newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Later appends win ties.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func ReadGenerationDiagnostics(baseDir, runID string) ([]model.GenerationDiagnostics, bool, error) {
	var diagnostics []model.GenerationDiagnostics
	ok, err := readJSON(filepath.Join(baseDir, runID, diagnosticsFile), &diagnostics)
	if err != nil || !ok {
		return nil, ok, err
	}
	return diagnostics, true, nil
}

// ReadSongRecord loads the "first" or "final" song written for a run.
func ReadSongRecord(baseDir, runID, label string) (model.SongRecord, bool, error) {
	var name string
	switch label {
	case "first":
		name = firstSongFile
	case "final":
		name = finalSongFile
	default:
		return model.SongRecord{}, false, fmt.Errorf("unknown song label %q", label)
	}
	var record model.SongRecord
	ok, err := readJSON(filepath.Join(baseDir, runID, name), &record)
	if err != nil || !ok {
		return model.SongRecord{}, ok, err
	}
	return record, true, nil
}

// WriteFitnessSeries writes one row per generation, numbered from zero.
func WriteFitnessSeries(runDir string, bestByGeneration []float64) error {
	file, err := os.Create(filepath.Join(runDir, seriesFile))
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"generation", "best_fitness"}); err != nil {
		return err
	}
	for i, best := range bestByGeneration {
		if err := writer.Write([]string{
			strconv.Itoa(i),
			strconv.FormatFloat(best, 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadFitnessSeries(baseDir, runID string) ([]float64, bool, error) {
	file, err := os.Open(filepath.Join(baseDir, runID, seriesFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []float64{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 2 {
		return nil, false, fmt.Errorf("fitness series header must have at least 2 columns")
	}

	series := make([]float64, 0, 128)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		value, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, false, fmt.Errorf("fitness series row %s: %w", record[0], err)
		}
		series = append(series, value)
	}
	return series, true, nil
}

func readJSON(path string, value any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, value); err != nil {
		return false, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

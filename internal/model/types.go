package model

import (
	"time"

	"songevo/internal/song"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// RunRecord summarizes one evolution run and the settings it used.
type RunRecord struct {
	VersionedRecord
	ID               string    `json:"id"`
	CreatedAt        time.Time `json:"created_at"`
	Critics          []string  `json:"critics"`
	PopulationSize   int       `json:"population_size"`
	Generations      int       `json:"generations"`
	SurvivalRate     float64   `json:"survival_rate"`
	SurvivalNoise    float64   `json:"survival_noise"`
	CrossoverRate    float64   `json:"crossover_rate"`
	TwoPointRate     float64   `json:"two_point_rate"`
	Seed             int64     `json:"seed"`
	FirstBestFitness float64   `json:"first_best_fitness"`
	FinalBestFitness float64   `json:"final_best_fitness"`
	FirstSongID      string    `json:"first_song_id"`
	FinalSongID      string    `json:"final_song_id"`
}

// SongRecord is a persisted song, expanded to a tree.
type SongRecord struct {
	VersionedRecord
	ID          string        `json:"id"`
	RunID       string        `json:"run_id"`
	Label       string        `json:"label"`
	Fitness     float64       `json:"fitness"`
	Fingerprint string        `json:"fingerprint"`
	Song        song.Snapshot `json:"song"`
}

type GenerationDiagnostics struct {
	Generation           int     `json:"generation"`
	BestFitness          float64 `json:"best_fitness"`
	MeanFitness          float64 `json:"mean_fitness"`
	MinFitness           float64 `json:"min_fitness"`
	FingerprintDiversity int     `json:"fingerprint_diversity"`
	Survivors            int     `json:"survivors"`
	MutationFaults       int     `json:"mutation_faults"`
}

package storage

import (
	"context"
	"errors"

	"songevo/internal/model"
)

const DefaultStoreKind = "memory"

var (
	ErrNotInitialized     = errors.New("store is not initialized")
	ErrUnsupportedBackend = errors.New("unsupported store backend")
)

// Store persists runs, their per-generation history and their best songs.
// Getters report a missing key as ok=false with a nil error.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	SaveFitnessHistory(ctx context.Context, runID string, history []float64) error
	GetFitnessHistory(ctx context.Context, runID string) ([]float64, bool, error)
	SaveGenerationDiagnostics(ctx context.Context, runID string, diagnostics []model.GenerationDiagnostics) error
	GetGenerationDiagnostics(ctx context.Context, runID string) ([]model.GenerationDiagnostics, bool, error)
	SaveSong(ctx context.Context, record model.SongRecord) error
	GetSong(ctx context.Context, id string) (model.SongRecord, bool, error)
}

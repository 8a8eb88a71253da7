package storage

import (
	"context"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"songevo/internal/compose"
	"songevo/internal/model"
)

func testRun(id string, created time.Time) model.RunRecord {
	return model.RunRecord{
		VersionedRecord:  CurrentVersion(),
		ID:               id,
		CreatedAt:        created,
		Critics:          []string{"Tempo", "Major"},
		PopulationSize:   20,
		Generations:      5,
		SurvivalRate:     0.5,
		Seed:             3,
		FirstBestFitness: 0.1,
		FinalBestFitness: 0.9,
		FirstSongID:      id + "-first",
		FinalSongID:      id + "-final",
	}
}

func testSong(t *testing.T, id, runID string) model.SongRecord {
	t.Helper()
	s, err := compose.RandomSong(rand.New(rand.NewSource(5)), compose.Options{
		Scale:        compose.CMajor(),
		LegalPitches: compose.DefaultLegalPitches(),
		Tempo:        90,
		NumVerses:    2,
		NumPhrases:   2,
		PhraseLength: 2,
		Mutations:    3,
	})
	if err != nil {
		t.Fatalf("random song: %v", err)
	}
	return model.SongRecord{
		VersionedRecord: CurrentVersion(),
		ID:              id,
		RunID:           runID,
		Label:           "final",
		Fitness:         0.75,
		Fingerprint:     s.Fingerprint(),
		Song:            s.Snapshot(),
	}
}

// exerciseStore runs the behavior every backend must share against an
// initialized store.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, ok, err := store.GetRun(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing run, ok=%v err=%v", ok, err)
	}

	later := testRun("run-b", base.Add(time.Minute))
	earlier := testRun("run-a", base)
	for _, run := range []model.RunRecord{later, earlier} {
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("save run %s: %v", run.ID, err)
		}
	}

	loaded, ok, err := store.GetRun(ctx, "run-a")
	if err != nil || !ok {
		t.Fatalf("get run: ok=%v err=%v", ok, err)
	}
	if !loaded.CreatedAt.Equal(earlier.CreatedAt) {
		t.Fatalf("created_at changed: %v vs %v", loaded.CreatedAt, earlier.CreatedAt)
	}
	loaded.CreatedAt = earlier.CreatedAt
	if !reflect.DeepEqual(loaded, earlier) {
		t.Fatalf("unexpected run: %+v", loaded)
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-a" || runs[1].ID != "run-b" {
		t.Fatalf("expected runs oldest first, got %+v", runs)
	}

	updated := earlier
	updated.FinalBestFitness = 1.5
	if err := store.SaveRun(ctx, updated); err != nil {
		t.Fatalf("overwrite run: %v", err)
	}
	loaded, _, _ = store.GetRun(ctx, "run-a")
	if loaded.FinalBestFitness != 1.5 {
		t.Fatalf("expected overwrite, got %v", loaded.FinalBestFitness)
	}

	history := []float64{0.1, 0.4, 0.9}
	if err := store.SaveFitnessHistory(ctx, "run-a", history); err != nil {
		t.Fatalf("save history: %v", err)
	}
	history[0] = 99
	gotHistory, ok, err := store.GetFitnessHistory(ctx, "run-a")
	if err != nil || !ok {
		t.Fatalf("get history: ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(gotHistory, []float64{0.1, 0.4, 0.9}) {
		t.Fatalf("unexpected history: %v", gotHistory)
	}
	if _, ok, _ := store.GetFitnessHistory(ctx, "run-b"); ok {
		t.Fatal("expected no history for run-b")
	}

	diagnostics := []model.GenerationDiagnostics{
		{Generation: 0, BestFitness: 0.1, MeanFitness: 0.05, FingerprintDiversity: 20, Survivors: 10},
		{Generation: 1, BestFitness: 0.4, MeanFitness: 0.2, FingerprintDiversity: 18, Survivors: 10, MutationFaults: 2},
	}
	if err := store.SaveGenerationDiagnostics(ctx, "run-a", diagnostics); err != nil {
		t.Fatalf("save diagnostics: %v", err)
	}
	gotDiagnostics, ok, err := store.GetGenerationDiagnostics(ctx, "run-a")
	if err != nil || !ok {
		t.Fatalf("get diagnostics: ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(gotDiagnostics, diagnostics) {
		t.Fatalf("unexpected diagnostics: %+v", gotDiagnostics)
	}

	record := testSong(t, "run-a-final", "run-a")
	if err := store.SaveSong(ctx, record); err != nil {
		t.Fatalf("save song: %v", err)
	}
	record.Song.Verses[0].Phrases[0].Chords[0].Root = 6
	gotSong, ok, err := store.GetSong(ctx, "run-a-final")
	if err != nil || !ok {
		t.Fatalf("get song: ok=%v err=%v", ok, err)
	}
	want := testSong(t, "run-a-final", "run-a")
	if !reflect.DeepEqual(gotSong, want) {
		t.Fatalf("song changed in storage:\n got %+v\nwant %+v", gotSong, want)
	}
	if _, ok, _ := store.GetSong(ctx, "nope"); ok {
		t.Fatal("expected missing song")
	}
}

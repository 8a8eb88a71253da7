package storage

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"songevo/internal/model"
)

func TestDecodeRunFixture(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("testdata", "run_v1.json"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	run, err := DecodeRun(data)
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	if run.ID != "run-fixture-1" || run.FinalSongID != "song-final" {
		t.Fatalf("unexpected run: %+v", run)
	}
	if !reflect.DeepEqual(run.Critics, []string{"Tempo", "Major"}) {
		t.Fatalf("unexpected critics: %v", run.Critics)
	}
	if !run.CreatedAt.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Fatalf("unexpected created_at: %v", run.CreatedAt)
	}
}

func TestDecodeRejectsVersionMismatch(t *testing.T) {
	run := testRun("run-1", time.Now())
	run.SchemaVersion = CurrentSchemaVersion + 1
	data, err := EncodeRun(run)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeRun(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}

	record := testSong(t, "song-1", "run-1")
	record.VersionedRecord = model.VersionedRecord{}
	data, err = EncodeSong(record)
	if err != nil {
		t.Fatalf("encode song: %v", err)
	}
	if _, err := DecodeSong(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch for song, got %v", err)
	}
}

func TestDecodeMalformedPayload(t *testing.T) {
	if _, err := DecodeFitnessHistory([]byte("{")); err == nil {
		t.Fatal("expected error for malformed history")
	}
	if _, err := DecodeGenerationDiagnostics([]byte("[1")); err == nil {
		t.Fatal("expected error for malformed diagnostics")
	}
}

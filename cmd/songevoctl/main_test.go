package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"songevo/internal/model"
)

// captureOutput redirects command output for the duration of a test.
func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	origOut, origErr := stdout, stderr
	stdout, stderr = &buf, io.Discard
	t.Cleanup(func() {
		stdout, stderr = origOut, origErr
	})
	return &buf
}

func TestRunRequiresCommand(t *testing.T) {
	captureOutput(t)
	if err := run(context.Background(), nil); err == nil || !strings.Contains(err.Error(), "missing command") {
		t.Fatalf("expected missing command error, got %v", err)
	}
	if err := run(context.Background(), []string{"compose"}); err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

func TestCriticsCommandListsRegistry(t *testing.T) {
	out := captureOutput(t)
	if err := run(context.Background(), []string{"critics"}); err != nil {
		t.Fatalf("critics: %v", err)
	}
	names := strings.Fields(out.String())
	for _, want := range []string{"Tempo", "Major", "MeterDuration", "RestRatio"} {
		found := false
		for _, name := range names {
			found = found || name == want
		}
		if !found {
			t.Fatalf("expected critic %s in %v", want, names)
		}
	}
}

func TestRunCommandThenQueries(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	out := captureOutput(t)

	err := run(ctx, []string{
		"run",
		"-out", dir,
		"-pop", "8",
		"-gens", "3",
		"-seed", "5",
		"-workers", "2",
		"-critics", "Tempo, Major",
	})
	if err != nil {
		t.Fatalf("run command: %v", err)
	}
	if !strings.Contains(out.String(), "run_id=") {
		t.Fatalf("unexpected run output: %q", out.String())
	}

	out.Reset()
	if err := run(ctx, []string{"runs", "-out", dir, "-json"}); err != nil {
		t.Fatalf("runs command: %v", err)
	}
	var runs []struct {
		RunID   string   `json:"run_id"`
		Critics []string `json:"critics"`
	}
	if err := json.Unmarshal(out.Bytes(), &runs); err != nil {
		t.Fatalf("decode runs: %v", err)
	}
	if len(runs) != 1 || strings.Join(runs[0].Critics, ",") != "Tempo,Major" {
		t.Fatalf("unexpected runs: %+v", runs)
	}
	runID := runs[0].RunID

	for _, file := range []string{"config.json", "fitness_series.csv", "generation_diagnostics.json", "first.mid", "final.mid", "fitness.png"} {
		if _, err := os.Stat(filepath.Join(dir, runID, file)); err != nil {
			t.Fatalf("expected artifact %s: %v", file, err)
		}
	}

	out.Reset()
	if err := run(ctx, []string{"fitness", "-out", dir, "-latest"}); err != nil {
		t.Fatalf("fitness command: %v", err)
	}
	if got := strings.Count(out.String(), "best_fitness="); got != 3 {
		t.Fatalf("expected 3 fitness rows, got %d: %q", got, out.String())
	}

	out.Reset()
	if err := run(ctx, []string{"diagnostics", "-out", dir, "-run-id", runID, "-json"}); err != nil {
		t.Fatalf("diagnostics command: %v", err)
	}
	var diagnostics []model.GenerationDiagnostics
	if err := json.Unmarshal(out.Bytes(), &diagnostics); err != nil {
		t.Fatalf("decode diagnostics: %v", err)
	}
	if len(diagnostics) != 3 || diagnostics[0].Survivors == 0 {
		t.Fatalf("unexpected diagnostics: %+v", diagnostics)
	}

	midi := filepath.Join(t.TempDir(), "first.mid")
	out.Reset()
	if err := run(ctx, []string{"render", "-out", dir, "-latest", "-label", "first", "-o", midi}); err != nil {
		t.Fatalf("render command: %v", err)
	}
	if _, err := os.Stat(midi); err != nil {
		t.Fatalf("expected rendered midi: %v", err)
	}
}

func TestRunCommandReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	data := []byte("population_size: 6\ngenerations: 1\ncritics: [TempoValue]\noutput_dir: " + filepath.Join(dir, "runs") + "\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	captureOutput(t)

	if err := run(context.Background(), []string{"-debug", "run", "-config", path, "-gens", "2"}); err != nil {
		t.Fatalf("run command: %v", err)
	}
	entries, err := os.ReadDir(filepath.Join(dir, "runs"))
	if err != nil {
		t.Fatalf("read output dir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected run dir and index, got %d entries", len(entries))
	}
}

func TestRunCommandRejectsInvalidConfig(t *testing.T) {
	captureOutput(t)
	err := run(context.Background(), []string{"run", "-out", t.TempDir(), "-critics", "Loudness"})
	if err == nil || !strings.Contains(err.Error(), "Loudness") {
		t.Fatalf("expected unknown critic error, got %v", err)
	}
}

func TestQueryCommandsValidateFlags(t *testing.T) {
	captureOutput(t)
	ctx := context.Background()
	dir := t.TempDir()
	if err := run(ctx, []string{"runs", "-out", dir, "-limit", "0"}); err == nil {
		t.Fatal("expected limit error")
	}
	if err := run(ctx, []string{"fitness", "-out", dir}); err == nil {
		t.Fatal("expected missing run id error")
	}
	if err := run(ctx, []string{"render", "-out", dir, "-latest"}); err == nil {
		t.Fatal("expected missing -o error")
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" Tempo,,Major , ")
	if strings.Join(got, "|") != "Tempo|Major" {
		t.Fatalf("unexpected split: %v", got)
	}
}

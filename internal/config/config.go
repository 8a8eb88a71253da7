// Package config loads run settings. Values are layered: defaults, then an
// optional YAML file, then SONGEVO_* environment variables; the CLI applies
// its flags last.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"songevo/internal/compose"
	"songevo/internal/critic"
	"songevo/internal/song"
)

const (
	EnvPrefix = "SONGEVO_"
	// RestPitch marks the silent pitch in legal_pitches.
	RestPitch = -1
)

var ErrInvalidConfig = errors.New("invalid config")

type Song struct {
	Root         int     `yaml:"root" env:"ROOT"`
	Scale        []int   `yaml:"scale" env:"SCALE"`
	LegalPitches []int   `yaml:"legal_pitches" env:"LEGAL_PITCHES"`
	Tempo        float64 `yaml:"tempo" env:"TEMPO"`
	Verses       int     `yaml:"verses" env:"VERSES"`
	Phrases      int     `yaml:"phrases" env:"PHRASES"`
	PhraseLength int     `yaml:"phrase_length" env:"PHRASE_LENGTH"`
	Mutations    int     `yaml:"mutations" env:"MUTATIONS"`
}

type Store struct {
	Kind string `yaml:"kind" env:"KIND"`
	Path string `yaml:"path" env:"PATH"`
}

type Run struct {
	PopulationSize int      `yaml:"population_size" env:"POPULATION_SIZE"`
	SurvivalRate   float64  `yaml:"survival_rate" env:"SURVIVAL_RATE"`
	SurvivalNoise  float64  `yaml:"survival_noise" env:"SURVIVAL_NOISE"`
	CrossoverRate  float64  `yaml:"crossover_rate" env:"CROSSOVER_RATE"`
	TwoPointRate   float64  `yaml:"two_point_rate" env:"TWO_POINT_RATE"`
	Generations    int      `yaml:"generations" env:"GENERATIONS"`
	Critics        []string `yaml:"critics" env:"CRITICS"`
	Seed           int64    `yaml:"seed" env:"SEED"`
	Workers        int      `yaml:"workers" env:"WORKERS"`
	Song           Song     `yaml:"song" envPrefix:"SONG_"`
	Store          Store    `yaml:"store" envPrefix:"STORE_"`
	OutputDir      string   `yaml:"output_dir" env:"OUTPUT_DIR"`
}

func Default() Run {
	scale := compose.CMajor()
	return Run{
		PopulationSize: 100,
		SurvivalRate:   0.5,
		Generations:    100,
		Critics:        []string{"Tempo"},
		Seed:           1,
		Workers:        4,
		Song: Song{
			Scale:        scale[:],
			LegalPitches: append(scale[:], RestPitch, compose.C5),
			Tempo:        80,
			Verses:       2,
			Phrases:      3,
			PhraseLength: 4,
		},
		Store: Store{
			Kind: "memory",
			Path: "songevo.db",
		},
		OutputDir: "runs",
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Run{}, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Run{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that an empty or missing path yields the
// defaults.
func LoadOrDefault(path string) (Run, error) {
	if path == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return Load(path)
}

// ApplyEnv overrides fields whose SONGEVO_* variable is set.
func ApplyEnv(cfg *Run) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c Run) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c Run) Validate() error {
	switch {
	case c.PopulationSize <= 0:
		return fmt.Errorf("%w: population_size must be > 0", ErrInvalidConfig)
	case c.SurvivalRate <= 0 || c.SurvivalRate > 1:
		return fmt.Errorf("%w: survival_rate must be in (0,1]", ErrInvalidConfig)
	case c.SurvivalNoise < 0 || c.SurvivalNoise > 1:
		return fmt.Errorf("%w: survival_noise must be in [0,1]", ErrInvalidConfig)
	case c.CrossoverRate < 0 || c.CrossoverRate > 1:
		return fmt.Errorf("%w: crossover_rate must be in [0,1]", ErrInvalidConfig)
	case c.TwoPointRate < 0 || c.CrossoverRate+c.TwoPointRate > 1:
		return fmt.Errorf("%w: two_point_rate must be >= 0 and crossover_rate+two_point_rate <= 1", ErrInvalidConfig)
	case c.Generations < 0:
		return fmt.Errorf("%w: generations must be >= 0", ErrInvalidConfig)
	case c.Workers < 0:
		return fmt.Errorf("%w: workers must be >= 0", ErrInvalidConfig)
	case c.Song.Verses < 0 || c.Song.Phrases < 0 || c.Song.PhraseLength < 0 || c.Song.Mutations < 0:
		return fmt.Errorf("%w: song shape must be non-negative", ErrInvalidConfig)
	case c.Song.Root < 0 || c.Song.Root >= 8:
		return fmt.Errorf("%w: song root must be in [0,8)", ErrInvalidConfig)
	}
	if _, err := song.ParseScale(c.Song.Scale); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := critic.ResolveAll(c.Critics); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// ComposeOptions converts the song section for seeding.
func (c Run) ComposeOptions() (compose.Options, error) {
	scale, err := song.ParseScale(c.Song.Scale)
	if err != nil {
		return compose.Options{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	legal := make([]int, len(c.Song.LegalPitches))
	for i, p := range c.Song.LegalPitches {
		if p == RestPitch {
			p = song.Rest
		}
		legal[i] = p
	}
	return compose.Options{
		Root:         c.Song.Root,
		Scale:        scale,
		LegalPitches: legal,
		Tempo:        c.Song.Tempo,
		NumVerses:    c.Song.Verses,
		NumPhrases:   c.Song.Phrases,
		PhraseLength: c.Song.PhraseLength,
		Mutations:    c.Song.Mutations,
	}, nil
}

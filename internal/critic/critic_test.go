package critic

import (
	"math"
	"testing"

	"songevo/internal/compose"
	"songevo/internal/song"
)

// songWithRoots builds a one-verse, one-phrase song whose chords have the
// given roots, each carrying a single one-beat note of pitch 60.
func songWithRoots(t *testing.T, roots ...int) *song.Song {
	t.Helper()
	chords := make([]*song.Chord, len(roots))
	for i, root := range roots {
		c, err := song.NewChord(root, compose.CMajor())
		if err != nil {
			t.Fatalf("new chord: %v", err)
		}
		c.InitMelody(60)
		chords[i] = c
	}
	s := song.New(0, 80, compose.DefaultLegalPitches())
	s.AddVerses(song.NewVerse([]*song.Phrase{song.NewPhrase(chords)}))
	return s
}

// songWithMelody puts every note in one chord.
func songWithMelody(t *testing.T, notes ...*song.Note) *song.Song {
	t.Helper()
	s := songWithRoots(t, 0)
	s.Verses[0].Phrases[0].Chords[0].Melody = notes
	return s
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestTempoCritic(t *testing.T) {
	s := song.New(0, 40, nil)
	if got := (Tempo{Target: 40}).Critique(s); got != 1.0 {
		t.Fatalf("expected 1.0 at target tempo, got %f", got)
	}
	s.Tempo = 30
	if got := (Tempo{Target: 40}).Critique(s); !approx(got, 1.0/11) {
		t.Fatalf("expected 1/11, got %f", got)
	}
}

func TestTempoValueCritic(t *testing.T) {
	if got := (TempoValue{}).Critique(song.New(0, 93, nil)); got != 93 {
		t.Fatalf("expected tempo as fitness, got %f", got)
	}
}

func TestLengthAndChordCountFollowAliases(t *testing.T) {
	s, err := compose.RandomSong(nil, compose.DefaultOptions())
	if err != nil {
		t.Fatalf("random song: %v", err)
	}
	if got := (Length{Target: 24}).Critique(s); got != 1.0 {
		t.Fatalf("expected 24 notes, got score %f", got)
	}
	if got := (ChordCount{Target: 4}).Critique(s); !approx(got, 1.0/21) {
		t.Fatalf("expected 24 chords against target 4, got %f", got)
	}
}

func TestChordProgressionCritic(t *testing.T) {
	c := ChordProgression{Progression: []int{0, 3, 4}}
	if got := c.Critique(songWithRoots(t, 0, 3, 4, 0, 3, 4)); !approx(got, 7.0/6) {
		t.Fatalf("expected 7/6 for a full match, got %f", got)
	}
	if got := c.Critique(songWithRoots(t, 0, 0, 0, 0, 0, 0)); !approx(got, 4.0/6) {
		t.Fatalf("expected 4/6 for repeated roots, got %f", got)
	}
	if got := c.Critique(song.New(0, 80, nil)); got != 0 {
		t.Fatalf("expected 0 for empty song, got %f", got)
	}
}

func TestMelodyDirectionCritics(t *testing.T) {
	s := songWithMelody(t,
		song.NewNote(60, 1),
		song.NewNote(62, 1),
		song.NewNote(64, 1),
		song.NewNote(62, 1),
	)
	if got := (AscendingMelody{}).Critique(s); got != 0.5 {
		t.Fatalf("expected two rising steps out of four, got %f", got)
	}
	if got := (DescendingMelody{}).Critique(s); got != 0.25 {
		t.Fatalf("expected one falling step out of four, got %f", got)
	}
}

func TestMajorMinorCritics(t *testing.T) {
	s := songWithRoots(t, 0, 1, 4, 5)
	if got := (Major{}).Critique(s); got != 0.5 {
		t.Fatalf("expected half major, got %f", got)
	}
	if got := (Minor{}).Critique(s); got != 0.5 {
		t.Fatalf("expected half minor, got %f", got)
	}
}

func TestFollowingEmCritic(t *testing.T) {
	c := FollowingEm{From: 3, To: []int{4, 6}}
	if got := c.Critique(songWithRoots(t, 3, 4, 3, 1, 3)); got != 0.5 {
		t.Fatalf("expected one of two resolutions, got %f", got)
	}
	if got := c.Critique(songWithRoots(t, 0, 3)); got != 0 {
		t.Fatalf("trailing chord has no successor, got %f", got)
	}
}

func TestRhythmCritic(t *testing.T) {
	s := songWithMelody(t, song.NewNote(60, 1), song.NewNote(60, 1))
	if got := (Rhythm{Target: 10}).Critique(s); !approx(got, 1.0/11) {
		t.Fatalf("expected 1/11 for equal durations, got %f", got)
	}
	s = songWithMelody(t, song.NewNote(60, 1), song.NewNote(60, 3))
	if got := (Rhythm{Target: 1}).Critique(s); got != 1.0 {
		t.Fatalf("expected exact rhythm match, got %f", got)
	}
}

func TestMeterDurationCritic(t *testing.T) {
	c := MeterDuration{Patterns: [][]float64{Iamb, Anapest, Trochee, Dactyl, Amphibrach}}
	s := songWithMelody(t, song.NewNote(60, 0.5), song.NewNote(60, 1), song.NewNote(60, 0.5))
	want := (1.0 / 1.01) / 6
	if got := c.Critique(s); !approx(got, want) {
		t.Fatalf("expected %f, got %f", want, got)
	}
}

func TestChordDurationRepetitionCritic(t *testing.T) {
	s := songWithMelody(t, song.NewNote(60, 1), song.NewNote(62, 0.5), song.NewNote(64, 1))
	if got := (ChordDurationRepetition{}).Critique(s); got != 0.5 {
		t.Fatalf("expected two duration kinds, got %f", got)
	}
}

func TestRestRatioCritic(t *testing.T) {
	s := songWithMelody(t,
		song.NewNote(60, 1),
		song.NewNote(62, 1),
		song.NewNote(64, 1),
		song.NewNote(65, 1),
	)
	if got := (RestRatio{Target: 4}).Critique(s); got != 1.0 {
		t.Fatalf("expected exact ratio, got %f", got)
	}
}

func TestCriticsTolerateEmptySongs(t *testing.T) {
	empty := song.New(0, 80, nil)
	bare := songWithRoots(t, 0, 3)
	for _, c := range bare.Chords() {
		c.Melody = nil
	}
	for _, name := range ListCritics() {
		c, err := Resolve(name)
		if err != nil {
			t.Fatalf("resolve %s: %v", name, err)
		}
		for _, s := range []*song.Song{empty, bare} {
			got := c.Critique(s)
			if math.IsNaN(got) || math.IsInf(got, 0) {
				t.Fatalf("%s returned %f on a degenerate song", name, got)
			}
		}
	}
}

func TestSumAddsCritics(t *testing.T) {
	s := song.New(0, 40, nil)
	got := Sum([]Critic{Tempo{Target: 40}, TempoValue{}}, s)
	if got != 41 {
		t.Fatalf("expected 41, got %f", got)
	}
	if Sum(nil, s) != 0 {
		t.Fatal("expected zero fitness without critics")
	}
}

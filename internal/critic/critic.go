// Package critic scores songs. A critic is a pure function of the song it is
// given; the engine sums every configured critic into one fitness value.
//
// Most critics have the shape 1/(1+|target-actual|) so they peak at 1.0.
// Critics that average over notes or chords return 0 when there is nothing
// to average.
package critic

import (
	"math"
	"slices"

	"songevo/internal/compose"
	"songevo/internal/song"
)

type Critic interface {
	Name() string
	Critique(s *song.Song) float64
}

func closeness(target, actual float64) float64 {
	return 1.0 / (1.0 + math.Abs(target-actual))
}

// Tempo prefers songs near Target beats per minute.
type Tempo struct {
	Target float64
}

func (Tempo) Name() string { return "Tempo" }

func (c Tempo) Critique(s *song.Song) float64 {
	return closeness(c.Target, s.Tempo)
}

// TempoValue uses the tempo itself as fitness. It is a sanity check for the
// engine: fitness should climb every generation.
type TempoValue struct{}

func (TempoValue) Name() string { return "TempoValue" }

func (TempoValue) Critique(s *song.Song) float64 { return s.Tempo }

// Length prefers songs with Target melody notes.
type Length struct {
	Target int
}

func (Length) Name() string { return "Length" }

func (c Length) Critique(s *song.Song) float64 {
	return closeness(float64(c.Target), float64(len(s.Notes())))
}

// ChordCount prefers songs with Target chords.
type ChordCount struct {
	Target int
}

func (ChordCount) Name() string { return "ChordCount" }

func (c ChordCount) Critique(s *song.Song) float64 {
	return closeness(float64(c.Target), float64(len(s.Chords())))
}

// stepFraction is the fraction of notes that move from the previous note by
// one of the given intervals. The first note is measured against pitch 0.
func stepFraction(s *song.Song, steps ...int) float64 {
	notes := s.Notes()
	if len(notes) == 0 {
		return 0
	}
	prev := 0
	hits := 0
	for _, n := range notes {
		if slices.Contains(steps, n.Pitch-prev) {
			hits++
		}
		prev = n.Pitch
	}
	return float64(hits) / float64(len(notes))
}

// AscendingMelody rewards notes that rise by a half or whole step.
type AscendingMelody struct{}

func (AscendingMelody) Name() string { return "AscendingMelody" }

func (AscendingMelody) Critique(s *song.Song) float64 { return stepFraction(s, 1, 2) }

// DescendingMelody rewards notes that fall by a half or whole step.
type DescendingMelody struct{}

func (DescendingMelody) Name() string { return "DescendingMelody" }

func (DescendingMelody) Critique(s *song.Song) float64 { return stepFraction(s, -1, -2) }

// Rhythm prefers a mean per-chord standard deviation of note durations
// close to Target.
type Rhythm struct {
	Target float64
}

func (Rhythm) Name() string { return "Rhythm" }

func (c Rhythm) Critique(s *song.Song) float64 {
	sum := 0.0
	chords := 0
	for _, ch := range s.Chords() {
		if len(ch.Melody) == 0 {
			continue
		}
		durations := make([]float64, len(ch.Melody))
		for i, n := range ch.Melody {
			durations[i] = n.Beats
		}
		sum += stdev(durations)
		chords++
	}
	if chords == 0 {
		return 0
	}
	return closeness(c.Target, sum/float64(chords))
}

func stdev(xs []float64) float64 {
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	variance := 0.0
	for _, x := range xs {
		variance += (x - mean) * (x - mean)
	}
	return math.Sqrt(variance / float64(len(xs)))
}

var majorDegrees = []int{0, 3, 4, 7}

// IsMajorChord reports whether the chord is one of the major triads of C
// major (I, IV, V or the octave of I).
func IsMajorChord(c *song.Chord) bool {
	return c.Scale == compose.CMajor() && slices.Contains(majorDegrees, c.Root)
}

func majorFraction(s *song.Song) (float64, bool) {
	chords := s.Chords()
	if len(chords) == 0 {
		return 0, false
	}
	major := 0
	for _, c := range chords {
		if IsMajorChord(c) {
			major++
		}
	}
	return float64(major) / float64(len(chords)), true
}

// Major rewards the fraction of major chords.
type Major struct{}

func (Major) Name() string { return "Major" }

func (Major) Critique(s *song.Song) float64 {
	frac, _ := majorFraction(s)
	return frac
}

// Minor rewards the fraction of chords that are not major.
type Minor struct{}

func (Minor) Name() string { return "Minor" }

func (Minor) Critique(s *song.Song) float64 {
	frac, ok := majorFraction(s)
	if !ok {
		return 0
	}
	return 1 - frac
}

// ChordProgression walks the chord roots with a pointer into Progression.
// A match scores a point and advances the pointer (wrapping); a miss sends
// the pointer back to the start. The score is 1 plus the points, over the
// number of chords.
type ChordProgression struct {
	Progression []int
}

func (ChordProgression) Name() string { return "ChordProgression" }

func (c ChordProgression) Critique(s *song.Song) float64 {
	chords := s.Chords()
	if len(chords) == 0 || len(c.Progression) == 0 {
		return 0
	}
	score := 1
	pos := 0
	for _, ch := range chords {
		if ch.Root == c.Progression[pos] {
			score++
			pos = (pos + 1) % len(c.Progression)
		} else {
			pos = 0
		}
	}
	return float64(score) / float64(len(chords))
}

// FollowingEm looks at every chord on degree From of a major scale that has
// a successor in its phrase and scores the fraction followed by one of To.
// With the defaults that is E minor resolving to A minor or F in C major.
type FollowingEm struct {
	From int
	To   []int
}

func (FollowingEm) Name() string { return "FollowingEm" }

func (c FollowingEm) Critique(s *song.Song) float64 {
	opportunities := 0
	hits := 0
	for _, v := range s.Verses {
		for _, p := range v.Phrases {
			for i, ch := range p.Chords {
				if ch.Root != c.From || i == len(p.Chords)-1 || ch.Scale.Intervals() != compose.MajorIntervals {
					continue
				}
				opportunities++
				if slices.Contains(c.To, p.Chords[i+1].Root) {
					hits++
				}
			}
		}
	}
	if opportunities == 0 {
		return 0
	}
	return float64(hits) / float64(opportunities)
}

// Poetic meters as relative note durations.
var (
	Iamb       = []float64{0.5, 1}
	Anapest    = []float64{0.5, 0.5, 1}
	Trochee    = []float64{1, 0.5}
	Dactyl     = []float64{1, 0.5, 0.5}
	Amphibrach = []float64{0.5, 1, 0.5}
)

// MeterDuration slides two- and three-note windows over each chord's
// melody and rewards windows whose duration ratios are close to one of
// Patterns.
type MeterDuration struct {
	Patterns [][]float64
}

func (MeterDuration) Name() string { return "MeterDuration" }

func (c MeterDuration) Critique(s *song.Song) float64 {
	total := 0
	score := 0.0
	for _, ch := range s.Chords() {
		melody := ch.Melody
		for i := range melody {
			total++
			if i%3 == 0 && i > 2 {
				score += c.windowScore(melody[i-2 : i+1])
			}
			if i%2 == 0 && i > 1 {
				score += c.windowScore(melody[i-1 : i+1])
			}
		}
	}
	if total == 0 {
		return 0
	}
	return score / (float64(total) * 2)
}

func (c MeterDuration) windowScore(window []*song.Note) float64 {
	durations := make([]float64, len(window))
	for i, n := range window {
		durations[i] = n.Beats
	}
	best := math.Inf(1)
	for _, pattern := range c.Patterns {
		if len(pattern) != len(durations) {
			continue
		}
		best = min(best, ratioDeviation(durations, pattern))
	}
	if math.IsInf(best, 1) {
		return 0
	}
	return 1.0 / (1.01 + best)
}

// ratioDeviation compares two duration shapes after normalizing each by its
// longest value.
func ratioDeviation(durations, pattern []float64) float64 {
	dmax := slices.Max(durations)
	pmax := slices.Max(pattern)
	if dmax <= 0 || pmax <= 0 {
		return math.Inf(1)
	}
	dev := 0.0
	for i := range durations {
		dev += math.Abs(durations[i]/dmax - pattern[i]/pmax)
	}
	return dev
}

// ChordDurationRepetition prefers melodies built from few distinct note
// durations.
type ChordDurationRepetition struct{}

func (ChordDurationRepetition) Name() string { return "ChordDurationRepetition" }

func (ChordDurationRepetition) Critique(s *song.Song) float64 {
	kinds := make(map[float64]struct{})
	for _, n := range s.Notes() {
		kinds[n.Beats] = struct{}{}
	}
	if len(kinds) == 0 {
		return 0
	}
	return 1.0 / float64(len(kinds))
}

// RestRatio prefers a sounding-to-resting duration ratio close to Target.
type RestRatio struct {
	Target float64
}

func (RestRatio) Name() string { return "RestRatio" }

func (c RestRatio) Critique(s *song.Song) float64 {
	notes := s.Notes()
	if len(notes) == 0 {
		return 0
	}
	rest, sound := 0.0, 0.0
	for _, n := range notes {
		if n.IsRest() {
			rest += n.Beats
		} else {
			sound += n.Beats
		}
	}
	return closeness(c.Target, sound/(1+rest))
}

// Sum is the engine's fitness: the sum of every critic's score.
func Sum(critics []Critic, s *song.Song) float64 {
	total := 0.0
	for _, c := range critics {
		total += c.Critique(s)
	}
	return total
}

package render

import (
	"bytes"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"songevo/internal/compose"
	"songevo/internal/song"
)

func TestFromSongFlattensSeededSong(t *testing.T) {
	s, err := compose.RandomSong(nil, compose.DefaultOptions())
	require.NoError(t, err)

	score := FromSong(s)
	require.Equal(t, 80.0, score.Tempo)
	require.Len(t, score.Chords, 24)
	require.Len(t, score.Melody, 24)
	require.InDelta(t, s.Duration(), score.ChordDuration(), 1e-9)
	require.InDelta(t, score.ChordDuration(), score.MelodyDuration(), 1e-9)
	for _, c := range score.Chords {
		require.Equal(t, []int{60, 64, 67}, c.Pitches)
	}
	for _, n := range score.Melody {
		require.Equal(t, song.Rest, n.Pitch)
	}
}

func TestFromSongSilencesUnplayedChords(t *testing.T) {
	s, err := compose.RandomSong(nil, compose.DefaultOptions())
	require.NoError(t, err)
	s = s.Copy()
	s.Verses[0].Phrases[0].Chords[0].Play = false

	score := FromSong(s)
	require.Nil(t, score.Chords[0].Pitches)
	require.Equal(t, 1.0, score.Chords[0].Duration)
	require.NotNil(t, score.Chords[1].Pitches)
}

func readNotes(t *testing.T, data []byte) (float64, map[int][]uint8) {
	t.Helper()
	file, err := smf.ReadFrom(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, file.Tracks, 3)

	tempo := 0.0
	notes := make(map[int][]uint8)
	for i, tr := range file.Tracks {
		for _, ev := range tr {
			var bpm float64
			if ev.Message.GetMetaTempo(&bpm) {
				tempo = bpm
			}
			var ch, key, vel uint8
			if midi.Message(ev.Message).GetNoteStart(&ch, &key, &vel) {
				notes[i] = append(notes[i], key)
			}
		}
	}
	return tempo, notes
}

func TestMIDIRendererWritesChordAndMelodyTracks(t *testing.T) {
	opts := compose.DefaultOptions()
	opts.Mutations = 10
	s, err := compose.RandomSong(rand.New(rand.NewSource(4)), opts)
	require.NoError(t, err)
	for _, c := range s.Chords() {
		c.InitRandomMelody(rand.New(rand.NewSource(1)))
	}

	var buf bytes.Buffer
	require.NoError(t, MIDIRenderer{}.Render(&buf, s))

	tempo, notes := readNotes(t, buf.Bytes())
	require.InDelta(t, max(s.Tempo, minTempo), tempo, 0.01)

	score := FromSong(s)
	chordNotes := 0
	for _, c := range score.Chords {
		chordNotes += len(c.Pitches)
	}
	require.Len(t, notes[1], chordNotes)

	melodyNotes := 0
	for _, n := range score.Melody {
		if n.Pitch != song.Rest {
			melodyNotes++
		}
	}
	require.Len(t, notes[2], melodyNotes)
}

func TestMIDIRendererClampsTempo(t *testing.T) {
	s := song.New(0, -25, compose.DefaultLegalPitches())
	var buf bytes.Buffer
	require.NoError(t, MIDIRenderer{}.Render(&buf, s))
	tempo, notes := readNotes(t, buf.Bytes())
	require.InDelta(t, minTempo, tempo, 0.01)
	require.Empty(t, notes)
}

func TestRenderFileCreatesDirectories(t *testing.T) {
	s, err := compose.RandomSong(nil, compose.DefaultOptions())
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "out", "first.mid")
	require.NoError(t, RenderFile(MIDIRenderer{}, path, s))
	require.FileExists(t, path)
}

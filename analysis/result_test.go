package analysis

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatFloat(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0.0, "0.0"},
		{math.Copysign(0, -1), "-0.0"},
		{1.0, "1.0"},
		{0.5, "0.5"},
		{117.45383522727, "117.45383522727"},
		{0.0001, "0.0001"},
		{1e-05, "1e-05"},
		{1.5e-07, "1.5e-07"},
		{1000000000000000.0, "1000000000000000.0"},
		{1e+16, "1e+16"},
		{-2.5e+20, "-2.5e+20"},
		{math.NaN(), "nan"},
		{math.Inf(1), "inf"},
		{math.Inf(-1), "-inf"},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, FormatFloat(c.in), "FormatFloat(%v)", c.in)
	}
}

func TestFormatList(t *testing.T) {
	assert.Equal(t, "[]", FormatList(nil))
	assert.Equal(t, "[1.0]", FormatList([]float64{1}))
	assert.Equal(t, "[0.0232, 0.5, 2.0]", FormatList([]float64{0.0232, 0.5, 2}))
}

func TestParseList(t *testing.T) {
	values, err := ParseList("[0.1, 2.0, 1e-05]")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 2, 1e-05}, values)

	values, err = ParseList("[]")
	require.NoError(t, err)
	assert.Empty(t, values)

	_, err = ParseList("0.1, 0.2")
	assert.Error(t, err)

	_, err = ParseList("[a, b]")
	assert.Error(t, err)
}

func sampleResult() *Result {
	return &Result{
		FileName:     "song.mp3",
		Tempo:        117.45383522727,
		OnsetTimes:   []float64{0.0232, 0.5108},
		Frequencies:  []float64{440.0, 220.5},
		EnergyVocals: []float64{0.1, 0.2, 0.3},
		EnergyDrums:  []float64{},
	}
}

func TestEncodeResultLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeResult(&buf, sampleResult()))

	want := strings.Join([]string{
		"uploaded_file_name: song.mp3",
		"tempo: 117.45383522727",
		"onset_times: [0.0232, 0.5108]",
		"mean_frequenciesV: [440.0, 220.5]",
		"energy_vocals: [0.1, 0.2, 0.3]",
		"energy_drums: []",
	}, "\n") + "\n"
	assert.Equal(t, want, buf.String())
}

func TestResultRoundTrip(t *testing.T) {
	dir := t.TempDir()
	original := sampleResult()

	path, err := WriteResult(dir, original)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "song_analysis.txt"), path)

	parsed, err := ReadResultFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, parsed)

	first, err := os.ReadFile(path)
	require.NoError(t, err)

	_, err = WriteResult(dir, parsed)
	require.NoError(t, err)
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second), "rewriting a parsed result is byte-identical")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files are left behind")
}

func TestParseResultRejectsIncomplete(t *testing.T) {
	_, err := ParseResult(strings.NewReader("uploaded_file_name: a.wav\ntempo: 120.0\n"))
	assert.Error(t, err)

	_, err = ParseResult(strings.NewReader("bogus line\n"))
	assert.Error(t, err)

	_, err = ParseResult(strings.NewReader("color: blue\n"))
	assert.Error(t, err)
}

func TestResultPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "My Song_analysis.txt"), ResultPath("out", "My Song.WAV"))
	assert.Equal(t, filepath.Join("out", "a.b_analysis.txt"), ResultPath("out", "a.b.mp3"))
}

func TestOutcome(t *testing.T) {
	ok := Succeeded(nil)
	assert.False(t, ok.Degraded)
	assert.NotNil(t, ok.Values)
	assert.Equal(t, 0.0, ok.Scalar())

	assert.Equal(t, 120.0, Succeeded([]float64{120}).Scalar())

	bad := Degraded(os.ErrNotExist)
	assert.True(t, bad.Degraded)
	assert.Equal(t, os.ErrNotExist.Error(), bad.Reason)
	assert.Empty(t, bad.Values)
}

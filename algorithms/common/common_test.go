package common

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPeakNormalize(t *testing.T) {
	in := []float64{0.5, -2, 1}
	out := PeakNormalize(in)

	assert.Equal(t, []float64{0.25, -1, 0.5}, out)
	assert.Equal(t, []float64{0.5, -2, 1}, in, "input must not be mutated")

	maxAbs := 0.0
	for _, v := range out {
		maxAbs = math.Max(maxAbs, math.Abs(v))
	}
	assert.Equal(t, 1.0, maxAbs)
}

func TestPeakNormalizeSilence(t *testing.T) {
	silence := make([]float64, 64)
	out := PeakNormalize(silence)
	assert.Equal(t, silence, out)

	assert.Empty(t, PeakNormalize(nil))
}

func TestPeakNormalizeRawIntegerScale(t *testing.T) {
	in := []float64{12000, -32768, 4}
	out := PeakNormalize(in)
	assert.Equal(t, -1.0, out[1])
	assert.InDelta(t, 12000.0/32768.0, out[0], 1e-15)
}

func TestMinMaxNormalize(t *testing.T) {
	out := NewNormalizer(MinMax).Normalize([]float64{2, 4, 6})
	assert.InDeltaSlice(t, []float64{0, 0.5, 1}, out, 1e-12)

	flat := NewNormalizer(MinMax).Normalize([]float64{3, 3, 3})
	assert.Equal(t, []float64{0, 0, 0}, flat)
}

func TestStatistics(t *testing.T) {
	data := []float64{4, 1, 3, 2}
	assert.InDelta(t, 2.5, Mean(data), 1e-12)
	assert.InDelta(t, 2.5, Median(data), 1e-12)
	assert.InDelta(t, math.Sqrt(5.0/3.0), StandardDeviation(data), 1e-12)
	assert.InDelta(t, math.Sqrt(7.5), RMS(data), 1e-12)
	assert.Equal(t, 0, ArgMax(data))
	assert.Equal(t, -1, ArgMax(nil))
	assert.Equal(t, []float64{4, 1, 3, 2}, data)
	assert.True(t, math.IsNaN(Median(nil)))
}

func TestArgMaxFirstOccurrence(t *testing.T) {
	assert.Equal(t, 1, ArgMax([]float64{0, 5, 5, 1}))
}

func TestLocalMax(t *testing.T) {
	got := LocalMax([]float64{3, 1, 2, 2, 0, 4})
	assert.Equal(t, []bool{false, false, true, false, false, true}, got)
}

func TestAnyPositive(t *testing.T) {
	assert.False(t, AnyPositive([]float64{0, -1}))
	assert.True(t, AnyPositive([]float64{0, 1e-9}))
}

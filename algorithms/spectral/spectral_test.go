package spectral

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(freq float64, sampleRate, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate))
	}
	return out
}

func TestDominantFrequencyOfSine(t *testing.T) {
	const sr = 8000
	// 400 samples -> 20 Hz bins, 440 Hz sits exactly on bin 22
	got := NewDominantFrequency().Compute(sine(440, sr, 400), sr)
	assert.InDelta(t, 440.0, got, 1e-9)
}

func TestDominantFrequencyResolutionFollowsSegmentLength(t *testing.T) {
	const sr = 1000
	// odd length: bin spacing 1000/333 Hz
	segment := sine(100, sr, 333)
	got := NewDominantFrequency().Compute(segment, sr)

	spacing := float64(sr) / 333.0
	bin := got * 333 / float64(sr)
	assert.InDelta(t, math.Round(bin), bin, 1e-9)
	assert.InDelta(t, 100.0, got, spacing)
}

func TestDominantFrequencyEdgeCases(t *testing.T) {
	df := NewDominantFrequency()
	assert.Equal(t, 0.0, df.Compute(nil, 44100))
	assert.Equal(t, 0.0, df.Compute([]float64{0.7}, 44100), "single sample has only the DC bin")
	assert.Equal(t, 0.0, df.Compute(make([]float64, 16), 44100), "silence picks the first bin")
}

func TestDominantFrequenciesLengthInvariant(t *testing.T) {
	samples := sine(220, 8000, 8000)
	cases := [][]float64{
		nil,
		{0.5},
		{0.1, 0.6},
		{0.1, 0.35, 0.6, 0.85},
		{0.2, 0.2000001, 0.9},
		{0.5, 1.5, 3.0}, // runs past the end of the signal
	}
	for _, beats := range cases {
		got := DominantFrequencies(samples, 8000, beats)
		assert.Len(t, got, max(len(beats)-1, 0), "beats=%v", beats)
	}
}

func TestDominantFrequenciesEmptySegmentIsZero(t *testing.T) {
	samples := sine(220, 8000, 8000)
	// both timestamps truncate to sample 1600
	got := DominantFrequencies(samples, 8000, []float64{0.2, 0.20001, 0.5})
	require.Len(t, got, 2)
	assert.Equal(t, 0.0, got[0])
	assert.InDelta(t, 220.0, got[1], 8000.0/2400.0)

	beyond := DominantFrequencies(samples, 8000, []float64{2.0, 3.0})
	assert.Equal(t, []float64{0.0}, beyond)
}

func TestRealMagnitudesMatchesGoDSP(t *testing.T) {
	x := sine(1000, 8000, 64)
	f := NewFFT()

	mags := f.RealMagnitudes(x)
	full := f.Compute(x)
	require.Len(t, mags, 33)
	for k := range mags {
		re, im := real(full[k]), imag(full[k])
		assert.InDelta(t, math.Hypot(re, im), mags[k], 1e-9)
	}
}

func TestAutocorrelate(t *testing.T) {
	ac := NewFFT().Autocorrelate([]float64{1, 2, 3})
	assert.InDeltaSlice(t, []float64{14, 8, 3}, ac, 1e-9)
	assert.Empty(t, NewFFT().Autocorrelate(nil))
}

func TestComputePowerFrameCount(t *testing.T) {
	signal := sine(440, 22050, 22050)
	res, err := NewSTFT().ComputePower(signal, 2048, 512, 22050)
	require.NoError(t, err)

	assert.Equal(t, 1+22050/512, res.TimeFrames)
	assert.Equal(t, 1025, res.FreqBins)
	require.Len(t, res.Power, res.TimeFrames)

	// middle frame peaks near 440 Hz
	mid := res.Power[res.TimeFrames/2]
	best := 0
	for k := range mid {
		if mid[k] > mid[best] {
			best = k
		}
	}
	assert.InDelta(t, 440.0, float64(best)*res.FreqResolution, res.FreqResolution)

	_, err = NewSTFT().ComputePower(nil, 2048, 512, 22050)
	assert.Error(t, err)
}

func TestPeriodicHann(t *testing.T) {
	w := PeriodicHann(4)
	assert.InDeltaSlice(t, []float64{0, 0.5, 1, 0.5}, w, 1e-12)
}

func TestMelScaleRoundTrip(t *testing.T) {
	ms := NewMelScale()
	for _, hz := range []float64{0, 200, 999, 1000, 4000, 11025} {
		assert.InDelta(t, hz, ms.MelToHz(ms.HzToMel(hz)), 1e-6)
	}
	assert.InDelta(t, 15.0, ms.HzToMel(1000), 1e-12)
}

func TestMelFilterBankShape(t *testing.T) {
	bank := NewMelScale().CreateMelFilterBank(128, 2048, 22050, 0, 11025)
	require.Len(t, bank, 128)

	for m, f := range bank {
		if len(f.Weights) == 0 {
			continue
		}
		assert.GreaterOrEqual(t, f.Start, 0, "filter %d", m)
		assert.LessOrEqual(t, f.Start+len(f.Weights), 1025, "filter %d", m)
	}
	// upper filters are wide enough to always cover some bins
	assert.NotEmpty(t, bank[127].Weights)
}

func TestToDB(t *testing.T) {
	db := NewPowerSpectrum().ToDB([][]float64{{1, 100}, {0, 1e-3}}, 1.0, 1e-10, 80)
	assert.InDelta(t, 0.0, db[0][0], 1e-12)
	assert.InDelta(t, 20.0, db[0][1], 1e-12)
	assert.InDelta(t, -60.0, db[1][0], 1e-12, "clipped to max - top_db")
	assert.InDelta(t, -30.0, db[1][1], 1e-12)
}

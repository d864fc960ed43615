package spectral

import (
	"github.com/RyanBlaney/sonido-pulso/algorithms/common"
)

// DominantFrequency finds the strongest bin of a segment's magnitude spectrum
type DominantFrequency struct {
	fft *FFT
}

// NewDominantFrequency creates a new dominant frequency extractor
func NewDominantFrequency() *DominantFrequency {
	return &DominantFrequency{
		fft: NewFFT(),
	}
}

// Compute returns the frequency (Hz) of the largest |rfft| bin of segment.
// Bin spacing is sampleRate/len(segment), so resolution follows the segment
// length. An empty segment yields 0.
func (df *DominantFrequency) Compute(segment []float64, sampleRate int) float64 {
	if len(segment) == 0 {
		return 0.0
	}

	peak := common.ArgMax(df.fft.RealMagnitudes(segment))
	return float64(peak) * float64(sampleRate) / float64(len(segment))
}

// ComputeBetweenBeats returns one dominant frequency per inter-beat interval:
// segment i is samples[int(beats[i]*sr) : int(beats[i+1]*sr)], clamped to the
// signal. Fewer than two beats gives an empty result.
func (df *DominantFrequency) ComputeBetweenBeats(samples []float64, sampleRate int, beatTimes []float64) []float64 {
	if len(beatTimes) < 2 {
		return []float64{}
	}

	frequencies := make([]float64, len(beatTimes)-1)
	for i := range frequencies {
		start := clampIndex(int(beatTimes[i]*float64(sampleRate)), len(samples))
		end := clampIndex(int(beatTimes[i+1]*float64(sampleRate)), len(samples))

		if end <= start {
			frequencies[i] = 0.0
			continue
		}

		frequencies[i] = df.Compute(samples[start:end], sampleRate)
	}

	return frequencies
}

// DominantFrequencies is shorthand for NewDominantFrequency().ComputeBetweenBeats
func DominantFrequencies(samples []float64, sampleRate int, beatTimes []float64) []float64 {
	return NewDominantFrequency().ComputeBetweenBeats(samples, sampleRate, beatTimes)
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

package temporal

import (
	"math"

	"github.com/RyanBlaney/sonido-pulso/algorithms/common"
	"github.com/RyanBlaney/sonido-pulso/algorithms/spectral"
)

// Tempo prior and search limits
const (
	DefaultStartBPM   = 120.0
	defaultPriorStd   = 1.0 // octaves
	autocorrSeconds   = 8.0
	DefaultMaxTempo   = 320.0
	tempoScoreScaling = 1e6
)

// TempoEstimation picks a global tempo from the mean autocorrelation
// tempogram of the onset strength envelope, weighted by a log-normal prior
// centered on StartBPM
type TempoEstimation struct {
	onsetDetector *OnsetDetection
	StartBPM      float64
	MaxTempo      float64
}

// NewTempoEstimation creates a new tempo estimator
func NewTempoEstimation() *TempoEstimation {
	return &TempoEstimation{
		onsetDetector: NewOnsetDetection(),
		StartBPM:      DefaultStartBPM,
		MaxTempo:      DefaultMaxTempo,
	}
}

// EstimateTempo estimates tempo in BPM from the signal's onset envelope.
// Silence or an empty signal yields 0.
func (te *TempoEstimation) EstimateTempo(signal []float64, sampleRate int) (float64, error) {
	envelope, err := te.onsetDetector.OnsetStrength(signal, sampleRate)
	if err != nil {
		return 0.0, err
	}

	if !common.AnyPositive(envelope) {
		return 0.0, nil
	}

	return te.TempoFromEnvelope(envelope, sampleRate, te.onsetDetector.HopSize()), nil
}

// TempoFromEnvelope estimates tempo from a precomputed onset envelope
func (te *TempoEstimation) TempoFromEnvelope(envelope []float64, sampleRate, hopSize int) float64 {
	if len(envelope) == 0 {
		return 0.0
	}

	winLength := int(autocorrSeconds*float64(sampleRate)) / hopSize
	if winLength < 2 {
		return 0.0
	}

	tempogram := te.MeanTempogram(envelope, winLength)

	best := -1
	bestScore := math.Inf(-1)
	logStart := math.Log2(te.StartBPM)
	for lag := 1; lag < len(tempogram); lag++ {
		bpm := 60.0 * float64(sampleRate) / (float64(hopSize) * float64(lag))
		if bpm >= te.MaxTempo {
			continue
		}

		z := (math.Log2(bpm) - logStart) / defaultPriorStd
		score := math.Log1p(tempoScoreScaling*tempogram[lag]) - 0.5*z*z
		if score > bestScore {
			best, bestScore = lag, score
		}
	}

	if best < 0 {
		return 0.0
	}

	return 60.0 * float64(sampleRate) / (float64(hopSize) * float64(best))
}

// MeanTempogram returns the time-averaged autocorrelation tempogram of
// envelope. Each frame is a Hann-windowed slice of winLength envelope values
// centered on one envelope frame (edges linearly ramped to zero), and each
// autocorrelation is normalized by its own peak.
func (te *TempoEstimation) MeanTempogram(envelope []float64, winLength int) []float64 {
	pad := winLength / 2
	padded := linearRampPad(envelope, pad)
	window := spectral.PeriodicHann(winLength)
	ac := spectral.NewAutocorrelator(winLength)

	frame := make([]float64, winLength)
	column := make([]float64, winLength)
	mean := make([]float64, winLength)

	numFrames := len(envelope)
	for n := range numFrames {
		for i := range frame {
			frame[i] = padded[n+i] * window[i]
		}

		column = ac.Compute(frame, column)

		peak := 0.0
		for _, v := range column {
			peak = math.Max(peak, math.Abs(v))
		}
		if peak < tiny {
			continue
		}

		for i, v := range column {
			mean[i] += v / peak
		}
	}

	for i := range mean {
		mean[i] /= float64(numFrames)
	}

	return mean
}

const tiny = 2.2250738585072014e-308

// linearRampPad pads x by width values on each side, ramping linearly from 0
// up to the edge value
func linearRampPad(x []float64, width int) []float64 {
	out := make([]float64, len(x)+2*width)
	copy(out[width:], x)

	first, last := x[0], x[len(x)-1]
	for i := range width {
		out[i] = first * float64(i) / float64(width)
		out[len(out)-1-i] = last * float64(i) / float64(width)
	}

	return out
}

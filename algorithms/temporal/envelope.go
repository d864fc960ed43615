package temporal

import (
	"math"
)

// Envelope provides amplitude envelope extraction
type Envelope struct {
	// No state needed - stateless calculation
}

// NewEnvelope creates a new envelope extractor
func NewEnvelope() *Envelope {
	return &Envelope{}
}

// ComputeRMS computes a centered RMS envelope. The signal is zero-padded by
// frameSize/2 on both sides, so frame t is centered on sample t*hopSize and
// there are 1 + len(signal)/hopSize frames.
func (e *Envelope) ComputeRMS(signal []float64, frameSize, hopSize int) []float64 {
	if len(signal) == 0 || frameSize <= 0 || hopSize <= 0 {
		return []float64{}
	}

	pad := frameSize / 2
	padded := make([]float64, len(signal)+2*pad)
	copy(padded[pad:], signal)

	numFrames := 1 + (len(padded)-frameSize)/hopSize
	envelope := make([]float64, numFrames)

	for i := range numFrames {
		startIdx := i * hopSize
		endIdx := startIdx + frameSize

		// Calculate RMS for this frame
		sumSquares := 0.0
		for j := startIdx; j < endIdx; j++ {
			sumSquares += padded[j] * padded[j]
		}
		envelope[i] = math.Sqrt(sumSquares / float64(frameSize))
	}

	return envelope
}

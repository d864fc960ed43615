package common

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// NormalizationType defines normalization method
type NormalizationType int

const (
	// Peak divides by the largest absolute sample
	Peak NormalizationType = iota
	// MinMax shifts the minimum to zero and scales the maximum to (almost) one
	MinMax
)

// tiny is the smallest positive normal float64; it keeps MinMax away from 0/0
const tiny = 2.2250738585072014e-308

// Normalizer provides the signal normalizations used by the analysis stages.
// Every method returns a new slice; the input is never written to.
type Normalizer struct {
	method NormalizationType
}

// NewNormalizer creates a new normalizer
func NewNormalizer(method NormalizationType) *Normalizer {
	return &Normalizer{
		method: method,
	}
}

// Normalize normalizes signal using the configured method
func (n *Normalizer) Normalize(signal []float64) []float64 {
	switch n.method {
	case MinMax:
		return n.minMaxNormalize(signal)
	default:
		return n.peakNormalize(signal)
	}
}

// PeakNormalize is shorthand for NewNormalizer(Peak).Normalize(signal)
func PeakNormalize(signal []float64) []float64 {
	return NewNormalizer(Peak).Normalize(signal)
}

// peakNormalize divides by max(|x|). A silent signal (peak exactly zero)
// is returned as-is, no division takes place.
func (n *Normalizer) peakNormalize(signal []float64) []float64 {
	if len(signal) == 0 {
		return signal
	}

	peak := 0.0
	for _, val := range signal {
		peak = math.Max(peak, math.Abs(val))
	}

	if peak == 0 {
		return signal
	}

	normalized := make([]float64, len(signal))
	for i, val := range signal {
		normalized[i] = val / peak
	}

	return normalized
}

// minMaxNormalize maps the signal onto [0, 1] as x' = (x - min) / (max' + tiny)
// where max' is the maximum after the shift.
func (n *Normalizer) minMaxNormalize(signal []float64) []float64 {
	if len(signal) == 0 {
		return signal
	}

	minVal := floats.Min(signal)
	normalized := make([]float64, len(signal))
	for i, val := range signal {
		normalized[i] = val - minVal
	}

	scale := floats.Max(normalized) + tiny
	for i := range normalized {
		normalized[i] /= scale
	}
	return normalized
}

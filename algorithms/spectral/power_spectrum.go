package spectral

import (
	"math"
)

// PowerSpectrum provides decibel conversion of power spectrograms
type PowerSpectrum struct {
	// No state needed - stateless calculation
}

// NewPowerSpectrum creates a new power spectrum calculator
func NewPowerSpectrum() *PowerSpectrum {
	return &PowerSpectrum{}
}

// ToDB converts power values to decibels relative to ref:
// 10*log10(max(amin, S)) - 10*log10(max(amin, ref)), then clips everything
// below (global max - topDB). topDB <= 0 disables clipping. Returns a new
// matrix with the same shape.
func (ps *PowerSpectrum) ToDB(power [][]float64, ref, amin, topDB float64) [][]float64 {
	if len(power) == 0 {
		return [][]float64{}
	}

	offset := 10 * math.Log10(math.Max(amin, ref))
	peak := math.Inf(-1)

	db := make([][]float64, len(power))
	for i, row := range power {
		db[i] = make([]float64, len(row))
		for j, p := range row {
			v := 10*math.Log10(math.Max(amin, p)) - offset
			db[i][j] = v
			peak = math.Max(peak, v)
		}
	}

	if topDB > 0 {
		floor := peak - topDB
		for _, row := range db {
			for j := range row {
				row[j] = math.Max(row[j], floor)
			}
		}
	}

	return db
}

package spectral

import (
	"math"
)

// Slaney (Auditory Toolbox) mel scale constants: linear below 1 kHz,
// logarithmic above.
const (
	melFSp       = 200.0 / 3
	melMinLogHz  = 1000.0
	melMinLogMel = melMinLogHz / melFSp
)

var melLogStep = math.Log(6.4) / 27.0

// MelScale provides Slaney-style mel conversion and filter banks
type MelScale struct{}

// NewMelScale creates a new mel scale converter
func NewMelScale() *MelScale {
	return &MelScale{}
}

// HzToMel converts frequency in Hz to the Slaney mel scale
func (ms *MelScale) HzToMel(hz float64) float64 {
	if hz >= melMinLogHz {
		return melMinLogMel + math.Log(hz/melMinLogHz)/melLogStep
	}
	return hz / melFSp
}

// MelToHz converts a Slaney mel value back to Hz
func (ms *MelScale) MelToHz(mel float64) float64 {
	if mel >= melMinLogMel {
		return melMinLogHz * math.Exp(melLogStep*(mel-melMinLogMel))
	}
	return melFSp * mel
}

// MelFilter is one triangular band, stored sparsely over [Start, Start+len(Weights))
type MelFilter struct {
	Start   int
	Weights []float64
}

// CreateMelFilterBank builds numFilters area-normalized triangular filters over
// the fftSize/2+1 bins of an rfft, with band edges equally spaced in mel
// between lowFreq and highFreq.
func (ms *MelScale) CreateMelFilterBank(numFilters int, fftSize int, sampleRate int, lowFreq, highFreq float64) []MelFilter {
	if numFilters <= 0 || fftSize <= 0 || sampleRate <= 0 {
		return nil
	}

	numBins := fftSize/2 + 1
	fftFreqs := make([]float64, numBins)
	for k := range fftFreqs {
		fftFreqs[k] = float64(k) * float64(sampleRate) / float64(fftSize)
	}

	lowMel := ms.HzToMel(lowFreq)
	highMel := ms.HzToMel(highFreq)
	hzPoints := make([]float64, numFilters+2)
	for i := range hzPoints {
		mel := lowMel + (highMel-lowMel)*float64(i)/float64(numFilters+1)
		hzPoints[i] = ms.MelToHz(mel)
	}

	bank := make([]MelFilter, numFilters)
	for m := range numFilters {
		left, center, right := hzPoints[m], hzPoints[m+1], hzPoints[m+2]
		lowerWidth := center - left
		upperWidth := right - center
		enorm := 2.0 / (right - left)

		full := make([]float64, numBins)
		first, last := -1, -1
		for k, f := range fftFreqs {
			lower := (f - left) / lowerWidth
			upper := (right - f) / upperWidth
			full[k] = math.Max(0, math.Min(lower, upper)) * enorm
			if full[k] > 0 {
				if first < 0 {
					first = k
				}
				last = k
			}
		}

		if first < 0 {
			bank[m] = MelFilter{}
			continue
		}
		bank[m] = MelFilter{Start: first, Weights: full[first : last+1]}
	}

	return bank
}

// ApplyFilterBank applies the mel filter bank to one power spectrum frame
func (ms *MelScale) ApplyFilterBank(powerSpectrum []float64, filterBank []MelFilter) []float64 {
	if len(filterBank) == 0 || len(powerSpectrum) == 0 {
		return []float64{}
	}

	melSpectrum := make([]float64, len(filterBank))
	for i, filter := range filterBank {
		sum := 0.0
		for j, w := range filter.Weights {
			k := filter.Start + j
			if k >= len(powerSpectrum) {
				break
			}
			sum += powerSpectrum[k] * w
		}
		melSpectrum[i] = sum
	}

	return melSpectrum
}

// MelSpectrogram maps every frame of a power spectrogram onto numFilters mel
// bands spanning 0 Hz to Nyquist. The result is indexed [band][frame].
func (ms *MelScale) MelSpectrogram(stft *STFTResult, numFilters int) [][]float64 {
	bank := ms.CreateMelFilterBank(numFilters, stft.WindowSize, stft.SampleRate, 0, float64(stft.SampleRate)/2)

	mel := make([][]float64, numFilters)
	for m := range mel {
		mel[m] = make([]float64, stft.TimeFrames)
	}

	for t, frame := range stft.Power {
		bands := ms.ApplyFilterBank(frame, bank)
		for m, v := range bands {
			mel[m][t] = v
		}
	}

	return mel
}

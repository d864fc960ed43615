package temporal

import (
	"fmt"

	"github.com/RyanBlaney/sonido-pulso/algorithms/common"
	"github.com/RyanBlaney/sonido-pulso/algorithms/spectral"
)

// Analysis frame geometry shared by the onset, tempo and beat stages
const (
	DefaultFrameSize = 2048
	DefaultHopSize   = 512
	DefaultMelBands  = 128
)

const (
	onsetLag    = 1
	refPower    = 1.0
	aminPower   = 1e-10
	topDecibels = 80.0
)

// PeakPickParams controls PeakPick. Window sizes are in frames.
type PeakPickParams struct {
	PreMax  int
	PostMax int
	PreAvg  int
	PostAvg int
	Delta   float64
	Wait    int
}

// DefaultPeakPick is the fixed peak picking used for onset detection
var DefaultPeakPick = PeakPickParams{
	PreMax:  1,
	PostMax: 1,
	PreAvg:  1,
	PostAvg: 1,
	Delta:   0.08,
	Wait:    1,
}

// OnsetDetection computes a mel spectral-flux onset strength envelope and
// picks onset events from it
type OnsetDetection struct {
	stft       *spectral.STFT
	mel        *spectral.MelScale
	power      *spectral.PowerSpectrum
	normalizer *common.Normalizer
	frameSize  int
	hopSize    int
	melBands   int
}

// NewOnsetDetection creates a new onset detector with the default frame geometry
func NewOnsetDetection() *OnsetDetection {
	return &OnsetDetection{
		stft:       spectral.NewSTFT(),
		mel:        spectral.NewMelScale(),
		power:      spectral.NewPowerSpectrum(),
		normalizer: common.NewNormalizer(common.MinMax),
		frameSize:  DefaultFrameSize,
		hopSize:    DefaultHopSize,
		melBands:   DefaultMelBands,
	}
}

// HopSize returns the envelope hop in samples
func (od *OnsetDetection) HopSize() int {
	return od.hopSize
}

// OnsetStrength returns one onset strength value per centered STFT frame:
// the mean over mel bands of the rectified first difference of the dB mel
// spectrogram. The envelope is shifted right by lag + frameSize/(2*hopSize)
// frames so that peaks line up with the frames they describe.
func (od *OnsetDetection) OnsetStrength(signal []float64, sampleRate int) ([]float64, error) {
	if len(signal) == 0 {
		return []float64{}, nil
	}

	stftResult, err := od.stft.ComputePower(signal, od.frameSize, od.hopSize, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("onset strength: %w", err)
	}

	mel := od.mel.MelSpectrogram(stftResult, od.melBands)
	db := od.power.ToDB(mel, refPower, aminPower, topDecibels)

	numFrames := stftResult.TimeFrames
	envelope := make([]float64, numFrames)
	shift := onsetLag + od.frameSize/(2*od.hopSize)

	for t := onsetLag; t < numFrames; t++ {
		out := t - onsetLag + shift
		if out >= numFrames {
			break
		}

		flux := 0.0
		for _, band := range db {
			if d := band[t] - band[t-onsetLag]; d > 0 {
				flux += d
			}
		}
		envelope[out] = flux / float64(len(db))
	}

	return envelope, nil
}

// DetectOnsets returns onset times in seconds. The strength envelope is
// min-max normalized and peak picked with DefaultPeakPick; an envelope with
// no energy yields no onsets.
func (od *OnsetDetection) DetectOnsets(signal []float64, sampleRate int) ([]float64, error) {
	envelope, err := od.OnsetStrength(signal, sampleRate)
	if err != nil {
		return nil, err
	}

	normalized := od.normalizer.Normalize(envelope)
	if !anyNonZero(normalized) {
		return []float64{}, nil
	}

	peaks := PeakPick(normalized, DefaultPeakPick)
	return FramesToTime(peaks, od.hopSize, sampleRate), nil
}

// DetectOnsets is shorthand for NewOnsetDetection().DetectOnsets
func DetectOnsets(signal []float64, sampleRate int) ([]float64, error) {
	return NewOnsetDetection().DetectOnsets(signal, sampleRate)
}

// PeakPick returns the indices n where
//
//	x[n] == max(x[n-PreMax : n+PostMax])
//	x[n] >= mean(x[n-PreAvg : n+PostAvg]) + Delta
//	n > previous peak + Wait
//
// with windows truncated at the edges. Zero samples are never peaks.
func PeakPick(x []float64, p PeakPickParams) []int {
	peaks := []int{}
	last := -p.Wait - 1

	for n, v := range x {
		if v == 0 {
			continue
		}

		lo, hi := max(0, n-p.PreMax), min(len(x), n+p.PostMax)
		isMax := true
		for _, w := range x[lo:hi] {
			if w > v {
				isMax = false
				break
			}
		}
		if !isMax {
			continue
		}

		lo, hi = max(0, n-p.PreAvg), min(len(x), n+p.PostAvg)
		if v < common.Mean(x[lo:hi])+p.Delta {
			continue
		}

		if n > last+p.Wait {
			peaks = append(peaks, n)
			last = n
		}
	}

	return peaks
}

// FramesToTime converts frame indices to seconds (frame*hop/sampleRate)
func FramesToTime(frames []int, hopSize, sampleRate int) []float64 {
	times := make([]float64, len(frames))
	for i, f := range frames {
		times[i] = float64(f*hopSize) / float64(sampleRate)
	}
	return times
}

func anyNonZero(x []float64) bool {
	for _, v := range x {
		if v != 0 {
			return true
		}
	}
	return false
}

package temporal

import (
	"math"

	"github.com/RyanBlaney/sonido-pulso/algorithms/common"
	"gonum.org/v1/gonum/floats"
)

// DefaultTightness weights how strictly beats follow the estimated period
const DefaultTightness = 100.0

// BeatTracker finds beats by dynamic programming over the onset envelope:
// every frame scores its local onset strength plus the best predecessor one
// period back, penalized by the log deviation from that period
type BeatTracker struct {
	onsetDetector *OnsetDetection
	tempo         *TempoEstimation
	Tightness     float64
	Trim          bool
}

// NewBeatTracker creates a beat tracker with the default tempo prior
func NewBeatTracker() *BeatTracker {
	od := NewOnsetDetection()
	return &BeatTracker{
		onsetDetector: od,
		tempo:         &TempoEstimation{onsetDetector: od, StartBPM: DefaultStartBPM, MaxTempo: DefaultMaxTempo},
		Tightness:     DefaultTightness,
		Trim:          true,
	}
}

// Track returns the global tempo hint (BPM) and strictly increasing beat
// times in seconds. A signal with no onset energy yields (0, []).
func (bt *BeatTracker) Track(signal []float64, sampleRate int) (float64, []float64, error) {
	envelope, err := bt.onsetDetector.OnsetStrength(signal, sampleRate)
	if err != nil {
		return 0.0, nil, err
	}

	if !common.AnyPositive(envelope) {
		return 0.0, []float64{}, nil
	}

	hop := bt.onsetDetector.HopSize()
	bpm := bt.tempo.TempoFromEnvelope(envelope, sampleRate, hop)
	if bpm <= 0 {
		return 0.0, []float64{}, nil
	}

	frameRate := float64(sampleRate) / float64(hop)
	frames := bt.TrackFrames(envelope, bpm, frameRate)

	return bpm, FramesToTime(frames, hop, sampleRate), nil
}

// DetectBeats is shorthand for NewBeatTracker().Track
func DetectBeats(signal []float64, sampleRate int) (float64, []float64, error) {
	return NewBeatTracker().Track(signal, sampleRate)
}

// TrackFrames returns beat frame indices for an onset envelope at the given
// tempo and envelope frame rate
func (bt *BeatTracker) TrackFrames(envelope []float64, bpm, frameRate float64) []int {
	period := int(math.RoundToEven(60.0 * frameRate / bpm))
	if period < 1 {
		period = 1
	}

	localScore := bt.localScore(envelope, period)
	backlink, cumScore := bt.dynamicProgram(localScore, period)

	tail, ok := lastBeat(cumScore)
	if !ok {
		return []int{}
	}

	beats := []int{tail}
	for backlink[beats[len(beats)-1]] >= 0 {
		beats = append(beats, backlink[beats[len(beats)-1]])
	}
	for i, j := 0, len(beats)-1; i < j; i, j = i+1, j-1 {
		beats[i], beats[j] = beats[j], beats[i]
	}

	if bt.Trim {
		beats = trimBeats(localScore, beats)
	}

	return beats
}

// localScore smooths the std-normalized envelope with a Gaussian kernel
// spanning one period on either side
func (bt *BeatTracker) localScore(envelope []float64, period int) []float64 {
	normalized := make([]float64, len(envelope))
	copy(normalized, envelope)
	if std := common.StandardDeviation(envelope); std > 0 {
		for i := range normalized {
			normalized[i] /= std
		}
	}

	kernel := make([]float64, 2*period+1)
	for j := range kernel {
		z := float64(j-period) * 32.0 / float64(period)
		kernel[j] = math.Exp(-0.5 * z * z)
	}

	return convolveSame(normalized, kernel)
}

func (bt *BeatTracker) dynamicProgram(localScore []float64, period int) ([]int, []float64) {
	n := len(localScore)
	backlink := make([]int, n)
	cumScore := make([]float64, n)

	lo := -2 * period
	hi := -int(math.RoundToEven(float64(period) / 2))
	if hi > -1 {
		hi = -1
	}
	if lo > hi {
		lo = hi
	}

	offsets := make([]int, 0, hi-lo+1)
	txwt := make([]float64, 0, hi-lo+1)
	for k := lo; k <= hi; k++ {
		offsets = append(offsets, k)
		l := math.Log(-float64(k) / float64(period))
		txwt = append(txwt, -bt.Tightness*l*l)
	}

	scoreThresh := 0.01 * floats.Max(localScore)
	firstBeat := true

	for i, score := range localScore {
		bestIdx := 0
		best := math.Inf(-1)
		for k, off := range offsets {
			candidate := txwt[k]
			if j := i + off; j >= 0 {
				candidate += cumScore[j]
			}
			if candidate > best {
				best, bestIdx = candidate, k
			}
		}

		cumScore[i] = score + best

		if firstBeat && score < scoreThresh {
			backlink[i] = -1
		} else {
			backlink[i] = i + offsets[bestIdx]
			firstBeat = false
		}
	}

	return backlink, cumScore
}

// lastBeat picks the final local maximum of the cumulative score that beats
// half the median local-maximum score
func lastBeat(cumScore []float64) (int, bool) {
	maxes := common.LocalMax(cumScore)

	peaks := []float64{}
	for i, isMax := range maxes {
		if isMax {
			peaks = append(peaks, cumScore[i])
		}
	}
	if len(peaks) == 0 {
		return 0, false
	}

	median := common.Median(peaks)
	tail := -1
	for i, v := range cumScore {
		value := 0.0
		if maxes[i] {
			value = 2 * v
		}
		if value > median {
			tail = i
		}
	}

	return tail, tail >= 0
}

// trimBeats drops weak leading and trailing beats: beats whose Hann-smoothed
// local score falls below half its RMS are cut from both ends
func trimBeats(localScore []float64, beats []int) []int {
	if len(beats) == 0 {
		return beats
	}

	scores := make([]float64, len(beats))
	for i, b := range beats {
		scores[i] = localScore[b]
	}

	smooth := convolveSame(scores, []float64{0, 0.5, 1, 0.5, 0})
	threshold := 0.5 * common.RMS(smooth)

	first, last := -1, -1
	for i, v := range smooth {
		if v > threshold {
			if first < 0 {
				first = i
			}
			last = i
		}
	}

	if first < 0 {
		return []int{}
	}

	return beats[first:last]
}

// convolveSame is a full linear convolution cropped to len(x), centered on
// the kernel
func convolveSame(x, kernel []float64) []float64 {
	out := make([]float64, len(x))
	offset := (len(kernel) - 1) / 2

	for i := range out {
		sum := 0.0
		for j, w := range kernel {
			k := i + offset - j
			if k < 0 || k >= len(x) {
				continue
			}
			sum += x[k] * w
		}
		out[i] = sum
	}

	return out
}

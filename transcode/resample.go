package transcode

import (
	"fmt"
	"math"

	"github.com/faiface/beep"
)

const resampleChunk = 512

// Resample converts a waveform to targetRate using beep's windowed-sinc
// resampler. quality trades speed for accuracy (1..64). The input is not
// modified; a waveform already at targetRate is copied.
func Resample(w *Waveform, targetRate, quality int) (*Waveform, error) {
	if w == nil {
		return nil, fmt.Errorf("nil waveform")
	}
	if w.SampleRate <= 0 || targetRate <= 0 {
		return nil, fmt.Errorf("invalid resample rates: %d -> %d", w.SampleRate, targetRate)
	}
	if quality < 1 || quality > 64 {
		return nil, fmt.Errorf("resample quality must be between 1 and 64: %d", quality)
	}

	if w.SampleRate == targetRate || len(w.Samples) == 0 {
		samples := make([]float64, len(w.Samples))
		copy(samples, w.Samples)
		return &Waveform{
			Samples:    samples,
			SampleRate: targetRate,
			Channels:   w.Channels,
			Duration:   samplesDuration(len(samples), targetRate),
		}, nil
	}

	pos := 0
	source := beep.StreamerFunc(func(buf [][2]float64) (int, bool) {
		if pos >= len(w.Samples) {
			return 0, false
		}
		n := min(len(buf), len(w.Samples)-pos)
		for i := range n {
			v := w.Samples[pos+i]
			buf[i][0], buf[i][1] = v, v
		}
		pos += n
		return n, true
	})

	resampler := beep.Resample(quality, beep.SampleRate(w.SampleRate), beep.SampleRate(targetRate), source)

	expected := int(math.Ceil(float64(len(w.Samples)) * float64(targetRate) / float64(w.SampleRate)))
	out := make([]float64, 0, expected)
	buf := make([][2]float64, resampleChunk)

	for len(out) < expected {
		n, ok := resampler.Stream(buf)
		for i := range n {
			out = append(out, buf[i][0])
		}
		if !ok || n == 0 {
			break
		}
	}

	if err := resampler.Err(); err != nil {
		return nil, fmt.Errorf("resample failed: %w", err)
	}

	if len(out) > expected {
		out = out[:expected]
	}

	return &Waveform{
		Samples:    out,
		SampleRate: targetRate,
		Channels:   w.Channels,
		Duration:   samplesDuration(len(out), targetRate),
	}, nil
}

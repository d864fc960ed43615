package temporal

import (
	"github.com/RyanBlaney/sonido-pulso/algorithms/common"
)

// Energy samples a centered RMS envelope at beat positions
type Energy struct {
	frameSize int
	hopSize   int
	envelope  *Envelope
	beats     *BeatTracker
}

// NewEnergy creates a new energy calculator
func NewEnergy(frameSize, hopSize int) *Energy {
	return &Energy{
		frameSize: frameSize,
		hopSize:   hopSize,
		envelope:  NewEnvelope(),
		beats:     NewBeatTracker(),
	}
}

// ComputeAtBeats peak-normalizes signal, tracks its beats and returns the RMS
// envelope value at each beat (one value per beat). The envelope frame of a
// beat at t seconds is int(t*sampleRate)/hopSize; a frame past the end of the
// envelope takes the last envelope value, or 0 when the envelope is empty.
func (e *Energy) ComputeAtBeats(signal []float64, sampleRate int) ([]float64, error) {
	normalized := common.PeakNormalize(signal)

	_, beatTimes, err := e.beats.Track(normalized, sampleRate)
	if err != nil {
		return nil, err
	}

	rms := e.envelope.ComputeRMS(normalized, e.frameSize, e.hopSize)
	return e.SampleAt(rms, beatTimes, sampleRate), nil
}

// SampleAt reads an RMS envelope at the given times
func (e *Energy) SampleAt(rms []float64, times []float64, sampleRate int) []float64 {
	energies := make([]float64, len(times))
	for i, t := range times {
		frame := int(t*float64(sampleRate)) / e.hopSize

		switch {
		case len(rms) == 0:
			energies[i] = 0.0
		case frame >= 0 && frame < len(rms):
			energies[i] = rms[frame]
		default:
			energies[i] = rms[len(rms)-1]
		}
	}

	return energies
}

// EnergyAtBeats is shorthand for NewEnergy(DefaultFrameSize, DefaultHopSize).ComputeAtBeats
func EnergyAtBeats(signal []float64, sampleRate int) ([]float64, error) {
	return NewEnergy(DefaultFrameSize, DefaultHopSize).ComputeAtBeats(signal, sampleRate)
}

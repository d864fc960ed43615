package spectral

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/mjibson/go-dsp/window"
)

// STFT provides a centered Short-Time Fourier Transform
type STFT struct {
	fft *FFT
}

// STFTResult holds a power spectrogram
type STFTResult struct {
	Power          [][]float64 `json:"power"`           // Time x Frequency |X|^2
	TimeFrames     int         `json:"time_frames"`     // Number of time frames
	FreqBins       int         `json:"freq_bins"`       // windowSize/2 + 1
	SampleRate     int         `json:"sample_rate"`     // Sample rate
	WindowSize     int         `json:"window_size"`     // FFT window size
	HopSize        int         `json:"hop_size"`        // Hop size between frames
	FreqResolution float64     `json:"freq_resolution"` // Frequency resolution (Hz/bin)
	TimeResolution float64     `json:"time_resolution"` // Time resolution (seconds/frame)
}

// NewSTFT creates a new STFT calculator
func NewSTFT() *STFT {
	return &STFT{
		fft: NewFFT(),
	}
}

// PeriodicHann returns a Hann window of the given size suitable for spectral
// analysis (the first size points of a symmetric window of size+1).
func PeriodicHann(size int) []float64 {
	if size <= 0 {
		return []float64{}
	}
	return window.Hann(size + 1)[:size]
}

// ComputePower computes the power spectrogram of signal. Frames are centered:
// the signal is zero-padded by windowSize/2 on both sides, so frame t covers
// samples around t*hopSize and there are 1 + len(signal)/hopSize frames.
func (s *STFT) ComputePower(signal []float64, windowSize int, hopSize int, sampleRate int) (*STFTResult, error) {
	if len(signal) == 0 {
		return nil, fmt.Errorf("empty signal")
	}

	if windowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive")
	}

	if hopSize <= 0 {
		return nil, fmt.Errorf("hop size must be positive")
	}

	pad := windowSize / 2
	padded := make([]float64, len(signal)+2*pad)
	copy(padded[pad:], signal)

	numFrames := 1 + (len(padded)-windowSize)/hopSize
	freqBins := windowSize/2 + 1
	hann := PeriodicHann(windowSize)

	power := make([][]float64, numFrames)
	for i := range numFrames {
		power[i] = make([]float64, freqBins)
	}

	numWorkers := s.getOptimalWorkerCount(numFrames)
	jobs := make(chan int, numFrames)

	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			// Reuse frame buffer for this worker
			frameBuffer := make([]float64, windowSize)

			for frameIdx := range jobs {
				start := frameIdx * hopSize
				for j := range windowSize {
					frameBuffer[j] = padded[start+j] * hann[j]
				}

				spectrum := s.fft.Compute(frameBuffer)
				for k := range freqBins {
					re, im := real(spectrum[k]), imag(spectrum[k])
					power[frameIdx][k] = re*re + im*im
				}
			}
		}()
	}

	for frameIdx := range numFrames {
		jobs <- frameIdx
	}
	close(jobs)

	wg.Wait()

	return &STFTResult{
		Power:          power,
		TimeFrames:     numFrames,
		FreqBins:       freqBins,
		SampleRate:     sampleRate,
		WindowSize:     windowSize,
		HopSize:        hopSize,
		FreqResolution: float64(sampleRate) / float64(windowSize),
		TimeResolution: float64(hopSize) / float64(sampleRate),
	}, nil
}

// getOptimalWorkerCount determines the number of workers based on workload
func (s *STFT) getOptimalWorkerCount(numFrames int) int {
	numCPU := runtime.NumCPU()

	// For small workloads, don't over-parallelize
	if numFrames < 100 {
		return max(1, min(numCPU/2, numFrames))
	}

	// For medium workloads, use most CPUs
	if numFrames < 1000 {
		return min(numCPU, 8)
	}

	return numCPU
}

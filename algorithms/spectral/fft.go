package spectral

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/dsp/fourier"
)

// FFT provides Fast Fourier Transform functionality
type FFT struct{}

// NewFFT creates a new FFT calculator
func NewFFT() *FFT {
	return &FFT{}
}

// Compute computes the full complex FFT of a real frame using mjibson/go-dsp.
// Used for the fixed-size STFT frames.
func (f *FFT) Compute(x []float64) []complex128 {
	if len(x) == 0 {
		return []complex128{}
	}

	return fft.FFTReal(x)
}

// RealMagnitudes returns |rfft(x)|: len(x)/2+1 magnitudes for any length,
// computed with gonum's real FFT so odd and prime lengths keep their own
// bin grid (bin k is k*sampleRate/len(x) Hz).
func (f *FFT) RealMagnitudes(x []float64) []float64 {
	if len(x) == 0 {
		return []float64{}
	}

	coeffs := fourier.NewFFT(len(x)).Coefficients(nil, x)
	mags := make([]float64, len(coeffs))
	for i, c := range coeffs {
		mags[i] = cmplx.Abs(c)
	}

	return mags
}

// Autocorrelate returns the (unnormalized) autocorrelation of x for lags
// 0..len(x)-1, computed through a zero-padded real FFT.
func (f *FFT) Autocorrelate(x []float64) []float64 {
	if len(x) == 0 {
		return []float64{}
	}
	return NewAutocorrelator(len(x)).Compute(x, nil)
}

// Autocorrelator reuses one FFT plan and its buffers for many frames of the
// same length. Not safe for concurrent use.
type Autocorrelator struct {
	n      int
	plan   *fourier.FFT
	padded []float64
	coeffs []complex128
	seq    []float64
}

// NewAutocorrelator prepares autocorrelation of frames of length n (n > 0)
func NewAutocorrelator(n int) *Autocorrelator {
	size := 2*n - 1
	return &Autocorrelator{
		n:      n,
		plan:   fourier.NewFFT(size),
		padded: make([]float64, size),
		coeffs: make([]complex128, size/2+1),
		seq:    make([]float64, size),
	}
}

// Compute writes the autocorrelation of x (len(x) must equal n) into dst,
// allocating it when dst is too short, and returns it.
func (a *Autocorrelator) Compute(x []float64, dst []float64) []float64 {
	if len(dst) < a.n {
		dst = make([]float64, a.n)
	}

	clear(a.padded)
	copy(a.padded, x)

	a.coeffs = a.plan.Coefficients(a.coeffs, a.padded)
	for i, c := range a.coeffs {
		re, im := real(c), imag(c)
		a.coeffs[i] = complex(re*re+im*im, 0)
	}

	a.seq = a.plan.Sequence(a.seq, a.coeffs)
	scale := float64(len(a.padded))
	for i := range a.n {
		dst[i] = a.seq[i] / scale
	}

	return dst[:a.n]
}

// Package meter measures microphone energy for active-speaker scoring.
//
// Analyser reproduces a Web Audio AnalyserNode frequency read: a Blackman
// windowed FFT, magnitudes normalized by the FFT size, exponential smoothing
// between reads, and a decibel range mapped onto bytes. Meter feeds PCM into
// an Analyser and publishes the mean byte level as energy in [0, 1].
package meter

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Analyser defaults, matching an AnalyserNode with fftSize 256.
const (
	DefaultFFTSize   = 256
	DefaultSmoothing = 0.8
	DefaultMinDB     = -100.0
	DefaultMaxDB     = -30.0
)

// AnalyserOption configures an Analyser.
type AnalyserOption func(*Analyser)

// WithFFTSize sets the FFT size. Sizes below 32 or not a power of two are
// ignored.
func WithFFTSize(n int) AnalyserOption {
	return func(a *Analyser) {
		if n >= 32 && n&(n-1) == 0 {
			a.size = n
		}
	}
}

// WithSmoothing sets the smoothing time constant in [0, 1).
func WithSmoothing(v float64) AnalyserOption {
	return func(a *Analyser) {
		if v >= 0 && v < 1 {
			a.smoothing = v
		}
	}
}

// WithDecibelRange sets the dB values mapped to byte 0 and byte 255.
func WithDecibelRange(minDB, maxDB float64) AnalyserOption {
	return func(a *Analyser) {
		if minDB < maxDB {
			a.minDB, a.maxDB = minDB, maxDB
		}
	}
}

// Analyser holds the smoothing state between frequency reads. It is not
// safe for concurrent use.
type Analyser struct {
	size         int
	smoothing    float64
	minDB, maxDB float64

	fft      *fourier.FFT
	window   []float64
	windowed []float64
	coeffs   []complex128
	smoothed []float64
}

// NewAnalyser creates an Analyser.
func NewAnalyser(opts ...AnalyserOption) *Analyser {
	a := &Analyser{
		size:      DefaultFFTSize,
		smoothing: DefaultSmoothing,
		minDB:     DefaultMinDB,
		maxDB:     DefaultMaxDB,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.fft = fourier.NewFFT(a.size)
	a.window = blackman(a.size)
	a.windowed = make([]float64, a.size)
	a.coeffs = make([]complex128, a.size/2+1)
	a.smoothed = make([]float64, a.size/2)
	return a
}

// FFTSize returns the number of time-domain samples per read.
func (a *Analyser) FFTSize() int { return a.size }

// FrequencyBinCount returns the number of bins a read produces.
func (a *Analyser) FrequencyBinCount() int { return a.size / 2 }

// ByteFrequencyData analyses the most recent FFTSize samples of
// timeDomain (values in [-1, 1], zero-padded at the front when shorter) and
// writes one byte per bin into dst, which is grown as needed.
func (a *Analyser) ByteFrequencyData(dst []byte, timeDomain []float64) []byte {
	if len(timeDomain) > a.size {
		timeDomain = timeDomain[len(timeDomain)-a.size:]
	}
	pad := a.size - len(timeDomain)
	for i := range a.windowed {
		var x float64
		if i >= pad {
			x = timeDomain[i-pad]
		}
		a.windowed[i] = x * a.window[i]
	}
	a.coeffs = a.fft.Coefficients(a.coeffs, a.windowed)

	bins := a.FrequencyBinCount()
	if cap(dst) < bins {
		dst = make([]byte, bins)
	}
	dst = dst[:bins]

	scale := 255 / (a.maxDB - a.minDB)
	n := float64(a.size)
	for k := range bins {
		mag := cmplx.Abs(a.coeffs[k]) / n
		s := a.smoothing*a.smoothed[k] + (1-a.smoothing)*mag
		if math.IsNaN(s) || math.IsInf(s, 0) {
			s = 0
		}
		a.smoothed[k] = s

		b := math.Floor(scale * (20*math.Log10(s) - a.minDB))
		switch {
		case math.IsNaN(b) || b < 0:
			dst[k] = 0
		case b > 255:
			dst[k] = 255
		default:
			dst[k] = byte(b)
		}
	}
	return dst
}

// Reset clears the smoothing state.
func (a *Analyser) Reset() {
	clear(a.smoothed)
}

// blackman returns the window an AnalyserNode applies (alpha = 0.16).
func blackman(n int) []float64 {
	const (
		a0 = 0.42
		a1 = 0.5
		a2 = 0.08
	)
	w := make([]float64, n)
	for i := range w {
		x := float64(i) / float64(n)
		w[i] = a0 - a1*math.Cos(2*math.Pi*x) + a2*math.Cos(4*math.Pi*x)
	}
	return w
}

// Level returns the mean of bins scaled to [0, 1].
func Level(bins []byte) float64 {
	if len(bins) == 0 {
		return 0
	}
	var sum int
	for _, b := range bins {
		sum += int(b)
	}
	return float64(sum) / float64(len(bins)) / 255
}

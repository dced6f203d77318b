// Package eq applies the per-speaker peaking filter to a PCM stream.
//
// The filter matches a Web Audio BiquadFilterNode of type "peaking": the
// RBJ cookbook peaking EQ with alpha = sin(w0)/(2Q) and A = 10^(gain/40).
package eq

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
)

// ErrInvalidFilter is returned for a non-finite center frequency or a
// non-positive Q.
var ErrInvalidFilter = errors.New("eq: invalid filter")

// Peaking is a second-order peaking EQ. The zero value is not usable; use
// NewPeaking.
type Peaking struct {
	b0, b1, b2, a1, a2 float64
	z1, z2             float64 // transposed direct form II state
}

// ClampFrequency limits hz to [0, Nyquist] the way a BiquadFilterNode
// limits its frequency parameter.
func ClampFrequency(sampleRate, hz float64) float64 {
	return math.Min(math.Max(hz, 0), sampleRate/2)
}

// NewPeaking designs a peaking filter for the given sample rate. The center
// frequency is clamped with ClampFrequency; at either end of the range the
// filter has unity gain.
func NewPeaking(sampleRate, centerHz, gainDB, q float64) (*Peaking, error) {
	if !(sampleRate > 0) || math.IsNaN(centerHz) || math.IsInf(centerHz, 0) {
		return nil, fmt.Errorf("%w: center %gHz at %gHz", ErrInvalidFilter, centerHz, sampleRate)
	}
	if !(q > 0) || math.IsInf(q, 0) {
		return nil, fmt.Errorf("%w: Q %g", ErrInvalidFilter, q)
	}
	centerHz = ClampFrequency(sampleRate, centerHz)

	a := math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * centerHz / sampleRate
	cosw, sinw := math.Cos(w0), math.Sin(w0)
	alpha := sinw / (2 * q)

	a0 := 1 + alpha/a
	return &Peaking{
		b0: (1 + alpha*a) / a0,
		b1: -2 * cosw / a0,
		b2: (1 - alpha*a) / a0,
		a1: -2 * cosw / a0,
		a2: (1 - alpha/a) / a0,
	}, nil
}

// Process filters one sample.
func (p *Peaking) Process(x float64) float64 {
	y := p.b0*x + p.z1
	p.z1 = p.b1*x - p.a1*y + p.z2
	p.z2 = p.b2*x - p.a2*y
	return y
}

// ProcessInt16 filters samples in place, clipping to the int16 range.
func (p *Peaking) ProcessInt16(samples []int16) {
	for i, s := range samples {
		y := p.Process(float64(s))
		switch {
		case y > math.MaxInt16:
			samples[i] = math.MaxInt16
		case y < math.MinInt16:
			samples[i] = math.MinInt16
		default:
			samples[i] = int16(math.Round(y))
		}
	}
}

// Reset zeroes the filter state.
func (p *Peaking) Reset() {
	p.z1, p.z2 = 0, 0
}

// ResponseDB returns the magnitude response in dB at freqHz.
func (p *Peaking) ResponseDB(sampleRate, freqHz float64) float64 {
	z := cmplx.Exp(complex(0, -2*math.Pi*freqHz/sampleRate))
	num := complex(p.b0, 0) + complex(p.b1, 0)*z + complex(p.b2, 0)*z*z
	den := 1 + complex(p.a1, 0)*z + complex(p.a2, 0)*z*z
	return 20 * math.Log10(cmplx.Abs(num/den))
}

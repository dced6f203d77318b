package pcm

import (
	"math"
	"sync/atomic"
)

// AtomicFloat64 is a float64 safe for concurrent Load and Store.
type AtomicFloat64 struct {
	bits atomic.Uint64
}

// Load returns the stored value.
func (af *AtomicFloat64) Load() float64 {
	return math.Float64frombits(af.bits.Load())
}

// Store sets the value.
func (af *AtomicFloat64) Store(val float64) {
	af.bits.Store(math.Float64bits(val))
}

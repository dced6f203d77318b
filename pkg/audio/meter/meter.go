package meter

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/haivivi/voxlock/pkg/audio/pcm"
)

var _ pcm.Writer = (*Meter)(nil)

// Meter is a pcm.Writer that tracks the energy of the audio written to it.
// Write and Energy may be called from different goroutines; Energy never
// waits for an analysis in progress.
type Meter struct {
	mu       sync.Mutex
	analyser *Analyser
	samples  []float64 // last FFTSize samples, oldest first
	bins     []byte

	energy pcm.AtomicFloat64
}

// New creates a Meter reporting zero energy until audio arrives.
func New(opts ...AnalyserOption) *Meter {
	a := NewAnalyser(opts...)
	return &Meter{
		analyser: a,
		samples:  make([]float64, a.FFTSize()),
	}
}

// Write appends the chunk's samples and refreshes the energy reading. The
// analyser's smoothing advances once per Write.
func (m *Meter) Write(c pcm.Chunk) error {
	var data []byte
	if dc, ok := c.(*pcm.DataChunk); ok {
		data = dc.Data
	} else {
		var buf bytes.Buffer
		if _, err := c.WriteTo(&buf); err != nil {
			return fmt.Errorf("meter: read chunk: %w", err)
		}
		data = buf.Bytes()
	}
	if len(data) < pcm.BytesPerSample {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.push(pcm.DecodeInt16(nil, data))
	m.bins = m.analyser.ByteFrequencyData(m.bins, m.samples)
	m.energy.Store(Level(m.bins))
	return nil
}

func (m *Meter) push(in []int16) {
	n := len(m.samples)
	if len(in) > n {
		in = in[len(in)-n:]
	}
	copy(m.samples, m.samples[len(in):])
	tail := m.samples[n-len(in):]
	for i, s := range in {
		tail[i] = pcm.Int16ToFloat(s)
	}
}

// Energy returns the latest level in [0, 1].
func (m *Meter) Energy() float64 {
	return m.energy.Load()
}

// Bins returns a copy of the latest byte frequency data.
func (m *Meter) Bins() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return bytes.Clone(m.bins)
}

// Reset clears buffered audio, smoothing and the published energy.
func (m *Meter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.samples)
	m.analyser.Reset()
	m.bins = m.bins[:0]
	m.energy.Store(0)
}

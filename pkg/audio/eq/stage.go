package eq

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/haivivi/voxlock/pkg/asd"
	"github.com/haivivi/voxlock/pkg/audio/pcm"
)

var (
	_ pcm.WriteCloser = (*Stage)(nil)
	_ asd.Effect      = (*Stage)(nil)
)

// Stage filters every chunk written to it and forwards the result to the
// next writer. Until the first Apply it passes audio through untouched.
//
// Apply may be called from the frame loop while the audio goroutine is
// writing. The swap happens under the same lock that guards filtering, so a
// chunk is processed entirely by the old filter or entirely by the new one.
type Stage struct {
	format pcm.Format
	next   pcm.Writer

	mu     sync.Mutex
	cfg    asd.FilterConfig
	filter *Peaking
	closed bool
}

// NewStage creates a bypassed stage for audio in format.
func NewStage(format pcm.Format, next pcm.Writer) *Stage {
	if next == nil {
		next = pcm.Discard
	}
	return &Stage{format: format, next: next}
}

// Apply installs a fresh filter for cfg. The zero config bypasses the
// stage. A center frequency past Nyquist is clamped, so every config the
// mapper produces is accepted; a non-finite frequency or a non-positive Q
// is rejected and the current filter stays.
func (s *Stage) Apply(cfg asd.FilterConfig) error {
	var f *Peaking
	if !cfg.IsZero() {
		var err error
		f, err = NewPeaking(float64(s.format.SampleRate()), cfg.CenterFrequencyHz, cfg.GainDB, cfg.Q)
		if err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.cfg = cfg
	s.filter = f
	s.mu.Unlock()
	return nil
}

// Config returns the active filter config. Zero means bypass.
func (s *Stage) Config() asd.FilterConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Write filters c and forwards it.
func (s *Stage) Write(c pcm.Chunk) error {
	if c.Format() != s.format {
		return fmt.Errorf("eq: chunk format %v, stage expects %v", c.Format(), s.format)
	}
	data, err := chunkBytes(c)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("eq: write to closed stage")
	}
	out := c
	if s.filter != nil {
		samples := pcm.DecodeInt16(make([]int16, 0, len(data)/2), data)
		s.filter.ProcessInt16(samples)
		out = s.format.Int16Chunk(samples)
	}
	s.mu.Unlock()

	return s.next.Write(out)
}

// Close stops the stage and closes the next writer when it is closable.
func (s *Stage) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	if wc, ok := s.next.(pcm.WriteCloser); ok {
		return wc.Close()
	}
	return nil
}

func chunkBytes(c pcm.Chunk) ([]byte, error) {
	if dc, ok := c.(*pcm.DataChunk); ok {
		return dc.Data, nil
	}
	var buf bytes.Buffer
	if _, err := c.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("eq: read chunk: %w", err)
	}
	return buf.Bytes(), nil
}

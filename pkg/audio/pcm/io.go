package pcm

import (
	"errors"
	"io"
	"time"
)

// Writer is a sink for chunks of audio data.
type Writer interface {
	Write(Chunk) error
}

var _ Writer = WriteFunc(nil)

// WriteFunc adapts a function to Writer.
type WriteFunc func(Chunk) error

// Write implements the Writer interface.
func (f WriteFunc) Write(c Chunk) error {
	return f(c)
}

// WriteCloser is a Writer that must be closed.
type WriteCloser interface {
	Writer
	io.Closer
}

// Discard is a Writer that drops every chunk.
var Discard Writer = discard{}

type discard struct{}

func (discard) Write(Chunk) error { return nil }

// ChunkWriter writes every chunk's bytes to w.
func ChunkWriter(w io.Writer) Writer {
	return WriteFunc(func(c Chunk) error {
		_, err := c.WriteTo(w)
		return err
	})
}

// Tee writes every chunk to each writer in order, stopping at the first
// error.
func Tee(ws ...Writer) Writer {
	return WriteFunc(func(c Chunk) error {
		for _, w := range ws {
			if err := w.Write(c); err != nil {
				return err
			}
		}
		return nil
	})
}

// Copy reads raw L16 audio from r and writes it to w in chunks of size d
// (20ms when d <= 0). A short final chunk is written as is. EOF ends the
// copy without error.
func Copy(w Writer, r io.Reader, format Format, d time.Duration) error {
	if d <= 0 {
		d = 20 * time.Millisecond
	}
	size := format.BytesInDuration(d)
	for {
		buf := make([]byte, size)
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			if werr := w.Write(format.DataChunk(buf[:n&^1])); werr != nil {
				return werr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return err
		}
	}
}

// ReadChunk reads exactly d worth of audio from r. At end of input it
// returns the remaining samples with io.ErrUnexpectedEOF, or io.EOF when
// nothing was left.
func ReadChunk(r io.Reader, format Format, d time.Duration) (*DataChunk, error) {
	return ReadSamples(r, format, format.SamplesInDuration(d))
}

// ReadSamples is ReadChunk for an exact sample count.
func ReadSamples(r io.Reader, format Format, n int64) (*DataChunk, error) {
	buf := make([]byte, max(n, 0)*BytesPerSample)
	m, err := io.ReadFull(r, buf)
	return format.DataChunk(buf[:m&^1]), err
}

package pcm

import (
	"fmt"
	"io"
	"time"
)

// Format is an L16 mono stream at a fixed sample rate.
type Format int

const (
	// L16Mono8K represents audio/L16; rate=8000; channels=1
	L16Mono8K Format = iota
	// L16Mono16K represents audio/L16; rate=16000; channels=1
	L16Mono16K
	// L16Mono24K represents audio/L16; rate=24000; channels=1
	L16Mono24K
	// L16Mono48K represents audio/L16; rate=48000; channels=1
	L16Mono48K
)

var sampleRates = map[Format]int{
	L16Mono8K:  8000,
	L16Mono16K: 16000,
	L16Mono24K: 24000,
	L16Mono48K: 48000,
}

// FormatForRate returns the Format with the given sample rate.
func FormatForRate(hz int) (Format, error) {
	for f, r := range sampleRates {
		if r == hz {
			return f, nil
		}
	}
	return 0, fmt.Errorf("pcm: unsupported sample rate %d", hz)
}

// SampleRate returns the sample rate in Hz.
func (f Format) SampleRate() int {
	r, ok := sampleRates[f]
	if !ok {
		panic("pcm: invalid audio type")
	}
	return r
}

// BytesPerSample is the size of one L16 mono sample.
const BytesPerSample = 2

// Samples returns the number of samples in the given number of bytes.
func (f Format) Samples(bytes int64) int64 {
	return bytes / BytesPerSample
}

// SamplesInDuration returns the number of samples in the given duration.
func (f Format) SamplesInDuration(d time.Duration) int64 {
	rate := int64(f.SampleRate())
	return int64(d/time.Second)*rate + int64(d%time.Second)*rate/int64(time.Second)
}

// BytesInDuration returns the number of bytes in the given duration.
func (f Format) BytesInDuration(d time.Duration) int64 {
	return f.SamplesInDuration(d) * BytesPerSample
}

// Duration returns the duration of the given number of bytes.
func (f Format) Duration(bytes int64) time.Duration {
	return time.Duration(f.Samples(bytes)) * time.Second / time.Duration(f.SampleRate())
}

// DataChunk wraps data as a chunk in this format.
func (f Format) DataChunk(data []byte) *DataChunk {
	return &DataChunk{Data: data, fmt: f}
}

// Int16Chunk encodes samples as a chunk in this format.
func (f Format) Int16Chunk(samples []int16) *DataChunk {
	return f.DataChunk(EncodeInt16(nil, samples))
}

func (f Format) String() string {
	return fmt.Sprintf("audio/L16; rate=%d; channels=1", f.SampleRate())
}

// Chunk is a chunk of audio data.
type Chunk interface {
	Len() int64
	Format() Format
	WriteTo(w io.Writer) (int64, error)
}

// DataChunk is a chunk of little-endian L16 samples.
type DataChunk struct {
	Data []byte
	fmt  Format
}

// Len returns the length of the audio data in bytes.
func (c *DataChunk) Len() int64 { return int64(len(c.Data)) }

// Format returns the audio format of this chunk.
func (c *DataChunk) Format() Format { return c.fmt }

// Int16 decodes the chunk's samples.
func (c *DataChunk) Int16() []int16 { return DecodeInt16(nil, c.Data) }

// Duration returns the playing time of the chunk.
func (c *DataChunk) Duration() time.Duration { return c.fmt.Duration(c.Len()) }

// WriteTo writes the audio data to the writer.
func (c *DataChunk) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(c.Data)
	return int64(n), err
}

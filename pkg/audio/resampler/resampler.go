package resampler

import (
	"errors"
	"fmt"
	"io"
	"sync"

	resampling "github.com/tphakala/go-audio-resampling"

	"github.com/haivivi/voxlock/pkg/audio/pcm"
)

// Source describes a raw s16le input stream.
type Source struct {
	SampleRate int
	Stereo     bool
}

func (s Source) channels() int {
	if s.Stereo {
		return 2
	}
	return 1
}

// frameBytes is the size of one sample across all channels.
func (s Source) frameBytes() int {
	return pcm.BytesPerSample * s.channels()
}

func (s Source) String() string {
	if s.Stereo {
		return fmt.Sprintf("s16le/%dHz/stereo", s.SampleRate)
	}
	return fmt.Sprintf("s16le/%dHz/mono", s.SampleRate)
}

// Reader reads src and yields mono L16 audio in the destination format.
// It is not safe for concurrent Reads.
type Reader struct {
	src Source
	dst pcm.Format
	r   io.Reader

	mu        sync.Mutex
	resampler resampling.Resampler
	buf       []byte
	partial   int
	out       []byte
	err       error
}

// New creates a Reader converting src to dst.
func New(r io.Reader, src Source, dst pcm.Format) (*Reader, error) {
	if src.SampleRate <= 0 {
		return nil, fmt.Errorf("resampler: invalid source rate %d", src.SampleRate)
	}
	rd := &Reader{
		src: src,
		dst: dst,
		r:   r,
		// 20ms of source audio per read.
		buf: make([]byte, max(src.SampleRate/50, 1)*src.frameBytes()),
	}
	if src.SampleRate != dst.SampleRate() {
		rs, err := resampling.New(&resampling.Config{
			InputRate:  float64(src.SampleRate),
			OutputRate: float64(dst.SampleRate()),
			Channels:   1,
			Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
		})
		if err != nil {
			return nil, fmt.Errorf("resampler: %s to %v: %w", src, dst, err)
		}
		rd.resampler = rs
	}
	return rd, nil
}

// Format returns the output format.
func (r *Reader) Format() pcm.Format { return r.dst }

// Passthrough reports whether the reader copies its source unchanged.
func (r *Reader) Passthrough() bool {
	return r.resampler == nil && !r.src.Stereo
}

// Read implements io.Reader. A source that ends inside a sample frame
// reports io.ErrUnexpectedEOF after the last whole frame.
func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for len(r.out) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		if err := r.fill(); err != nil {
			return 0, err
		}
	}
	n := copy(p, r.out)
	r.out = r.out[n:]
	return n, nil
}

// fill reads one block of source audio and converts every whole frame in
// it. A trailing partial frame stays at the start of buf.
func (r *Reader) fill() error {
	n, rerr := r.r.Read(r.buf[r.partial:])
	n += r.partial
	fb := r.src.frameBytes()
	whole := n / fb * fb

	if whole > 0 {
		mono := r.downmix(r.buf[:whole])
		if err := r.convert(mono); err != nil {
			r.err = err
			return err
		}
	}
	r.partial = copy(r.buf, r.buf[whole:n])

	if rerr != nil {
		if errors.Is(rerr, io.EOF) && r.partial > 0 {
			rerr = io.ErrUnexpectedEOF
		}
		r.err = rerr
	}
	return nil
}

func (r *Reader) downmix(b []byte) []int16 {
	samples := pcm.DecodeInt16(nil, b)
	if !r.src.Stereo {
		return samples
	}
	mono := samples[:len(samples)/2]
	for i := range mono {
		mono[i] = int16((int32(samples[2*i]) + int32(samples[2*i+1])) / 2)
	}
	return mono
}

func (r *Reader) convert(mono []int16) error {
	if r.resampler == nil {
		r.out = pcm.EncodeInt16(r.out, mono)
		return nil
	}
	in := make([]float64, len(mono))
	for i, s := range mono {
		in[i] = pcm.Int16ToFloat(s)
	}
	resampled, err := r.resampler.Process(in)
	if err != nil {
		return fmt.Errorf("resampler: %w", err)
	}
	samples := mono[:0]
	for _, v := range resampled {
		samples = append(samples, pcm.FloatToInt16(v))
	}
	r.out = pcm.EncodeInt16(r.out, samples)
	return nil
}

// Close releases the resampler. Further reads fail with io.ErrClosedPipe.
// The source is not closed.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resampler = nil
	r.out = nil
	r.err = fmt.Errorf("resampler: %w", io.ErrClosedPipe)
	return nil
}

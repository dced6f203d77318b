package landmark

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/voxlock/pkg/asd"
)

// Encoding selects the stream format.
type Encoding string

const (
	JSONLines Encoding = "jsonl"
	Msgpack   Encoding = "msgpack"
)

// EncodingForPath guesses the encoding from a file extension. Anything
// that is not .msgpack or .mpk is read as JSON lines.
func EncodingForPath(path string) Encoding {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".msgpack", ".mpk":
		return Msgpack
	default:
		return JSONLines
	}
}

// ParseEncoding validates an encoding name.
func ParseEncoding(s string) (Encoding, error) {
	switch Encoding(strings.ToLower(s)) {
	case JSONLines, "json", "ndjson":
		return JSONLines, nil
	case Msgpack, "mpk":
		return Msgpack, nil
	}
	return "", fmt.Errorf("landmark: unknown encoding %q", s)
}

const maxLine = 4 << 20

// Decoder reads wire frames from a stream and converts them to asd frames,
// deriving intervals from timestamps.
//
// A malformed frame is returned as an error wrapping ErrMalformed; the
// next call to Next continues with the following frame. io.EOF marks the
// end of the stream.
type Decoder struct {
	enc     Encoding
	lines   *bufio.Scanner
	mp      *msgpack.Decoder
	line    int
	prevTS  *float64
	nextSeq uint64
	repair  bool
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithRepair makes the decoder attempt to repair JSON lines that fail to
// parse (trailing commas, missing brackets, truncated writes) before
// reporting them as malformed. It has no effect on msgpack streams.
func WithRepair() DecoderOption {
	return func(d *Decoder) { d.repair = true }
}

// NewDecoder creates a Decoder reading enc from r.
func NewDecoder(r io.Reader, enc Encoding, opts ...DecoderOption) *Decoder {
	d := &Decoder{enc: enc}
	for _, opt := range opts {
		opt(d)
	}
	switch enc {
	case Msgpack:
		d.mp = msgpack.NewDecoder(bufio.NewReader(r))
	default:
		d.lines = bufio.NewScanner(r)
		d.lines.Buffer(make([]byte, 64<<10), maxLine)
	}
	return d
}

// NextWire returns the next wire frame. Frames without a sequence number
// are numbered consecutively.
func (d *Decoder) NextWire() (Frame, error) {
	var f Frame
	var err error
	if d.mp != nil {
		f, err = d.nextMsgpack()
	} else {
		f, err = d.nextLine()
	}
	if err != nil {
		return Frame{}, err
	}
	if f.Seq == 0 {
		f.Seq = d.nextSeq
	}
	d.nextSeq = f.Seq + 1
	if err := f.Validate(); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// Next returns the next frame converted for the engine.
func (d *Decoder) Next() (asd.Frame, error) {
	f, err := d.NextWire()
	if err != nil {
		return asd.Frame{}, err
	}
	out := f.Core(d.prevTS)
	if f.TimestampMs != nil {
		d.prevTS = f.TimestampMs
	}
	return out, nil
}

func (d *Decoder) nextLine() (Frame, error) {
	for d.lines.Scan() {
		d.line++
		line := bytes.TrimSpace(d.lines.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		f, err := d.unmarshalLine(line)
		if err != nil {
			return Frame{}, fmt.Errorf("%w: line %d: %v", ErrMalformed, d.line, err)
		}
		return f, nil
	}
	if err := d.lines.Err(); err != nil {
		return Frame{}, err
	}
	return Frame{}, io.EOF
}

func (d *Decoder) unmarshalLine(line []byte) (Frame, error) {
	var f Frame
	err := json.Unmarshal(line, &f)
	if err == nil {
		return f, nil
	}
	var syntaxErr *json.SyntaxError
	if !d.repair || !errors.As(err, &syntaxErr) {
		return Frame{}, err
	}
	fixed, rerr := jsonrepair.JSONRepair(string(line))
	if rerr != nil {
		return Frame{}, err
	}
	f = Frame{}
	if err := json.Unmarshal([]byte(fixed), &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

func (d *Decoder) nextMsgpack() (Frame, error) {
	var f Frame
	if err := d.mp.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return Frame{}, io.EOF
		}
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return f, nil
}

// Encoder writes wire frames.
type Encoder struct {
	w   io.Writer
	enc Encoding
	js  *json.Encoder
	mp  *msgpack.Encoder
}

// NewEncoder creates an Encoder writing enc to w.
func NewEncoder(w io.Writer, enc Encoding) *Encoder {
	e := &Encoder{w: w, enc: enc}
	if enc == Msgpack {
		e.mp = msgpack.NewEncoder(w)
	} else {
		e.js = json.NewEncoder(w)
	}
	return e
}

// Encode writes one frame.
func (e *Encoder) Encode(f Frame) error {
	if e.mp != nil {
		return e.mp.Encode(&f)
	}
	return e.js.Encode(&f)
}

// ReadAll decodes every frame of r, stopping at the first error other
// than a malformed frame. Malformed frames are collected and skipped.
func ReadAll(r io.Reader, enc Encoding, opts ...DecoderOption) (frames []asd.Frame, skipped []error, err error) {
	d := NewDecoder(r, enc, opts...)
	for {
		f, err := d.Next()
		switch {
		case err == nil:
			frames = append(frames, f)
		case errors.Is(err, io.EOF):
			return frames, skipped, nil
		case errors.Is(err, ErrMalformed):
			skipped = append(skipped, err)
			if enc == Msgpack {
				// A broken msgpack stream cannot be resynchronized.
				return frames, skipped, nil
			}
		default:
			return frames, skipped, err
		}
	}
}

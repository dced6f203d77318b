package resampler

import (
	"bytes"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/haivivi/voxlock/pkg/audio/pcm"
)

func sine(rate int, hz, amp float64, d float64) []int16 {
	n := int(float64(rate) * d)
	out := make([]int16, n)
	for i := range out {
		out[i] = pcm.FloatToInt16(amp * math.Sin(2*math.Pi*hz*float64(i)/float64(rate)))
	}
	return out
}

func rms(samples []int16) float64 {
	var sum float64
	for _, s := range samples {
		v := pcm.Int16ToFloat(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func TestPassthrough(t *testing.T) {
	in := pcm.EncodeInt16(nil, sine(16000, 440, 0.5, 0.1))
	r, err := New(bytes.NewReader(in), Source{SampleRate: 16000}, pcm.L16Mono16K)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !r.Passthrough() {
		t.Error("expected passthrough")
	}
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(out, in) {
		t.Errorf("output differs from input (%d vs %d bytes)", len(out), len(in))
	}
}

func TestStereoDownmix(t *testing.T) {
	in := pcm.EncodeInt16(nil, []int16{1000, 3000, -200, 200, 32767, 32767})
	r, err := New(bytes.NewReader(in), Source{SampleRate: 16000, Stereo: true}, pcm.L16Mono16K)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if r.Passthrough() {
		t.Error("stereo source is not a passthrough")
	}
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	got := pcm.DecodeInt16(nil, out)
	want := []int16{2000, 0, 32767}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestDownsample(t *testing.T) {
	in := pcm.EncodeInt16(nil, sine(48000, 440, 0.5, 1))
	r, err := New(bytes.NewReader(in), Source{SampleRate: 48000}, pcm.L16Mono16K)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	samples := pcm.DecodeInt16(nil, out)
	if n := len(samples); n < 13600 || n > 17600 {
		t.Fatalf("got %d samples, want about 16000", n)
	}

	// Skip the filter's settling time at both ends.
	mid := samples[len(samples)/4 : 3*len(samples)/4]
	want := 0.5 / math.Sqrt2
	if got := rms(mid); math.Abs(got-want) > 0.15*want {
		t.Errorf("rms = %.3f, want about %.3f", got, want)
	}
}

func TestTruncatedFrame(t *testing.T) {
	r, err := New(bytes.NewReader([]byte{1, 0, 2, 0, 3}), Source{SampleRate: 8000}, pcm.L16Mono8K)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := io.ReadAll(r)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("err = %v, want io.ErrUnexpectedEOF", err)
	}
	if !bytes.Equal(out, []byte{1, 0, 2, 0}) {
		t.Errorf("out = %v", out)
	}
}

func TestInvalidSource(t *testing.T) {
	if _, err := New(bytes.NewReader(nil), Source{}, pcm.L16Mono16K); err == nil {
		t.Error("expected error for zero rate")
	}
}

func TestReadAfterClose(t *testing.T) {
	r, err := New(bytes.NewReader(make([]byte, 64)), Source{SampleRate: 24000}, pcm.L16Mono16K)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := r.Read(make([]byte, 16)); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("err = %v, want io.ErrClosedPipe", err)
	}
}

func TestSourceString(t *testing.T) {
	if got := (Source{SampleRate: 44100, Stereo: true}).String(); got != "s16le/44100Hz/stereo" {
		t.Errorf("String() = %q", got)
	}
}

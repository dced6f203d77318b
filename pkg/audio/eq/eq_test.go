package eq

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"

	"github.com/haivivi/voxlock/pkg/asd"
	"github.com/haivivi/voxlock/pkg/audio/pcm"
)

func sine(n int, rate, freq, amp float64) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amp * math.Sin(2*math.Pi*freq*float64(i)/rate))
	}
	return out
}

func rms(s []int16) float64 {
	var sum float64
	for _, v := range s {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(s)))
}

func TestPeakingResponse(t *testing.T) {
	p, err := NewPeaking(16000, 400, 10, 1)
	if err != nil {
		t.Fatalf("NewPeaking: %v", err)
	}
	if got := p.ResponseDB(16000, 400); math.Abs(got-10) > 1e-6 {
		t.Errorf("gain at center = %.4f dB, want 10", got)
	}
	if got := p.ResponseDB(16000, 7000); math.Abs(got) > 1 {
		t.Errorf("gain far from center = %.4f dB, want ~0", got)
	}
	if got := p.ResponseDB(16000, 0.001); math.Abs(got) > 1e-3 {
		t.Errorf("gain at DC = %.4f dB, want 0", got)
	}
}

func TestPeakingInvalid(t *testing.T) {
	tests := []struct {
		name        string
		rate, hz, q float64
	}{
		{"nan-frequency", 16000, math.NaN(), 1},
		{"inf-frequency", 16000, math.Inf(1), 1},
		{"zero-q", 16000, 400, 0},
		{"negative-q", 16000, 400, -1},
		{"zero-rate", 0, 400, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewPeaking(tt.rate, tt.hz, 10, tt.q); !errors.Is(err, ErrInvalidFilter) {
				t.Errorf("err = %v, want ErrInvalidFilter", err)
			}
		})
	}
}

func TestPeakingClampsFrequency(t *testing.T) {
	tests := []struct {
		name     string
		rate, hz float64
		wantHz   float64
	}{
		{"inside", 16000, 400, 400},
		{"negative", 16000, -5, 0},
		{"zero", 16000, 0, 0},
		{"at-nyquist", 16000, 8000, 8000},
		{"above-nyquist", 8000, 4200, 4000},
		{"far-above", 8000, 20000, 4000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClampFrequency(tt.rate, tt.hz); got != tt.wantHz {
				t.Errorf("ClampFrequency = %g, want %g", got, tt.wantHz)
			}
			p, err := NewPeaking(tt.rate, tt.hz, 10, 1)
			if err != nil {
				t.Fatalf("NewPeaking: %v", err)
			}
			if tt.wantHz == tt.hz && tt.hz > 0 && tt.hz < tt.rate/2 {
				return
			}
			// At either end of the range the filter has unity gain.
			if got := p.ResponseDB(tt.rate, tt.rate/4); math.Abs(got) > 1e-9 {
				t.Errorf("gain at %gHz = %.6f dB, want 0", tt.rate/4, got)
			}
		})
	}
}

func TestPeakingBoostsCenterTone(t *testing.T) {
	p, err := NewPeaking(16000, 400, 10, 1)
	if err != nil {
		t.Fatalf("NewPeaking: %v", err)
	}
	in := sine(16000, 16000, 400, 2000)
	out := append([]int16(nil), in...)
	p.ProcessInt16(out)

	// Skip the transient.
	ratio := rms(out[4000:]) / rms(in[4000:])
	want := math.Pow(10, 10.0/20)
	if math.Abs(ratio-want) > 0.05 {
		t.Errorf("boost ratio = %.3f, want %.3f", ratio, want)
	}
}

func TestPeakingClips(t *testing.T) {
	p, err := NewPeaking(16000, 400, 20, 1)
	if err != nil {
		t.Fatalf("NewPeaking: %v", err)
	}
	s := sine(4000, 16000, 400, 30000)
	p.ProcessInt16(s)
	var hitMax bool
	for _, v := range s {
		if v == math.MaxInt16 {
			hitMax = true
		}
	}
	if !hitMax {
		t.Error("expected clipping at MaxInt16")
	}
}

func TestStageBypassUntilApplied(t *testing.T) {
	var got []int16
	st := NewStage(pcm.L16Mono16K, pcm.WriteFunc(func(c pcm.Chunk) error {
		got = c.(*pcm.DataChunk).Int16()
		return nil
	}))
	in := sine(320, 16000, 400, 1000)

	if err := st.Write(pcm.L16Mono16K.Int16Chunk(in)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	for i := range in {
		if got[i] != in[i] {
			t.Fatalf("bypass altered sample %d: %d != %d", i, got[i], in[i])
		}
	}

	cfg := asd.DefaultMapper().ConfigFor(1)
	if err := st.Apply(cfg); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if st.Config() != cfg {
		t.Errorf("Config = %v, want %v", st.Config(), cfg)
	}
	if err := st.Write(pcm.L16Mono16K.Int16Chunk(in)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if rms(got) <= rms(in) {
		t.Errorf("filtered rms %.1f not above input %.1f", rms(got), rms(in))
	}

	// Back to bypass.
	if err := st.Apply(asd.FilterConfig{}); err != nil {
		t.Fatalf("Apply(zero): %v", err)
	}
	st.Write(pcm.L16Mono16K.Int16Chunk(in))
	if got[10] != in[10] {
		t.Error("zero config did not bypass")
	}
}

func TestStageRejectsInvalidConfig(t *testing.T) {
	st := NewStage(pcm.L16Mono8K, nil)
	good := asd.FilterConfig{CenterFrequencyHz: 600, GainDB: 10, Q: 1}
	if err := st.Apply(good); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	bad := asd.FilterConfig{CenterFrequencyHz: 600, GainDB: 10, Q: 0}
	if err := st.Apply(bad); !errors.Is(err, ErrInvalidFilter) {
		t.Fatalf("err = %v, want ErrInvalidFilter", err)
	}
	if st.Config() != good {
		t.Errorf("Config = %v, want previous %v", st.Config(), good)
	}
}

func TestStageAcceptsEveryMappedSpeaker(t *testing.T) {
	m := asd.DefaultMapper()
	for _, f := range []pcm.Format{pcm.L16Mono8K, pcm.L16Mono16K} {
		st := NewStage(f, nil)
		for id := asd.CandidateID(0); id < 64; id++ {
			cfg := m.ConfigFor(id)
			if err := st.Apply(cfg); err != nil {
				t.Fatalf("%v: Apply(speaker %d, %gHz): %v", f, id, cfg.CenterFrequencyHz, err)
			}
			if st.Config() != cfg {
				t.Fatalf("%v: Config = %v, want %v", f, st.Config(), cfg)
			}
		}
	}
}

// landmarks puts a face at the frame center with a wide open mouth.
func landmarks() asd.Landmarks {
	l := asd.Landmarks{asd.RoleNoseTip: {X: 0.5, Y: 0.5}}
	for _, r := range asd.MouthRoles {
		l[r] = asd.Point{X: 0.5, Y: 0.5}
	}
	return l
}

func TestEngineSwitchAboveNyquist(t *testing.T) {
	tests := []struct {
		name string
		ids  []asd.CandidateID
	}{
		{"activate-high", []asd.CandidateID{19}},
		{"switch-to-high", []asd.CandidateID{1, 19}},
		{"switch-past-high", []asd.CandidateID{1, 19, 25}},
		{"switch-back-down", []asd.CandidateID{19, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := NewStage(pcm.L16Mono8K, nil)
			e, err := asd.NewEngine(asd.EngineConfig{
				Weights: asd.Weights{Audio: 1},
				Effect:  st,
				Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
			})
			if err != nil {
				t.Fatalf("NewEngine: %v", err)
			}
			one := 1.0
			for i, id := range tt.ids {
				res := e.Step(asd.Frame{Seq: uint64(i), Energy: &one, Faces: []asd.Face{{ID: id, Landmarks: landmarks()}}})
				if res.Event == nil || res.Event.ID != id {
					t.Fatalf("frame %d event = %v, want speaker %d", i, res.Event, id)
				}
				if len(res.Errors) != 0 {
					t.Fatalf("frame %d errors = %v", i, res.Errors)
				}
				want := e.Mapper().ConfigFor(id)
				if res.Filter == nil || *res.Filter != want {
					t.Errorf("frame %d filter = %v, want %v", i, res.Filter, want)
				}
				if st.Config() != want {
					t.Errorf("frame %d stage config = %v, want %v", i, st.Config(), want)
				}
				if e.State().ID != id {
					t.Errorf("frame %d active = %d, want %d", i, e.State().ID, id)
				}
			}
		})
	}
}

func TestStageFormatMismatch(t *testing.T) {
	st := NewStage(pcm.L16Mono16K, nil)
	if err := st.Write(pcm.L16Mono48K.DataChunk(make([]byte, 4))); err == nil {
		t.Error("expected format error")
	}
}

type closer struct {
	pcm.Writer
	closed int
}

func (c *closer) Close() error { c.closed++; return nil }

func TestStageClose(t *testing.T) {
	next := &closer{Writer: pcm.Discard}
	st := NewStage(pcm.L16Mono16K, next)
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	st.Close()
	if next.closed != 1 {
		t.Errorf("next closed %d times", next.closed)
	}
	if err := st.Write(pcm.L16Mono16K.DataChunk(make([]byte, 4))); err == nil {
		t.Error("expected error writing to closed stage")
	}
}

func TestStageConcurrentApply(t *testing.T) {
	st := NewStage(pcm.L16Mono16K, pcm.Discard)
	m := asd.DefaultMapper()
	chunk := sine(320, 16000, 400, 1000)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range 200 {
			if err := st.Apply(m.ConfigFor(asd.CandidateID(i % 4))); err != nil {
				t.Errorf("Apply: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for range 200 {
			if err := st.Write(pcm.L16Mono16K.Int16Chunk(chunk)); err != nil {
				t.Errorf("Write: %v", err)
				return
			}
		}
	}()
	wg.Wait()
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/haivivi/voxlock/cmd/voxlock/internal/config"
	"github.com/haivivi/voxlock/pkg/asd"
	"github.com/haivivi/voxlock/pkg/audio/eq"
	"github.com/haivivi/voxlock/pkg/audio/meter"
	"github.com/haivivi/voxlock/pkg/audio/pcm"
	"github.com/haivivi/voxlock/pkg/audio/resampler"
	"github.com/haivivi/voxlock/pkg/cli"
	"github.com/haivivi/voxlock/pkg/landmark"
	"github.com/haivivi/voxlock/pkg/relay"
	"github.com/haivivi/voxlock/pkg/trace"
)

var (
	replayAudio    string
	replayOut      string
	replayEncoding string
	replayRecord   bool
	replayRepair   bool
	replayRate     int
	replayStereo   bool
)

// replayEvent is one speaker change found during a replay.
type replayEvent struct {
	Frame   uint64            `json:"frame" yaml:"frame"`
	Kind    string            `json:"kind" yaml:"kind"`
	Speaker int               `json:"speaker" yaml:"speaker"`
	Score   float64           `json:"score" yaml:"score"`
	Filter  *asd.FilterConfig `json:"filter,omitempty" yaml:"filter,omitempty"`
	Status  string            `json:"status" yaml:"status"`
}

// replayResult summarizes one landmark file.
type replayResult struct {
	File       string        `json:"file" yaml:"file"`
	Session    string        `json:"session,omitempty" yaml:"session,omitempty"`
	Frames     int           `json:"frames" yaml:"frames"`
	Skipped    int           `json:"skipped" yaml:"skipped"`
	Candidates int           `json:"candidate_errors" yaml:"candidate_errors"`
	AudioMs    int64         `json:"audio_ms,omitempty" yaml:"audio_ms,omitempty"`
	Final      asd.State     `json:"final" yaml:"final"`
	Events     []replayEvent `json:"events" yaml:"events"`
}

type replayReport []replayResult

func (r replayReport) Header() []string {
	return []string{"FILE", "FRAME", "EVENT", "SPEAKER", "SCORE", "FILTER"}
}

func (r replayReport) Rows() [][]string {
	var rows [][]string
	for _, res := range r {
		name := filepath.Base(res.File)
		if len(res.Events) == 0 {
			rows = append(rows, []string{name, "-", "none", "-", "-", "-"})
			continue
		}
		for _, ev := range res.Events {
			filter := "-"
			if ev.Filter != nil {
				filter = ev.Filter.String()
			}
			rows = append(rows, []string{
				name,
				strconv.FormatUint(ev.Frame, 10),
				ev.Kind,
				strconv.Itoa(ev.Speaker + 1),
				cli.FormatScore(ev.Score),
				filter,
			})
		}
	}
	return rows
}

var replayCmd = &cobra.Command{
	Use:   "replay <landmarks-file>...",
	Short: "Run recorded landmark files through the selector",
	Long: `Replay landmark recordings (JSON lines or msgpack) frame by frame and
report every speaker change.

Frames may carry their own microphone energy. With --audio, a raw 16-bit
PCM track is read alongside the frames: each frame consumes its interval
of audio, the analyser measures the energy, and the audio is passed
through the per-speaker filter. --out writes the filtered track at
audio.sample_rate. Tracks recorded at another rate (--audio-rate) or in
stereo (--audio-stereo) are converted first.

--repair fixes JSON lines damaged by truncated writes or trailing commas
instead of skipping them.

Several files are replayed concurrently, each with its own selector.
--audio and --out need exactly one file.

Examples:
  voxlock replay session.jsonl
  voxlock replay a.jsonl b.msgpack -o table
  voxlock replay session.jsonl --audio mic.pcm --out filtered.pcm --record
  voxlock replay session.jsonl --audio mic.pcm --audio-rate 44100 --audio-stereo`,
	Args: cobra.MinimumNArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringVar(&replayAudio, "audio", "", "raw s16le mono PCM track to meter and filter")
	replayCmd.Flags().StringVar(&replayOut, "out", "", "write the filtered PCM track here (requires --audio)")
	replayCmd.Flags().StringVar(&replayEncoding, "encoding", "", "landmark encoding: jsonl or msgpack (default: from extension)")
	replayCmd.Flags().BoolVar(&replayRecord, "record", false, "record speaker changes in the trace store")
	replayCmd.Flags().BoolVar(&replayRepair, "repair", false, "repair malformed JSON lines instead of skipping them")
	replayCmd.Flags().IntVar(&replayRate, "audio-rate", 0, "sample rate of the --audio track (default: audio.sample_rate)")
	replayCmd.Flags().BoolVar(&replayStereo, "audio-stereo", false, "the --audio track is interleaved stereo")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}
	if (replayAudio != "" || replayOut != "") && len(args) != 1 {
		return errors.New("--audio and --out need exactly one landmark file")
	}
	if replayOut != "" && replayAudio == "" {
		return errors.New("--out requires --audio")
	}

	var store trace.Store
	if replayRecord {
		s, err := openTraceStore(cfg)
		if err != nil {
			return err
		}
		defer s.Close()
		store = s
	}

	results := make(replayReport, len(args))
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range args {
		g.Go(func() error {
			res, err := replayFile(ctx, cfg, path, store)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return output(cmd, results)
}

// replayFile runs one landmark file through its own engine.
func replayFile(ctx context.Context, cfg *config.Config, path string, store trace.Store) (replayResult, error) {
	logger := slog.Default().With("file", filepath.Base(path))
	res := replayResult{File: path, Events: []replayEvent{}}

	enc := landmark.EncodingForPath(path)
	if replayEncoding != "" {
		e, err := landmark.ParseEncoding(replayEncoding)
		if err != nil {
			return res, err
		}
		enc = e
	}
	f, err := os.Open(path)
	if err != nil {
		return res, err
	}
	defer f.Close()
	var opts []landmark.DecoderOption
	if replayRepair {
		opts = append(opts, landmark.WithRepair())
	}
	frames, skipped, err := landmark.ReadAll(f, enc, opts...)
	if err != nil {
		return res, err
	}
	for _, err := range skipped {
		logger.Warn("skipped frame", "err", err)
	}
	res.Frames, res.Skipped = len(frames), len(skipped)

	ecfg, err := cfg.EngineConfig(logger)
	if err != nil {
		return res, err
	}

	var track *audioTrack
	if replayAudio != "" {
		track, err = openAudioTrack(cfg, replayAudio, replayOut)
		if err != nil {
			return res, err
		}
		defer track.Close()
		ecfg.Energy = track.meter
		ecfg.Effect = track.stage
	}

	engine, err := asd.NewEngine(ecfg)
	if err != nil {
		return res, err
	}

	var rec *trace.Recorder
	if store != nil {
		rec, err = trace.NewRecorder(ctx, store, trace.SessionInfo{
			ID:      uuid.NewString(),
			Source:  path,
			Weights: engine.Weights(),
		}, logger)
		if err != nil {
			return res, err
		}
		res.Session = rec.Session().ID
	}

	nominal := cfg.NominalInterval()
	if nominal <= 0 {
		nominal = asd.DefaultInterval
	}
	for _, frame := range frames {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		var chunk *pcm.DataChunk
		if track != nil {
			d := frame.Interval
			if d <= 0 {
				d = nominal
			}
			if chunk, err = track.measure(d); err != nil {
				return res, err
			}
		}

		step := engine.Step(frame)
		res.Candidates += len(step.Scores.Errors)
		if ev := step.Event; ev != nil {
			res.Events = append(res.Events, replayEvent{
				Frame:   frame.Seq,
				Kind:    ev.Kind.String(),
				Speaker: int(ev.ID),
				Score:   ev.Score,
				Filter:  step.Filter,
				Status:  relay.StatusLine(*ev),
			})
			if rec != nil {
				if err := rec.Record(ctx, frame.Seq, *ev, step.Filter); err != nil {
					return res, err
				}
			}
		}

		if chunk != nil && chunk.Len() > 0 {
			if err := track.stage.Write(chunk); err != nil {
				return res, err
			}
		}
	}
	res.Final = engine.State()

	if track != nil {
		if err := track.flush(); err != nil {
			return res, err
		}
		res.AudioMs = track.format.Duration(track.written).Milliseconds()
	}
	return res, nil
}

// audioTrack feeds a PCM file through the meter and the filter stage.
type audioTrack struct {
	format pcm.Format
	file   *os.File
	in     *resampler.Reader
	out    *os.File
	meter  *meter.Meter
	stage  *eq.Stage
	done   bool

	// elapsed is the frame time measured so far and consumed the samples
	// read for it, so per-frame rounding never accumulates.
	elapsed  time.Duration
	consumed int64

	// written counts the filtered bytes leaving the stage.
	written int64
}

func openAudioTrack(cfg *config.Config, inPath, outPath string) (*audioTrack, error) {
	format, err := cfg.Format()
	if err != nil {
		return nil, err
	}
	src := resampler.Source{SampleRate: replayRate, Stereo: replayStereo}
	if src.SampleRate == 0 {
		src.SampleRate = format.SampleRate()
	}
	file, err := os.Open(inPath)
	if err != nil {
		return nil, err
	}
	in, err := resampler.New(file, src, format)
	if err != nil {
		file.Close()
		return nil, err
	}
	if !in.Passthrough() {
		slog.Debug("converting audio track", "from", src, "to", format)
	}
	t := &audioTrack{format: format, file: file, in: in, meter: meter.New(cfg.MeterOptions()...)}

	sink := pcm.Discard
	if outPath != "" {
		out, err := os.Create(outPath)
		if err != nil {
			in.Close()
			file.Close()
			return nil, err
		}
		t.out = out
		sink = pcm.ChunkWriter(out)
	}
	count := pcm.WriteFunc(func(c pcm.Chunk) error {
		t.written += c.Len()
		return nil
	})
	t.stage = eq.NewStage(format, pcm.Tee(sink, count))
	return t, nil
}

// measure reads the audio for one frame and updates the meter. After the
// track ends the meter reads silence.
func (t *audioTrack) measure(d time.Duration) (*pcm.DataChunk, error) {
	if t.done {
		return nil, nil
	}
	t.elapsed += d
	n := t.format.SamplesInDuration(t.elapsed) - t.consumed
	t.consumed += n
	chunk, err := pcm.ReadSamples(t.in, t.format, n)
	switch {
	case err == nil:
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		t.done = true
	default:
		return nil, err
	}
	if chunk.Len() > 0 {
		if err := t.meter.Write(chunk); err != nil {
			return nil, err
		}
	}
	if t.done {
		t.meter.Reset()
	}
	return chunk, nil
}

// flush filters whatever audio outlasted the frames.
func (t *audioTrack) flush() error {
	if t.done {
		return nil
	}
	t.done = true
	return pcm.Copy(t.stage, t.in, t.format, 0)
}

func (t *audioTrack) Close() error {
	err := t.stage.Close()
	t.in.Close()
	t.file.Close()
	if t.out != nil {
		if cerr := t.out.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

package commands

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/haivivi/voxlock/pkg/cli"
	"github.com/haivivi/voxlock/pkg/landmark"
)

var (
	convertFrom, convertTo string
	convertRepair          bool
)

var convertCmd = &cobra.Command{
	Use:   "convert <in> <out>",
	Short: "Convert landmark recordings between JSON lines and msgpack",
	Long: `Convert a landmark recording. Encodings default to the file extensions
(.msgpack/.mpk for msgpack, anything else JSON lines). Malformed JSON
lines are skipped with a warning, or repaired with --repair.

Examples:
  voxlock convert session.jsonl session.msgpack
  voxlock convert session.msgpack - --to jsonl`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, out := args[0], args[1]
		from, err := encodingFor(convertFrom, in)
		if err != nil {
			return err
		}
		to, err := encodingFor(convertTo, out)
		if err != nil {
			return err
		}

		r, err := os.Open(in)
		if err != nil {
			return err
		}
		defer r.Close()

		var w io.Writer = cmd.OutOrStdout()
		if out != "-" {
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}

		var opts []landmark.DecoderOption
		if convertRepair {
			opts = append(opts, landmark.WithRepair())
		}
		dec := landmark.NewDecoder(r, from, opts...)
		enc := landmark.NewEncoder(w, to)
		n, skipped := 0, 0
		for {
			frame, err := dec.NextWire()
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, landmark.ErrMalformed) && from == landmark.JSONLines {
				slog.Warn("skipped frame", "err", err)
				skipped++
				continue
			}
			if err != nil {
				return err
			}
			if err := enc.Encode(frame); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			n++
		}
		if skipped > 0 {
			cli.PrintWarning(cmd.ErrOrStderr(), "%d malformed frames skipped", skipped)
		}
		if out != "-" {
			cli.PrintSuccess(cmd.ErrOrStderr(), "converted %d frames (%d skipped) to %s", n, skipped, out)
		}
		return nil
	},
}

func encodingFor(flag, path string) (landmark.Encoding, error) {
	if flag != "" {
		return landmark.ParseEncoding(flag)
	}
	return landmark.EncodingForPath(path), nil
}

func init() {
	convertCmd.Flags().StringVar(&convertFrom, "from", "", "input encoding: jsonl or msgpack")
	convertCmd.Flags().StringVar(&convertTo, "to", "", "output encoding: jsonl or msgpack")
	convertCmd.Flags().BoolVar(&convertRepair, "repair", false, "repair malformed JSON lines instead of skipping them")
	rootCmd.AddCommand(convertCmd)
}

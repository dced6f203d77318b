package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/haivivi/voxlock/cmd/voxlock/internal/config"
	"github.com/haivivi/voxlock/pkg/cli"
	"github.com/haivivi/voxlock/pkg/trace"
)

var (
	traceDir    string
	traceS3     bool
	traceBucket string
	tracePrefix string
)

// testS3Client replaces the S3 client in tests.
var testS3Client trace.S3API

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Inspect, export and delete recorded sessions",
	Long: `Recorded sessions hold every speaker change of a relay connection or a
replay run with --record. They live in a badger store under trace.dir
(default: <config dir>/trace).

Examples:
  voxlock trace list -o table
  voxlock trace show 3f0c...
  voxlock trace export 3f0c... --dir ./exports
  voxlock trace export 3f0c... --s3 --bucket traces
  voxlock trace fetch 3f0c... --s3
  voxlock trace delete 3f0c...`,
}

func openTraceStore(cfg *config.Config) (*trace.Badger, error) {
	dir := cfg.TraceDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create trace dir: %w", err)
	}
	s, err := trace.OpenBadger(trace.BadgerOptions{Dir: dir})
	if err != nil {
		return nil, fmt.Errorf("open trace store %s: %w", dir, err)
	}
	return s, nil
}

// newS3Client builds a client from trace.s3 and the standard AWS_*
// credential variables.
func newS3Client(c config.S3) trace.S3API {
	if testS3Client != nil {
		return testS3Client
	}
	region := c.Region
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}
	awsCfg := aws.Config{
		Region: region,
		Credentials: aws.NewCredentialsCache(aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			id, secret := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY")
			if id == "" || secret == "" {
				return aws.Credentials{}, errors.New("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set")
			}
			return aws.Credentials{
				AccessKeyID:     id,
				SecretAccessKey: secret,
				SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
				Source:          "environment",
			}, nil
		})),
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
		}
		o.UsePathStyle = c.PathStyle
	})
}

// traceArchive resolves --dir / --s3 into an archive.
func traceArchive(cfg *config.Config) (trace.Archive, error) {
	if traceS3 {
		s3cfg := cfg.Trace.S3
		if traceBucket != "" {
			s3cfg.Bucket = traceBucket
		}
		if tracePrefix != "" {
			s3cfg.Prefix = tracePrefix
		}
		if s3cfg.Bucket == "" {
			return nil, errors.New("no bucket: set trace.s3.bucket or pass --bucket")
		}
		return trace.NewS3Archive(newS3Client(s3cfg), s3cfg.Bucket, s3cfg.Prefix), nil
	}
	dir := traceDir
	if dir == "" {
		dir = "."
	}
	return trace.NewDirArchive(dir)
}

// sessionRow is one line of `voxlock trace list`.
type sessionRow struct {
	trace.SessionInfo `yaml:",inline"`
	Events            int `json:"events" yaml:"events"`
}

type sessionList []sessionRow

func (l sessionList) Header() []string {
	return []string{"ID", "SOURCE", "STARTED", "EVENTS", "WEIGHTS"}
}

func (l sessionList) Rows() [][]string {
	rows := make([][]string, len(l))
	for i, s := range l {
		w := s.Weights
		rows[i] = []string{
			s.ID,
			s.Source,
			cli.FormatTime(s.Started),
			strconv.Itoa(s.Events),
			fmt.Sprintf("%.2f/%.2f/%.2f", w.Lip, w.Audio, w.Bias),
		}
	}
	return rows
}

// eventList renders a document's events as a table.
type eventList []trace.Record

func (l eventList) Header() []string {
	return []string{"SEQ", "FRAME", "KIND", "SPEAKER", "SCORE", "FILTER", "AT"}
}

func (l eventList) Rows() [][]string {
	rows := make([][]string, len(l))
	for i, r := range l {
		filter := "-"
		if r.Filter != nil {
			filter = r.Filter.String()
		}
		rows[i] = []string{
			strconv.FormatUint(r.Seq, 10),
			strconv.FormatUint(r.Frame, 10),
			r.Kind,
			strconv.Itoa(r.Speaker + 1),
			cli.FormatScore(r.Score),
			filter,
			cli.FormatTime(r.At),
		}
	}
	return rows
}

// showDocument prints a session: tables show its events, structured
// formats the whole document.
func showDocument(cmd *cobra.Command, doc *trace.Document) error {
	if f, _ := cli.ParseFormat(formatOutput); f == cli.FormatTable {
		return output(cmd, eventList(doc.Events))
	}
	return output(cmd, doc)
}

var traceListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List recorded sessions",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		store, err := openTraceStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		sessions, err := trace.Sessions(ctx, store)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			cli.PrintInfo(cmd.ErrOrStderr(), "no sessions recorded in %s", cfg.TraceDir())
		}
		out := make(sessionList, 0, len(sessions))
		for _, s := range sessions {
			events, err := trace.Events(ctx, store, s.ID)
			if err != nil {
				return err
			}
			out = append(out, sessionRow{SessionInfo: s, Events: len(events)})
		}
		return output(cmd, out)
	},
}

var traceShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a recorded session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		store, err := openTraceStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		doc, err := trace.Load(cmd.Context(), store, args[0])
		if err != nil {
			return err
		}
		return showDocument(cmd, doc)
	},
}

// exportResult is one line of `voxlock trace export`.
type exportResult struct {
	Session  string `json:"session" yaml:"session"`
	Location string `json:"location" yaml:"location"`
}

var traceExportCmd = &cobra.Command{
	Use:   "export <session-id>...",
	Short: "Export sessions as YAML to a directory or S3",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		archive, err := traceArchive(cfg)
		if err != nil {
			return err
		}
		store, err := openTraceStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		var out []exportResult
		for _, id := range args {
			loc, err := trace.Export(cmd.Context(), store, id, archive)
			if err != nil {
				return err
			}
			out = append(out, exportResult{Session: id, Location: loc})
		}
		return output(cmd, out)
	},
}

var traceFetchCmd = &cobra.Command{
	Use:   "fetch <session-id>",
	Short: "Read an exported session back from a directory or S3",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		archive, err := traceArchive(cfg)
		if err != nil {
			return err
		}
		doc, err := trace.Fetch(cmd.Context(), archive, args[0])
		if err != nil {
			return err
		}
		return showDocument(cmd, doc)
	},
}

var traceDeleteCmd = &cobra.Command{
	Use:     "delete <session-id>...",
	Aliases: []string{"rm"},
	Short:   "Delete recorded sessions",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		store, err := openTraceStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		for _, id := range args {
			if _, err := trace.Session(ctx, store, id); err != nil {
				return err
			}
			if err := trace.DeleteSession(ctx, store, id); err != nil {
				return err
			}
			cli.PrintSuccess(cmd.OutOrStdout(), "deleted session %s", id)
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{traceExportCmd, traceFetchCmd} {
		c.Flags().StringVar(&traceDir, "dir", "", "archive directory (default: current directory)")
		c.Flags().BoolVar(&traceS3, "s3", false, "use the S3 bucket from trace.s3")
		c.Flags().StringVar(&traceBucket, "bucket", "", "override trace.s3.bucket")
		c.Flags().StringVar(&tracePrefix, "prefix", "", "override trace.s3.prefix")
	}

	traceCmd.AddCommand(traceListCmd)
	traceCmd.AddCommand(traceShowCmd)
	traceCmd.AddCommand(traceExportCmd)
	traceCmd.AddCommand(traceFetchCmd)
	traceCmd.AddCommand(traceDeleteCmd)
	rootCmd.AddCommand(traceCmd)
}

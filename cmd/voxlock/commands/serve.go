package commands

import (
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haivivi/voxlock/cmd/voxlock/internal/build"
	"github.com/haivivi/voxlock/pkg/relay"
)

var (
	serveAddr       string
	serveRecord     bool
	serveSkipScores bool
	serveOrigins    []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the websocket relay for browser landmark feeds",
	Long: `Serve the relay. Browsers connect to /ws, post one landmark frame per
video frame (with their own microphone level), and receive per-face
scores, speaker changes and the filter to apply. GET /healthz reports
the server status.

Each connection runs its own selector. With --record (or server.record)
every speaker change is stored in the trace store.

Examples:
  voxlock serve
  voxlock serve --addr :9000 --record
  voxlock serve --origin https://app.example.com`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		logger := slog.Default()

		ecfg, err := cfg.EngineConfig(logger)
		if err != nil {
			return err
		}
		rcfg := relay.Config{
			Engine:         ecfg,
			Threshold:      cfg.Threshold(),
			SkipScores:     cfg.Server.SkipScores || serveSkipScores,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Version:        build.Version,
			Logger:         logger,
		}
		if len(serveOrigins) > 0 {
			rcfg.AllowedOrigins = serveOrigins
		}

		if cfg.Server.Record || serveRecord {
			store, err := openTraceStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			rcfg.Store = store
			logger.Info("recording sessions", "dir", cfg.TraceDir())
		}

		srv, err := relay.NewServer(rcfg)
		if err != nil {
			return err
		}

		addr := cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		err = relay.Serve(ctx, addr, srv, logger)
		if errors.Is(err, relay.ErrClosed) {
			logger.Info("shut down")
			return nil
		}
		return err
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: server.addr)")
	serveCmd.Flags().BoolVar(&serveRecord, "record", false, "record speaker changes in the trace store")
	serveCmd.Flags().BoolVar(&serveSkipScores, "skip-scores", false, "do not send per-frame scores")
	serveCmd.Flags().StringSliceVar(&serveOrigins, "origin", nil, "allowed browser origins (default: server.allowed_origins, or any)")
	rootCmd.AddCommand(serveCmd)
}

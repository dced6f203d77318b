package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/haivivi/voxlock/cmd/voxlock/internal/config"
	"github.com/haivivi/voxlock/pkg/cli"
)

var (
	// Global flags
	verbose      bool
	configPath   string
	formatOutput string
	outputFile   string
	jqQuery      string

	// Global configuration (loaded at init time)
	globalConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "voxlock",
	Short: "Active speaker detection and per-speaker audio routing",
	Long: `voxlock - pick the person who is talking and route audio for them.

Each video frame, every visible face is scored from lip motion, microphone
energy and how close it sits to the frame center. The selector turns those
scores into a stable active speaker, and each speaker maps to a peaking
filter applied to the audio stream.

Configuration is read from the OS config directory:
  macOS:   ~/Library/Application Support/voxlock/config.yaml
  Linux:   ~/.config/voxlock/config.yaml
  Windows: %AppData%/voxlock/config.yaml

Set VOXLOCK_CONFIG_DIR or pass --config to use another file.

Examples:
  # Serve the browser relay
  voxlock serve --addr :8080

  # Replay a recorded landmark feed with its microphone track
  voxlock replay session.jsonl --audio mic.pcm --out filtered.pcm

  # Inspect recorded sessions
  voxlock trace list -o table`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: <config dir>/voxlock/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&formatOutput, "output", "o", "yaml", "output format: yaml, json or table")
	rootCmd.PersistentFlags().StringVar(&outputFile, "output-file", "", "write command output to a file")
	rootCmd.PersistentFlags().StringVar(&jqQuery, "jq", "", "filter command output with a jq expression")
}

// configLoadErr stores the error from config.Load() for deferred reporting.
var configLoadErr error

func initConfig() {
	globalConfig, configLoadErr = nil, nil
	cfg, err := config.Load(configPath)
	if err != nil {
		// Commands that need config report it via GetConfig; 'version'
		// and 'config path' keep working.
		configLoadErr = err
		setupLogger(slog.LevelInfo)
		return
	}
	globalConfig = cfg

	lvl, _ := cfg.LogLevel()
	setupLogger(lvl)
}

func setupLogger(lvl slog.Level) {
	if verbose {
		lvl = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// GetConfig returns the global configuration.
func GetConfig() (*config.Config, error) {
	if globalConfig == nil {
		if configLoadErr != nil {
			return nil, fmt.Errorf("config not available: %w", configLoadErr)
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("config not available: %w", err)
		}
		globalConfig = cfg
	}
	return globalConfig, nil
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}

// output writes v in the format chosen by --output.
func output(cmd *cobra.Command, v any) error {
	format, err := cli.ParseFormat(formatOutput)
	if err != nil {
		return err
	}
	opts := cli.OutputOptions{Format: format, File: outputFile, Query: jqQuery}
	if outputFile == "" {
		opts.Writer = cmd.OutOrStdout()
	}
	return cli.Output(v, opts)
}

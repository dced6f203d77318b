// Package config provides the voxlock CLI configuration.
//
// Configuration is a single YAML file under os.UserConfigDir()/voxlock/:
//
//	~/Library/Application Support/voxlock/config.yaml   (macOS)
//	~/.config/voxlock/config.yaml                       (Linux)
//	%AppData%/voxlock/config.yaml                       (Windows)
//
// VOXLOCK_CONFIG_DIR overrides the directory. A missing file means
// defaults; every section is optional.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
)

const (
	// appDir is the directory name under os.UserConfigDir().
	appDir = "voxlock"

	// fileName is the config file inside the directory.
	fileName = "config.yaml"

	// EnvDir overrides the config directory.
	EnvDir = "VOXLOCK_CONFIG_DIR"
)

// Config is the whole config file.
type Config struct {
	// Path is where the config was loaded from (or would be saved to).
	Path string `yaml:"-"`

	Scoring   Scoring   `yaml:"scoring"`
	Selection Selection `yaml:"selection"`
	Filter    Filter    `yaml:"filter"`
	Audio     Audio     `yaml:"audio"`
	Server    Server    `yaml:"server"`
	Trace     Trace     `yaml:"trace"`
	Log       Log       `yaml:"log"`
}

// Scoring configures the activity scorer.
type Scoring struct {
	// Preset names a weight set; ignored when Weights is set.
	Preset string `yaml:"preset,omitempty"`

	Weights *Weights `yaml:"weights,omitempty"`

	// NominalFPS is assumed for frames without timing.
	NominalFPS float64 `yaml:"nominal_fps"`

	GraceFrames int `yaml:"grace_frames"`
}

// Weights are explicit fusion weights.
type Weights struct {
	Lip   float64 `yaml:"lip"`
	Audio float64 `yaml:"audio"`
	Bias  float64 `yaml:"bias"`
}

// Selection configures the speaker selector.
type Selection struct {
	Threshold float64 `yaml:"threshold"`
	MinMargin float64 `yaml:"min_margin"`
	MinDwell  int     `yaml:"min_dwell"`

	// IdleAfter releases the speaker after this many unvoiced frames;
	// 0 keeps it forever.
	IdleAfter int `yaml:"idle_after"`
}

// Filter configures the speaker → filter mapping.
type Filter struct {
	BaseHz float64 `yaml:"base_hz"`
	StepHz float64 `yaml:"step_hz"`
	// GainDB is the boost in dB. Nil means the default; 0 is a flat
	// filter.
	GainDB *float64 `yaml:"gain_db"`
	Q      float64 `yaml:"q"`
}

// Audio configures PCM input and the energy analyser.
type Audio struct {
	SampleRate int     `yaml:"sample_rate"`
	FFTSize    int     `yaml:"fft_size"`
	Smoothing  float64 `yaml:"smoothing"`
}

// Server configures the relay.
type Server struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
	SkipScores     bool     `yaml:"skip_scores,omitempty"`

	// Record enables session tracing in Trace.Dir.
	Record bool `yaml:"record,omitempty"`
}

// Trace configures where sessions are stored and exported.
type Trace struct {
	// Dir holds the badger store. Empty means <config dir>/trace.
	Dir string `yaml:"dir,omitempty"`

	S3 S3 `yaml:"s3,omitempty"`
}

// S3 is the export target for `voxlock trace export --s3`.
type S3 struct {
	Bucket    string `yaml:"bucket,omitempty"`
	Prefix    string `yaml:"prefix,omitempty"`
	Region    string `yaml:"region,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	PathStyle bool   `yaml:"path_style,omitempty"`
}

// Log configures logging.
type Log struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	gainDB := 10.0
	return &Config{
		Scoring: Scoring{
			Preset:     "center-bias",
			NominalFPS: 60,
		},
		Selection: Selection{
			Threshold: 0.3,
		},
		Filter: Filter{
			BaseHz: 200,
			StepHz: 200,
			GainDB: &gainDB,
			Q:      1,
		},
		Audio: Audio{
			SampleRate: 16000,
			FFTSize:    256,
			Smoothing:  0.8,
		},
		Server: Server{
			Addr: ":8080",
		},
		Log: Log{
			Level: "info",
		},
	}
}

// Dir returns the config directory, honoring VOXLOCK_CONFIG_DIR.
func Dir() (string, error) {
	if dir := os.Getenv(EnvDir); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine config directory: %w", err)
	}
	return filepath.Join(base, appDir), nil
}

// DefaultPath returns the path of the default config file.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}

// Load reads the config at path, or the default path when path is empty.
// Fields absent from the file keep their defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	cfg.Path = path

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Path = path
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to c.Path.
func (c *Config) Save() error {
	if c.Path == "" {
		return errors.New("config path not set")
	}
	if err := os.MkdirAll(filepath.Dir(c.Path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(c.Path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", c.Path, err)
	}
	return nil
}

// Validate checks values that have no sensible fallback.
func (c *Config) Validate() error {
	if _, err := c.Weights(); err != nil {
		return fmt.Errorf("scoring: %w", err)
	}
	if c.Scoring.NominalFPS < 0 {
		return fmt.Errorf("scoring: nominal_fps must not be negative")
	}
	if c.Scoring.GraceFrames < 0 {
		return fmt.Errorf("scoring: grace_frames must not be negative")
	}
	s := c.Selection
	if s.Threshold < 0 || s.MinMargin < 0 || s.MinDwell < 0 || s.IdleAfter < 0 {
		return fmt.Errorf("selection: values must not be negative")
	}
	if c.Filter.Q < 0 {
		return fmt.Errorf("filter: q must not be negative")
	}
	if g := c.Filter.GainDB; g != nil && (math.IsNaN(*g) || math.IsInf(*g, 0)) {
		return fmt.Errorf("filter: gain_db must be finite")
	}
	if _, err := c.Format(); err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	if _, err := c.LogLevel(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}

// TraceDir returns the badger directory.
func (c *Config) TraceDir() string {
	if c.Trace.Dir != "" {
		return c.Trace.Dir
	}
	return filepath.Join(filepath.Dir(c.Path), "trace")
}

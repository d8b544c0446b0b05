// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Backend names.
const (
	BackendBeep = "beep"
	BackendSim  = "sim"
)

// Config represents the application configuration.
type Config struct {
	Playback  PlaybackConfig  `yaml:"playback"`
	Recording RecordingConfig `yaml:"recording"`
	Playlist  PlaylistConfig  `yaml:"playlist"`
	Control   ControlConfig   `yaml:"control"`
	Log       LogConfig       `yaml:"log"`
	Hooks     HooksConfig     `yaml:"hooks"`
}

// PlaybackConfig represents pipeline and controller configuration.
type PlaybackConfig struct {
	Backend         string         `yaml:"backend" default:"beep" validate:"oneof=beep sim"`
	BackendSettings map[string]any `yaml:"backend_settings"`
	PollIntervalMs  int            `yaml:"poll_interval_ms" default:"500" validate:"gte=50,lte=10000"`
	StateTimeoutMs  int            `yaml:"state_timeout_ms" default:"500" validate:"gte=1,lte=10000"`
	SeekSettleMs    int            `yaml:"seek_settle_ms" default:"200" validate:"gte=1,lte=10000"`
	InitialVolume   float64        `yaml:"initial_volume" default:"1.0" validate:"gte=0,lte=10"`
	Debug           bool           `yaml:"debug"`
}

// RecordingConfig represents capture file configuration.
type RecordingConfig struct {
	FileTemplate string `yaml:"file_template" default:"~/.gaplay/rec%Y-%m-%d.wav" validate:"required"`
	DateConvert  *bool  `yaml:"date_convert" default:"true"`
	BitDepth     int    `yaml:"bit_depth" validate:"oneof=0 16 24 32"`
}

// PlaylistConfig represents remote playlist retrieval configuration.
type PlaylistConfig struct {
	FetchTimeoutSec int    `yaml:"fetch_timeout_sec" default:"30" validate:"gte=1,lte=600"`
	UserAgent       string `yaml:"user_agent" default:"gaplay"`
	MaxBytes        int64  `yaml:"max_bytes" default:"1048576" validate:"gte=1024"`
}

// ControlConfig represents the optional remote control surfaces.
type ControlConfig struct {
	SocketPath string `yaml:"socket_path"`
	HTTPAddr   string `yaml:"http_addr" validate:"omitempty,hostname_port"`
	Token      string `yaml:"token"`
}

// LogConfig represents diagnostic logging configuration.
type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn warning error"`
	Output string `yaml:"output" default:"stderr"`
}

// HooksConfig represents shell commands run around the session.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// Load loads configuration from a YAML file. A missing file is not an
// error: the defaults apply. Environment variables take precedence over
// file values.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, errors.Wrap(err, "failed to read config file")
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse config file")
		}
	}

	// Override with environment variables
	if err := cfg.overrideFromEnv(); err != nil {
		return nil, err
	}

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with GAPLAY_* environment variables.
func (c *Config) overrideFromEnv() error {
	if v := os.Getenv("GAPLAY_BACKEND"); v != "" {
		c.Playback.Backend = v
	}
	if v := os.Getenv("GAPLAY_DEBUG"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(err, "invalid GAPLAY_DEBUG")
		}
		c.Playback.Debug = b
	}
	if v := os.Getenv("GAPLAY_REC_TEMPLATE"); v != "" {
		c.Recording.FileTemplate = v
	}
	if v := os.Getenv("GAPLAY_SOCKET"); v != "" {
		c.Control.SocketPath = v
	}
	if v := os.Getenv("GAPLAY_HTTP_ADDR"); v != "" {
		c.Control.HTTPAddr = v
	}
	if v := os.Getenv("GAPLAY_TOKEN"); v != "" {
		c.Control.Token = v
	}
	if v := os.Getenv("GAPLAY_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	if c.Control.Token != "" && c.Control.HTTPAddr == "" {
		return errors.New("control.token requires control.http_addr")
	}
	return nil
}

// DateConversion reports whether the recording template is passed through
// strftime.
func (r RecordingConfig) DateConversion() bool {
	return r.DateConvert == nil || *r.DateConvert
}

// PollInterval returns the position poll period.
func (p PlaybackConfig) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalMs) * time.Millisecond
}

// StateTimeout returns the bound for pipeline state queries.
func (p PlaybackConfig) StateTimeout() time.Duration {
	return time.Duration(p.StateTimeoutMs) * time.Millisecond
}

// SeekSettle returns the wait for PAUSED before a resume seek.
func (p PlaybackConfig) SeekSettle() time.Duration {
	return time.Duration(p.SeekSettleMs) * time.Millisecond
}

// FetchTimeout returns the bound for remote playlist retrieval.
func (p PlaylistConfig) FetchTimeout() time.Duration {
	return time.Duration(p.FetchTimeoutSec) * time.Second
}

// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	zlog "github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/osa030/bgtunes/internal/app/tone"
)

// Config represents the application configuration.
type Config struct {
	Playback      PlaybackConfig      `yaml:"playback"`
	Fallback      FallbackConfig      `yaml:"fallback"`
	Catalog       CatalogConfig       `yaml:"catalog"`
	Output        OutputConfig        `yaml:"output"`
	Device        DeviceConfig        `yaml:"device"`
	Notifications NotificationsConfig `yaml:"notifications"`
}

// PlaybackConfig represents playback control configuration.
type PlaybackConfig struct {
	DefaultVolume int `yaml:"default_volume" default:"25" validate:"gte=0,lte=100"`
	QueueSize     int `yaml:"queue_size" default:"64" validate:"gte=1,lte=4096"`
}

// FallbackConfig represents the generated fallback tone.
type FallbackConfig struct {
	Enabled     bool    `yaml:"enabled" default:"true"`
	SampleRate  int     `yaml:"sample_rate" default:"44100" validate:"gte=8000,lte=192000"`
	DurationSec int     `yaml:"duration_sec" default:"10" validate:"gte=1,lte=600"`
	FrequencyHz float64 `yaml:"frequency_hz" default:"220" validate:"gt=0,lte=20000"`
	Amplitude   float64 `yaml:"amplitude" default:"0.05" validate:"gte=0,lte=1"`
}

// CatalogConfig represents track catalog configuration.
type CatalogConfig struct {
	ResourcesDir string `yaml:"resources_dir" default:"Resources" validate:"required"`
}

// OutputConfig selects the audio output backend. Settings are decoded by
// the backend itself.
type OutputConfig struct {
	Type     string         `yaml:"type" default:"speaker" validate:"oneof=speaker null"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// DeviceConfig selects the device monitor backend.
type DeviceConfig struct {
	Type     string         `yaml:"type" default:"malgo" validate:"oneof=malgo none"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// NotificationsConfig represents notification fan-out configuration.
type NotificationsConfig struct {
	Desktop   bool `yaml:"desktop"`
	TimeoutMs int  `yaml:"timeout_ms" default:"500" validate:"gte=1,lte=10000"`
}

// Load loads configuration from a YAML file. An empty path yields the
// defaults. Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	var cfg Config

	// Defaults first; file values override them
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read config file")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse config file")
		}
	}

	// Override with environment variables
	if err := cfg.overrideFromEnv(); err != nil {
		return nil, err
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() error {
	if v := os.Getenv("BGTUNES_RESOURCES_DIR"); v != "" {
		c.Catalog.ResourcesDir = v
	}
	if v := os.Getenv("BGTUNES_OUTPUT"); v != "" {
		c.Output.Type = v
	}
	if v := os.Getenv("BGTUNES_VOLUME"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "invalid BGTUNES_VOLUME %q", v)
		}
		c.Playback.DefaultVolume = n
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	zlog.Debug().Msgf("config: output=%q device=%q resources=%s", c.Output.Type, c.Device.Type, c.Catalog.ResourcesDir)
	return nil
}

// ToneParams returns the fallback waveform parameters.
func (c *Config) ToneParams() tone.Params {
	return tone.Params{
		SampleRate: c.Fallback.SampleRate,
		Duration:   time.Duration(c.Fallback.DurationSec) * time.Second,
		Frequency:  c.Fallback.FrequencyHz,
		Amplitude:  c.Fallback.Amplitude,
	}
}

// NotificationTimeout returns the per-subscriber delivery timeout.
func (c *Config) NotificationTimeout() time.Duration {
	return time.Duration(c.Notifications.TimeoutMs) * time.Millisecond
}

package audiodevice

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"
)

// Settings represents the device monitor settings.
type Settings struct {
	PollIntervalMs int `yaml:"poll_interval_ms" mapstructure:"poll_interval_ms" default:"1000" validate:"gte=100,lte=60000"`
}

// PollInterval returns the enumeration period.
func (s Settings) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalMs) * time.Millisecond
}

// ParseSettings decodes backend settings.
func ParseSettings(settings map[string]any) (Settings, error) {
	var s Settings
	if err := mapstructure.Decode(settings, &s); err != nil {
		return Settings{}, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&s); err != nil {
		return Settings{}, errors.Wrap(err, "failed to set defaults")
	}
	zlog.Debug().Msgf("device monitor config: %+v", s)
	if err := validator.New().Struct(s); err != nil {
		return Settings{}, errors.Wrap(err, "validation failed")
	}
	return s, nil
}

package output

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/bgtunes/internal/app/playback"
	"github.com/osa030/bgtunes/internal/infra/config"
)

// Output is a playback sink that holds device resources until closed.
type Output interface {
	playback.Sink
	Close() error
}

// New creates the sink selected by cfg.
func New(cfg config.OutputConfig) (Output, error) {
	zlog.Debug().Msgf("creating output: type=%s settings=%+v", cfg.Type, cfg.Settings)

	var (
		out Output
		err error
	)
	switch cfg.Type {
	case "speaker", "":
		out, err = NewSpeaker(cfg.Settings)
	case "null":
		out, err = NewNull(cfg.Settings)
	default:
		return nil, errors.Newf("unsupported output type: %s", cfg.Type)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create output (type %s)", cfg.Type)
	}

	zlog.Info().Msgf("registered output: type=%s", cfg.Type)
	return out, nil
}

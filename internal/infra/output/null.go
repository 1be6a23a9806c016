package output

import (
	"io"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/bgtunes/internal/app/playback"
	"github.com/osa030/bgtunes/internal/domain/track"
)

// NullConfig represents the null sink settings.
type NullConfig struct {
	// Speed scales simulated playback; 2 finishes a track in half its length.
	Speed float64 `yaml:"speed" mapstructure:"speed" default:"1" validate:"gt=0,lte=1000"`
}

// Null decodes tracks and simulates their playback time without an
// output device. Useful on headless hosts.
type Null struct {
	config NullConfig

	mu     sync.Mutex
	timer  *time.Timer
	token  uint64
	volume float64
}

// NewNull creates a null sink from backend settings.
func NewNull(settings map[string]any) (*Null, error) {
	var config NullConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}
	return &Null{config: config}, nil
}

// Load decodes rc.
func (n *Null) Load(t track.Track, rc io.ReadCloser) (playback.Handle, error) {
	h, err := load(t, rc)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Start schedules completion after the scaled track length. Tracks of
// unknown length never complete.
func (n *Null) Start(ph playback.Handle, volume float64, done func(error)) error {
	h, ok := ph.(*handle)
	if !ok {
		return errors.New("null: handle was not loaded by this sink")
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopLocked()
	n.volume = volume
	token := n.token

	d := time.Duration(float64(h.Duration()) / n.config.Speed)
	if d <= 0 {
		return nil
	}
	n.timer = time.AfterFunc(d, func() {
		n.mu.Lock()
		if token != n.token {
			n.mu.Unlock()
			return
		}
		n.timer = nil
		n.mu.Unlock()
		done(nil)
	})
	zlog.Debug().Msgf("null: simulating %s for %v", h.track.DisplayName, d)
	return nil
}

// Pause drops the pending completion.
func (n *Null) Pause() {
	n.Stop()
}

// Stop drops the pending completion.
func (n *Null) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopLocked()
}

func (n *Null) stopLocked() {
	n.token++
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
}

// Reset drops the pending completion; there is no device to reopen.
func (n *Null) Reset() {
	n.Stop()
}

// SetVolume records volume.
func (n *Null) SetVolume(volume float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.volume = volume
}

// Volume returns the last applied volume.
func (n *Null) Volume() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.volume
}

// Close stops the sink.
func (n *Null) Close() error {
	n.Stop()
	return nil
}

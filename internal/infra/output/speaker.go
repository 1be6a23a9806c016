package output

import (
	"io"
	"math"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/bgtunes/internal/app/playback"
	"github.com/osa030/bgtunes/internal/domain/track"
)

const (
	resampleQuality = 4
	silentVolume    = -10.0
)

// SpeakerConfig represents the speaker sink settings.
type SpeakerConfig struct {
	SampleRate int `yaml:"sample_rate" mapstructure:"sample_rate" default:"44100" validate:"gte=8000,lte=192000"`
	BufferMs   int `yaml:"buffer_ms" mapstructure:"buffer_ms" default:"100" validate:"gte=10,lte=2000"`
}

// Speaker plays tracks on the default output device through the beep
// speaker. The device is opened on the first Start and reopened on the
// Start after a Reset.
type Speaker struct {
	config SpeakerConfig
	rate   beep.SampleRate

	openDevice  func(rate beep.SampleRate, bufferSize int) error
	closeDevice func()
	clearDevice func()

	mu          sync.Mutex
	initialized bool
	stale       bool // Device lost or replaced; reopen on next Start
	ctrl        *beep.Ctrl
	volume      *effects.Volume
	token       uint64 // Identifies the running transport
}

// NewSpeaker creates a speaker sink from backend settings.
func NewSpeaker(settings map[string]any) (*Speaker, error) {
	var config SpeakerConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	zlog.Debug().Msgf("speaker output config: %+v", config)
	if err := validator.New().Struct(config); err != nil {
		zlog.Error().Msgf("speaker output validation failed: %v", err)
		return nil, errors.Wrap(err, "validation failed")
	}
	return &Speaker{
		config:      config,
		rate:        beep.SampleRate(config.SampleRate),
		openDevice:  speaker.Init,
		closeDevice: speaker.Close,
		clearDevice: speaker.Clear,
	}, nil
}

// open initializes the speaker, closing a stale device first.
func (s *Speaker) open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized && !s.stale {
		return nil
	}
	if s.initialized {
		s.closeDevice()
		s.initialized = false
		zlog.Debug().Msg("speaker: closed stale output device")
	}

	buffer := s.rate.N(time.Duration(s.config.BufferMs) * time.Millisecond)
	if err := s.openDevice(s.rate, buffer); err != nil {
		return errors.Mark(errors.Wrap(err, "failed to initialize speaker"), playback.ErrTransportFailure)
	}
	s.initialized = true
	s.stale = false
	zlog.Debug().Msgf("speaker initialized: sample_rate=%d buffer=%d", s.rate, buffer)
	return nil
}

// Load decodes rc.
func (s *Speaker) Load(t track.Track, rc io.ReadCloser) (playback.Handle, error) {
	h, err := load(t, rc)
	if err != nil {
		return nil, err
	}
	zlog.Debug().Msgf("speaker: decoded %s: rate=%d channels=%d duration=%v", t.Source.Ref, h.format.SampleRate, h.format.NumChannels, h.Duration())
	return h, nil
}

// Start plays h from the beginning, replacing the running transport.
func (s *Speaker) Start(ph playback.Handle, volume float64, done func(error)) error {
	h, ok := ph.(*handle)
	if !ok {
		return errors.New("speaker: handle was not loaded by this sink")
	}
	if err := s.open(); err != nil {
		return err
	}

	s.Stop()
	if err := h.streamer.Seek(0); err != nil {
		return errors.Wrap(err, "failed to rewind track")
	}

	var streamer beep.Streamer = h.streamer
	if h.format.SampleRate != s.rate {
		streamer = beep.Resample(resampleQuality, h.format.SampleRate, s.rate, h.streamer)
	}
	ctrl := &beep.Ctrl{Streamer: streamer}
	vol := &effects.Volume{Streamer: ctrl, Base: 2}
	applyLevel(vol, volume)

	s.mu.Lock()
	s.token++
	token := s.token
	s.ctrl = ctrl
	s.volume = vol
	s.mu.Unlock()

	speaker.Play(beep.Seq(vol, beep.Callback(func() {
		// Runs with the speaker locked; hand off before calling back.
		err := h.streamer.Err()
		go s.finished(token, err, done)
	})))
	return nil
}

func (s *Speaker) finished(token uint64, err error, done func(error)) {
	s.mu.Lock()
	if token != s.token {
		s.mu.Unlock()
		return
	}
	s.ctrl = nil
	s.volume = nil
	s.mu.Unlock()

	if err != nil {
		err = errors.Mark(errors.Wrap(err, "stream failed"), playback.ErrTransportFailure)
	}
	done(err)
}

// Pause halts output and keeps the transport.
func (s *Speaker) Pause() {
	s.mu.Lock()
	ctrl := s.ctrl
	s.mu.Unlock()
	if ctrl == nil {
		return
	}
	speaker.Lock()
	ctrl.Paused = true
	speaker.Unlock()
}

// Stop halts output and releases the transport.
func (s *Speaker) Stop() {
	s.mu.Lock()
	s.token++
	s.ctrl = nil
	s.volume = nil
	initialized := s.initialized
	s.mu.Unlock()
	if initialized {
		s.clearDevice()
	}
}

// Reset stops output and marks the device stale. The next Start closes
// the speaker and opens it again on the current default endpoint.
func (s *Speaker) Reset() {
	s.Stop()
	s.mu.Lock()
	if s.initialized {
		s.stale = true
	}
	s.mu.Unlock()
	zlog.Debug().Msg("speaker: output device marked for reopen")
}

// SetVolume applies volume to the running transport.
func (s *Speaker) SetVolume(volume float64) {
	s.mu.Lock()
	vol := s.volume
	s.mu.Unlock()
	if vol == nil {
		return
	}
	speaker.Lock()
	applyLevel(vol, volume)
	speaker.Unlock()
}

// Close stops output and closes the device.
func (s *Speaker) Close() error {
	s.Stop()
	s.mu.Lock()
	initialized := s.initialized
	s.initialized = false
	s.stale = false
	s.mu.Unlock()
	if initialized {
		s.closeDevice()
	}
	return nil
}

// applyLevel maps a 0.0-1.0 level onto beep's base-2 volume scale:
// 1.0 -> 0, 0.5 -> -1, 0.25 -> -2, 0 -> silent.
func applyLevel(vol *effects.Volume, level float64) {
	switch {
	case level <= 0:
		vol.Volume = silentVolume
		vol.Silent = true
	case level >= 1:
		vol.Volume = 0
		vol.Silent = false
	default:
		vol.Volume = math.Log2(level)
		vol.Silent = false
	}
}

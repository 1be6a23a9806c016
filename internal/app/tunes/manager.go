// Package tunes wires the catalog, playback controller, output, device
// monitor and notification fan-out into one runnable player.
package tunes

import (
	"io/fs"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/bgtunes/assets"
	"github.com/osa030/bgtunes/internal/app/catalog"
	"github.com/osa030/bgtunes/internal/app/device"
	"github.com/osa030/bgtunes/internal/app/notification"
	"github.com/osa030/bgtunes/internal/app/playback"
	"github.com/osa030/bgtunes/internal/infra/audiodevice"
	"github.com/osa030/bgtunes/internal/infra/config"
	"github.com/osa030/bgtunes/internal/infra/desktop"
	"github.com/osa030/bgtunes/internal/infra/output"
)

// Devices enumerates output devices and holds OS resources until closed.
type Devices interface {
	device.Enumerator
	Close() error
}

// Options overrides backends. Zero values select the builtin tracks and
// the backends named by the configuration.
type Options struct {
	Builtin     fs.FS
	BuiltinRoot string
	Output      output.Output
	Devices     Devices
	Notifier    desktop.Notifier
}

// Manager owns the player's components and their lifecycle.
type Manager struct {
	cfg        *config.Config
	catalog    *catalog.Catalog
	controller *playback.Controller
	output     output.Output
	devices    Devices        // nil when device enumeration is unavailable
	monitor    device.Monitor // nil without devices
	notifier   *notification.Manager
	desktop    *desktop.Stream // nil unless desktop notices are enabled

	startOnce sync.Once
	started   bool
	pumpDone  chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

// NewManager creates the player. Backend failures degrade: a missing
// output device falls back to the null output and a missing device
// enumerator disables hot-plug handling.
func NewManager(cfg *config.Config, opts Options) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}

	m := &Manager{
		cfg:      cfg,
		notifier: notification.NewManager(cfg.NotificationTimeout()),
		pumpDone: make(chan struct{}),
		done:     make(chan struct{}),
	}

	if opts.Builtin == nil {
		opts.Builtin = assets.Tracks
		opts.BuiltinRoot = assets.TracksRoot
	}
	m.catalog = catalog.New(catalog.Config{
		Builtin:      opts.Builtin,
		BuiltinRoot:  opts.BuiltinRoot,
		ResourcesDir: cfg.Catalog.ResourcesDir,
	})

	m.output = opts.Output
	if m.output == nil {
		out, err := output.New(cfg.Output)
		if err != nil {
			zlog.Error().Err(err).Msg("tunes: output unavailable, using null output")
			if out, err = output.NewNull(nil); err != nil {
				return nil, errors.Wrap(err, "failed to create null output")
			}
		}
		m.output = out
	}

	m.devices = opts.Devices
	if m.devices == nil && cfg.Device.Type == "malgo" {
		if enum, err := audiodevice.New(); err != nil {
			zlog.Warn().Err(err).Msg("tunes: device enumeration unavailable")
		} else {
			m.devices = enum
		}
	}

	var enum device.Enumerator
	if m.devices != nil {
		enum = m.devices
		settings, err := audiodevice.ParseSettings(cfg.Device.Settings)
		if err != nil {
			zlog.Warn().Err(err).Msg("tunes: invalid device settings, using defaults")
			settings, _ = audiodevice.ParseSettings(nil)
		}
		m.monitor = device.NewPoller(m.devices, settings.PollInterval())
	}

	m.controller = playback.NewController(playback.Config{
		DefaultVolume: cfg.Playback.DefaultVolume,
		QueueSize:     cfg.Playback.QueueSize,
		Fallback:      cfg.Fallback.Enabled,
		Tone:          cfg.ToneParams(),
	}, m.catalog, m.output, enum)

	if cfg.Notifications.Desktop {
		n := opts.Notifier
		if n == nil {
			var err error
			if n, err = desktop.New(); err != nil {
				zlog.Warn().Err(err).Msg("tunes: desktop notifications unavailable")
			}
		}
		if n != nil {
			m.desktop = desktop.NewStream(n)
			m.notifier.Subscribe(m.desktop)
		}
	}

	return m, nil
}

// Controller returns the playback controller.
func (m *Manager) Controller() *playback.Controller {
	return m.controller
}

// Devices returns the output device enumerator, or nil when enumeration
// is unavailable.
func (m *Manager) Devices() device.Enumerator {
	if m.devices == nil {
		return nil
	}
	return m.devices
}

// Subscribe registers a UI sink for status and notice events.
func (m *Manager) Subscribe(stream notification.Stream) string {
	return m.notifier.Subscribe(stream)
}

// Unsubscribe removes a UI sink.
func (m *Manager) Unsubscribe(id string) {
	m.notifier.Unsubscribe(id)
}

// Start checks devices, loads the builtin catalog and begins monitoring
// device changes. Subscribe UI sinks before calling Start to receive the
// startup notices.
func (m *Manager) Start() {
	m.startOnce.Do(func() {
		m.started = true
		go func() {
			defer close(m.pumpDone)
			m.notifier.Run(m.controller.Events())
		}()

		if err := m.controller.CheckDevices(); err != nil {
			zlog.Warn().Err(err).Msg("tunes: device check failed")
		}

		if err := m.controller.LoadDefault(); err != nil {
			zlog.Warn().Err(err).Msg("tunes: default tracks not fully loaded")
		}

		if m.monitor != nil {
			if err := m.monitor.Start(m.controller.HandleDeviceEvent); err != nil {
				zlog.Warn().Err(err).Msg("tunes: device monitoring disabled")
			}
		}
		zlog.Info().Msgf("tunes: started: output=%s device=%s", m.cfg.Output.Type, m.cfg.Device.Type)
	})
}

// Done returns a channel closed once Close has finished.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Close tears the player down in order: device monitoring, playback,
// event fan-out, output, device enumeration, notifications. It runs once;
// concurrent callers wait for the first to finish.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		defer close(m.done)

		// Waits for a concurrent Start and disables later ones.
		m.startOnce.Do(func() {})

		if m.monitor != nil {
			if err := m.monitor.Close(); err != nil {
				zlog.Warn().Err(err).Msg("tunes: failed to stop device monitor")
			}
		}

		m.controller.Close()

		if m.started {
			// The pump ends when the controller closes its event channel.
			<-m.pumpDone
		}

		if err := m.output.Close(); err != nil {
			zlog.Warn().Err(err).Msg("tunes: failed to close output")
		}
		if m.devices != nil {
			if err := m.devices.Close(); err != nil {
				zlog.Warn().Err(err).Msg("tunes: failed to close device enumerator")
			}
		}
		if m.desktop != nil {
			if err := m.desktop.Close(); err != nil {
				zlog.Debug().Msgf("tunes: failed to dismiss desktop notification: %v", err)
			}
		}
		m.notifier.Close()
		zlog.Info().Msg("tunes: closed")
	})
}

// Package audiodevice enumerates OS audio output endpoints through miniaudio.
package audiodevice

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gen2brain/malgo"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/bgtunes/internal/app/device"
)

// Enumerator lists playback devices using a long-lived miniaudio context.
type Enumerator struct {
	mu  sync.Mutex
	ctx *malgo.AllocatedContext
}

// Verify Enumerator implements device.Enumerator at compile time.
var _ device.Enumerator = (*Enumerator)(nil)

// New initialises a miniaudio context with the platform's default backends.
func New() (*Enumerator, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		zlog.Debug().Msgf("audiodevice: miniaudio: %s", message)
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize audio context")
	}
	return &Enumerator{ctx: ctx}, nil
}

// Outputs returns the playback devices currently present.
func (e *Enumerator) Outputs() ([]device.Info, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ctx == nil {
		return nil, errors.New("audio context closed")
	}

	infos, err := e.ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list playback devices")
	}

	result := make([]device.Info, 0, len(infos))
	for i := range infos {
		result = append(result, device.Info{
			ID:        infos[i].ID.String(),
			Name:      infos[i].Name(),
			IsDefault: infos[i].IsDefault != 0,
		})
	}
	return result, nil
}

// Close releases the miniaudio context.
func (e *Enumerator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ctx == nil {
		return nil
	}
	err := e.ctx.Uninit()
	e.ctx.Free()
	e.ctx = nil
	return errors.Wrap(err, "failed to release audio context")
}

package playback

import (
	"io"

	"github.com/osa030/bgtunes/internal/domain/track"
)

// Opener resolves a track to its encoded audio.
type Opener interface {
	Open(t track.Track) (io.ReadCloser, error)
}

// Handle is a decoded track ready to be played. Closing it releases the
// decoder and its source.
type Handle interface {
	Close() error
}

// Sink decodes tracks and drives the output device.
type Sink interface {
	// Load decodes rc. On success the handle owns rc; on error the caller
	// still does.
	Load(t track.Track, rc io.ReadCloser) (Handle, error)
	// Start plays h from position zero at volume (0.0-1.0), replacing
	// whatever was playing. done is called once, from any goroutine, when
	// streaming ends on its own; err is non-nil for device or decode
	// failures. done is not called after Stop.
	Start(h Handle, volume float64, done func(err error)) error
	// Pause halts output and keeps the transport.
	Pause()
	// Stop halts output and releases the transport. Safe in any state.
	Stop()
	// SetVolume applies volume (0.0-1.0) to the running transport.
	SetVolume(volume float64)
	// Reset stops output and drops the open device so the next Start
	// binds to whatever endpoint is current then.
	Reset()
}

// Package output provides the audio transports behind the playback
// controller: a beep speaker sink and a silent null sink.
package output

import (
	"io"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"

	"github.com/osa030/bgtunes/internal/app/catalog"
	"github.com/osa030/bgtunes/internal/domain/track"
)

const (
	extMP3  = ".mp3"
	extWAV  = ".wav"
	extFLAC = ".flac"
	extOGG  = ".ogg"
)

// Decode picks a decoder by the track's file extension.
func Decode(t track.Track, rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
		err      error
	)
	switch ext := t.Source.Ext(); ext {
	case extMP3:
		streamer, format, err = mp3.Decode(rc)
	case extWAV:
		streamer, format, err = wav.Decode(rc)
	case extFLAC:
		streamer, format, err = flac.Decode(rc)
	case extOGG:
		streamer, format, err = vorbis.Decode(rc)
	default:
		return nil, beep.Format{}, errors.Mark(errors.Newf("unsupported format: %s", ext), catalog.ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, beep.Format{}, errors.Wrapf(err, "failed to decode %s", t.Source.Ref)
	}
	return streamer, format, nil
}

// handle is a decoded track. It owns the encoded source.
type handle struct {
	track    track.Track
	streamer beep.StreamSeekCloser
	format   beep.Format
	rc       io.ReadCloser
}

func load(t track.Track, rc io.ReadCloser) (*handle, error) {
	streamer, format, err := Decode(t, rc)
	if err != nil {
		return nil, err
	}
	return &handle{track: t, streamer: streamer, format: format, rc: rc}, nil
}

// Close releases the decoder and its source.
func (h *handle) Close() error {
	err := h.streamer.Close()
	// Some decoders close the source themselves.
	_ = h.rc.Close()
	return err
}

// Duration returns the track length, or zero when unknown.
func (h *handle) Duration() time.Duration {
	n := h.streamer.Len()
	if n <= 0 {
		return 0
	}
	return h.format.SampleRate.D(n)
}

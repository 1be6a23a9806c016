package playback

import (
	"github.com/cockroachdb/errors"

	"github.com/osa030/bgtunes/internal/app/catalog"
)

// Errors
var (
	ErrNoTrackLoaded     = errors.New("no track loaded")
	ErrDeviceUnavailable = errors.New("no audio output device available")
	ErrDecodeFailure     = errors.New("failed to decode track")
	ErrTransportFailure  = errors.New("audio transport failure")
	ErrInvalidSelection  = errors.New("track cannot be selected")
	ErrClosed            = errors.New("controller closed")

	ErrDuplicateResourceName = catalog.ErrDuplicateResourceName
	ErrCatalogEmpty          = catalog.ErrCatalogEmpty
)

// Package assets holds the builtin track set compiled into the binary.
package assets

import "embed"

// TracksRoot is the directory of builtin tracks inside Tracks.
const TracksRoot = "tracks"

// Tracks contains the builtin tracks. Drop .mp3, .wav, .flac or .ogg files
// into assets/tracks before building to ship them with the binary.
//
//go:embed tracks
var Tracks embed.FS

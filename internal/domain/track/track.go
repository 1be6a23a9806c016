// Package track provides the Track domain entity.
package track

import (
	"path"
	"strings"
	"unicode/utf8"
)

// MaxNameLength is the longest display name shown for a track.
const MaxNameLength = 50

const ellipsis = "..."

// Origin tells where a track came from.
type Origin int

const (
	OriginBuiltin   Origin = iota // Embedded in the binary
	OriginUserAdded               // Imported by the user during this session
)

// String returns the string representation of the origin.
func (o Origin) String() string {
	switch o {
	case OriginBuiltin:
		return "builtin"
	case OriginUserAdded:
		return "user_added"
	default:
		return "unknown"
	}
}

// SourceKind identifies how a track's audio is located.
type SourceKind int

const (
	SourceNone     SourceKind = iota // Placeholder, nothing to open
	SourceEmbedded                   // Path inside the embedded resource set
	SourceFile                       // Filesystem path
)

// Source is an opaque locator for a track's audio.
type Source struct {
	Kind SourceKind
	Ref  string
}

// Ext returns the lower-cased file extension of the source, including the dot.
func (s Source) Ext() string {
	return strings.ToLower(path.Ext(strings.ReplaceAll(s.Ref, "\\", "/")))
}

// Placeholder marks catalog entries that stand in for missing tracks.
type Placeholder int

const (
	NotPlaceholder   Placeholder = iota
	PlaceholderEmpty             // No tracks were found
	PlaceholderError             // Tracks could not be loaded
)

// Placeholder display names.
const (
	EmptyName = "No songs found"
	ErrorName = "Error loading songs"
	ToneName  = "Generated tone"
)

// Track is one selectable audio source. Tracks are immutable once created.
type Track struct {
	DisplayName string
	Source      Source
	Origin      Origin
	Placeholder Placeholder
}

// New creates a track, deriving a display name from ref when name is empty.
func New(name string, src Source, origin Origin) Track {
	if name == "" {
		name = NameFromRef(src.Ref)
	}
	return Track{
		DisplayName: TruncateName(name),
		Source:      src,
		Origin:      origin,
	}
}

// NewPlaceholder creates a disabled placeholder track.
func NewPlaceholder(kind Placeholder) Track {
	name := EmptyName
	if kind == PlaceholderError {
		name = ErrorName
	}
	return Track{
		DisplayName: name,
		Source:      Source{Kind: SourceNone},
		Origin:      OriginBuiltin,
		Placeholder: kind,
	}
}

// IsPlaceholder reports whether the track stands in for a missing track.
func (t Track) IsPlaceholder() bool {
	return t.Placeholder != NotPlaceholder || t.Source.Kind == SourceNone
}

// NameFromRef derives a display name from a resource path or file name.
// Directory components, the extension and any dotted namespace prefix are
// removed ("Assets.Tracks.calm.mp3" becomes "calm").
func NameFromRef(ref string) string {
	base := path.Base(strings.ReplaceAll(ref, "\\", "/"))
	base = strings.TrimSuffix(base, path.Ext(base))
	if i := strings.LastIndex(base, "."); i >= 0 {
		base = base[i+1:]
	}
	return base
}

// TruncateName shortens names longer than MaxNameLength, ending them with an ellipsis.
func TruncateName(name string) string {
	if utf8.RuneCountInString(name) <= MaxNameLength {
		return name
	}
	runes := []rune(name)
	return string(runes[:MaxNameLength-len(ellipsis)]) + ellipsis
}

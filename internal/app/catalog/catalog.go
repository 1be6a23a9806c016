// Package catalog provides the ordered track catalog and its loader.
package catalog

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/bgtunes/internal/domain/track"
)

// NoTrack is the current index when no selectable entry exists.
const NoTrack = -1

// Errors
var (
	ErrCatalogEmpty          = errors.New("catalog is empty")
	ErrDuplicateResourceName = errors.New("resource name already exists")
	ErrUnsupportedFormat     = errors.New("unsupported audio format")
	ErrNoSource              = errors.New("track has no audio source")
	ErrInvalidIndex          = errors.New("invalid catalog index")
)

// SupportedExtensions lists the audio file extensions the player decodes.
var SupportedExtensions = []string{".mp3", ".wav", ".flac", ".ogg"}

// IsSupported reports whether name has a decodable audio extension.
func IsSupported(name string) bool {
	return slices.Contains(SupportedExtensions, track.Source{Ref: name}.Ext())
}

// Entry is one catalog slot.
type Entry struct {
	Track  track.Track
	Failed bool // Loading the track failed; shown as an error placeholder
}

// Selectable reports whether the entry can be selected for playback.
func (e Entry) Selectable() bool {
	return !e.Track.IsPlaceholder() && !e.Failed
}

// Config holds catalog configuration.
type Config struct {
	Builtin      fs.FS  // Builtin resource set
	BuiltinRoot  string // Directory of tracks inside Builtin
	ResourcesDir string // Destination of user-added tracks
}

// Catalog is an ordered sequence of entries plus the current index.
// Insertion order is significant and entries are never removed.
// A Catalog is owned by a single goroutine and is not safe for concurrent use.
type Catalog struct {
	config  Config
	entries []Entry
	current int
}

// New creates an empty catalog.
func New(config Config) *Catalog {
	if config.BuiltinRoot == "" {
		config.BuiltinRoot = "."
	}
	return &Catalog{
		config:  config,
		entries: make([]Entry, 0),
		current: NoTrack,
	}
}

// LoadDefault rebuilds the builtin part of the catalog and returns the
// number of builtin tracks found. User-added entries are kept after the
// builtin ones. The catalog is never empty afterwards: with no tracks at
// all it holds an "empty" placeholder and the returned error is
// ErrCatalogEmpty; when scanning fails it holds an "error" placeholder
// and the scan error is returned.
func (c *Catalog) LoadDefault() (int, error) {
	var added []Entry
	for _, e := range c.entries {
		if !e.Track.IsPlaceholder() && e.Track.Origin == track.OriginUserAdded {
			added = append(added, e)
		}
	}
	c.entries = c.entries[:0]
	defer func() {
		c.entries = append(c.entries, added...)
		c.current = c.FirstSelectable()
	}()

	tracks, err := Scan(c.config.Builtin, c.config.BuiltinRoot)
	if err != nil {
		c.entries = append(c.entries, Entry{Track: track.NewPlaceholder(track.PlaceholderError)})
		return 0, errors.Wrap(err, "failed to scan builtin tracks")
	}

	if len(tracks) == 0 && len(added) == 0 {
		c.entries = append(c.entries, Entry{Track: track.NewPlaceholder(track.PlaceholderEmpty)})
		return 0, ErrCatalogEmpty
	}

	for _, t := range tracks {
		c.entries = append(c.entries, Entry{Track: t})
	}
	zlog.Debug().Msgf("catalog: loaded builtin tracks: count=%d kept=%d", len(tracks), len(added))
	return len(tracks), nil
}

// Scan lists the supported audio files under root in name order.
func Scan(fsys fs.FS, root string) ([]track.Track, error) {
	if fsys == nil {
		return nil, errors.New("no builtin resource set")
	}

	var tracks []track.Track
	err := fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !IsSupported(p) {
			return nil
		}
		tracks = append(tracks, track.New("", track.Source{Kind: track.SourceEmbedded, Ref: p}, track.OriginBuiltin))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tracks, nil
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Entries returns a copy of the entries.
func (c *Catalog) Entries() []Entry {
	result := make([]Entry, len(c.entries))
	copy(result, c.entries)
	return result
}

// Entry returns the entry at index i.
func (c *Catalog) Entry(i int) (Entry, bool) {
	if i < 0 || i >= len(c.entries) {
		return Entry{}, false
	}
	return c.entries[i], true
}

// Current returns the current index, or NoTrack.
func (c *Catalog) Current() int {
	return c.current
}

// SetCurrent makes the selectable entry at i current.
func (c *Catalog) SetCurrent(i int) error {
	e, ok := c.Entry(i)
	if !ok || !e.Selectable() {
		return errors.Wrapf(ErrInvalidIndex, "index %d", i)
	}
	c.current = i
	return nil
}

// MarkFailed turns the entry at i into an error placeholder.
// The current index moves to NoTrack when it pointed at i.
func (c *Catalog) MarkFailed(i int) {
	if i < 0 || i >= len(c.entries) {
		return
	}
	c.entries[i].Failed = true
	if c.current == i {
		c.current = NoTrack
	}
}

// FirstSelectable returns the first selectable index, or NoTrack.
func (c *Catalog) FirstSelectable() int {
	for i, e := range c.entries {
		if e.Selectable() {
			return i
		}
	}
	return NoTrack
}

// Add appends a track and returns its index. A track whose source is
// already listed replaces that entry and clears its failed mark.
func (c *Catalog) Add(t track.Track) int {
	for i, e := range c.entries {
		if !e.Track.IsPlaceholder() && e.Track.Source == t.Source {
			c.entries[i] = Entry{Track: t}
			return i
		}
	}
	c.entries = append(c.entries, Entry{Track: t})
	return len(c.entries) - 1
}

// Import copies the audio file at srcPath into the resources directory and
// returns a user-added track pointing at the copy. An existing resource of
// the same name is only replaced when overwrite is true; otherwise the
// error is marked ErrDuplicateResourceName.
func (c *Catalog) Import(srcPath, name string, overwrite bool) (track.Track, error) {
	if !IsSupported(srcPath) {
		return track.Track{}, errors.Wrapf(ErrUnsupportedFormat, "%s", filepath.Base(srcPath))
	}

	info, err := os.Stat(srcPath)
	if err != nil {
		return track.Track{}, errors.Wrap(err, "failed to stat source file")
	}
	if info.IsDir() {
		return track.Track{}, errors.Newf("source is a directory: %s", srcPath)
	}

	if err := os.MkdirAll(c.config.ResourcesDir, 0o755); err != nil {
		return track.Track{}, errors.Wrap(err, "failed to create resources directory")
	}

	fileName := filepath.Base(srcPath)
	dest := filepath.Join(c.config.ResourcesDir, fileName)

	if existing, err := os.Stat(dest); err == nil {
		if os.SameFile(info, existing) {
			return track.New(name, track.Source{Kind: track.SourceFile, Ref: dest}, track.OriginUserAdded), nil
		}
		if !overwrite {
			return track.Track{}, errors.Mark(
				errors.Newf("a file named %q already exists", fileName),
				ErrDuplicateResourceName,
			)
		}
	}

	if err := copyFile(srcPath, dest); err != nil {
		return track.Track{}, err
	}

	return track.New(name, track.Source{Kind: track.SourceFile, Ref: dest}, track.OriginUserAdded), nil
}

// Open returns a reader for the track's audio.
func (c *Catalog) Open(t track.Track) (io.ReadCloser, error) {
	switch t.Source.Kind {
	case track.SourceEmbedded:
		if c.config.Builtin == nil {
			return nil, errors.New("no builtin resource set")
		}
		f, err := c.config.Builtin.Open(t.Source.Ref)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open builtin track %s", t.Source.Ref)
		}
		return f, nil
	case track.SourceFile:
		f, err := os.Open(t.Source.Ref)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open track file %s", t.Source.Ref)
		}
		return f, nil
	default:
		return nil, ErrNoSource
	}
}

// copyFile writes src to a temporary file next to dest and renames it into
// place. A reader that already has dest open keeps the previous contents.
func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrap(err, "failed to open source file")
	}
	defer in.Close()

	out, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+"-*")
	if err != nil {
		return errors.Wrap(err, "failed to create resource file")
	}
	tmp := out.Name()
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return errors.Wrap(err, "failed to copy resource file")
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "failed to close resource file")
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "failed to replace resource file")
	}
	return nil
}

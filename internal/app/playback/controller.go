package playback

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/bgtunes/internal/app/catalog"
	"github.com/osa030/bgtunes/internal/app/device"
	"github.com/osa030/bgtunes/internal/app/tone"
	"github.com/osa030/bgtunes/internal/domain/track"
)

const (
	defaultQueueSize   = 64
	defaultEventBuffer = 32
)

// Config holds controller configuration.
type Config struct {
	DefaultVolume int         // Initial volume in percent
	QueueSize     int         // Capacity of the command queue
	Fallback      bool        // Substitute a generated tone when no track loads
	Tone          tone.Params // Fallback waveform
	TempDir       string      // Directory for generated audio files ("" = system temp)
}

// session is the loaded track and its decoded handle.
type session struct {
	id       string
	index    int // Catalog index, catalog.NoTrack for the fallback tone
	track    track.Track
	handle   Handle
	tempPath string // Generated file owned by this session
	fallback bool
}

// Controller owns playback state. All state is mutated by a single
// goroutine that drains the command queue; user commands, transport
// completion callbacks and device notifications are all marshalled onto it.
type Controller struct {
	config  Config
	catalog *catalog.Catalog
	sink    Sink
	devices device.Enumerator // nil when device monitoring is unavailable

	// Owned by the run loop
	state       State
	session     *session
	volume      int
	device      device.Status
	deviceKnown bool
	generation  uint64 // Incremented whenever the running transport is replaced or stopped

	cmds      chan func()
	eventCh   chan Event
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewController creates a controller and starts its command loop.
// devices may be nil, in which case an output device is assumed present.
func NewController(config Config, cat *catalog.Catalog, sink Sink, devices device.Enumerator) *Controller {
	if config.QueueSize <= 0 {
		config.QueueSize = defaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		config:  config,
		catalog: cat,
		sink:    sink,
		devices: devices,
		state:   StateStopped,
		volume:  clampPercent(config.DefaultVolume),
		cmds:    make(chan func(), config.QueueSize),
		eventCh: make(chan Event, defaultEventBuffer),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go c.run()
	return c
}

// Events returns the event channel. It is closed by Close.
func (c *Controller) Events() <-chan Event {
	return c.eventCh
}

// Play (re)starts the loaded track from position zero.
func (c *Controller) Play() error {
	return c.do(c.play)
}

// Pause pauses playback. It is a no-op unless playing.
func (c *Controller) Pause() error {
	return c.do(c.pause)
}

// Toggle pauses when playing and plays otherwise.
func (c *Controller) Toggle() error {
	return c.do(func() error {
		if c.state == StatePlaying {
			return c.pause()
		}
		return c.play()
	})
}

// Stop stops playback from any state.
func (c *Controller) Stop() error {
	return c.do(c.stop)
}

// SetVolume stores the volume preference, clamped to [0,100], and applies
// it to the loaded track.
func (c *Controller) SetVolume(percent int) error {
	return c.do(func() error { return c.setVolume(percent) })
}

// SelectTrack loads the catalog entry at index. Playback continues on the
// new track when it was playing; otherwise the state is unchanged.
func (c *Controller) SelectTrack(index int) error {
	return c.do(func() error { return c.selectTrack(index) })
}

// AddTrack imports the audio file at path into the catalog. An existing
// resource with the same file name is replaced only when overwrite is
// true; otherwise ErrDuplicateResourceName is returned.
func (c *Controller) AddTrack(path string, overwrite bool) error {
	return c.do(func() error { return c.addTrack(path, overwrite) })
}

// LoadDefault builds the catalog from the builtin set and loads the first
// playable track, falling back to the generated tone.
func (c *Controller) LoadDefault() error {
	return c.do(c.loadDefault)
}

// CheckDevices recomputes output device availability.
func (c *Controller) CheckDevices() error {
	return c.do(func() error {
		c.refreshDevice()
		c.publishStatus()
		return nil
	})
}

// HandleDeviceEvent queues a device notification. It may be called from
// any goroutine and does not wait for the event to be applied.
func (c *Controller) HandleDeviceEvent(ev device.Event) {
	c.post(func() { c.handleDevice(ev) })
}

// OnPlaybackCompleted queues the end of the current transport. A non-nil
// err is a hardware or driver failure.
func (c *Controller) OnPlaybackCompleted(err error) {
	c.post(func() { c.completed(err) })
}

// Status returns the current status projection.
func (c *Controller) Status() (Status, error) {
	var st Status
	err := c.do(func() error {
		st = c.status()
		return nil
	})
	return st, err
}

// Close stops output, releases the loaded track, removes generated files
// and stops the command loop. It runs once; later calls return immediately.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		_ = c.do(func() error {
			c.teardown()
			return nil
		})
		c.cancel()
		<-c.done
		close(c.eventCh)
	})
}

func (c *Controller) run() {
	defer close(c.done)
	for {
		select {
		case <-c.ctx.Done():
			return
		case fn := <-c.cmds:
			fn()
		}
	}
}

// post queues fn without waiting for it to run.
func (c *Controller) post(fn func()) bool {
	if c.ctx.Err() != nil {
		return false
	}
	select {
	case c.cmds <- fn:
		return true
	case <-c.ctx.Done():
		return false
	}
}

// do queues fn and waits for its result.
func (c *Controller) do(fn func() error) error {
	reply := make(chan error, 1)
	if !c.post(func() { reply <- fn() }) {
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		select {
		case err := <-reply:
			return err
		default:
			return ErrClosed
		}
	}
}

// The methods below run on the command loop only.

func (c *Controller) play() error {
	if c.session == nil {
		return c.fail(ErrNoTrackLoaded, SeverityWarning, CodeNoTrackLoaded, "No song loaded to play")
	}
	if c.deviceKnown && !c.device.Available {
		c.halt()
		return c.fail(ErrDeviceUnavailable, SeverityWarning, CodeDeviceUnavailable, "No audio device detected – muted")
	}

	c.sink.Stop()
	c.generation++
	gen := c.generation
	err := c.sink.Start(c.session.handle, volumeLevel(c.volume), func(err error) {
		c.post(func() {
			if gen != c.generation {
				zlog.Debug().Msgf("playback: ignoring completion of superseded transport: gen=%d current=%d", gen, c.generation)
				return
			}
			c.completed(err)
		})
	})
	if err != nil {
		c.halt()
		return c.fail(errors.Mark(errors.Wrap(err, "failed to start playback"), ErrTransportFailure),
			SeverityError, CodeTransportFailure, fmt.Sprintf("Error playing audio: %v", err))
	}

	zlog.Debug().Msgf("playback: started: track=%s session=%s gen=%d", c.session.track.DisplayName, c.session.id, gen)
	c.setState(StatePlaying)
	return nil
}

func (c *Controller) pause() error {
	if c.state != StatePlaying {
		return nil
	}
	c.sink.Pause()
	c.setState(StatePaused)
	return nil
}

func (c *Controller) stop() error {
	c.sink.Stop()
	c.generation++
	c.setState(StateStopped)
	return nil
}

// halt stops a transport the state machine still believes is running.
func (c *Controller) halt() {
	if c.state != StatePlaying {
		return
	}
	c.sink.Stop()
	c.generation++
	c.setState(StateStopped)
}

// completed applies the end of the current transport.
func (c *Controller) completed(err error) {
	if err != nil {
		zlog.Error().Err(err).Msg("playback: stopped due to error")
		c.sink.Reset()
		c.generation++
		c.setState(StatePausedByDevice)
		c.notice(SeverityInfo, CodeDeviceDisconnected, "Audio disconnected – paused")
		return
	}

	if c.state != StatePlaying {
		return
	}

	// Loop: background audio restarts from the beginning.
	if c.deviceKnown && !c.device.Available {
		c.sink.Reset()
		c.generation++
		c.setState(StatePausedByDevice)
		return
	}
	zlog.Debug().Msg("playback: track ended, restarting")
	_ = c.play()
}

func (c *Controller) setVolume(percent int) error {
	c.volume = clampPercent(percent)
	if c.session != nil {
		c.sink.SetVolume(volumeLevel(c.volume))
	}
	c.publishStatus()
	return nil
}

func (c *Controller) selectTrack(index int) error {
	e, ok := c.catalog.Entry(index)
	if !ok || !e.Selectable() {
		zlog.Debug().Msgf("playback: ignoring selection of entry %d", index)
		return errors.Wrapf(ErrInvalidSelection, "index %d", index)
	}

	if c.session != nil && !c.session.fallback && c.session.index == index {
		return nil
	}

	wasPlaying := c.state == StatePlaying
	if err := c.load(index); err != nil {
		return err
	}
	if wasPlaying {
		return c.play()
	}
	c.publishStatus()
	return nil
}

func (c *Controller) addTrack(path string, overwrite bool) error {
	t, err := c.catalog.Import(path, "", overwrite)
	if err != nil {
		if errors.Is(err, ErrDuplicateResourceName) {
			zlog.Info().Msgf("playback: add track needs overwrite confirmation: %v", err)
			return err
		}
		return c.fail(err, SeverityError, CodeTrackAddFailed, fmt.Sprintf("Failed to add song: %v", err))
	}

	index := c.catalog.Add(t)
	zlog.Info().Msgf("playback: track added: index=%d name=%s path=%s", index, t.DisplayName, t.Source.Ref)
	c.notice(SeverityInfo, CodeTrackAdded, "Added: "+t.DisplayName)

	switch {
	case c.session == nil || c.session.fallback:
		return c.selectTrack(index)
	case overwrite && c.session.index == index:
		// The loaded track's file was replaced; decode the new contents.
		wasPlaying := c.state == StatePlaying
		if err := c.load(index); err != nil {
			return err
		}
		if wasPlaying {
			return c.play()
		}
	}
	c.publishStatus()
	return nil
}

func (c *Controller) loadDefault() error {
	c.sink.Stop()
	c.generation++
	c.releaseSession()
	c.state = StateStopped

	n, err := c.catalog.LoadDefault()
	switch {
	case errors.Is(err, ErrCatalogEmpty):
		zlog.Warn().Msg("playback: no builtin tracks found")
		c.notice(SeverityWarning, CodeCatalogEmpty, "No songs found - add songs to play")
	case err != nil:
		zlog.Error().Err(err).Msg("playback: failed to load default songs")
		c.notice(SeverityError, CodeCatalogError, "Error loading songs")
	default:
		c.notice(SeverityInfo, CodeCatalogLoaded, fmt.Sprintf("Loaded %d embedded song(s)", n))
	}

	c.loadFirstAvailable()
	c.publishStatus()
	return err
}

// loadFirstAvailable loads the first catalog entry that decodes, or the
// fallback tone when none does.
func (c *Controller) loadFirstAvailable() {
	for i := c.catalog.FirstSelectable(); i != catalog.NoTrack; i = c.catalog.FirstSelectable() {
		if err := c.load(i); err == nil {
			return
		}
	}
	if err := c.loadFallback(); err != nil {
		zlog.Warn().Err(err).Msg("playback: no fallback audio available")
	}
}

// load decodes the entry at index and makes it the session. On failure
// the entry is marked failed and the previous session is kept.
func (c *Controller) load(index int) error {
	e, ok := c.catalog.Entry(index)
	if !ok {
		return errors.Wrapf(ErrInvalidSelection, "index %d", index)
	}

	h, err := c.decode(e.Track)
	if err != nil {
		c.catalog.MarkFailed(index)
		c.publishStatus()
		return c.fail(errors.Mark(errors.Wrapf(err, "failed to load %s", e.Track.DisplayName), ErrDecodeFailure),
			SeverityError, CodeTrackLoadFailed, fmt.Sprintf("Failed to load song: %s", e.Track.DisplayName))
	}

	if err := c.catalog.SetCurrent(index); err != nil {
		_ = h.Close()
		return err
	}
	c.replaceSession(&session{
		id:     uuid.New().String(),
		index:  index,
		track:  e.Track,
		handle: h,
	})
	zlog.Info().Msgf("playback: loaded track: index=%d name=%s session=%s", index, e.Track.DisplayName, c.session.id)
	return nil
}

func (c *Controller) loadFallback() error {
	if !c.config.Fallback {
		return errors.New("fallback tone disabled")
	}

	path, err := tone.Materialize(c.config.TempDir, c.config.Tone)
	if err != nil {
		return errors.Wrap(err, "failed to generate fallback tone")
	}

	t := track.New(track.ToneName, track.Source{Kind: track.SourceFile, Ref: path}, track.OriginBuiltin)
	h, err := c.decode(t)
	if err != nil {
		removeTemp(path)
		return errors.Mark(errors.Wrap(err, "failed to load fallback tone"), ErrDecodeFailure)
	}

	c.replaceSession(&session{
		id:       uuid.New().String(),
		index:    catalog.NoTrack,
		track:    t,
		handle:   h,
		tempPath: path,
		fallback: true,
	})
	zlog.Info().Msgf("playback: loaded fallback tone: path=%s session=%s", path, c.session.id)
	c.notice(SeverityInfo, CodeFallbackTone, "No playable songs – using a generated tone")
	return nil
}

func (c *Controller) decode(t track.Track) (Handle, error) {
	rc, err := c.catalog.Open(t)
	if err != nil {
		return nil, err
	}
	h, err := c.sink.Load(t, rc)
	if err != nil {
		rc.Close()
		return nil, err
	}
	return h, nil
}

// replaceSession releases the current transport and session before
// installing s.
func (c *Controller) replaceSession(s *session) {
	c.sink.Stop()
	c.generation++
	c.releaseSession()
	c.session = s
}

func (c *Controller) releaseSession() {
	if c.session == nil {
		return
	}
	if err := c.session.handle.Close(); err != nil {
		zlog.Warn().Err(err).Msgf("playback: failed to release track %s", c.session.track.DisplayName)
	}
	if c.session.tempPath != "" {
		removeTemp(c.session.tempPath)
	}
	c.session = nil
}

func (c *Controller) handleDevice(ev device.Event) {
	if !ev.AffectsPlayback() {
		zlog.Debug().Msgf("playback: ignoring device event: kind=%s flow=%d role=%d", ev.Kind, ev.Flow, ev.Role)
		return
	}
	zlog.Info().Msgf("playback: device event: kind=%s device=%s name=%s", ev.Kind, ev.DeviceID, ev.Name)

	if ev.Kind == device.KindRemoved || ev.Kind == device.KindDefaultChanged {
		// The open transport may be bound to the endpoint that went away.
		c.sink.Reset()
		c.generation++
		if c.state == StatePlaying {
			c.state = StatePausedByDevice
			if ev.Kind == device.KindRemoved {
				c.notice(SeverityInfo, CodeDeviceDisconnected, "Audio device disconnected – paused")
			} else {
				c.notice(SeverityInfo, CodeOutputChanged, "Audio output changed – paused")
			}
		}
	}

	c.refreshDevice()

	reconnected := ev.Kind == device.KindAdded || (ev.Kind == device.KindStateChanged && ev.Active)
	if reconnected && c.state == StatePausedByDevice && c.device.Available {
		c.state = StatePaused
		c.notice(SeverityInfo, CodeDeviceReconnected, "Audio device reconnected – press play to resume")
	}

	c.publishStatus()
}

// refreshDevice recomputes availability from a fresh enumeration.
func (c *Controller) refreshDevice() {
	if c.devices == nil {
		return
	}

	var st device.Status
	list, err := c.devices.Outputs()
	if err != nil {
		zlog.Warn().Err(err).Msg("playback: failed to check audio device status")
		st = device.Status{Name: device.NoDeviceName}
	} else {
		st = device.StatusOf(list)
	}

	wasAvailable := !c.deviceKnown || c.device.Available
	c.device = st
	c.deviceKnown = true

	if wasAvailable && !st.Available {
		c.notice(SeverityWarning, CodeDeviceUnavailable, "No audio device detected – muted")
	}
}

func (c *Controller) teardown() {
	c.sink.Stop()
	c.generation++
	c.releaseSession()
	c.state = StateStopped
	zlog.Info().Msg("playback: controller closed")
}

func (c *Controller) status() Status {
	st := Status{
		State:           c.state,
		DeviceName:      c.device.Name,
		DeviceAvailable: !c.deviceKnown || c.device.Available,
		VolumePercent:   c.volume,
		CurrentIndex:    catalog.NoTrack,
	}
	if c.session != nil {
		st.TrackName = c.session.track.DisplayName
		st.Fallback = c.session.fallback
		st.CurrentIndex = c.session.index
	} else if e, ok := c.catalog.Entry(0); ok && e.Track.IsPlaceholder() {
		st.TrackName = e.Track.DisplayName
	}
	st.CanPlay = c.session != nil && st.DeviceAvailable

	entries := c.catalog.Entries()
	st.Entries = make([]EntryView, len(entries))
	for i, e := range entries {
		st.Entries[i] = EntryView{
			Name:    e.Track.DisplayName,
			Enabled: e.Selectable(),
			Current: i == st.CurrentIndex,
		}
	}
	return st
}

func (c *Controller) setState(s State) {
	if c.state != s {
		zlog.Debug().Msgf("playback: state changed: %s -> %s", c.state, s)
	}
	c.state = s
	c.publishStatus()
}

func (c *Controller) publishStatus() {
	c.sendEvent(Event{Type: EventStatus, Status: c.status()})
}

func (c *Controller) notice(severity Severity, code, message string) {
	c.sendEvent(Event{
		Type:   EventNotice,
		Notice: &Notice{Severity: severity, Code: code, Message: message},
	})
}

// fail logs err, reports it as a notice and returns it.
func (c *Controller) fail(err error, severity Severity, code, message string) error {
	zlog.Error().Err(err).Msgf("playback: %s", code)
	c.notice(severity, code, message)
	return err
}

// sendEvent sends an event without blocking. When the buffer is full the
// oldest event is dropped so the latest status always gets through.
func (c *Controller) sendEvent(e Event) {
	select {
	case c.eventCh <- e:
		return
	default:
	}
	select {
	case <-c.eventCh:
	default:
	}
	select {
	case c.eventCh <- e:
	default:
	}
}

func removeTemp(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		zlog.Warn().Err(err).Msgf("playback: failed to delete temporary audio file %s", path)
	}
}

func clampPercent(p int) int {
	return max(0, min(100, p))
}

func volumeLevel(percent int) float64 {
	return float64(percent) / 100
}

package playback

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/bgtunes/internal/app/catalog"
	"github.com/osa030/bgtunes/internal/app/device"
	"github.com/osa030/bgtunes/internal/app/tone"
	"github.com/osa030/bgtunes/internal/domain/track"
)

type fakeHandle struct {
	ref    string
	rc     io.ReadCloser
	closed bool
}

func (h *fakeHandle) Close() error {
	h.closed = true
	return h.rc.Close()
}

type fakeSink struct {
	mu       sync.Mutex
	failRefs map[string]bool
	startErr error
	handles  []*fakeHandle
	starts   int
	stops    int
	pauses   int
	resets   int
	volume   float64
	playing  *fakeHandle
	done     []func(error)
}

func newFakeSink() *fakeSink {
	return &fakeSink{failRefs: make(map[string]bool)}
}

func (s *fakeSink) Load(t track.Track, rc io.ReadCloser) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRefs[t.Source.Ref] {
		return nil, errors.New("corrupt stream")
	}
	h := &fakeHandle{ref: t.Source.Ref, rc: rc}
	s.handles = append(s.handles, h)
	return h, nil
}

func (s *fakeSink) Start(h Handle, volume float64, done func(error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.starts++
	s.volume = volume
	s.playing = h.(*fakeHandle)
	s.done = append(s.done, done)
	return nil
}

func (s *fakeSink) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauses++
}

func (s *fakeSink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	s.playing = nil
}

func (s *fakeSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
	s.playing = nil
}

func (s *fakeSink) resetCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

func (s *fakeSink) SetVolume(volume float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = volume
}

// complete fires the completion callback of the n-th Start (0-based).
func (s *fakeSink) complete(n int, err error) {
	s.mu.Lock()
	done := s.done[n]
	s.mu.Unlock()
	done(err)
}

func (s *fakeSink) startCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

func (s *fakeSink) lastVolume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

func (s *fakeSink) current() *fakeHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

func (s *fakeSink) loadedRefs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	refs := make([]string, len(s.handles))
	for i, h := range s.handles {
		refs[i] = h.ref
	}
	return refs
}

type fakeEnumerator struct {
	mu      sync.Mutex
	outputs []device.Info
	err     error
}

func (e *fakeEnumerator) Outputs() ([]device.Info, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]device.Info(nil), e.outputs...), e.err
}

func (e *fakeEnumerator) set(outputs ...device.Info) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.outputs = outputs
}

var speakers = device.Info{ID: "dev-1", Name: "Speakers", IsDefault: true}

func testTone() tone.Params {
	return tone.Params{SampleRate: 8000, Duration: 100 * time.Millisecond, Frequency: 220, Amplitude: 0.05}
}

type fixture struct {
	ctrl *Controller
	sink *fakeSink
	enum *fakeEnumerator
	cat  *catalog.Catalog
	tmp  string
}

func newFixture(t *testing.T, files fstest.MapFS, fallback bool) *fixture {
	t.Helper()
	tmp := t.TempDir()
	f := &fixture{
		sink: newFakeSink(),
		enum: &fakeEnumerator{outputs: []device.Info{speakers}},
		tmp:  tmp,
	}
	f.cat = catalog.New(catalog.Config{
		Builtin:      files,
		BuiltinRoot:  "tracks",
		ResourcesDir: filepath.Join(tmp, "Resources"),
	})
	f.ctrl = NewController(Config{
		DefaultVolume: 25,
		Fallback:      fallback,
		Tone:          testTone(),
		TempDir:       tmp,
	}, f.cat, f.sink, f.enum)
	t.Cleanup(f.ctrl.Close)
	return f
}

func twoTracks() fstest.MapFS {
	return fstest.MapFS{
		"tracks/a-rain.mp3":   {Data: []byte("a")},
		"tracks/b-forest.mp3": {Data: []byte("b")},
	}
}

func (f *fixture) status(t *testing.T) Status {
	t.Helper()
	st, err := f.ctrl.Status()
	require.NoError(t, err)
	return st
}

// notices drains pending events and returns the notices among them.
func (f *fixture) notices() []Notice {
	var out []Notice
	for {
		select {
		case e, ok := <-f.ctrl.Events():
			if !ok {
				return out
			}
			if e.Type == EventNotice {
				out = append(out, *e.Notice)
			}
		default:
			return out
		}
	}
}

func hasCode(notices []Notice, code string) bool {
	for _, n := range notices {
		if n.Code == code {
			return true
		}
	}
	return false
}

func TestController_LoadDefault(t *testing.T) {
	f := newFixture(t, twoTracks(), true)

	require.NoError(t, f.ctrl.LoadDefault())

	st := f.status(t)
	assert.Equal(t, StateStopped, st.State)
	assert.Equal(t, "a-rain", st.TrackName)
	assert.Equal(t, 0, st.CurrentIndex)
	assert.False(t, st.Fallback)
	assert.True(t, st.CanPlay)
	require.Len(t, st.Entries, 2)
	assert.True(t, st.Entries[0].Current)
	assert.True(t, st.Entries[1].Enabled)
	assert.True(t, hasCode(f.notices(), CodeCatalogLoaded))
}

func TestController_PlayPauseStop(t *testing.T) {
	f := newFixture(t, twoTracks(), true)
	require.NoError(t, f.ctrl.LoadDefault())

	require.NoError(t, f.ctrl.Play())
	assert.Equal(t, StatePlaying, f.status(t).State)
	assert.InDelta(t, 0.25, f.sink.lastVolume(), 1e-9)

	require.NoError(t, f.ctrl.Pause())
	assert.Equal(t, StatePaused, f.status(t).State)

	// Pause is a no-op unless playing.
	require.NoError(t, f.ctrl.Pause())
	assert.Equal(t, StatePaused, f.status(t).State)

	// Play from paused restarts from zero.
	require.NoError(t, f.ctrl.Play())
	assert.Equal(t, StatePlaying, f.status(t).State)
	assert.Equal(t, 2, f.sink.startCount())

	require.NoError(t, f.ctrl.Toggle())
	assert.Equal(t, StatePaused, f.status(t).State)
	require.NoError(t, f.ctrl.Toggle())
	assert.Equal(t, StatePlaying, f.status(t).State)

	require.NoError(t, f.ctrl.Stop())
	assert.Equal(t, StateStopped, f.status(t).State)
}

func TestController_StopFromAnyState(t *testing.T) {
	f := newFixture(t, twoTracks(), true)
	require.NoError(t, f.ctrl.LoadDefault())

	reach := map[State]func(){
		StateStopped: func() {},
		StatePlaying: func() { require.NoError(t, f.ctrl.Play()) },
		StatePaused: func() {
			require.NoError(t, f.ctrl.Play())
			require.NoError(t, f.ctrl.Pause())
		},
		StatePausedByDevice: func() {
			require.NoError(t, f.ctrl.Play())
			f.ctrl.HandleDeviceEvent(device.Event{Kind: device.KindRemoved, DeviceID: "dev-2"})
		},
	}
	for from, setup := range reach {
		t.Run(from.String(), func(t *testing.T) {
			setup()
			assert.Equal(t, from, f.status(t).State)
			require.NoError(t, f.ctrl.Stop())
			assert.Equal(t, StateStopped, f.status(t).State)
		})
	}
}

func TestController_PlayWithoutTrack(t *testing.T) {
	f := newFixture(t, fstest.MapFS{}, false)

	err := f.ctrl.LoadDefault()
	assert.True(t, errors.Is(err, ErrCatalogEmpty))

	st := f.status(t)
	assert.False(t, st.CanPlay)
	assert.Equal(t, track.EmptyName, st.TrackName)
	require.Len(t, st.Entries, 1)
	assert.False(t, st.Entries[0].Enabled)

	err = f.ctrl.Play()
	assert.True(t, errors.Is(err, ErrNoTrackLoaded))
	assert.Equal(t, StateStopped, f.status(t).State)

	notices := f.notices()
	assert.True(t, hasCode(notices, CodeCatalogEmpty))
	assert.True(t, hasCode(notices, CodeNoTrackLoaded))
}

func TestController_CompletionRestartsFromZero(t *testing.T) {
	f := newFixture(t, twoTracks(), true)
	require.NoError(t, f.ctrl.LoadDefault())
	require.NoError(t, f.ctrl.Play())

	for i := range 3 {
		f.sink.complete(i, nil)
		assert.Equal(t, StatePlaying, f.status(t).State)
		assert.Equal(t, i+2, f.sink.startCount())
	}
}

func TestController_CompletionWhilePausedIsIgnored(t *testing.T) {
	f := newFixture(t, twoTracks(), true)
	require.NoError(t, f.ctrl.LoadDefault())
	require.NoError(t, f.ctrl.Play())
	require.NoError(t, f.ctrl.Pause())

	f.ctrl.OnPlaybackCompleted(nil)
	assert.Equal(t, StatePaused, f.status(t).State)
	assert.Equal(t, 1, f.sink.startCount())
}

func TestController_CompletionWithError(t *testing.T) {
	f := newFixture(t, twoTracks(), true)
	require.NoError(t, f.ctrl.LoadDefault())
	require.NoError(t, f.ctrl.Play())
	f.notices()

	f.sink.complete(0, errors.New("device lost"))

	assert.Equal(t, StatePausedByDevice, f.status(t).State)
	assert.True(t, hasCode(f.notices(), CodeDeviceDisconnected))
	assert.Equal(t, 1, f.sink.startCount())
	assert.Equal(t, 1, f.sink.resetCount())
}

func TestController_CompletionWithErrorFromAnyState(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, c *Controller)
	}{
		{
			name:  "stopped",
			setup: func(t *testing.T, c *Controller) {},
		},
		{
			name: "playing",
			setup: func(t *testing.T, c *Controller) {
				require.NoError(t, c.Play())
			},
		},
		{
			name: "paused",
			setup: func(t *testing.T, c *Controller) {
				require.NoError(t, c.Play())
				require.NoError(t, c.Pause())
			},
		},
		{
			name: "paused by device",
			setup: func(t *testing.T, c *Controller) {
				require.NoError(t, c.Play())
				c.HandleDeviceEvent(device.Event{Kind: device.KindRemoved, DeviceID: "dev-2"})
				st, err := c.Status()
				require.NoError(t, err)
				require.Equal(t, StatePausedByDevice, st.State)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, twoTracks(), true)
			require.NoError(t, f.ctrl.LoadDefault())
			tt.setup(t, f.ctrl)
			starts := f.sink.startCount()
			resets := f.sink.resetCount()
			f.notices()

			f.ctrl.OnPlaybackCompleted(errors.New("driver failure"))

			assert.Equal(t, StatePausedByDevice, f.status(t).State)
			assert.Equal(t, starts, f.sink.startCount(), "no restart after a failed transport")
			assert.Equal(t, resets+1, f.sink.resetCount())
			assert.True(t, hasCode(f.notices(), CodeDeviceDisconnected))

			// An explicit play reopens the transport.
			require.NoError(t, f.ctrl.Play())
			assert.Equal(t, StatePlaying, f.status(t).State)
			assert.Equal(t, starts+1, f.sink.startCount())
		})
	}
}

func TestController_StaleCompletionIgnored(t *testing.T) {
	f := newFixture(t, twoTracks(), true)
	require.NoError(t, f.ctrl.LoadDefault())

	require.NoError(t, f.ctrl.Play())
	require.NoError(t, f.ctrl.Stop())
	f.sink.complete(0, errors.New("late failure"))
	assert.Equal(t, StateStopped, f.status(t).State)

	require.NoError(t, f.ctrl.Play())
	require.NoError(t, f.ctrl.Play())
	f.sink.complete(1, nil)
	assert.Equal(t, StatePlaying, f.status(t).State)
	assert.Equal(t, 3, f.sink.startCount())
}

func TestController_DeviceRemovedWhilePlaying(t *testing.T) {
	f := newFixture(t, twoTracks(), true)
	require.NoError(t, f.ctrl.LoadDefault())
	require.NoError(t, f.ctrl.Play())
	f.notices()

	f.enum.set()
	f.ctrl.HandleDeviceEvent(device.Event{Kind: device.KindRemoved, DeviceID: speakers.ID})

	st := f.status(t)
	assert.Equal(t, StatePausedByDevice, st.State)
	assert.False(t, st.DeviceAvailable)
	assert.False(t, st.CanPlay)
	assert.Equal(t, device.NoDeviceName, st.DeviceName)
	notices := f.notices()
	assert.True(t, hasCode(notices, CodeDeviceDisconnected))
	assert.True(t, hasCode(notices, CodeDeviceUnavailable))
	assert.Equal(t, 1, f.sink.resetCount())

	err := f.ctrl.Play()
	assert.True(t, errors.Is(err, ErrDeviceUnavailable))
	assert.Equal(t, StatePausedByDevice, f.status(t).State)

	// Reconnecting never auto-resumes.
	f.enum.set(speakers)
	f.ctrl.HandleDeviceEvent(device.Event{Kind: device.KindAdded, DeviceID: speakers.ID})

	st = f.status(t)
	assert.Equal(t, StatePaused, st.State)
	assert.True(t, st.CanPlay)
	assert.Equal(t, "Speakers", st.DeviceName)
	assert.True(t, hasCode(f.notices(), CodeDeviceReconnected))
	assert.Equal(t, 1, f.sink.startCount())
}

func TestController_DeviceRemovedWhileStopped(t *testing.T) {
	f := newFixture(t, twoTracks(), true)
	require.NoError(t, f.ctrl.LoadDefault())

	f.enum.set()
	f.ctrl.HandleDeviceEvent(device.Event{Kind: device.KindRemoved, DeviceID: speakers.ID})

	st := f.status(t)
	assert.Equal(t, StateStopped, st.State)
	assert.False(t, st.CanPlay)
}

func TestController_DefaultOutputChanged(t *testing.T) {
	headset := device.Info{ID: "dev-2", Name: "Headset", IsDefault: true}

	t.Run("multimedia render role pauses", func(t *testing.T) {
		f := newFixture(t, twoTracks(), true)
		require.NoError(t, f.ctrl.LoadDefault())
		require.NoError(t, f.ctrl.Play())
		f.notices()

		f.enum.set(device.Info{ID: speakers.ID, Name: speakers.Name}, headset)
		f.ctrl.HandleDeviceEvent(device.Event{
			Kind: device.KindDefaultChanged, DeviceID: headset.ID,
			Flow: device.FlowRender, Role: device.RoleMultimedia,
		})

		st := f.status(t)
		assert.Equal(t, StatePausedByDevice, st.State)
		assert.Equal(t, "Headset", st.DeviceName)
		assert.True(t, hasCode(f.notices(), CodeOutputChanged))
		assert.Equal(t, 1, f.sink.resetCount())

		// Play restarts on the new default endpoint.
		require.NoError(t, f.ctrl.Play())
		assert.Equal(t, StatePlaying, f.status(t).State)
		assert.Equal(t, 2, f.sink.startCount())
	})

	t.Run("other roles are ignored", func(t *testing.T) {
		f := newFixture(t, twoTracks(), true)
		require.NoError(t, f.ctrl.LoadDefault())
		require.NoError(t, f.ctrl.Play())

		f.ctrl.HandleDeviceEvent(device.Event{
			Kind: device.KindDefaultChanged, DeviceID: headset.ID,
			Flow: device.FlowCapture, Role: device.RoleCommunications,
		})

		assert.Equal(t, StatePlaying, f.status(t).State)
		assert.Equal(t, 0, f.sink.resetCount())
	})
}

func TestController_CheckDevices(t *testing.T) {
	f := newFixture(t, twoTracks(), true)
	require.NoError(t, f.ctrl.LoadDefault())

	f.enum.set()
	require.NoError(t, f.ctrl.CheckDevices())
	assert.False(t, f.status(t).CanPlay)

	f.enum.set(speakers)
	require.NoError(t, f.ctrl.CheckDevices())
	assert.True(t, f.status(t).CanPlay)
}

func TestController_SetVolume(t *testing.T) {
	f := newFixture(t, twoTracks(), true)
	require.NoError(t, f.ctrl.LoadDefault())
	require.NoError(t, f.ctrl.Play())

	tests := []struct {
		in   int
		want int
	}{
		{in: -5, want: 0},
		{in: 150, want: 100},
		{in: 0, want: 0},
		{in: 100, want: 100},
		{in: 40, want: 40},
	}
	for _, tt := range tests {
		require.NoError(t, f.ctrl.SetVolume(tt.in))
		assert.Equal(t, tt.want, f.status(t).VolumePercent, "input %d", tt.in)
		assert.InDelta(t, float64(tt.want)/100, f.sink.lastVolume(), 1e-9)
	}

	// The stored volume applies to the next start.
	require.NoError(t, f.ctrl.Play())
	assert.InDelta(t, 0.40, f.sink.lastVolume(), 1e-9)
}

func TestController_SelectTrack(t *testing.T) {
	t.Run("while stopped only loads", func(t *testing.T) {
		f := newFixture(t, twoTracks(), true)
		require.NoError(t, f.ctrl.LoadDefault())

		require.NoError(t, f.ctrl.SelectTrack(1))
		st := f.status(t)
		assert.Equal(t, StateStopped, st.State)
		assert.Equal(t, "b-forest", st.TrackName)
		assert.Equal(t, 0, f.sink.startCount())
	})

	t.Run("while paused keeps paused", func(t *testing.T) {
		f := newFixture(t, twoTracks(), true)
		require.NoError(t, f.ctrl.LoadDefault())
		require.NoError(t, f.ctrl.Play())
		require.NoError(t, f.ctrl.Pause())

		require.NoError(t, f.ctrl.SelectTrack(1))
		assert.Equal(t, StatePaused, f.status(t).State)
		assert.Equal(t, 1, f.sink.startCount())
	})

	t.Run("while playing starts the new track", func(t *testing.T) {
		f := newFixture(t, twoTracks(), true)
		require.NoError(t, f.ctrl.LoadDefault())
		require.NoError(t, f.ctrl.Play())

		require.NoError(t, f.ctrl.SelectTrack(1))
		st := f.status(t)
		assert.Equal(t, StatePlaying, st.State)
		assert.Equal(t, "b-forest", st.TrackName)
		assert.Equal(t, 2, f.sink.startCount())
	})

	t.Run("invalid index", func(t *testing.T) {
		f := newFixture(t, twoTracks(), true)
		require.NoError(t, f.ctrl.LoadDefault())

		for _, i := range []int{-1, 2, 99} {
			err := f.ctrl.SelectTrack(i)
			assert.True(t, errors.Is(err, ErrInvalidSelection), "index %d", i)
		}
		assert.Equal(t, "a-rain", f.status(t).TrackName)
	})

	t.Run("placeholder entry is ignored", func(t *testing.T) {
		f := newFixture(t, fstest.MapFS{}, false)
		_ = f.ctrl.LoadDefault()

		err := f.ctrl.SelectTrack(0)
		assert.True(t, errors.Is(err, ErrInvalidSelection))
	})
}

func TestController_SelectTrackFailureKeepsSession(t *testing.T) {
	f := newFixture(t, twoTracks(), true)
	f.sink.failRefs["tracks/b-forest.mp3"] = true
	require.NoError(t, f.ctrl.LoadDefault())
	require.NoError(t, f.ctrl.Play())
	f.notices()

	err := f.ctrl.SelectTrack(1)
	assert.True(t, errors.Is(err, ErrDecodeFailure))

	st := f.status(t)
	assert.Equal(t, StatePlaying, st.State)
	assert.Equal(t, "a-rain", st.TrackName)
	assert.Equal(t, 0, st.CurrentIndex)
	assert.False(t, st.Entries[1].Enabled)
	assert.True(t, hasCode(f.notices(), CodeTrackLoadFailed))

	// A failed entry can no longer be selected.
	err = f.ctrl.SelectTrack(1)
	assert.True(t, errors.Is(err, ErrInvalidSelection))
}

func TestController_LoadDefaultSkipsUndecodable(t *testing.T) {
	f := newFixture(t, twoTracks(), true)
	f.sink.failRefs["tracks/a-rain.mp3"] = true

	require.NoError(t, f.ctrl.LoadDefault())

	st := f.status(t)
	assert.Equal(t, "b-forest", st.TrackName)
	assert.Equal(t, 1, st.CurrentIndex)
	assert.False(t, st.Entries[0].Enabled)
}

func tempTones(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "bgtunes-tone-*.wav"))
	require.NoError(t, err)
	return matches
}

func TestController_FallbackTone(t *testing.T) {
	f := newFixture(t, fstest.MapFS{}, true)

	_ = f.ctrl.LoadDefault()

	st := f.status(t)
	assert.True(t, st.Fallback)
	assert.True(t, st.CanPlay)
	assert.Equal(t, track.ToneName, st.TrackName)
	assert.Equal(t, catalog.NoTrack, st.CurrentIndex)
	require.Len(t, tempTones(t, f.tmp), 1)
	assert.True(t, hasCode(f.notices(), CodeFallbackTone))

	require.NoError(t, f.ctrl.Play())
	assert.Equal(t, StatePlaying, f.status(t).State)

	f.ctrl.Close()
	assert.Empty(t, tempTones(t, f.tmp))
}

func TestController_FallbackSupersededByLoadDefault(t *testing.T) {
	f := newFixture(t, fstest.MapFS{}, true)

	_ = f.ctrl.LoadDefault()
	first := tempTones(t, f.tmp)
	require.Len(t, first, 1)

	_ = f.ctrl.LoadDefault()
	second := tempTones(t, f.tmp)
	require.Len(t, second, 1)
	assert.NotEqual(t, first[0], second[0])
	_, err := os.Stat(first[0])
	assert.True(t, os.IsNotExist(err))
}

func writeSource(t *testing.T, dir, name, data string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(data), 0o644))
	return p
}

func TestController_AddTrack(t *testing.T) {
	f := newFixture(t, twoTracks(), true)
	require.NoError(t, f.ctrl.LoadDefault())
	f.notices()

	src := writeSource(t, filepath.Join(f.tmp, "src"), "01.waves.mp3", "w")
	require.NoError(t, f.ctrl.AddTrack(src, false))

	st := f.status(t)
	require.Len(t, st.Entries, 3)
	assert.Equal(t, "waves", st.Entries[2].Name)
	assert.True(t, st.Entries[2].Enabled)
	// The loaded track is kept.
	assert.Equal(t, "a-rain", st.TrackName)
	assert.True(t, hasCode(f.notices(), CodeTrackAdded))

	other := writeSource(t, filepath.Join(f.tmp, "other"), "01.waves.mp3", "x")
	err := f.ctrl.AddTrack(other, false)
	assert.True(t, errors.Is(err, ErrDuplicateResourceName))
	assert.Len(t, f.status(t).Entries, 3)
	assert.Empty(t, f.notices())

	require.NoError(t, f.ctrl.AddTrack(other, true))
	assert.Len(t, f.status(t).Entries, 3)
	data, err := os.ReadFile(filepath.Join(f.tmp, "Resources", "01.waves.mp3"))
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))

	// Reloading the builtin set keeps user-added songs.
	require.NoError(t, f.ctrl.LoadDefault())
	st = f.status(t)
	require.Len(t, st.Entries, 3)
	assert.Equal(t, "waves", st.Entries[2].Name)
	assert.Equal(t, "a-rain", st.TrackName)
}

func TestController_AddTrackOverwriteReloadsLoadedTrack(t *testing.T) {
	for _, paused := range []bool{false, true} {
		name := "playing"
		if paused {
			name = "paused"
		}
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, twoTracks(), true)
			require.NoError(t, f.ctrl.LoadDefault())

			first := writeSource(t, filepath.Join(f.tmp, "one"), "song.mp3", "version-one")
			require.NoError(t, f.ctrl.AddTrack(first, false))
			require.NoError(t, f.ctrl.SelectTrack(2))
			require.NoError(t, f.ctrl.Play())
			old := f.sink.current()
			require.NotNil(t, old)
			if paused {
				require.NoError(t, f.ctrl.Pause())
			}
			loads := len(f.sink.loadedRefs())
			starts := f.sink.startCount()

			second := writeSource(t, filepath.Join(f.tmp, "two"), "song.mp3", "V2")
			require.NoError(t, f.ctrl.AddTrack(second, true))

			st := f.status(t)
			assert.Len(t, st.Entries, 3)
			assert.Equal(t, 2, st.CurrentIndex)
			assert.True(t, old.closed, "the session on the replaced file is released")
			assert.Equal(t, loads+1, len(f.sink.loadedRefs()))

			f.sink.mu.Lock()
			fresh := f.sink.handles[len(f.sink.handles)-1]
			f.sink.mu.Unlock()
			data, err := io.ReadAll(fresh.rc)
			require.NoError(t, err)
			assert.Equal(t, "V2", string(data))

			if paused {
				assert.Equal(t, StatePaused, st.State)
				assert.Equal(t, starts, f.sink.startCount())
			} else {
				assert.Equal(t, StatePlaying, st.State)
				assert.Equal(t, starts+1, f.sink.startCount())
				assert.Same(t, fresh, f.sink.current())
			}
		})
	}
}

func TestController_AddTrackUnsupported(t *testing.T) {
	f := newFixture(t, twoTracks(), true)
	require.NoError(t, f.ctrl.LoadDefault())
	f.notices()

	src := writeSource(t, f.tmp, "notes.txt", "x")
	err := f.ctrl.AddTrack(src, false)
	assert.True(t, errors.Is(err, catalog.ErrUnsupportedFormat))
	assert.True(t, hasCode(f.notices(), CodeTrackAddFailed))
}

func TestController_AddTrackReplacesFallback(t *testing.T) {
	f := newFixture(t, fstest.MapFS{}, true)
	_ = f.ctrl.LoadDefault()
	require.Len(t, tempTones(t, f.tmp), 1)

	src := writeSource(t, filepath.Join(f.tmp, "src"), "calm.wav", "c")
	require.NoError(t, f.ctrl.AddTrack(src, false))

	st := f.status(t)
	assert.False(t, st.Fallback)
	assert.Equal(t, "calm", st.TrackName)
	assert.Equal(t, 1, st.CurrentIndex)
	assert.Empty(t, tempTones(t, f.tmp))
}

func TestController_StartFailure(t *testing.T) {
	f := newFixture(t, twoTracks(), true)
	require.NoError(t, f.ctrl.LoadDefault())
	f.sink.startErr = errors.New("device busy")
	f.notices()

	err := f.ctrl.Play()
	assert.True(t, errors.Is(err, ErrTransportFailure))
	assert.Equal(t, StateStopped, f.status(t).State)
	assert.True(t, hasCode(f.notices(), CodeTransportFailure))
}

func TestController_NoEnumeratorAssumesDevice(t *testing.T) {
	cat := catalog.New(catalog.Config{Builtin: twoTracks(), BuiltinRoot: "tracks", ResourcesDir: t.TempDir()})
	ctrl := NewController(Config{DefaultVolume: 25}, cat, newFakeSink(), nil)
	defer ctrl.Close()

	require.NoError(t, ctrl.LoadDefault())
	require.NoError(t, ctrl.CheckDevices())
	st, err := ctrl.Status()
	require.NoError(t, err)
	assert.True(t, st.DeviceAvailable)
	assert.True(t, st.CanPlay)
}

func TestController_ConcurrentCommands(t *testing.T) {
	f := newFixture(t, twoTracks(), true)
	require.NoError(t, f.ctrl.LoadDefault())

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 50 {
				switch (i + j) % 6 {
				case 0:
					_ = f.ctrl.Play()
				case 1:
					_ = f.ctrl.Pause()
				case 2:
					_ = f.ctrl.SetVolume(j)
				case 3:
					f.ctrl.HandleDeviceEvent(device.Event{Kind: device.KindRemoved, DeviceID: "x"})
				case 4:
					f.ctrl.OnPlaybackCompleted(nil)
				case 5:
					_ = f.ctrl.SelectTrack(j % 2)
				}
			}
		}()
	}
	wg.Wait()

	// Status queues behind every posted callback, so it observes the
	// final state; the last pushed projection must match it.
	final := f.status(t)
	var last *Status
drain:
	for {
		select {
		case e := <-f.ctrl.Events():
			if e.Type == EventStatus {
				st := e.Status
				last = &st
			}
		default:
			break drain
		}
	}
	require.NotNil(t, last)
	assert.Equal(t, final, *last)

	require.NoError(t, f.ctrl.Stop())
	st := f.status(t)
	assert.Equal(t, StateStopped, st.State)
	assert.True(t, st.CanPlay)
	assert.GreaterOrEqual(t, st.VolumePercent, 0)
	assert.LessOrEqual(t, st.VolumePercent, 100)
}

func TestController_Close(t *testing.T) {
	f := newFixture(t, twoTracks(), true)
	require.NoError(t, f.ctrl.LoadDefault())
	require.NoError(t, f.ctrl.Play())

	f.ctrl.Close()
	f.ctrl.Close()

	assert.True(t, errors.Is(f.ctrl.Play(), ErrClosed))
	_, err := f.ctrl.Status()
	assert.True(t, errors.Is(err, ErrClosed))

	// Late callbacks after close are dropped.
	f.sink.complete(0, nil)
	f.ctrl.HandleDeviceEvent(device.Event{Kind: device.KindAdded})

	for range f.ctrl.Events() {
	}
	for _, ref := range f.sink.loadedRefs() {
		assert.NotEmpty(t, ref)
	}
	for _, h := range f.sink.handles {
		assert.True(t, h.closed)
	}
}

// Package playback provides the playback controller: a single-owner state
// machine that reconciles transport commands with output device changes.
package playback

// State represents the playback state.
//
//	Stopped ──play──▶ Playing ──pause──▶ Paused ──stop──▶ Stopped
//	                     │                  ▲
//	   device lost/error │                  │ device back
//	                     ▼                  │
//	               PausedByDevice ──────────┘
//
// Stop leads to Stopped from every state. Play from any paused state
// restarts the track at zero. Nothing returns to Playing without an
// explicit Play.
type State int

const (
	StateStopped        State = iota // Nothing is being output
	StatePlaying                     // Transport is running
	StatePaused                      // Paused by the user
	StatePausedByDevice              // Paused because the output device went away
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StatePausedByDevice:
		return "paused_by_device"
	default:
		return "unknown"
	}
}

// IsPaused reports whether playback is paused for any reason.
func (s State) IsPaused() bool {
	return s == StatePaused || s == StatePausedByDevice
}

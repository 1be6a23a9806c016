package playback

// EventType represents a playback event type.
type EventType int

const (
	EventStatus EventType = iota // Status projection after a mutation
	EventNotice                  // Transient user-facing message
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventStatus:
		return "status"
	case EventNotice:
		return "notice"
	default:
		return "unknown"
	}
}

// Severity grades a notice.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Notice codes.
const (
	CodeNoTrackLoaded      = "no_track_loaded"
	CodeDeviceUnavailable  = "device_unavailable"
	CodeDeviceDisconnected = "device_disconnected"
	CodeDeviceReconnected  = "device_reconnected"
	CodeOutputChanged      = "output_changed"
	CodeTrackLoadFailed    = "track_load_failed"
	CodeTrackAdded         = "track_added"
	CodeTrackAddFailed     = "track_add_failed"
	CodeCatalogEmpty       = "catalog_empty"
	CodeCatalogLoaded      = "catalog_loaded"
	CodeCatalogError       = "catalog_error"
	CodeTransportFailure   = "transport_failure"
	CodeFallbackTone       = "fallback_tone"
)

// Notice is an advisory message for the user.
type Notice struct {
	Severity Severity
	Code     string
	Message  string
}

// EntryView is one catalog entry as the UI shows it.
type EntryView struct {
	Name    string
	Enabled bool
	Current bool
}

// Status is the projection of controller state exposed to UI sinks.
// It is regenerated on every mutation.
type Status struct {
	State           State
	DeviceName      string
	DeviceAvailable bool
	TrackName       string
	Fallback        bool // The generated tone is loaded
	VolumePercent   int
	CanPlay         bool
	Entries         []EntryView
	CurrentIndex    int
}

// Event represents a playback event.
type Event struct {
	Type   EventType
	Status Status  // Set for EventStatus
	Notice *Notice // Set for EventNotice
}

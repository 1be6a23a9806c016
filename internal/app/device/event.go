// Package device translates audio endpoint changes into abstract events.
package device

// Kind is the device event variant.
type Kind int

const (
	KindStateChanged   Kind = iota // A known device changed state
	KindAdded                      // A device appeared
	KindRemoved                    // A device disappeared
	KindDefaultChanged             // The default endpoint for a flow/role changed
)

// String returns the string representation of the event kind.
func (k Kind) String() string {
	switch k {
	case KindStateChanged:
		return "state_changed"
	case KindAdded:
		return "added"
	case KindRemoved:
		return "removed"
	case KindDefaultChanged:
		return "default_changed"
	default:
		return "unknown"
	}
}

// Flow is the data flow direction of an endpoint.
type Flow int

const (
	FlowRender  Flow = iota // Output
	FlowCapture             // Input
)

// Role is the endpoint role a default applies to.
type Role int

const (
	RoleConsole Role = iota
	RoleMultimedia
	RoleCommunications
)

// Event is a single endpoint notification.
type Event struct {
	Kind     Kind
	DeviceID string
	Name     string
	Active   bool // Device state after a state change
	Flow     Flow // Only meaningful for KindDefaultChanged
	Role     Role // Only meaningful for KindDefaultChanged
}

// AffectsPlayback reports whether a default change concerns the
// multimedia output this player renders to. Other kinds always do.
func (e Event) AffectsPlayback() bool {
	if e.Kind != KindDefaultChanged {
		return true
	}
	return e.Flow == FlowRender && e.Role == RoleMultimedia
}

// Info describes one output endpoint.
type Info struct {
	ID        string
	Name      string
	IsDefault bool
}

// Status is the derived "usable output present" snapshot.
type Status struct {
	Name      string
	Available bool
}

// NoDeviceName is shown when no output device is present.
const NoDeviceName = "No Device"

// StatusOf derives the snapshot from an enumeration. The default device
// wins; otherwise the first device is used.
func StatusOf(devices []Info) Status {
	if len(devices) == 0 {
		return Status{Name: NoDeviceName}
	}
	for _, d := range devices {
		if d.IsDefault {
			return Status{Name: d.Name, Available: true}
		}
	}
	return Status{Name: devices[0].Name, Available: true}
}

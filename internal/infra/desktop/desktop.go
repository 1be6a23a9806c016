// Package desktop shows playback notices as desktop notifications.
package desktop

import (
	"sync"

	"github.com/osa030/bgtunes/internal/app/notification"
	"github.com/osa030/bgtunes/internal/app/playback"
)

const (
	appName        = "bgtunes"
	defaultTimeout = 4000 // ms
)

// Urgency is the freedesktop notification urgency hint.
type Urgency byte

const (
	UrgencyLow      Urgency = 0
	UrgencyNormal   Urgency = 1
	UrgencyCritical Urgency = 2
)

// Notification contains data for a desktop notification.
type Notification struct {
	Title      string
	Body       string
	Icon       string  // Path to image file or icon name
	Timeout    int32   // ms, -1 = server default, 0 = never expire
	ReplacesID uint32  // 0 = new notification
	Urgency    Urgency
}

// Notifier sends desktop notifications.
type Notifier interface {
	// Notify sends a notification and returns its ID.
	// Returns 0 and nil error if notifications are unavailable.
	Notify(n Notification) (uint32, error)
	// Close closes a notification by ID.
	Close(id uint32) error
}

// UrgencyOf maps a notice severity to a desktop urgency.
func UrgencyOf(s playback.Severity) Urgency {
	switch s {
	case playback.SeverityError:
		return UrgencyCritical
	case playback.SeverityWarning:
		return UrgencyNormal
	default:
		return UrgencyLow
	}
}

func iconOf(s playback.Severity) string {
	switch s {
	case playback.SeverityError:
		return "dialog-error"
	case playback.SeverityWarning:
		return "dialog-warning"
	default:
		return "audio-x-generic"
	}
}

// Stream forwards notices to a Notifier as a notification subscriber.
// Each notice replaces the previous one. Status events are ignored.
type Stream struct {
	notifier Notifier

	mu     sync.Mutex
	lastID uint32
}

var _ notification.Stream = (*Stream)(nil)

// NewStream creates a stream that sends through n.
func NewStream(n Notifier) *Stream {
	return &Stream{notifier: n}
}

// Send shows n when it carries a notice.
func (s *Stream) Send(n *notification.Notification) error {
	if n.Type != playback.EventNotice || n.Notice == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := s.notifier.Notify(Notification{
		Title:      appName,
		Body:       n.Notice.Message,
		Icon:       iconOf(n.Notice.Severity),
		Timeout:    defaultTimeout,
		ReplacesID: s.lastID,
		Urgency:    UrgencyOf(n.Notice.Severity),
	})
	if err != nil {
		return err
	}
	s.lastID = id
	return nil
}

// Close dismisses the last notification.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastID == 0 {
		return nil
	}
	err := s.notifier.Close(s.lastID)
	s.lastID = 0
	return err
}

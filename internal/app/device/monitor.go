package device

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Errors
var (
	ErrAlreadyStarted = errors.New("device monitor already started")
)

// Enumerator lists the output endpoints currently present.
type Enumerator interface {
	Outputs() ([]Info, error)
}

// Handler receives device events. It is called on a goroutine owned by
// the monitor, never on the caller's.
type Handler func(Event)

// Monitor is a device change subscription.
type Monitor interface {
	// Start registers h for all event kinds.
	Start(h Handler) error
	// Close unregisters the handler. It is safe to call more than once
	// and when Start never succeeded.
	Close() error
}

// Poller implements Monitor by diffing successive enumerations.
type Poller struct {
	enum     Enumerator
	interval time.Duration

	mu      sync.Mutex
	prev    []Info
	started bool

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// Verify Poller implements Monitor at compile time.
var _ Monitor = (*Poller)(nil)

// NewPoller creates a poller that enumerates every interval.
func NewPoller(enum Enumerator, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	return &Poller{
		enum:     enum,
		interval: interval,
	}
}

// Start takes the initial snapshot and begins polling.
func (p *Poller) Start(h Handler) error {
	if h == nil {
		return errors.New("nil device handler")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrAlreadyStarted
	}

	initial, err := p.enum.Outputs()
	if err != nil {
		return errors.Wrap(err, "failed to enumerate output devices")
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.prev = initial
	p.started = true
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.loop(ctx, h)

	zlog.Debug().Msgf("device: monitor started: devices=%d interval=%v", len(initial), p.interval)
	return nil
}

// Close stops polling and waits for the polling goroutine to exit.
func (p *Poller) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		cancel, done := p.cancel, p.done
		p.mu.Unlock()

		if cancel == nil {
			return
		}
		cancel()
		<-done
		zlog.Debug().Msg("device: monitor stopped")
	})
	return nil
}

func (p *Poller) loop(ctx context.Context, h Handler) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, ev := range p.poll() {
				if ctx.Err() != nil {
					return
				}
				h(ev)
			}
		}
	}
}

// poll enumerates once and returns the changes since the last snapshot.
func (p *Poller) poll() []Event {
	next, err := p.enum.Outputs()
	if err != nil {
		zlog.Warn().Msgf("device: enumeration failed: %v", err)
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	events := Diff(p.prev, next)
	p.prev = next
	return events
}

// Diff returns the events that turn snapshot prev into next: removals,
// then additions, then renames as state changes, then a default change.
func Diff(prev, next []Info) []Event {
	prevByID := make(map[string]Info, len(prev))
	for _, d := range prev {
		prevByID[d.ID] = d
	}
	nextByID := make(map[string]Info, len(next))
	for _, d := range next {
		nextByID[d.ID] = d
	}

	var events []Event
	for _, d := range prev {
		if _, ok := nextByID[d.ID]; !ok {
			events = append(events, Event{Kind: KindRemoved, DeviceID: d.ID, Name: d.Name})
		}
	}
	for _, d := range next {
		old, ok := prevByID[d.ID]
		if !ok {
			events = append(events, Event{Kind: KindAdded, DeviceID: d.ID, Name: d.Name, Active: true})
			continue
		}
		if old.Name != d.Name {
			events = append(events, Event{Kind: KindStateChanged, DeviceID: d.ID, Name: d.Name, Active: true})
		}
	}

	prevDefault, nextDefault := defaultOf(prev), defaultOf(next)
	if nextDefault.ID != "" && nextDefault.ID != prevDefault.ID {
		events = append(events, Event{
			Kind:     KindDefaultChanged,
			DeviceID: nextDefault.ID,
			Name:     nextDefault.Name,
			Active:   true,
			Flow:     FlowRender,
			Role:     RoleMultimedia,
		})
	}
	return events
}

func defaultOf(devices []Info) Info {
	for _, d := range devices {
		if d.IsDefault {
			return d
		}
	}
	return Info{}
}

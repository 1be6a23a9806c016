// Package notification provides the notification manager for broadcasting
// playback events to UI sinks.
package notification

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/bgtunes/internal/app/playback"
)

const defaultSendTimeout = 500 * time.Millisecond

// Notification is a playback event stamped with a sequence number.
type Notification struct {
	SequenceNo uint64
	playback.Event
}

// Stream receives notifications for one subscriber.
type Stream interface {
	Send(*Notification) error
}

// StreamFunc adapts a function to a Stream.
type StreamFunc func(*Notification) error

// Send calls f(n).
func (f StreamFunc) Send(n *Notification) error {
	return f(n)
}

const queueSize = 16

type delivery struct {
	n      *Notification
	result chan error
}

// subscriber owns one stream. A single goroutine calls Send, so a stream
// sees notifications one at a time and in sequence order, even after an
// earlier send outlived its timeout.
type subscriber struct {
	id     string
	stream Stream
	queue  chan delivery
	quit   chan struct{}
}

func newSubscriber(id string, stream Stream) *subscriber {
	s := &subscriber{
		id:     id,
		stream: stream,
		queue:  make(chan delivery, queueSize),
		quit:   make(chan struct{}),
	}
	go s.serve()
	return s
}

func (s *subscriber) serve() {
	for {
		select {
		case <-s.quit:
			return
		case d := <-s.queue:
			d.result <- s.stream.Send(d.n)
		}
	}
}

// Manager fans playback events out to UI sinks. Each event is handed to
// every subscriber before the next one is sent, and a sink that errors or
// stalls past the send timeout is not waited for.
type Manager struct {
	mu      sync.RWMutex
	subs    map[string]*subscriber
	seq     atomic.Uint64
	timeout time.Duration
}

// NewManager returns a manager with the given per-send timeout; zero or
// less means 500ms.
func NewManager(timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return &Manager{subs: map[string]*subscriber{}, timeout: timeout}
}

// Subscribe registers stream and returns its subscription ID.
func (m *Manager) Subscribe(stream Stream) string {
	id := uuid.NewString()

	m.mu.Lock()
	m.subs[id] = newSubscriber(id, stream)
	m.mu.Unlock()
	return id
}

// Unsubscribe drops a subscription. Unknown IDs are ignored.
func (m *Manager) Unsubscribe(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub, ok := m.subs[id]; ok {
		close(sub.quit)
		delete(m.subs, id)
	}
}

func (m *Manager) snapshot() []*subscriber {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*subscriber, 0, len(m.subs))
	for _, s := range m.subs {
		out = append(out, s)
	}
	return out
}

// Broadcast stamps event with the next sequence number and delivers it to
// all current subscribers in parallel.
func (m *Manager) Broadcast(event playback.Event) {
	n := &Notification{SequenceNo: m.seq.Add(1), Event: event}

	var wg sync.WaitGroup
	for _, sub := range m.snapshot() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.deliver(sub, n)
		}()
	}
	wg.Wait()
}

func (m *Manager) deliver(sub *subscriber, n *Notification) {
	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	d := delivery{n: n, result: make(chan error, 1)}
	select {
	case sub.queue <- d:
	case <-sub.quit:
		return
	case <-timer.C:
		zlog.Warn().Msgf("notification: %s backlog full, dropped #%d", sub.id, n.SequenceNo)
		return
	}

	select {
	case err := <-d.result:
		if err != nil {
			zlog.Debug().Msgf("notification: %s rejected #%d: %v", sub.id, n.SequenceNo, err)
		}
	case <-sub.quit:
	case <-timer.C:
		zlog.Debug().Msgf("notification: %s timed out on #%d", sub.id, n.SequenceNo)
	}
}

// Run broadcasts events until the channel is closed.
func (m *Manager) Run(events <-chan playback.Event) {
	for e := range events {
		m.Broadcast(e)
	}
	zlog.Debug().Msg("notification: event stream closed")
}

// SubscriberCount returns the number of registered sinks.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs)
}

// Close drops every subscription.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, sub := range m.subs {
		close(sub.quit)
		delete(m.subs, id)
	}
}

// Package activity collects everything the agent does into a bounded
// in-memory log with live fan-out for the dashboard, optionally backed by a
// sqlite archive that survives restarts.
package activity

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	ringSize         = 100
	subscriberBuffer = 50
)

// Event is one recorded action or observation.
type Event struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Type      string         `json:"type"`
	Details   map[string]any `json:"details"`
}

// Log is the shared activity stream. All methods are safe for concurrent
// use. Recording never blocks: subscribers that fall behind lose events.
type Log struct {
	mu          sync.Mutex
	ring        []Event
	subscribers map[chan Event]struct{}

	archive *Archive // optional
	now     func() time.Time
}

// Option configures a Log.
type Option func(*Log)

// WithArchive attaches a sqlite archive; every event is also inserted there.
func WithArchive(a *Archive) Option {
	return func(l *Log) { l.archive = a }
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// NewLog creates an empty activity log.
func NewLog(opts ...Option) *Log {
	l := &Log{
		ring:        make([]Event, 0, ringSize),
		subscribers: make(map[chan Event]struct{}),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record appends an event and fans it out to all subscribers.
func (l *Log) Record(eventType string, details map[string]any) {
	ev := Event{
		ID:        uuid.NewString(),
		Timestamp: l.now(),
		Type:      eventType,
		Details:   details,
	}

	l.mu.Lock()
	if len(l.ring) == ringSize {
		copy(l.ring, l.ring[1:])
		l.ring = l.ring[:ringSize-1]
	}
	l.ring = append(l.ring, ev)
	for ch := range l.subscribers {
		select {
		case ch <- ev:
		default:
			// Subscriber is full; drop rather than stall the agent.
		}
	}
	l.mu.Unlock()

	if l.archive != nil {
		if err := l.archive.Insert(ev); err != nil {
			log.Warn().Err(err).Str("type", eventType).Msg("failed to archive activity event")
		}
	}

	log.Debug().Str("type", eventType).Msg("activity recorded")
}

// Recent returns up to limit of the most recent events, oldest first.
func (l *Log) Recent(limit int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit <= 0 || limit > len(l.ring) {
		limit = len(l.ring)
	}
	out := make([]Event, limit)
	copy(out, l.ring[len(l.ring)-limit:])
	return out
}

// Subscribe registers a live event channel. The returned cancel function
// removes the subscription and closes the channel.
func (l *Log) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	l.mu.Lock()
	l.subscribers[ch] = struct{}{}
	total := len(l.subscribers)
	l.mu.Unlock()

	log.Info().Int("subscribers", total).Msg("activity subscriber added")

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subscribers, ch)
			total := len(l.subscribers)
			l.mu.Unlock()
			close(ch)
			log.Info().Int("subscribers", total).Msg("activity subscriber removed")
		})
	}
	return ch, cancel
}

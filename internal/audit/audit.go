// Package audit keeps a bounded in-memory trail of verification
// activity for operational inspection.
package audit

import (
	"sync"
	"time"
)

// EventType represents the type of audit event.
type EventType string

const (
	// EventTypeVerify represents a full verification pass over one artifact.
	EventTypeVerify EventType = "verify"
	// EventTypeQuickCheck represents a size-only integrity probe.
	EventTypeQuickCheck EventType = "quick_check"
	// EventTypeDecrypt represents a decryption performed during verification.
	EventTypeDecrypt EventType = "decrypt"
)

// Event is a single audit log entry.
type Event struct {
	Timestamp time.Time     `json:"timestamp"`
	EventType EventType     `json:"event_type"`
	Filename  string        `json:"filename,omitempty"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration_ms"`
}

// Trail is a bounded, concurrency-safe audit event buffer. When full,
// the oldest events are dropped.
type Trail struct {
	mu        sync.Mutex
	events    []*Event
	maxEvents int
}

// NewTrail creates a trail retaining at most maxEvents entries.
func NewTrail(maxEvents int) *Trail {
	if maxEvents <= 0 {
		maxEvents = 1000
	}
	return &Trail{
		events:    make([]*Event, 0, maxEvents),
		maxEvents: maxEvents,
	}
}

// Record appends an event, evicting the oldest if the trail is full.
func (t *Trail) Record(eventType EventType, filename string, success bool, err error, duration time.Duration) {
	e := &Event{
		Timestamp: time.Now(),
		EventType: eventType,
		Filename:  filename,
		Success:   success,
		Duration:  duration,
	}
	if err != nil {
		e.Error = err.Error()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.events) >= t.maxEvents {
		t.events = t.events[1:]
	}
	t.events = append(t.events, e)
}

// Events returns a snapshot of the trail, oldest first.
func (t *Trail) Events() []*Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Event, len(t.events))
	copy(out, t.events)
	return out
}

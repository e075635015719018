package pipeline

import (
	"sync"
	"time"
)

// listenerBuffer is the per-listener event buffer. A listener that falls
// this far behind starts losing events instead of blocking the pipeline.
const listenerBuffer = 32

// EventType tags the payload of a pipeline event.
type EventType string

const (
	EventFrameReady      EventType = "frame-ready"
	EventMatchResults    EventType = "match-results"
	EventPoseGuidance    EventType = "pose-guidance"
	EventSessionComplete EventType = "session-complete"
	EventError           EventType = "error"
)

// Event is the tagged union fanned out to stream listeners. Exactly the
// payload field matching Type is set.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	Frame    *FramePayload    `json:"frame,omitempty"`
	Matches  *Results         `json:"matches,omitempty"`
	Guidance *GuidancePayload `json:"guidance,omitempty"`
	Session  *SessionPayload  `json:"session,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// FramePayload carries one display frame. JPEG bytes serialize to base64
// in JSON.
type FramePayload struct {
	Seq    uint64 `json:"seq"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	JPEG   []byte `json:"jpeg"`
}

// GuidancePayload carries one enrollment step outcome. Step is the
// orchestrator's step result, kept opaque here so the event stream does
// not depend on its shape.
type GuidancePayload struct {
	EmployeeCode string `json:"employee_code"`
	SessionID    string `json:"session_id"`
	Step         any    `json:"step"`
}

// SessionPayload announces a finalized enrollment.
type SessionPayload struct {
	EmployeeCode string `json:"employee_code"`
	SessionID    string `json:"session_id"`
	FullName     string `json:"full_name"`
}

func errorEvent(msg string) Event {
	return Event{Type: EventError, Timestamp: time.Now(), Error: msg}
}

// Broadcaster fans events out to listeners over buffered channels. A full
// listener buffer drops the event; the senders never block.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners []chan Event
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

// AddListener adds an event listener.
func (b *Broadcaster) AddListener() chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, listenerBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes an event listener and closes its channel.
func (b *Broadcaster) RemoveListener(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// SendEvent sends an event to all listeners.
func (b *Broadcaster) SendEvent(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

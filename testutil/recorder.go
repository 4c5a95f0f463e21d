package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/c360/hapticlink/haptic"
)

// EventRecorder collects provider notifications
type EventRecorder struct {
	mu     sync.Mutex
	events []haptic.Event
	unsub  func()
}

// Subscriber is anything with a haptic-style Subscribe method
type Subscriber interface {
	Subscribe(fn func(haptic.Event)) func()
}

// RecordEvents subscribes a new recorder to s and unsubscribes at test cleanup
func RecordEvents(t *testing.T, s Subscriber) *EventRecorder {
	t.Helper()
	r := &EventRecorder{}
	r.unsub = s.Subscribe(r.record)
	t.Cleanup(r.unsub)
	return r
}

func (r *EventRecorder) record(e haptic.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of all recorded events
func (r *EventRecorder) Events() []haptic.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]haptic.Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events of type et
func (r *EventRecorder) OfType(et haptic.EventType) []haptic.Event {
	var out []haptic.Event
	for _, e := range r.Events() {
		if e.Type == et {
			out = append(out, e)
		}
	}
	return out
}

// Connections returns the Connected flags of connection_changed events in order
func (r *EventRecorder) Connections() []bool {
	var out []bool
	for _, e := range r.OfType(haptic.EventConnectionChanged) {
		out = append(out, e.Connected)
	}
	return out
}

// Len returns the number of recorded events
func (r *EventRecorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Reset forgets recorded events
func (r *EventRecorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// WaitFor polls until cond holds or timeout passes
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !cond() {
		t.Fatalf("condition not met within %v", timeout)
	}
}

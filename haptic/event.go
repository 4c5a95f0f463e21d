package haptic

import (
	"sort"
	"sync"
	"time"
)

// EventType names a provider notification
type EventType string

// Notification types
const (
	EventConnectionChanged EventType = "connection_changed"
	EventDeviceDiscovered  EventType = "device_discovered"
	EventError             EventType = "error"
)

// Event is a provider notification
type Event struct {
	Type      EventType `json:"type"`
	Provider  string    `json:"provider"`
	Connected bool      `json:"connected,omitempty"`
	Device    string    `json:"device,omitempty"`
	Message   string    `json:"message,omitempty"`
	Time      time.Time `json:"time"`
}

// ConnectionChanged builds an EventConnectionChanged
func ConnectionChanged(provider string, connected bool) Event {
	return Event{Type: EventConnectionChanged, Provider: provider, Connected: connected, Time: time.Now()}
}

// DeviceDiscovered builds an EventDeviceDiscovered
func DeviceDiscovered(provider, label string) Event {
	return Event{Type: EventDeviceDiscovered, Provider: provider, Device: label, Time: time.Now()}
}

// ErrorEvent builds an EventError carrying a human-readable cause
func ErrorEvent(provider, message string) Event {
	return Event{Type: EventError, Provider: provider, Message: message, Time: time.Now()}
}

// Notifier fans events out to subscribers. The zero value is ready to use.
// Each provider instance owns its own Notifier.
type Notifier struct {
	mu   sync.RWMutex
	next uint64
	subs map[uint64]func(Event)
}

// Subscribe registers fn and returns a func that removes it. The returned
// func is idempotent.
func (n *Notifier) Subscribe(fn func(Event)) func() {
	if fn == nil {
		return func() {}
	}

	n.mu.Lock()
	if n.subs == nil {
		n.subs = make(map[uint64]func(Event))
	}
	id := n.next
	n.next++
	n.subs[id] = fn
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
		})
	}
}

// Publish delivers e to every subscriber, in subscription order, on the
// calling goroutine. Must not be called with provider locks held.
func (n *Notifier) Publish(e Event) {
	n.mu.RLock()
	ids := make([]uint64, 0, len(n.subs))
	for id := range n.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, n.subs[id])
	}
	n.mu.RUnlock()

	for _, fn := range fns {
		fn(e)
	}
}

// Len returns the number of subscribers
func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}

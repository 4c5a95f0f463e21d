package haptic

import "sync/atomic"

// State is the connection state of a provider
type State int

const (
	// StateDisconnected is the initial and terminal state
	StateDisconnected State = iota
	// StateConnecting indicates discovery or the handshake is in progress
	StateConnecting
	// StateScanning indicates a device scan window is open
	StateScanning
	// StateConnected indicates an active device is selected
	StateConnected
)

// String returns a string representation of the state
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateScanning:
		return "scanning"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Status is a point-in-time provider snapshot
type Status struct {
	Name            string   `json:"name"`
	Kind            Kind     `json:"kind"`
	State           string   `json:"state"`
	Connected       bool     `json:"connected"`
	Endpoint        string   `json:"endpoint,omitempty"`
	ActiveDevice    string   `json:"active_device,omitempty"`
	Devices         []string `json:"devices"`
	CommandsSent    int64    `json:"commands_sent"`
	CommandsDropped int64    `json:"commands_dropped"`
	CommandsFailed  int64    `json:"commands_failed"`
}

// Counters tracks command outcomes for a provider instance
type Counters struct {
	sent    atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

// Sent increments the sent counter
func (c *Counters) Sent() { c.sent.Add(1) }

// Dropped increments the dropped counter
func (c *Counters) Dropped() { c.dropped.Add(1) }

// Failed increments the failed counter
func (c *Counters) Failed() { c.failed.Add(1) }

// Fill copies the counter values into s
func (c *Counters) Fill(s *Status) {
	s.CommandsSent = c.sent.Load()
	s.CommandsDropped = c.dropped.Load()
	s.CommandsFailed = c.failed.Load()
}

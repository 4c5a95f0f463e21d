package health

import (
	"fmt"
	"regexp"
	"time"

	"github.com/c360/hapticlink/haptic"
)

// redactions are applied in order: URLs before paths, since URLs contain
// paths, and addresses before ports.
var redactions = []struct {
	re   *regexp.Regexp
	with string
}{
	{regexp.MustCompile(`(?:https?|wss?|nats)://[^\s]+`), "[URL]"},
	{regexp.MustCompile(`/[a-zA-Z0-9/_.-]+`), "[PATH]"},
	{regexp.MustCompile(`[A-Z]:\\[^:\s]+`), "[PATH]"},
	{regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`), "[IP]"},
	{regexp.MustCompile(`:\d{2,5}\b`), "[PORT]"},
	{regexp.MustCompile(`(?i)(password|token|key|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`), "[REDACTED]"},
}

// Health state names
const (
	StateHealthy   = "healthy"
	StateDegraded  = "degraded"
	StateUnhealthy = "unhealthy"
)

// Status represents the health state of a component or system
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics contains health-related metrics
type Metrics struct {
	Uptime          time.Duration `json:"uptime"`
	ErrorCount      int           `json:"error_count"`
	CommandsSent    int64         `json:"commands_sent"`
	CommandsDropped int64         `json:"commands_dropped"`
	CommandsFailed  int64         `json:"commands_failed"`
	LastActivity    time.Time     `json:"last_activity,omitempty"`
}

// IsHealthy returns true if the status is healthy
func (s Status) IsHealthy() bool {
	return s.Status == StateHealthy
}

// IsDegraded returns true if the status is degraded
func (s Status) IsDegraded() bool {
	return s.Status == StateDegraded
}

// IsUnhealthy returns true if the status is unhealthy
func (s Status) IsUnhealthy() bool {
	return s.Status == StateUnhealthy
}

// WithSubStatus adds a sub-status and returns a copy
func (s Status) WithSubStatus(subStatus Status) Status {
	newSubStatuses := make([]Status, len(s.SubStatuses), len(s.SubStatuses)+1)
	copy(newSubStatuses, s.SubStatuses)
	s.SubStatuses = append(newSubStatuses, subStatus)
	return s
}

// sanitizeErrorMessage strips URLs, paths, addresses, ports and
// credentials from a message before it is exposed on /health.
func sanitizeErrorMessage(msg string) string {
	for _, r := range redactions {
		msg = r.re.ReplaceAllString(msg, r.with)
	}
	return msg
}

// FromProvider converts a provider snapshot to a health.Status. A connected
// provider is healthy; any other state is degraded, since the daemon keeps
// serving and a later Connect can recover. lastError, when set, replaces
// the message after sanitization.
func FromProvider(name string, ps haptic.Status, lastError string) Status {
	var status Status
	switch {
	case ps.Connected:
		status = NewHealthy(name, fmt.Sprintf("%s connected (%d devices)", ps.Name, len(ps.Devices)))
	case ps.State == haptic.StateScanning.String() || ps.State == haptic.StateConnecting.String():
		status = NewDegraded(name, ps.Name+" is "+ps.State)
	default:
		status = NewDegraded(name, ps.Name+" is disconnected")
	}
	if !ps.Connected && lastError != "" {
		status.Message = sanitizeErrorMessage(lastError)
	}
	status.Metrics = &Metrics{
		CommandsSent:    ps.CommandsSent,
		CommandsDropped: ps.CommandsDropped,
		CommandsFailed:  ps.CommandsFailed,
	}
	return status
}

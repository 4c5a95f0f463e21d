package health

import (
	"sort"
	"sync"
	"time"

	"github.com/c360/hapticlink/haptic"
)

// Monitor tracks health of multiple components in a thread-safe manner.
// Components either push statuses with Update or register a check that is
// evaluated on every read.
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]Status
	checks   map[string]func() Status
}

// NewMonitor creates a new health monitor
func NewMonitor() *Monitor {
	return &Monitor{
		statuses: make(map[string]Status),
		checks:   make(map[string]func() Status),
	}
}

// Update updates the health status for a named component
func (m *Monitor) Update(name string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}

	m.statuses[name] = status
}

// UpdateHealthy is a convenience method to update a component as healthy
func (m *Monitor) UpdateHealthy(name, message string) {
	m.Update(name, NewHealthy(name, message))
}

// UpdateUnhealthy is a convenience method to update a component as unhealthy
func (m *Monitor) UpdateUnhealthy(name, message string) {
	m.Update(name, NewUnhealthy(name, sanitizeErrorMessage(message)))
}

// UpdateDegraded is a convenience method to update a component as degraded
func (m *Monitor) UpdateDegraded(name, message string) {
	m.Update(name, NewDegraded(name, sanitizeErrorMessage(message)))
}

// AddCheck registers check for name. A check takes precedence over a pushed
// status with the same name.
func (m *Monitor) AddCheck(name string, check func() Status) {
	if check == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check
}

// Get retrieves the health status for a named component
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	check, hasCheck := m.checks[name]
	status, exists := m.statuses[name]
	m.mu.RUnlock()

	if hasCheck {
		return evaluate(name, check), true
	}
	return status, exists
}

// GetAll returns a copy of all current health statuses
func (m *Monitor) GetAll() map[string]Status {
	m.mu.RLock()
	result := make(map[string]Status, len(m.statuses)+len(m.checks))
	for name, status := range m.statuses {
		result[name] = status
	}
	checks := make(map[string]func() Status, len(m.checks))
	for name, check := range m.checks {
		checks[name] = check
	}
	m.mu.RUnlock()

	// Checks run outside the lock; they may call into providers.
	for name, check := range checks {
		result[name] = evaluate(name, check)
	}
	return result
}

// Remove removes a component from monitoring
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.statuses, name)
	delete(m.checks, name)
}

// AggregateHealth returns an aggregated health status for the entire system
func (m *Monitor) AggregateHealth(systemName string) Status {
	all := m.GetAll()
	subStatuses := make([]Status, 0, len(all))
	for _, status := range all {
		subStatuses = append(subStatuses, status)
	}
	return Aggregate(systemName, subStatuses)
}

// ListComponents returns the sorted names of all monitored components
func (m *Monitor) ListComponents() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.statuses)+len(m.checks))
	for name := range m.statuses {
		names = append(names, name)
	}
	for name := range m.checks {
		if _, dup := m.statuses[name]; !dup {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Count returns the number of components being monitored
func (m *Monitor) Count() int {
	return len(m.ListComponents())
}

// Clear removes all components from monitoring
func (m *Monitor) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.statuses = make(map[string]Status)
	m.checks = make(map[string]func() Status)
}

func evaluate(name string, check func() Status) Status {
	status := check()
	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}
	return status
}

// ProviderSource is what a ProviderCheck observes; *controller.Controller
// and every haptic.Provider satisfy it.
type ProviderSource interface {
	Subscribe(fn func(haptic.Event)) func()
	Status() haptic.Status
}

// ProviderCheck follows provider notifications and reports provider health
type ProviderCheck struct {
	name    string
	source  ProviderSource
	started time.Time
	unsub   func()

	mu           sync.Mutex
	errorCount   int
	lastError    string
	lastActivity time.Time
}

// WatchProvider subscribes a new check to source
func WatchProvider(name string, source ProviderSource) *ProviderCheck {
	c := &ProviderCheck{name: name, source: source, started: time.Now()}
	c.unsub = source.Subscribe(c.observe)
	return c
}

func (c *ProviderCheck) observe(e haptic.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastActivity = e.Time
	switch e.Type {
	case haptic.EventError:
		c.errorCount++
		c.lastError = e.Message
	case haptic.EventConnectionChanged:
		if e.Connected {
			c.lastError = ""
		}
	}
}

// Status reports the provider's current health
func (c *ProviderCheck) Status() Status {
	c.mu.Lock()
	lastError, errorCount, lastActivity := c.lastError, c.errorCount, c.lastActivity
	c.mu.Unlock()

	status := FromProvider(c.name, c.source.Status(), lastError)
	status.Metrics.Uptime = time.Since(c.started)
	status.Metrics.ErrorCount = errorCount
	status.Metrics.LastActivity = lastActivity
	return status
}

// Close stops following notifications
func (c *ProviderCheck) Close() {
	c.unsub()
}

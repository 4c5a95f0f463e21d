package health

import (
	"slices"
	"strings"
	"time"
)

func newStatus(component, state, message string) Status {
	return Status{
		Component: component,
		Healthy:   state == StateHealthy,
		Status:    state,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewHealthy creates a healthy status
func NewHealthy(component, message string) Status {
	return newStatus(component, StateHealthy, message)
}

// NewUnhealthy creates an unhealthy status
func NewUnhealthy(component, message string) Status {
	return newStatus(component, StateUnhealthy, message)
}

// NewDegraded creates a degraded status. A provider that is connecting or
// disconnected is degraded, not unhealthy.
func NewDegraded(component, message string) Status {
	return newStatus(component, StateDegraded, message)
}

// Aggregate rolls sub-statuses up into one: the worst state wins, and the
// copy kept in SubStatuses is sorted by component.
func Aggregate(component string, subs []Status) Status {
	if len(subs) == 0 {
		return NewHealthy(component, "No sub-components to aggregate")
	}

	state := StateHealthy
	for _, sub := range subs {
		switch {
		case sub.IsUnhealthy():
			state = StateUnhealthy
		case sub.IsDegraded() && state == StateHealthy:
			state = StateDegraded
		}
	}

	message := "All sub-components are healthy"
	if state != StateHealthy {
		message = "One or more sub-components are " + state
	}

	status := newStatus(component, state, message)
	status.SubStatuses = slices.Clone(subs)
	slices.SortFunc(status.SubStatuses, func(a, b Status) int {
		return strings.Compare(a.Component, b.Component)
	})
	return status
}

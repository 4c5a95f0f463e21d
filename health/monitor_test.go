package health

import (
	"sync"
	"testing"

	"github.com/c360/hapticlink/haptic"
)

// fakeSource is a ProviderSource with a settable status
type fakeSource struct {
	haptic.Notifier
	mu     sync.Mutex
	status haptic.Status
}

func (f *fakeSource) Status() haptic.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeSource) set(s haptic.Status) {
	f.mu.Lock()
	f.status = s
	f.mu.Unlock()
}

func TestNewMonitor(t *testing.T) {
	monitor := NewMonitor()

	if monitor.Count() != 0 {
		t.Errorf("New monitor should have 0 components, got %d", monitor.Count())
	}
}

func TestMonitor_Update(t *testing.T) {
	monitor := NewMonitor()

	monitor.Update("gateway", Status{Component: "wrong-name", Status: StateHealthy, Message: "listening"})

	retrieved, exists := monitor.Get("gateway")
	if !exists {
		t.Fatal("Component should exist after update")
	}
	if retrieved.Component != "gateway" {
		t.Errorf("Expected component name 'gateway', got %s", retrieved.Component)
	}
	if retrieved.Timestamp.IsZero() {
		t.Error("Update should set timestamp if not provided")
	}
}

func TestMonitor_UpdateUnhealthySanitizes(t *testing.T) {
	monitor := NewMonitor()
	monitor.UpdateUnhealthy("nats", "disconnected from nats://10.0.0.2:4222")

	status, _ := monitor.Get("nats")
	if status.Message != "disconnected from [URL]" {
		t.Errorf("Expected sanitized message, got %q", status.Message)
	}
	if !status.IsUnhealthy() {
		t.Errorf("Expected unhealthy, got %s", status.Status)
	}
}

func TestMonitor_CheckTakesPrecedence(t *testing.T) {
	monitor := NewMonitor()
	monitor.UpdateHealthy("provider", "pushed")
	monitor.AddCheck("provider", func() Status { return NewDegraded("", "checked") })
	monitor.AddCheck("ignored", nil)

	status, exists := monitor.Get("provider")
	if !exists || status.Message != "checked" {
		t.Errorf("Expected check result, got %+v", status)
	}
	if status.Component != "provider" {
		t.Errorf("Check result should carry the registered name, got %q", status.Component)
	}
	if monitor.Count() != 1 {
		t.Errorf("Expected 1 component, got %d", monitor.Count())
	}
}

func TestMonitor_AggregateAndRemove(t *testing.T) {
	monitor := NewMonitor()
	monitor.UpdateHealthy("gateway", "listening")
	monitor.UpdateDegraded("provider", "disconnected")

	agg := monitor.AggregateHealth("hapticd")
	if !agg.IsDegraded() {
		t.Errorf("Expected degraded aggregate, got %s", agg.Status)
	}
	if len(agg.SubStatuses) != 2 {
		t.Fatalf("Expected 2 sub-statuses, got %d", len(agg.SubStatuses))
	}

	monitor.Remove("provider")
	if !monitor.AggregateHealth("hapticd").IsHealthy() {
		t.Error("Expected healthy aggregate after removing the degraded component")
	}

	monitor.Clear()
	if monitor.Count() != 0 {
		t.Errorf("Expected 0 components after Clear, got %d", monitor.Count())
	}
}

func TestMonitor_ListComponents(t *testing.T) {
	monitor := NewMonitor()
	monitor.UpdateHealthy("nats", "")
	monitor.UpdateHealthy("gateway", "")
	monitor.AddCheck("provider", func() Status { return NewHealthy("", "") })

	got := monitor.ListComponents()
	want := []string{"gateway", "nats", "provider"}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, got)
		}
	}
}

func TestMonitor_ConcurrentAccess(t *testing.T) {
	monitor := NewMonitor()
	monitor.AddCheck("provider", func() Status { return NewHealthy("", "") })

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				monitor.UpdateHealthy("gateway", "ok")
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = monitor.AggregateHealth("hapticd")
			}
		}()
	}
	wg.Wait()
}

func TestProviderCheck(t *testing.T) {
	src := &fakeSource{status: haptic.Status{Name: "Lovense (Local)", State: "disconnected"}}
	check := WatchProvider("provider", src)

	src.Publish(haptic.ErrorEvent("Lovense (Local)", "discover toys: no toys found"))

	status := check.Status()
	if !status.IsDegraded() {
		t.Errorf("Expected degraded, got %s", status.Status)
	}
	if status.Message != "discover toys: no toys found" {
		t.Errorf("Expected last error as message, got %q", status.Message)
	}
	if status.Metrics.ErrorCount != 1 {
		t.Errorf("Expected 1 error, got %d", status.Metrics.ErrorCount)
	}

	src.set(haptic.Status{Name: "Lovense (Local)", State: "connected", Connected: true, Devices: []string{"Lush"}})
	src.Publish(haptic.ConnectionChanged("Lovense (Local)", true))

	status = check.Status()
	if !status.IsHealthy() {
		t.Errorf("Expected healthy after connect, got %s", status.Status)
	}
	if status.Metrics.ErrorCount != 1 {
		t.Errorf("Error count should persist, got %d", status.Metrics.ErrorCount)
	}

	check.Close()
	if src.Len() != 0 {
		t.Errorf("Close should unsubscribe, %d subscribers left", src.Len())
	}
}

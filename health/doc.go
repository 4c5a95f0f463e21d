// Package health tracks the health of the daemon's parts and aggregates it
// for the /health endpoint.
//
// The package supports three health states:
//   - Healthy: operating normally
//   - Degraded: running, but the haptic provider is not connected to a device
//   - Unhealthy: not functioning (for example the NATS bridge lost its server)
//
// Monitor holds pushed statuses and pull checks. A ProviderCheck follows
// a provider's notifications to count error events and remember the last
// cause, and reports the provider's connection state on demand:
//
//	monitor := health.NewMonitor()
//	check := health.WatchProvider("provider", ctrl)
//	defer check.Close()
//	monitor.AddCheck("provider", check.Status)
//
//	monitor.UpdateHealthy("nats", "Connected")
//
//	system := monitor.AggregateHealth("hapticd")
//
// Error messages are sanitized before they are stored: URLs, paths, IP
// addresses, ports and credentials are replaced with placeholders so that
// health output never leaks device-server addresses or tokens.
package health

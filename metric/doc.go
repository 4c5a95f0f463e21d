// Package metric provides Prometheus-based metrics for hapticlink.
//
// A MetricsRegistry owns a private Prometheus registry holding the core haptic
// metrics (provider connection state, discovered devices, command outcomes,
// command round-trip time, errors) plus any collectors components register
// through Register. Server exposes the registry in
// Prometheus text/OpenMetrics format together with a /health endpoint.
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9090, "/metrics", registry)
//	go func() { _ = server.Start() }()
//
//	core := registry.CoreMetrics()
//	core.RecordConnected("lovense", true)
//	core.RecordCommand("lovense", "vibrate", metric.CommandSent)
//
// Record methods on a nil *Metrics are no-ops, so providers built without a
// registry (tests, embedding applications) need no guards.
package metric

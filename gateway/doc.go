// Package gateway exposes the haptic controller over HTTP and streams its
// notifications to WebSocket clients.
//
// Routes:
//
//	POST /api/v1/connect      discover devices on the active provider
//	POST /api/v1/disconnect   release the provider
//	POST /api/v1/vibrate      {"intensity":0.5,"duration_ms":1000}
//	POST /api/v1/pattern      {"samples":[0.2,0.8],"window_ms":500}
//	POST /api/v1/stop         immediate zero-intensity command
//	GET  /api/v1/status       provider snapshot
//	GET  /api/v1/events       WebSocket event stream
//	GET  /api/v1/history      the last 64 broadcast envelopes
//	GET  /health              aggregated health
//
// Command routes share one token bucket; requests over the limit get 429.
// Malformed or out-of-range bodies get 400. A failed connect returns 502
// with the short cause also published as an error event.
//
// Every event stream frame is an Envelope:
//
//	{"id":"<uuid>","type":"connection_changed","timestamp":1718000000000,"payload":{...}}
//
// The first frame after the upgrade is a "status" snapshot. Provider
// events use their event type, toasts from the mock provider use "toast".
package gateway

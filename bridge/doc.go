// Package bridge mirrors the haptic controller onto NATS.
//
// Provider events are published as JSON to <prefix>.events.<type>. Commands
// are accepted on
//
//	<prefix>.commands.connect
//	<prefix>.commands.disconnect
//	<prefix>.commands.vibrate   {"intensity":0.5,"duration_ms":1000}
//	<prefix>.commands.pattern   {"samples":[0.2,0.8],"window_ms":500}
//	<prefix>.commands.stop
//
// with the same bodies as the HTTP API. After every accepted command the
// controller status is published to <prefix>.status.
//
// Commands are fire-and-forget. Malformed payloads are logged and dropped;
// device failures surface as error events.
package bridge

// Package hapticlink drives haptic devices through interchangeable providers.
//
// # Providers
//
// Three providers implement haptic.Provider:
//   - provider/lovense: the Lovense Connect HTTP API, either a local LAN
//     server or a remote relay (lovense-local, lovense-remote)
//   - provider/buttplug: a Buttplug v3 (Intiface) device server over WebSocket
//   - provider/mock: no hardware, commands are shown as toasts
//
// Each provider discovers devices on Connect, selects one active device and
// sends best-effort commands. Rapid command streams are reduced by
// throttle.Throttler before they reach the network.
//
// # Daemon
//
// cmd/hapticd wires a provider into a controller.Controller and exposes it
// through the gateway (HTTP, WebSocket event stream), the NATS bridge and a
// Prometheus endpoint. The provider is chosen by configuration and can be
// swapped at runtime with SIGHUP.
//
// # Package layout
//
//	haptic            provider interface, commands, events, status
//	throttle          command throttling and intensity quantisation
//	provider/...      provider implementations
//	providerregistry  provider factories keyed by mode
//	controller        active-provider holder with stable subscriptions
//	config            layered JSON/YAML configuration with env overrides
//	gateway           HTTP API and event stream
//	natsclient        NATS connection wrapper
//	bridge            NATS events out, commands in
//	health            component health aggregation
//	metric            Prometheus registry and server
//	errors            error classification and wrapping
package hapticlink

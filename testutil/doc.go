// Package testutil provides fakes and helpers for hapticlink tests.
//
// FakeLovense is an httptest server speaking both Lovense dialects. It
// records every request so tests can assert the exact wire shape and count
// network sends.
//
// FakeButtplug is a WebSocket device server speaking Buttplug protocol
// message version 3. Devices can be preloaded, advertised during a scan,
// added or removed live, and every client message is recorded.
//
// EventRecorder subscribes to a provider and collects its notifications.
//
// MockNATSClient is an in-memory publish/subscribe client with NATS
// wildcard matching. It has the Publish and Subscribe methods of
// natsclient.Client.
//
// The fakes deliberately use raw JSON rather than the provider packages'
// wire types, so a provider test checks its encoding against an
// independent decoder.
package testutil

// Package haptic defines the contract shared by every haptic backend.
//
// A Provider turns application-level vibration requests (an intensity in
// [0,1] and a duration) into protocol-specific device commands, throttles
// them, and reports connectivity through Events. The application holds one
// active Provider at a time and may swap it on configuration change.
//
// Vibrate and Stop are best-effort: they never block beyond a single
// enqueue or network write, never return errors, and are no-ops while the
// provider is disconnected. Connect performs discovery and is the only
// operation that reports failure to its caller; every failure is also
// published as an EventError.
//
// Notifications are delivered synchronously on the goroutine performing
// the network operation. Subscribers must not block and must not assume a
// particular goroutine. A subscriber must not call Connect or Disconnect
// from inside its callback.
package haptic

// Package lovense implements haptic.Provider for the Lovense toy-control HTTP
// API in both of its dialects.
//
// The local dialect (Lovense Connect) takes GET requests with query
// parameters on /command; the remote dialect (Lovense Remote game mode)
// takes JSON POST bodies on the same path. Both report discovered toys under
// data.toys, either as an object or as a JSON string holding the object.
//
// Intensities are quantized to the 0..20 level scale and pass through a
// throttle.Throttler before being queued. Each connection session owns a
// single-worker send queue, so commands reach the device in order and
// Disconnect abandons anything still queued.
//
// Control servers on the LAN use self-signed certificates; certificate
// verification is off unless the TLS config turns it back on.
package lovense

// Package buttplug implements haptic.Provider as a client of a Buttplug
// device server (Intiface Central/Engine) over WebSocket, using protocol
// message version 3.
//
// Connect performs the RequestServerInfo handshake, loads devices the server
// already knows, opens a scan window, stops scanning and selects the first
// device with a vibration actuator. Devices advertised later are adopted when
// no device is active; removal of the active device or loss of the socket
// clears the selection. The provider never reconnects on its own.
//
// Every Vibrate replaces the single pending auto-stop timer, so overlapping
// commands extend the vibration instead of stacking stop commands.
package buttplug

package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// ButtplugMessage is one client message received by FakeButtplug
type ButtplugMessage struct {
	Type string
	ID   uint32
	Body map[string]any
	At   time.Time
}

// FakeButtplug is a WebSocket device server speaking message version 3
type FakeButtplug struct {
	Server *httptest.Server

	upgrader websocket.Upgrader

	mu       sync.Mutex
	known    []map[string]any
	scan     []map[string]any
	maxPing  int
	rejected map[string]string
	messages []ButtplugMessage
	conn     *websocket.Conn

	writeMu sync.Mutex
}

// NewFakeButtplug starts a fake server, closed at test cleanup
func NewFakeButtplug(t *testing.T) *FakeButtplug {
	t.Helper()
	f := &FakeButtplug{rejected: make(map[string]string)}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(func() {
		f.Drop()
		f.Server.Close()
	})
	return f
}

// URL returns the ws:// address of the fake
func (f *FakeButtplug) URL() string {
	return "ws://" + strings.TrimPrefix(f.Server.URL, "http://")
}

// AddKnownDevice makes dev part of the RequestDeviceList reply
func (f *FakeButtplug) AddKnownDevice(dev map[string]any) {
	f.mu.Lock()
	f.known = append(f.known, dev)
	f.mu.Unlock()
}

// AddScanDevice makes dev announced as DeviceAdded after StartScanning
func (f *FakeButtplug) AddScanDevice(dev map[string]any) {
	f.mu.Lock()
	f.scan = append(f.scan, dev)
	f.mu.Unlock()
}

// SetMaxPingTime sets the MaxPingTime reported in ServerInfo, in ms
func (f *FakeButtplug) SetMaxPingTime(ms int) {
	f.mu.Lock()
	f.maxPing = ms
	f.mu.Unlock()
}

// Reject answers every msgType message with an Error
func (f *FakeButtplug) Reject(msgType, message string) {
	f.mu.Lock()
	f.rejected[msgType] = message
	f.mu.Unlock()
}

// AnnounceDevice sends a live DeviceAdded to the connected client
func (f *FakeButtplug) AnnounceDevice(dev map[string]any) error {
	return f.push("DeviceAdded", withID(dev, 0))
}

// RemoveDevice sends a live DeviceRemoved to the connected client
func (f *FakeButtplug) RemoveDevice(index int) error {
	return f.push("DeviceRemoved", map[string]any{"Id": 0, "DeviceIndex": index})
}

// Drop closes the client connection from the server side
func (f *FakeButtplug) Drop() {
	f.mu.Lock()
	conn := f.conn
	f.conn = nil
	f.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// Connected reports whether a client socket is open
func (f *FakeButtplug) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conn != nil
}

// Messages returns received messages, optionally filtered by type
func (f *FakeButtplug) Messages(types ...string) []ButtplugMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ButtplugMessage
	for _, m := range f.messages {
		if len(types) == 0 || contains(types, m.Type) {
			out = append(out, m)
		}
	}
	return out
}

// Reset forgets recorded messages
func (f *FakeButtplug) Reset() {
	f.mu.Lock()
	f.messages = nil
	f.mu.Unlock()
}

// VibratorDevice describes a device with n ScalarCmd vibrate actuators
func VibratorDevice(index int, name string, n int) map[string]any {
	actuators := make([]map[string]any, n)
	for i := range actuators {
		actuators[i] = map[string]any{"StepCount": 20, "FeatureDescriptor": "", "ActuatorType": "Vibrate"}
	}
	return map[string]any{
		"DeviceIndex": index,
		"DeviceName":  name,
		"DeviceMessages": map[string]any{
			"ScalarCmd":     actuators,
			"StopDeviceCmd": map[string]any{},
		},
	}
}

// LegacyVibratorDevice describes a device exposing only VibrateCmd
func LegacyVibratorDevice(index int, name string, features int) map[string]any {
	return map[string]any{
		"DeviceIndex": index,
		"DeviceName":  name,
		"DeviceMessages": map[string]any{
			"VibrateCmd":    map[string]any{"FeatureCount": features},
			"StopDeviceCmd": map[string]any{},
		},
	}
}

// RotatorDevice describes a device without vibration
func RotatorDevice(index int, name string) map[string]any {
	return map[string]any{
		"DeviceIndex": index,
		"DeviceName":  name,
		"DeviceMessages": map[string]any{
			"ScalarCmd":     []map[string]any{{"StepCount": 10, "ActuatorType": "Rotate"}},
			"StopDeviceCmd": map[string]any{},
		},
	}
}

func (f *FakeButtplug) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		if f.conn == conn {
			f.conn = nil
		}
		f.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var batch []map[string]map[string]any
		if err := json.Unmarshal(frame, &batch); err != nil {
			continue
		}
		for _, m := range batch {
			for msgType, body := range m {
				f.handle(conn, msgType, body)
			}
		}
	}
}

func (f *FakeButtplug) handle(conn *websocket.Conn, msgType string, body map[string]any) {
	id := uint32(0)
	if v, ok := body["Id"].(float64); ok {
		id = uint32(v)
	}

	f.mu.Lock()
	f.messages = append(f.messages, ButtplugMessage{Type: msgType, ID: id, Body: body, At: time.Now()})
	rejection, rejected := f.rejected[msgType]
	known := append([]map[string]any(nil), f.known...)
	scan := append([]map[string]any(nil), f.scan...)
	maxPing := f.maxPing
	f.mu.Unlock()

	if rejected {
		_ = f.write(conn, "Error", map[string]any{"Id": id, "ErrorMessage": rejection, "ErrorCode": 3})
		return
	}

	switch msgType {
	case "RequestServerInfo":
		_ = f.write(conn, "ServerInfo", map[string]any{
			"Id": id, "ServerName": "Fake Intiface", "MessageVersion": 3, "MaxPingTime": maxPing,
		})
	case "RequestDeviceList":
		devices := make([]map[string]any, 0, len(known))
		devices = append(devices, known...)
		_ = f.write(conn, "DeviceList", map[string]any{"Id": id, "Devices": devices})
	case "StartScanning":
		_ = f.write(conn, "Ok", map[string]any{"Id": id})
		for _, dev := range scan {
			_ = f.write(conn, "DeviceAdded", withID(dev, 0))
		}
	case "StopScanning":
		_ = f.write(conn, "Ok", map[string]any{"Id": id})
		_ = f.write(conn, "ScanningFinished", map[string]any{"Id": 0})
	default:
		_ = f.write(conn, "Ok", map[string]any{"Id": id})
	}
}

func (f *FakeButtplug) push(msgType string, body map[string]any) error {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	if conn == nil {
		return websocket.ErrCloseSent
	}
	return f.write(conn, msgType, body)
}

func (f *FakeButtplug) write(conn *websocket.Conn, msgType string, body map[string]any) error {
	data, err := json.Marshal([]map[string]any{{msgType: body}})
	if err != nil {
		return err
	}
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

func withID(dev map[string]any, id uint32) map[string]any {
	out := make(map[string]any, len(dev)+1)
	for k, v := range dev {
		out[k] = v
	}
	out["Id"] = id
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

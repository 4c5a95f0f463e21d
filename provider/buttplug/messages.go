package buttplug

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Message version spoken by this client
const messageVersion = 3

// Message type names
const (
	msgRequestServerInfo = "RequestServerInfo"
	msgServerInfo        = "ServerInfo"
	msgOk                = "Ok"
	msgError             = "Error"
	msgPing              = "Ping"
	msgRequestDeviceList = "RequestDeviceList"
	msgDeviceList        = "DeviceList"
	msgDeviceAdded       = "DeviceAdded"
	msgDeviceRemoved     = "DeviceRemoved"
	msgStartScanning     = "StartScanning"
	msgStopScanning      = "StopScanning"
	msgScanningFinished  = "ScanningFinished"
	msgScalarCmd         = "ScalarCmd"
	msgVibrateCmd        = "VibrateCmd"
	msgStopDeviceCmd     = "StopDeviceCmd"
)

const actuatorVibrate = "Vibrate"

type idOnly struct {
	ID uint32 `json:"Id"`
}

type requestServerInfo struct {
	ID             uint32 `json:"Id"`
	ClientName     string
	MessageVersion int
}

type serverInfo struct {
	ID             uint32 `json:"Id"`
	ServerName     string
	MessageVersion int
	MaxPingTime    int
}

type errorMessage struct {
	ID           uint32 `json:"Id"`
	ErrorMessage string
	ErrorCode    int
}

type actuator struct {
	StepCount         int    `json:",omitempty"`
	FeatureDescriptor string `json:",omitempty"`
	ActuatorType      string
}

type featureCount struct {
	FeatureCount int
}

type deviceMessages struct {
	ScalarCmd  []actuator    `json:",omitempty"`
	VibrateCmd *featureCount `json:",omitempty"`
}

type deviceInfo struct {
	DeviceName        string
	DeviceIndex       int
	DeviceDisplayName string `json:",omitempty"`
	DeviceMessages    deviceMessages
}

type deviceList struct {
	ID      uint32 `json:"Id"`
	Devices []deviceInfo
}

type deviceAdded struct {
	ID uint32 `json:"Id"`
	deviceInfo
}

type deviceRemoved struct {
	ID          uint32 `json:"Id"`
	DeviceIndex int
}

type scalar struct {
	Index        int
	Scalar       float64
	ActuatorType string
}

type scalarCmd struct {
	ID          uint32 `json:"Id"`
	DeviceIndex int
	Scalars     []scalar
}

type speed struct {
	Index int
	Speed float64
}

type vibrateCmd struct {
	ID          uint32 `json:"Id"`
	DeviceIndex int
	Speeds      []speed
}

type stopDeviceCmd struct {
	ID          uint32 `json:"Id"`
	DeviceIndex int
}

// envelope is one decoded server message
type envelope struct {
	Type string
	ID   uint32
	Raw  json.RawMessage
}

// encode wraps body as a single-message batch: [{"<type>": body}]
func encode(msgType string, body any) ([]byte, error) {
	return json.Marshal([]map[string]any{{msgType: body}})
}

// decode splits a server frame into messages, in order
func decode(frame []byte) ([]envelope, error) {
	var batch []map[string]json.RawMessage
	if err := json.Unmarshal(frame, &batch); err != nil {
		return nil, err
	}

	out := make([]envelope, 0, len(batch))
	for _, m := range batch {
		if len(m) != 1 {
			return nil, fmt.Errorf("message has %d keys, want 1", len(m))
		}
		for msgType, raw := range m {
			var h idOnly
			if err := json.Unmarshal(raw, &h); err != nil {
				return nil, fmt.Errorf("%s: %w", msgType, err)
			}
			out = append(out, envelope{Type: msgType, ID: h.ID, Raw: raw})
		}
	}
	return out, nil
}

// device is a server device with its vibration features
type device struct {
	index      int
	name       string
	vibrators  []int // ScalarCmd actuator indexes of type Vibrate
	legacySpds int   // VibrateCmd feature count
}

func newDevice(info deviceInfo) *device {
	d := &device{index: info.DeviceIndex, name: info.DeviceName}
	if info.DeviceDisplayName != "" {
		d.name = info.DeviceDisplayName
	}
	for i, a := range info.DeviceMessages.ScalarCmd {
		if a.ActuatorType == actuatorVibrate {
			d.vibrators = append(d.vibrators, i)
		}
	}
	if info.DeviceMessages.VibrateCmd != nil {
		d.legacySpds = info.DeviceMessages.VibrateCmd.FeatureCount
	}
	return d
}

func (d *device) canVibrate() bool {
	return len(d.vibrators) > 0 || d.legacySpds > 0
}

func (d *device) id() string {
	return strconv.Itoa(d.index)
}

// vibrateMessage builds the command setting every vibration feature to v.
// Devices without vibration features get a ScalarCmd on actuator 0.
func (d *device) vibrateMessage(id uint32, v float64) (string, any) {
	if len(d.vibrators) == 0 && d.legacySpds > 0 {
		speeds := make([]speed, d.legacySpds)
		for i := range speeds {
			speeds[i] = speed{Index: i, Speed: v}
		}
		return msgVibrateCmd, vibrateCmd{ID: id, DeviceIndex: d.index, Speeds: speeds}
	}

	indexes := d.vibrators
	if len(indexes) == 0 {
		indexes = []int{0}
	}
	scalars := make([]scalar, len(indexes))
	for i, idx := range indexes {
		scalars[i] = scalar{Index: idx, Scalar: v, ActuatorType: actuatorVibrate}
	}
	return msgScalarCmd, scalarCmd{ID: id, DeviceIndex: d.index, Scalars: scalars}
}

// selectDevice picks the lowest-index device that can vibrate, falling back
// to the lowest-index device. fallback reports the second case.
func selectDevice(devices map[int]*device) (chosen *device, fallback bool) {
	if len(devices) == 0 {
		return nil, false
	}
	ordered := sortedDevices(devices)
	for _, d := range ordered {
		if d.canVibrate() {
			return d, false
		}
	}
	return ordered[0], true
}

func sortedDevices(devices map[int]*device) []*device {
	ordered := make([]*device, 0, len(devices))
	for _, d := range devices {
		ordered = append(ordered, d)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].index < ordered[j].index })
	return ordered
}

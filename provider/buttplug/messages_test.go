package buttplug

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	data, err := encode(msgStopDeviceCmd, stopDeviceCmd{ID: 7, DeviceIndex: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"StopDeviceCmd":{"Id":7,"DeviceIndex":2}}]`, string(data))

	data, err = encode(msgRequestServerInfo, requestServerInfo{ID: 1, ClientName: "hapticlink", MessageVersion: 3})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"RequestServerInfo":{"Id":1,"ClientName":"hapticlink","MessageVersion":3}}]`, string(data))
}

func TestDecode(t *testing.T) {
	msgs, err := decode([]byte(`[{"Ok":{"Id":3}},{"DeviceRemoved":{"Id":0,"DeviceIndex":1}}]`))
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, msgOk, msgs[0].Type)
	assert.Equal(t, uint32(3), msgs[0].ID)
	assert.Equal(t, msgDeviceRemoved, msgs[1].Type)
	assert.Equal(t, uint32(0), msgs[1].ID)

	_, err = decode([]byte(`[{"Ok":{"Id":1},"Error":{"Id":1}}]`))
	assert.Error(t, err)

	_, err = decode([]byte(`{"Ok":{"Id":1}}`))
	assert.Error(t, err)
}

func TestDeviceAddedDecodesEmbeddedInfo(t *testing.T) {
	raw := `{"Id":0,"DeviceIndex":4,"DeviceName":"Lovense Hush","DeviceDisplayName":"Hush",
		"DeviceMessages":{"ScalarCmd":[{"StepCount":20,"ActuatorType":"Vibrate"},{"StepCount":4,"ActuatorType":"Rotate"},{"StepCount":20,"ActuatorType":"Vibrate"}]}}`
	var added deviceAdded
	require.NoError(t, json.Unmarshal([]byte(raw), &added))

	d := newDevice(added.deviceInfo)
	assert.Equal(t, 4, d.index)
	assert.Equal(t, "Hush", d.name)
	assert.Equal(t, []int{0, 2}, d.vibrators)
	assert.True(t, d.canVibrate())
	assert.Equal(t, "4", d.id())
}

func TestVibrateMessage(t *testing.T) {
	t.Run("scalar", func(t *testing.T) {
		d := &device{index: 1, vibrators: []int{0, 2}}
		msgType, body := d.vibrateMessage(9, 0.5)
		data, err := encode(msgType, body)
		require.NoError(t, err)
		assert.JSONEq(t, `[{"ScalarCmd":{"Id":9,"DeviceIndex":1,"Scalars":[
			{"Index":0,"Scalar":0.5,"ActuatorType":"Vibrate"},
			{"Index":2,"Scalar":0.5,"ActuatorType":"Vibrate"}]}}]`, string(data))
	})

	t.Run("legacy", func(t *testing.T) {
		d := &device{index: 0, legacySpds: 2}
		msgType, body := d.vibrateMessage(3, 0.25)
		data, err := encode(msgType, body)
		require.NoError(t, err)
		assert.JSONEq(t, `[{"VibrateCmd":{"Id":3,"DeviceIndex":0,"Speeds":[
			{"Index":0,"Speed":0.25},{"Index":1,"Speed":0.25}]}}]`, string(data))
	})

	t.Run("no vibration features", func(t *testing.T) {
		d := &device{index: 5}
		msgType, body := d.vibrateMessage(1, 1)
		assert.Equal(t, msgScalarCmd, msgType)
		assert.Equal(t, []scalar{{Index: 0, Scalar: 1, ActuatorType: actuatorVibrate}}, body.(scalarCmd).Scalars)
	})
}

func TestSelectDevice(t *testing.T) {
	chosen, fallback := selectDevice(nil)
	assert.Nil(t, chosen)
	assert.False(t, fallback)

	rotator := &device{index: 0, name: "Rotator"}
	vib := &device{index: 3, name: "Vib", vibrators: []int{0}}
	legacy := &device{index: 1, name: "Legacy", legacySpds: 1}

	chosen, fallback = selectDevice(map[int]*device{0: rotator, 3: vib, 1: legacy})
	assert.Same(t, legacy, chosen)
	assert.False(t, fallback)

	chosen, fallback = selectDevice(map[int]*device{7: {index: 7}, 0: rotator})
	assert.Same(t, rotator, chosen)
	assert.True(t, fallback)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Equal(t, int64(0), int64(DefaultConfig().Throttle.RepeatWindow))

	bad := DefaultConfig()
	bad.URL = "http://127.0.0.1:12345"
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.URL = ""
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.ClientName = ""
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.Timeout = 0
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.ScanWindow = -1
	assert.Error(t, bad.Validate())
}

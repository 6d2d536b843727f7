package central

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/bletree/backend"
	"github.com/srg/bletree/tree"
)

func handleU16(v uint16) *uint16 { return &v }

type recordingCallbacks struct {
	values   []string
	payloads [][]byte
	writes   []string
	writeOK  []bool
}

func (r *recordingCallbacks) ValueChanged(uuid string, data []byte) {
	r.values = append(r.values, uuid)
	r.payloads = append(r.payloads, append([]byte(nil), data...))
}

func (r *recordingCallbacks) CharacteristicWritten(uuid string, ok bool) {
	r.writes = append(r.writes, uuid)
	r.writeOK = append(r.writeOK, ok)
}

func TestScanAndAdvertisementCreatesDevice(t *testing.T) {
	core, b := newTestCore(t)

	b.Sink().AdapterStatusChanged(tree.StatusPoweredOn)
	flush(core)
	require.Equal(t, tree.StatusPoweredOn, core.Status())

	core.Scan(true, nil)
	flush(core)
	require.Len(t, b.CallsTo("ScanStart"), 1)

	b.Sink().ScanStarted()
	flush(core)
	assert.True(t, core.scan.isRunning())

	b.Sink().AdvertisementReceived(backend.Advertisement{Address: "AA:BB:CC:DD:EE:FF", Name: "HeartRate1", RSSI: -42})
	flush(core)

	devices := core.tree.Root().Children()
	require.Len(t, devices, 1)
	name, _ := devices[0].GetProperty(tree.PropName)
	assert.Equal(t, "HeartRate1", name.AsString())

	// A second advertisement for the same address updates in place rather than
	// creating a second Device.
	b.Sink().AdvertisementReceived(backend.Advertisement{Address: "AA:BB:CC:DD:EE:FF", RSSI: -40})
	flush(core)
	assert.Len(t, core.tree.Root().Children(), 1)
}

func TestAdvertisementsDroppedAfterScanStop(t *testing.T) {
	core, b := newTestCore(t)
	b.Sink().AdapterStatusChanged(tree.StatusPoweredOn)
	flush(core)
	core.Scan(true, nil)
	flush(core)
	b.Sink().ScanStarted()
	flush(core)

	core.Scan(false, nil)
	flush(core)
	b.Sink().ScanStopped()
	flush(core)

	b.Sink().AdvertisementReceived(backend.Advertisement{Address: "11:22:33:44:55:66", Name: "Ghost"})
	flush(core)

	assert.Empty(t, core.tree.Root().Children(), "advertisements after scan stop must be dropped")
}

func TestPowerOffMidScanStopsScanWithoutTouchingDevices(t *testing.T) {
	core, b := newTestCore(t)
	b.Sink().AdapterStatusChanged(tree.StatusPoweredOn)
	flush(core)
	core.Scan(true, nil)
	flush(core)
	b.Sink().ScanStarted()
	flush(core)
	b.Sink().AdvertisementReceived(backend.Advertisement{Address: "11:22:33:44:55:66", Name: "Ghost"})
	flush(core)
	require.Len(t, core.tree.Root().Children(), 1)

	b.Sink().AdapterStatusChanged(tree.StatusPoweredOff)
	flush(core)

	assert.False(t, core.scan.isRunning())
	assert.Len(t, core.tree.Root().Children(), 1, "powering off must not remove existing Device nodes")
}

func TestConnectIsIdempotentAndRegistersCallbacks(t *testing.T) {
	core, b := newTestCore(t)
	device := core.tree.Root().AppendChild(tree.KindDevice, map[string]tree.Value{
		tree.PropAddress:     tree.String("AA:BB:CC:DD:EE:FF"),
		tree.PropIsConnected: tree.Bool(false),
	})

	cb1 := &recordingCallbacks{}
	handle1, err := core.Connect(device, cb1)
	require.NoError(t, err)
	require.Len(t, b.CallsTo("Connect"), 1)

	cb2 := &recordingCallbacks{}
	handle2, err := core.Connect(device, cb2)
	require.NoError(t, err)
	assert.Same(t, handle1, handle2, "connecting an already-registered device returns the same handle")
	assert.Len(t, b.CallsTo("Connect"), 1, "a second Connect must not re-invoke the backend")

	b.Sink().ConnectResult("AA:BB:CC:DD:EE:FF", true, 150)
	flush(core)

	connected, _ := device.GetProperty(tree.PropIsConnected)
	ok, _ := connected.AsBoolOK()
	assert.True(t, ok)
	assert.Equal(t, 150, core.GetMaximumValueLength(handle1))
}

func TestDisconnectRemovesDeviceAndUnregisters(t *testing.T) {
	core, b := newTestCore(t)
	device := core.tree.Root().AppendChild(tree.KindDevice, map[string]tree.Value{
		tree.PropAddress: tree.String("AA:BB:CC:DD:EE:FF"),
	})
	cb := &recordingCallbacks{}
	handle, err := core.Connect(device, cb)
	require.NoError(t, err)
	b.Sink().ConnectResult("AA:BB:CC:DD:EE:FF", true, 100)
	flush(core)

	require.NoError(t, handle.Disconnect())
	b.Sink().Disconnected("AA:BB:CC:DD:EE:FF")
	flush(core)

	assert.Empty(t, core.tree.Root().Children())
	_, registered := core.callbacks.get("AA:BB:CC:DD:EE:FF")
	assert.False(t, registered)
}

func TestServiceAndCharacteristicDiscoveryFiltersOutOfRangeHandles(t *testing.T) {
	core, b := newTestCore(t)
	device := core.tree.Root().AppendChild(tree.KindDevice, map[string]tree.Value{
		tree.PropAddress:     tree.String("AA:BB:CC:DD:EE:FF"),
		tree.PropIsConnected: tree.Bool(true),
	})

	var servicesDiscoveredEvents int
	core.tree.Listen(func(ev tree.Event) {
		if ev.Kind == tree.ChildAdded && ev.Node.Kind() == tree.KindServicesDiscovered {
			servicesDiscoveredEvents++
		}
	})

	core.DiscoverServices(device)
	flush(core)
	require.Len(t, b.CallsTo("DiscoverServices"), 1)

	b.Sink().ServicesDiscovered("AA:BB:CC:DD:EE:FF", []backend.ServiceInfo{
		{UUID: "180D", Ref: "svc-ref-1", HandleStart: handleU16(10), HandleEnd: handleU16(20)},
	})
	flush(core)
	assert.Equal(t, 1, servicesDiscoveredEvents)

	services := device.Children()
	require.Len(t, services, 1)
	svc := services[0]

	core.DiscoverCharacteristics(svc)
	flush(core)
	require.Len(t, b.CallsTo("DiscoverCharacteristics"), 1)

	b.Sink().CharacteristicsDiscovered("svc-ref-1", []backend.CharacteristicInfo{
		{UUID: "2A37", Ref: "char-ref-in-range", Handle: handleU16(15)},
		{UUID: "2A38", Ref: "char-ref-out-of-range", Handle: handleU16(99)},
	})
	flush(core)

	chars := svc.Children()
	require.Len(t, chars, 1, "the out-of-range characteristic must not appear as a child")
	ref, _ := chars[0].BackendRef()
	assert.Equal(t, "char-ref-in-range", ref)
}

func TestNotificationsEnabledAndValueChangedDeliverToCallbacks(t *testing.T) {
	core, b := newTestCore(t)
	device := core.tree.Root().AppendChild(tree.KindDevice, map[string]tree.Value{
		tree.PropAddress:     tree.String("AA:BB:CC:DD:EE:FF"),
		tree.PropIsConnected: tree.Bool(true),
	})
	cb := &recordingCallbacks{}
	_, err := core.Connect(device, cb)
	require.NoError(t, err)
	b.Sink().ConnectResult("AA:BB:CC:DD:EE:FF", true, 100)
	flush(core)

	svc := device.AppendChild(tree.KindService, map[string]tree.Value{tree.PropUUID: tree.UUID("180D")})
	svc.SetBackendRef("svc-ref-1")
	char := svc.AppendChild(tree.KindCharacteristic, map[string]tree.Value{tree.PropUUID: tree.UUID("2A37")})
	char.SetBackendRef("char-ref-1")

	var notifyEvents int
	core.tree.Listen(func(ev tree.Event) {
		if ev.Kind == tree.ChildAdded && ev.Node.Kind() == tree.KindNotificationsAreEnabled {
			notifyEvents++
		}
	})

	core.EnableNotifications(char)
	flush(core)
	require.Len(t, b.CallsTo("Subscribe"), 1)

	b.Sink().NotificationsEnabled("char-ref-1")
	flush(core)
	assert.Equal(t, 1, notifyEvents)

	b.Sink().ValueChanged("char-ref-1", []byte{0x06, 0x48})
	flush(core)
	require.Len(t, cb.values, 1)
	assert.Equal(t, "00002a37-0000-1000-8000-00805f9b34fb", cb.values[0])
	assert.Equal(t, []byte{0x06, 0x48}, cb.payloads[0])
}

func TestEnableIndicationsSubscribesWithIndicationFlag(t *testing.T) {
	core, b := newTestCore(t)
	device := core.tree.Root().AppendChild(tree.KindDevice, map[string]tree.Value{
		tree.PropAddress:     tree.String("AA:BB:CC:DD:EE:FF"),
		tree.PropIsConnected: tree.Bool(true),
	})
	svc := device.AppendChild(tree.KindService, nil)
	char := svc.AppendChild(tree.KindCharacteristic, map[string]tree.Value{tree.PropUUID: tree.UUID("2A05")})
	char.SetBackendRef("char-ref-1")

	core.EnableIndications(char)
	flush(core)

	calls := b.CallsTo("Subscribe")
	require.Len(t, calls, 1)
	assert.Equal(t, true, calls[0].Args[1], "indications must reach the backend flagged as indications")
}

func TestWriteQueueDrainsInOrderThroughBackend(t *testing.T) {
	core, b := newTestCore(t)
	device := core.tree.Root().AppendChild(tree.KindDevice, map[string]tree.Value{
		tree.PropAddress:     tree.String("AA:BB:CC:DD:EE:FF"),
		tree.PropIsConnected: tree.Bool(true),
	})
	cb := &recordingCallbacks{}
	handle, err := core.Connect(device, cb)
	require.NoError(t, err)
	b.Sink().ConnectResult("AA:BB:CC:DD:EE:FF", true, 100)
	flush(core)

	svc := device.AppendChild(tree.KindService, nil)
	char := svc.AppendChild(tree.KindCharacteristic, map[string]tree.Value{tree.PropUUID: tree.UUID("2A39")})
	char.SetBackendRef("char-ref-1")

	require.NoError(t, handle.Write(char, []byte{1}, true))
	require.NoError(t, handle.Write(char, []byte{2}, true))
	require.Len(t, b.CallsTo("Write"), 1, "only the first write may be in flight")

	b.Sink().WriteComplete("AA:BB:CC:DD:EE:FF", "00002a39-0000-1000-8000-00805f9b34fb", true)
	flush(core)
	require.Len(t, b.CallsTo("Write"), 2, "completing the first write must send the queued second one")

	b.Sink().WriteComplete("AA:BB:CC:DD:EE:FF", "00002a39-0000-1000-8000-00805f9b34fb", true)
	flush(core)

	require.Len(t, cb.writes, 2)
	assert.True(t, cb.writeOK[0])
	assert.True(t, cb.writeOK[1])
}

func TestUnknownMaxPDUFallsBackToConfiguredDefault(t *testing.T) {
	core, b := newTestCore(t)
	device := core.tree.Root().AppendChild(tree.KindDevice, map[string]tree.Value{
		tree.PropAddress:     tree.String("AA:BB:CC:DD:EE:FF"),
		tree.PropIsConnected: tree.Bool(false),
	})
	cb := &recordingCallbacks{}
	handle, err := core.Connect(device, cb)
	require.NoError(t, err)

	b.Sink().ConnectResult("AA:BB:CC:DD:EE:FF", true, 0)
	flush(core)

	_, ok := device.GetProperty(tree.PropMaxPDUSize)
	assert.False(t, ok, "an undiscovered MTU must leave the property absent, not zero")
	assert.Equal(t, core.cfg.DefaultMaxPDUSize, core.GetMaximumValueLength(handle))
}

func TestWriteAfterDisconnectIsDropped(t *testing.T) {
	core, b := newTestCore(t)
	device := core.tree.Root().AppendChild(tree.KindDevice, map[string]tree.Value{
		tree.PropAddress:     tree.String("AA:BB:CC:DD:EE:FF"),
		tree.PropIsConnected: tree.Bool(true),
	})
	cb := &recordingCallbacks{}
	handle, err := core.Connect(device, cb)
	require.NoError(t, err)
	b.Sink().ConnectResult("AA:BB:CC:DD:EE:FF", true, 100)
	flush(core)

	svc := device.AppendChild(tree.KindService, nil)
	char := svc.AppendChild(tree.KindCharacteristic, map[string]tree.Value{tree.PropUUID: tree.UUID("2A39")})
	char.SetBackendRef("char-ref-1")

	b.Sink().Disconnected("AA:BB:CC:DD:EE:FF")
	flush(core)

	err = handle.Write(char, []byte{1}, true)
	assert.ErrorIs(t, err, ErrUnknownDevice)
	assert.Empty(t, b.CallsTo("Write"), "a write against a disconnected device must never reach the backend")
}

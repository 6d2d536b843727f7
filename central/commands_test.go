package central

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/bletree/tree"
)

func TestDiscoverServicesIsNoOpOnDisconnectedDevice(t *testing.T) {
	core, b := newTestCore(t)
	device := core.tree.Root().AppendChild(tree.KindDevice, map[string]tree.Value{
		tree.PropAddress:     tree.String("AA:BB:CC:DD:EE:FF"),
		tree.PropIsConnected: tree.Bool(false),
	})

	core.DiscoverServices(device)
	flush(core)

	assert.Empty(t, b.CallsTo("DiscoverServices"), "discovery against a disconnected device must not reach the backend")
}

func TestEnableNotificationsIsNoOpWithoutBackendRef(t *testing.T) {
	core, b := newTestCore(t)
	device := core.tree.Root().AppendChild(tree.KindDevice, map[string]tree.Value{
		tree.PropAddress:     tree.String("AA:BB:CC:DD:EE:FF"),
		tree.PropIsConnected: tree.Bool(true),
	})
	svc := device.AppendChild(tree.KindService, nil)
	char := svc.AppendChild(tree.KindCharacteristic, map[string]tree.Value{tree.PropUUID: tree.UUID("2A37")})
	// No SetBackendRef call: discovery never ran for this characteristic.

	core.EnableNotifications(char)
	flush(core)

	assert.Empty(t, b.CallsTo("Subscribe"))
}

func TestScanBelowPoweredOnIsNoOp(t *testing.T) {
	core, b := newTestCore(t)
	require.Equal(t, tree.StatusDisabled, core.Status())

	core.Scan(true, nil)
	flush(core)

	assert.Empty(t, b.CallsTo("ScanStart"), "scan must not start while the adapter isn't PoweredOn")
}

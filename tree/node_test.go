package tree_test

import (
	"testing"

	"github.com/srg/bletree/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetPropertyFiresPropertyChanged(t *testing.T) {
	tr := tree.New(tree.KindAdapter)
	var got []tree.Event
	tr.Listen(func(ev tree.Event) { got = append(got, ev) })

	tr.Root().SetProperty(tree.PropStatus, tree.Int(int64(tree.StatusPoweredOn)))

	require.Len(t, got, 1)
	assert.Equal(t, tree.PropertyChanged, got[0].Kind)
	assert.Equal(t, tree.PropStatus, got[0].Property)
	n, ok := got[0].NewValue.AsIntOK()
	require.True(t, ok)
	assert.Equal(t, int64(tree.StatusPoweredOn), n)
}

func TestAppendChildFiresChildAddedAndPersists(t *testing.T) {
	tr := tree.New(tree.KindAdapter)
	var got []tree.Event
	tr.Listen(func(ev tree.Event) { got = append(got, ev) })

	dev := tr.Root().AppendChild(tree.KindDevice, map[string]tree.Value{
		tree.PropAddress: tree.String("AA:BB:CC:DD:EE:FF"),
	})

	require.Len(t, got, 1)
	assert.Equal(t, tree.ChildAdded, got[0].Kind)
	assert.Same(t, dev, got[0].Node)
	assert.Same(t, tr.Root(), got[0].Parent)
	assert.Len(t, tr.Root().Children(), 1)
}

func TestRemoveChildFiresChildRemovedAndReportsMissing(t *testing.T) {
	tr := tree.New(tree.KindAdapter)
	dev := tr.Root().AppendChild(tree.KindDevice, nil)

	var got []tree.Event
	tr.Listen(func(ev tree.Event) { got = append(got, ev) })

	assert.True(t, tr.Root().RemoveChild(dev))
	require.Len(t, got, 1)
	assert.Equal(t, tree.ChildRemoved, got[0].Kind)
	assert.Empty(t, tr.Root().Children())

	assert.False(t, tr.Root().RemoveChild(dev), "removing an already-removed child is a no-op")
}

func TestCommandIsAppendThenImmediatelyRemoved(t *testing.T) {
	tr := tree.New(tree.KindAdapter)
	dev := tr.Root().AppendChild(tree.KindDevice, nil)

	var got []tree.Event
	dev.Command(tree.KindDiscoverServices, nil)
	// Register the listener only after Command runs once, to prove Command itself
	// doesn't retain the node; then run it again to inspect the event pair.
	tr.Listen(func(ev tree.Event) { got = append(got, ev) })
	dev.Command(tree.KindDiscoverServices, nil)

	require.Len(t, got, 2)
	assert.Equal(t, tree.ChildAdded, got[0].Kind)
	assert.Equal(t, tree.ChildRemoved, got[1].Kind)
	assert.Same(t, got[0].Node, got[1].Node)
	assert.Empty(t, dev.Children(), "a command never persists as a child")
}

func TestCommandWithFilterChildren(t *testing.T) {
	tr := tree.New(tree.KindAdapter)
	var seenFilters []string

	tr.Listen(func(ev tree.Event) {
		if ev.Kind != tree.ChildAdded || ev.Node.Kind() != tree.KindScan {
			return
		}
		for _, c := range ev.Node.Children() {
			u, _ := c.GetProperty(tree.PropUUID)
			seenFilters = append(seenFilters, u.AsString())
		}
	})

	tr.Root().Command(tree.KindScan,
		map[string]tree.Value{tree.PropShouldStart: tree.Bool(true)},
		tree.NewServiceFilter("180d"),
	)

	require.Len(t, seenFilters, 1)
	assert.Equal(t, tree.Canonical("180d"), seenFilters[0])
}

func TestChildWithPropertyAndAncestorOfKind(t *testing.T) {
	tr := tree.New(tree.KindAdapter)
	dev := tr.Root().AppendChild(tree.KindDevice, map[string]tree.Value{
		tree.PropAddress: tree.String("AA:BB:CC:DD:EE:FF"),
	})
	svc := dev.AppendChild(tree.KindService, map[string]tree.Value{
		tree.PropUUID: tree.UUID("180d"),
	})
	char := svc.AppendChild(tree.KindCharacteristic, map[string]tree.Value{
		tree.PropUUID: tree.UUID("2a37"),
	})

	found := tr.Root().ChildWithProperty(tree.PropAddress, tree.String("AA:BB:CC:DD:EE:FF"))
	assert.Same(t, dev, found)

	assert.Same(t, dev, char.AncestorOfKind(tree.KindDevice))
	assert.Same(t, svc, char.AncestorOfKind(tree.KindService))
	assert.Nil(t, char.AncestorOfKind(tree.KindAdapter).AncestorOfKind(tree.KindAdapter))
}

func TestBackendRefRoundTrip(t *testing.T) {
	tr := tree.New(tree.KindAdapter)
	svc := tr.Root().AppendChild(tree.KindService, nil)

	_, ok := svc.BackendRef()
	assert.False(t, ok)

	svc.SetBackendRef("/org/bluez/hci0/dev_AA_BB/service0010")
	ref, ok := svc.BackendRef()
	require.True(t, ok)
	assert.Equal(t, "/org/bluez/hci0/dev_AA_BB/service0010", ref)
}

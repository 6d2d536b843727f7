package central

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/bletree/tree"
)

func TestSweepStaleEvictsUnseenDisconnectedDevices(t *testing.T) {
	clock := &fakeClock{}
	core, _ := newTestCore(t, WithClock(clock))

	stale := core.tree.Root().AppendChild(tree.KindDevice, map[string]tree.Value{
		tree.PropAddress:     tree.String("AA:AA:AA:AA:AA:AA"),
		tree.PropIsConnected: tree.Bool(false),
		tree.PropLastSeen:    tree.Int(clock.NowMillis()),
	})
	_ = stale

	clock.advance(core.cfg.StaleAfter + time.Millisecond)

	fresh := core.tree.Root().AppendChild(tree.KindDevice, map[string]tree.Value{
		tree.PropAddress:     tree.String("BB:BB:BB:BB:BB:BB"),
		tree.PropIsConnected: tree.Bool(false),
		tree.PropLastSeen:    tree.Int(clock.NowMillis()),
	})
	_ = fresh

	core.dispatcher.post(core.sweepStale)
	flush(core)

	remaining := core.tree.Root().Children()
	require.Len(t, remaining, 1)
	addr, _ := remaining[0].GetProperty(tree.PropAddress)
	assert.Equal(t, "BB:BB:BB:BB:BB:BB", addr.AsString())
}

func TestSweepStaleNeverEvictsConnectedDevices(t *testing.T) {
	clock := &fakeClock{}
	core, _ := newTestCore(t, WithClock(clock))

	core.tree.Root().AppendChild(tree.KindDevice, map[string]tree.Value{
		tree.PropAddress:     tree.String("AA:AA:AA:AA:AA:AA"),
		tree.PropIsConnected: tree.Bool(true),
		tree.PropLastSeen:    tree.Int(clock.NowMillis()),
	})

	clock.advance(core.cfg.StaleAfter * 10)
	core.dispatcher.post(core.sweepStale)
	flush(core)

	assert.Len(t, core.tree.Root().Children(), 1, "a connected Device must survive regardless of last_seen")
}

func TestSweepStaleEvictionUnregistersCallbacksAndWriteQueue(t *testing.T) {
	clock := &fakeClock{}
	core, b := newTestCore(t, WithClock(clock))

	device := core.tree.Root().AppendChild(tree.KindDevice, map[string]tree.Value{
		tree.PropAddress:     tree.String("AA:AA:AA:AA:AA:AA"),
		tree.PropIsConnected: tree.Bool(false),
		tree.PropLastSeen:    tree.Int(clock.NowMillis()),
	})
	cb := &recordingCallbacks{}
	_, err := core.Connect(device, cb)
	require.NoError(t, err)
	_ = b

	clock.advance(core.cfg.StaleAfter + time.Millisecond)
	core.dispatcher.post(core.sweepStale)
	flush(core)

	_, registered := core.callbacks.get("AA:AA:AA:AA:AA:AA")
	assert.False(t, registered)
	_, hasQueue := core.queues.get("AA:AA:AA:AA:AA:AA")
	assert.False(t, hasQueue)
}

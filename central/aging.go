package central

import (
	"time"

	"github.com/srg/bletree/tree"
)

// startAging launches the periodic eviction sweep that removes disconnected Devices
// not seen within StaleAfter. The ticker itself runs off the dispatcher, but every
// sweep it triggers is posted onto the dispatcher before it touches the tree.
func (c *AdapterCore) startAging() {
	ticker := time.NewTicker(c.cfg.AgingInterval)
	c.agingTicker = ticker
	go func() {
		for {
			select {
			case <-ticker.C:
				c.dispatcher.post(c.sweepStale)
			case <-c.agingStop:
				return
			}
		}
	}()
}

// sweepStale removes every disconnected Device that hasn't been seen within
// StaleAfter. Must run on the dispatcher goroutine.
func (c *AdapterCore) sweepStale() {
	now := c.clock.NowMillis()
	for _, dev := range c.tree.Root().Children() {
		if !dev.HasKind(tree.KindDevice) {
			continue
		}
		connected, _ := dev.GetProperty(tree.PropIsConnected)
		if b, ok := connected.AsBoolOK(); ok && b {
			continue
		}
		lastSeen, ok := dev.GetProperty(tree.PropLastSeen)
		ls, lsOK := lastSeen.AsIntOK()
		if !ok || !lsOK {
			continue
		}
		if now-ls <= c.cfg.StaleAfter.Milliseconds() {
			continue
		}

		address, _ := dev.GetProperty(tree.PropAddress)
		addr := address.AsString()
		c.tree.Root().RemoveChild(dev)
		c.callbacks.unregister(addr)
		c.queues.discard(addr)
	}
}

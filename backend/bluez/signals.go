package bluez

import (
	"github.com/godbus/dbus/v5"

	"github.com/srg/bletree/backend"
)

// startSignalDispatch subscribes to BlueZ's ObjectManager and Properties signals and
// translates them into Sink calls. One dispatch loop serves the whole Backend, since a
// single Backend outlives any one scan/connect/subscribe.
func (b *Backend) startSignalDispatch() {
	ch := make(chan *dbus.Signal, 64)
	b.conn.Signal(ch)

	b.conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0,
		"type='signal',interface='"+ifaceObjectManager+"',member='InterfacesAdded'")
	b.conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0,
		"type='signal',interface='"+ifaceProperties+"',member='PropertiesChanged'")

	stop := make(chan struct{})
	b.mu.Lock()
	b.signalCh = ch
	b.stopSignals = stop
	b.mu.Unlock()

	go func() {
		for {
			select {
			case sig, ok := <-ch:
				if !ok {
					return
				}
				b.handleSignal(sig)
			case <-stop:
				return
			}
		}
	}()
}

func (b *Backend) handleSignal(sig *dbus.Signal) {
	switch sig.Name {
	case ifaceObjectManager + ".InterfacesAdded":
		b.handleInterfacesAdded(sig)
	case ifaceProperties + ".PropertiesChanged":
		b.handlePropertiesChanged(sig)
	}
}

// handleInterfacesAdded reports a freshly discovered advertisement the first time BlueZ
// sees a device. Only devices under our adapter are considered.
func (b *Backend) handleInterfacesAdded(sig *dbus.Signal) {
	if len(sig.Body) < 2 {
		return
	}
	path, ok := sig.Body[0].(dbus.ObjectPath)
	if !ok || !isUnderDevice(path, b.adapterPath) {
		return
	}
	ifaces, ok := sig.Body[1].(map[string]map[string]dbus.Variant)
	if !ok {
		return
	}
	dev, ok := ifaces[ifaceDevice]
	if !ok {
		return
	}
	b.sink.AdvertisementReceived(advertisementFromProps(path, dev))
}

// handlePropertiesChanged covers three cases BlueZ reports through the same signal: an
// advertisement update (RSSI/Name changing on an already-known device), a disconnect
// (Connected going false), and a notification/indication payload (Value changing on a
// GattCharacteristic1).
func (b *Backend) handlePropertiesChanged(sig *dbus.Signal) {
	if len(sig.Body) < 2 {
		return
	}
	iface, ok := sig.Body[0].(string)
	if !ok {
		return
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return
	}

	switch iface {
	case ifaceDevice:
		if !isUnderDevice(sig.Path, b.adapterPath) {
			return
		}
		address := addrFromPath(sig.Path)
		if address == "" {
			return
		}
		if connected, has := changed["Connected"]; has {
			if v, ok := connected.Value().(bool); ok && !v {
				b.sink.Disconnected(address)
				return
			}
		}
		if _, hasRSSI := changed["RSSI"]; hasRSSI {
			b.sink.AdvertisementReceived(advertisementFromProps(sig.Path, changed))
		} else if _, hasName := changed["Name"]; hasName {
			b.sink.AdvertisementReceived(advertisementFromProps(sig.Path, changed))
		}
	case ifaceGattChar:
		if v, has := changed["Value"]; has {
			if raw, ok := v.Value().([]byte); ok {
				b.sink.ValueChanged(string(sig.Path), raw)
			}
		}
	}
}

// advertisementFromProps builds a backend.Advertisement from whatever subset of
// org.bluez.Device1 properties a signal carried. Missing fields are left zero; the core
// treats an empty Name as "no scan response received yet".
func advertisementFromProps(path dbus.ObjectPath, props map[string]dbus.Variant) backend.Advertisement {
	adv := backend.Advertisement{Address: addrFromPath(path)}
	if n, ok := props["Alias"]; ok {
		adv.Name, _ = n.Value().(string)
	}
	if adv.Name == "" {
		if n, ok := props["Name"]; ok {
			adv.Name, _ = n.Value().(string)
		}
	}
	if r, ok := props["RSSI"]; ok {
		if v, ok := r.Value().(int16); ok {
			adv.RSSI = v
		}
	}
	if u, ok := props["UUIDs"]; ok {
		adv.Services, _ = u.Value().([]string)
	}
	return adv
}

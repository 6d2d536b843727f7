package bluez

import (
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"

	"github.com/srg/bletree/backend"
)

// servicesResolvedTimeout bounds how long DiscoverServices waits for BlueZ to finish
// resolving GATT services after a connection.
const servicesResolvedTimeout = 10 * time.Second
const servicesResolvedPoll = 100 * time.Millisecond

// DiscoverServices waits for BlueZ's ServicesResolved property to go true, then walks
// the object tree for every GattService1 nested under the device.
func (b *Backend) DiscoverServices(address string) error {
	devicePath := pathFromAddr(b.adapterPath, address)
	go func() {
		if !b.waitServicesResolved(devicePath) {
			return // failed discovery surfaces as the event never firing
		}
		objects, err := managedObjects(b.conn)
		if err != nil {
			b.log.WithError(err).Warn("bluez: GetManagedObjects during service discovery")
			return
		}

		var services []backend.ServiceInfo
		for path, ifaces := range objects {
			if !isUnderDevice(path, devicePath) {
				continue
			}
			svc, ok := ifaces[ifaceGattService]
			if !ok {
				continue
			}
			uuid, _ := svc["UUID"].Value().(string)
			services = append(services, backend.ServiceInfo{
				UUID: uuid,
				Ref:  string(path),
			})
		}
		b.sink.ServicesDiscovered(address, services)
	}()
	return nil
}

func (b *Backend) waitServicesResolved(devicePath dbus.ObjectPath) bool {
	deadline := time.Now().Add(servicesResolvedTimeout)
	for time.Now().Before(deadline) {
		var v dbus.Variant
		err := b.conn.Object(bluezDest, devicePath).Call(ifaceProperties+".Get", 0, ifaceDevice, "ServicesResolved").Store(&v)
		if err == nil {
			if resolved, ok := v.Value().(bool); ok && resolved {
				return true
			}
		}
		time.Sleep(servicesResolvedPoll)
	}
	return false
}

// DiscoverCharacteristics walks the object tree for every GattCharacteristic1 nested
// under serviceRef (a D-Bus object path), decoding the Flags property into the
// write-capability bits reflected on the Characteristic record. BlueZ does not expose
// ATT handles over D-Bus, so Handle/ValueHandle are left nil and the core's
// handle-range filtering never rejects anything from this backend.
func (b *Backend) DiscoverCharacteristics(serviceRef string) error {
	servicePath := dbus.ObjectPath(serviceRef)
	go func() {
		objects, err := managedObjects(b.conn)
		if err != nil {
			b.log.WithError(err).Warn("bluez: GetManagedObjects during characteristic discovery")
			return
		}

		var chars []backend.CharacteristicInfo
		for path, ifaces := range objects {
			if !isUnderDevice(path, servicePath) {
				continue
			}
			ch, ok := ifaces[ifaceGattChar]
			if !ok {
				continue
			}
			uuid, _ := ch["UUID"].Value().(string)
			flags, _ := ch["Flags"].Value().([]string)

			chars = append(chars, backend.CharacteristicInfo{
				UUID:                    uuid,
				Ref:                     string(path),
				CanWriteWithResponse:    containsFlag(flags, "write"),
				CanWriteWithoutResponse: containsFlag(flags, "write-without-response"),
			})
		}
		b.sink.CharacteristicsDiscovered(serviceRef, chars)
	}()
	return nil
}

func containsFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}

// Subscribe enables notifications via StartNotify (BlueZ negotiates notification vs.
// indication itself based on the characteristic's supported properties; there is no
// separate D-Bus call for indications). A successful call is reported as
// sink.NotificationsEnabled immediately.
func (b *Backend) Subscribe(charRef string, indication bool) error {
	charPath := dbus.ObjectPath(charRef)
	if err := b.conn.Object(bluezDest, charPath).Call(ifaceGattChar+".StartNotify", 0).Err; err != nil {
		return fmt.Errorf("bluez: StartNotify %s: %w", charRef, err)
	}
	b.sink.NotificationsEnabled(charRef)
	return nil
}

// Write performs GattCharacteristic1.WriteValue, asynchronously so a slow peripheral
// doesn't block the caller.
func (b *Backend) Write(charRef, charUUID, address string, data []byte, withResponse bool) error {
	charPath := dbus.ObjectPath(charRef)
	writeType := "command"
	if withResponse {
		writeType = "request"
	}
	go func() {
		opts := map[string]any{"type": writeType}
		err := b.conn.Object(bluezDest, charPath).Call(ifaceGattChar+".WriteValue", 0, data, opts).Err
		if err != nil {
			b.log.WithFields(logrus.Fields{"char": charRef, "error": err}).Warn("bluez: write failed")
		}
		b.sink.WriteComplete(address, charUUID, err == nil)
	}()
	return nil
}

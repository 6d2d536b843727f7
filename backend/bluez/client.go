// Package bluez implements backend.Backend over BlueZ's D-Bus API, the sole OS backend
// this repository compiles in. It talks to the system bus directly: the object-manager
// tree is walked for adapters, devices, and GATT objects, and InterfacesAdded /
// PropertiesChanged signals drive advertisements, disconnects, and notification
// payloads.
package bluez

import (
	"fmt"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"

	"github.com/srg/bletree/backend"
	"github.com/srg/bletree/tree"
)

// Backend is the BlueZ-backed implementation of backend.Backend.
type Backend struct {
	log *logrus.Logger

	mu          sync.Mutex
	conn        *dbus.Conn
	adapterPath dbus.ObjectPath
	sink        backend.Sink
	signalCh    chan *dbus.Signal
	stopSignals chan struct{}
}

// New returns a Backend that logs through log, or logrus.StandardLogger() if log is nil.
func New(log *logrus.Logger) *Backend {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Backend{log: log}
}

// Open connects to the system bus, locates the first BlueZ adapter, powers it on if
// necessary, and starts the signal-dispatch goroutine that turns BlueZ D-Bus events into
// Sink calls.
func (b *Backend) Open(sink backend.Sink) error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("bluez: connect system bus: %w", err)
	}

	adapterPath, err := findAdapter(conn)
	if err != nil {
		conn.Close()
		return err
	}

	b.mu.Lock()
	b.conn = conn
	b.adapterPath = adapterPath
	b.sink = sink
	b.mu.Unlock()

	status, err := b.ensurePoweredOn()
	if err != nil {
		conn.Close()
		return err
	}

	b.startSignalDispatch()
	sink.AdapterStatusChanged(status)
	return nil
}

// findAdapter walks the BlueZ object tree for the first object implementing
// org.bluez.Adapter1.
func findAdapter(conn *dbus.Conn) (dbus.ObjectPath, error) {
	objects, err := managedObjects(conn)
	if err != nil {
		return "", fmt.Errorf("bluez: GetManagedObjects: %w", err)
	}
	for path, ifaces := range objects {
		p := string(path)
		if strings.HasPrefix(p, adapterPrefix) && strings.Count(p, "/") == 3 {
			if _, ok := ifaces[ifaceAdapter]; ok {
				return path, nil
			}
		}
	}
	return "", fmt.Errorf("bluez: no adapter found")
}

// managedObjects fetches the full BlueZ object tree; adapter detection and every
// discovery walk in this package use this.
func managedObjects(conn *dbus.Conn) (map[dbus.ObjectPath]map[string]map[string]dbus.Variant, error) {
	var out map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	err := conn.Object(bluezDest, bluezRoot).Call(ifaceObjectManager+".GetManagedObjects", 0).Store(&out)
	return out, err
}

// ensurePoweredOn reads the adapter's Powered property, powers it on if it's off, and
// returns the resulting status. Unauthorized is reported if BlueZ refuses the Set call
// outright (typically a polkit/D-Bus permission denial).
func (b *Backend) ensurePoweredOn() (tree.AdapterStatus, error) {
	obj := b.conn.Object(bluezDest, b.adapterPath)

	var poweredVariant dbus.Variant
	if err := obj.Call(ifaceProperties+".Get", 0, ifaceAdapter, "Powered").Store(&poweredVariant); err != nil {
		return tree.StatusDisabled, fmt.Errorf("bluez: read Powered: %w", err)
	}
	powered, _ := poweredVariant.Value().(bool)
	if powered {
		return tree.StatusPoweredOn, nil
	}

	call := obj.Call(ifaceProperties+".Set", 0, ifaceAdapter, "Powered", dbus.MakeVariant(true))
	if call.Err != nil {
		if dbusErr, ok := call.Err.(dbus.Error); ok && strings.Contains(dbusErr.Name, "AccessDenied") {
			return tree.StatusUnauthorized, nil
		}
		return tree.StatusPoweredOff, nil
	}
	return tree.StatusPoweredOn, nil
}

// ScanStart begins LE discovery, optionally filtered to advertisements whose service
// UUID list intersects filters. BlueZ's StartDiscovery call itself blocks until
// discovery is confirmed started, so a successful return is reported as
// sink.ScanStarted immediately rather than waiting for a separate signal.
func (b *Backend) ScanStart(filters []string) error {
	obj := b.conn.Object(bluezDest, b.adapterPath)
	discoveryFilter := map[string]any{"Transport": "le"}
	if len(filters) > 0 {
		discoveryFilter["UUIDs"] = filters
	}
	if err := obj.Call(ifaceAdapter+".SetDiscoveryFilter", 0, discoveryFilter).Err; err != nil {
		b.log.WithError(err).Warn("bluez: SetDiscoveryFilter failed, scanning unfiltered")
	}
	if err := obj.Call(ifaceAdapter+".StartDiscovery", 0).Err; err != nil {
		return fmt.Errorf("bluez: StartDiscovery: %w", err)
	}
	b.sink.ScanStarted()
	return nil
}

// ScanStop stops LE discovery.
func (b *Backend) ScanStop() error {
	obj := b.conn.Object(bluezDest, b.adapterPath)
	if err := obj.Call(ifaceAdapter+".StopDiscovery", 0).Err; err != nil {
		return fmt.Errorf("bluez: StopDiscovery: %w", err)
	}
	b.sink.ScanStopped()
	return nil
}

// Connect issues Device1.Connect, which blocks on the D-Bus call until BlueZ has either
// connected or failed, so it's run off the caller's goroutine. The connection is only
// reported once ServicesResolved goes true, not on the bare Connected signal, so a host
// that issues DISCOVER_SERVICES the instant it sees is_connected=true never races
// BlueZ's own GATT resolution.
func (b *Backend) Connect(address string) error {
	devicePath := pathFromAddr(b.adapterPath, address)
	go func() {
		err := b.conn.Object(bluezDest, devicePath).Call(ifaceDevice+".Connect", 0).Err
		if err != nil {
			b.log.WithFields(logrus.Fields{"address": address, "error": err}).Warn("bluez: connect failed")
			b.sink.ConnectResult(address, false, 0)
			return
		}
		if !b.waitServicesResolved(devicePath) {
			b.log.WithField("address", address).Warn("bluez: ServicesResolved never went true")
			b.sink.ConnectResult(address, false, 0)
			return
		}
		maxPDU := b.negotiatedMaxPDU(devicePath)
		b.sink.ConnectResult(address, true, maxPDU)
	}()
	return nil
}

// negotiatedMaxPDU reads the device's MTU, when BlueZ exposes one, minus the 3-byte ATT
// header. BlueZ's Device1 does not universally expose MTU outside a connected GATT
// characteristic's AcquireNotify/Write file descriptor options, so absence of the
// property is not an error — callers fall back to central.Config.DefaultMaxPDUSize.
func (b *Backend) negotiatedMaxPDU(devicePath dbus.ObjectPath) int {
	var mtu dbus.Variant
	if err := b.conn.Object(bluezDest, devicePath).Call(ifaceProperties+".Get", 0, ifaceDevice, "MTU").Store(&mtu); err != nil {
		return 0
	}
	if v, ok := mtu.Value().(uint16); ok && v > 3 {
		return int(v) - 3
	}
	return 0
}

// Disconnect issues Device1.Disconnect. The resulting tree cleanup happens when the
// signal dispatcher observes the device's Connected property go false, not here.
func (b *Backend) Disconnect(address string) error {
	devicePath := pathFromAddr(b.adapterPath, address)
	go func() {
		if err := b.conn.Object(bluezDest, devicePath).Call(ifaceDevice+".Disconnect", 0).Err; err != nil {
			b.log.WithFields(logrus.Fields{"address": address, "error": err}).Warn("bluez: disconnect call failed")
		}
	}()
	return nil
}

// Close stops the signal dispatcher and closes the D-Bus connection.
func (b *Backend) Close() error {
	b.mu.Lock()
	stop := b.stopSignals
	conn := b.conn
	b.mu.Unlock()
	if stop != nil {
		close(stop)
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

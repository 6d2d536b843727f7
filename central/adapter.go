// Package central implements the adapter core: the single authority that owns the
// state tree, serializes every mutation through one dispatcher goroutine, drives the
// scan lifecycle and aging sweep, and turns host calls and Backend events into tree
// mutations and command insertions.
package central

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/bletree/backend"
	"github.com/srg/bletree/tree"
)

// ErrUnknownDevice is returned when a host call references a Device node that the tree
// no longer holds (already disconnected, or evicted by the aging sweep).
var ErrUnknownDevice = errors.New("central: unknown or disconnected device")

// ErrNoBackendRef is returned by Write when the target Characteristic node carries no
// backend reference, i.e. it was not created by characteristic discovery. Commands aimed
// at such a node (EnableNotifications, EnableIndications) are silent no-ops instead.
var ErrNoBackendRef = errors.New("central: node has no backend reference")

// Option configures an AdapterCore at construction time.
type Option func(*AdapterCore)

// WithConfig overrides the default tunables.
func WithConfig(cfg *Config) Option {
	return func(c *AdapterCore) { c.cfg = cfg }
}

// WithLogger overrides the default logrus logger.
func WithLogger(log *logrus.Logger) Option {
	return func(c *AdapterCore) { c.log = log }
}

// WithClock overrides the monotonic clock used for last_seen/aging (test hook).
func WithClock(clock Clock) Option {
	return func(c *AdapterCore) { c.clock = clock }
}

// AdapterCore is the heart of the library: one state Tree, one Backend, one dispatcher
// goroutine, plus the two components that need locking independent of the dispatcher
// (the callback registry and the write queue manager), since Connect and Write are
// synchronous host-facing calls that consult them from arbitrary goroutines.
type AdapterCore struct {
	tree       *tree.Tree
	backend    backend.Backend
	cfg        *Config
	log        *logrus.Logger
	clock      Clock
	dispatcher *dispatcher
	scan       *scanFSM
	callbacks  *callbackRegistry
	queues     *writeQueueManager

	agingTicker *time.Ticker
	agingStop   chan struct{}
	closeOnce   sync.Once
}

// Construct builds an AdapterCore around b, opens it, and starts the dispatcher and
// aging sweep. The returned error is whatever b.Open reported.
func Construct(b backend.Backend, opts ...Option) (*AdapterCore, error) {
	c := &AdapterCore{
		backend:    b,
		tree:       tree.New(tree.KindAdapter),
		cfg:        DefaultConfig(),
		log:        logrus.StandardLogger(),
		clock:      newRealClock(),
		callbacks:  newCallbackRegistry(),
		queues:     newWriteQueueManager(),
		dispatcher: newDispatcher(),
		agingStop:  make(chan struct{}),
	}
	c.scan = newScanFSM(c)
	for _, opt := range opts {
		opt(c)
	}

	c.installCommandRouter()
	go c.dispatcher.run()
	c.startAging()

	if err := b.Open(&coreSink{core: c}); err != nil {
		c.log.WithError(err).Error("backend open failed")
		c.Close()
		return nil, err
	}
	return c, nil
}

// Tree exposes the state tree for read access and Listen subscriptions.
func (c *AdapterCore) Tree() *tree.Tree { return c.tree }

// Status returns a snapshot of the adapter's status property.
func (c *AdapterCore) Status() tree.AdapterStatus {
	v, ok := c.tree.Root().GetProperty(tree.PropStatus)
	if !ok {
		return tree.StatusDisabled
	}
	n, _ := v.AsIntOK()
	return tree.AdapterStatus(n)
}

func (c *AdapterCore) setStatus(status tree.AdapterStatus) {
	c.tree.Root().SetProperty(tree.PropStatus, tree.Int(int64(status)))
}

// Scan requests the scan lifecycle start (serviceUUIDs non-empty restricts advertised
// results to devices advertising one of those services) or stop (serviceUUIDs ignored),
// by inserting a transient SCAN command under the Adapter root. It returns immediately;
// the result is observed through Device child events and the status property, never
// through a return value.
func (c *AdapterCore) Scan(start bool, serviceUUIDs []string) {
	filters := make([]*tree.Node, len(serviceUUIDs))
	for i, u := range serviceUUIDs {
		filters[i] = tree.NewServiceFilter(u)
	}
	c.postCommand(c.tree.Root(), tree.KindScan, map[string]tree.Value{
		tree.PropShouldStart: tree.Bool(start),
	}, filters...)
}

// postCommand inserts a command under node on the dispatcher goroutine, so that the
// command router (which may mutate scanFSM state unprotected by its own mutex) only
// ever runs serialized with every other tree mutation. A nil node is a no-op: it means
// the host is holding a reference to a record that's already gone.
func (c *AdapterCore) postCommand(node *tree.Node, kind tree.Kind, props map[string]tree.Value, filterChildren ...*tree.Node) {
	if node == nil {
		return
	}
	c.dispatcher.post(func() {
		node.Command(kind, props, filterChildren...)
	})
}

// DiscoverServices inserts a DISCOVER_SERVICES command under device. A no-op if device
// is nil, not a Device, or not connected.
func (c *AdapterCore) DiscoverServices(device *tree.Node) {
	c.postCommand(device, tree.KindDiscoverServices, nil)
}

// DiscoverCharacteristics inserts a DISCOVER_CHARACTERISTICS command under service. A
// no-op if the owning Device is not connected.
func (c *AdapterCore) DiscoverCharacteristics(service *tree.Node) {
	c.postCommand(service, tree.KindDiscoverCharacteristics, nil)
}

// EnableNotifications inserts an ENABLE_NOTIFICATIONS command under char.
func (c *AdapterCore) EnableNotifications(char *tree.Node) {
	c.postCommand(char, tree.KindEnableNotifications, nil)
}

// EnableIndications inserts an ENABLE_INDICATIONS command under char.
func (c *AdapterCore) EnableIndications(char *tree.Node) {
	c.postCommand(char, tree.KindEnableIndications, nil)
}

// Connect registers cb in the callback registry and asks the backend to connect.
// Calling Connect again for a Device that is already registered returns the same handle
// and leaves cb untouched.
func (c *AdapterCore) Connect(device *tree.Node, cb Callbacks) (*DeviceHandle, error) {
	if device == nil || !device.HasKind(tree.KindDevice) {
		return nil, ErrUnknownDevice
	}
	addrVal, _ := device.GetProperty(tree.PropAddress)
	address := addrVal.AsString()

	handle := &DeviceHandle{core: c, node: device, address: address}
	existing, already := c.callbacks.registerOrGet(address, cb, handle)
	if already {
		return existing, nil
	}

	c.queues.getOrCreate(address)
	if err := c.backend.Connect(address); err != nil {
		c.callbacks.unregister(address)
		c.queues.discard(address)
		return nil, err
	}
	return handle, nil
}

// Disconnect requests a disconnect for handle. Tree cleanup (removing the Device node,
// unregistering the callback, discarding the write queue) happens when the backend
// reports completion through Sink.Disconnected, not synchronously here.
func (c *AdapterCore) Disconnect(handle *DeviceHandle) error {
	if handle == nil {
		return ErrUnknownDevice
	}
	return c.backend.Disconnect(handle.address)
}

// GetMaximumValueLength returns the negotiated ATT write size for handle, or the
// configured default if no connection has negotiated one yet.
func (c *AdapterCore) GetMaximumValueLength(handle *DeviceHandle) int {
	if handle == nil {
		return c.cfg.DefaultMaxPDUSize
	}
	v, ok := handle.node.GetProperty(tree.PropMaxPDUSize)
	if !ok {
		return c.cfg.DefaultMaxPDUSize
	}
	n, _ := v.AsIntOK()
	return int(n)
}

// Write enqueues data for char on handle's device. Writes for a device go out strictly
// one at a time, in submission order. The callback registered at Connect time is
// invoked with the outcome once the backend reports completion.
func (c *AdapterCore) Write(handle *DeviceHandle, char *tree.Node, data []byte, withResponse bool) error {
	if handle == nil || char == nil {
		return ErrUnknownDevice
	}
	// A disconnected or aged-out device must drop the write, not resurrect a fresh
	// queue for a ghost address.
	if c.findDeviceByAddress(handle.address) == nil {
		return ErrUnknownDevice
	}
	ref, ok := char.BackendRef()
	if !ok {
		return ErrNoBackendRef
	}
	uuidVal, _ := char.GetProperty(tree.PropUUID)
	uuid, _ := uuidVal.AsUUIDOK()

	entry := writeEntry{
		charUUID:     uuid,
		charRef:      ref,
		data:         append([]byte(nil), data...),
		withResponse: withResponse,
	}
	q := c.queues.getOrCreate(handle.address)
	if q.enqueue(entry) {
		return c.backend.Write(entry.charRef, entry.charUUID, handle.address, entry.data, entry.withResponse)
	}
	return nil
}

// Close stops the aging sweep and dispatcher and releases the backend's OS handles.
// Idempotent.
func (c *AdapterCore) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.agingTicker != nil {
			c.agingTicker.Stop()
		}
		close(c.agingStop)
		c.dispatcher.stop()
		err = c.backend.Close()
	})
	return err
}

// DeviceHandle is the host-facing reference to a connected device. It wraps the Device
// node so that Write/Disconnect/GetMaximumValueLength don't require the host to keep
// re-deriving the address.
type DeviceHandle struct {
	core    *AdapterCore
	node    *tree.Node
	address string
}

// Node returns the wrapped Device record.
func (h *DeviceHandle) Node() *tree.Node { return h.node }

// Address returns the device's BLE address.
func (h *DeviceHandle) Address() string { return h.address }

// Write is a convenience wrapper around AdapterCore.Write.
func (h *DeviceHandle) Write(char *tree.Node, data []byte, withResponse bool) error {
	return h.core.Write(h, char, data, withResponse)
}

// Disconnect is a convenience wrapper around AdapterCore.Disconnect.
func (h *DeviceHandle) Disconnect() error {
	return h.core.Disconnect(h)
}

// MaxPDUSize is a convenience wrapper around AdapterCore.GetMaximumValueLength.
func (h *DeviceHandle) MaxPDUSize() int {
	return h.core.GetMaximumValueLength(h)
}

// --- Sink application, run exclusively on the dispatcher goroutine. ---

func (c *AdapterCore) applyStatusChange(status tree.AdapterStatus) {
	c.setStatus(status)
	if status != tree.StatusPoweredOn {
		c.scan.forceIdle()
	}
}

func (c *AdapterCore) applyAdvertisement(adv backend.Advertisement) {
	if !c.scan.isRunning() {
		return
	}
	device := c.findDeviceByAddress(adv.Address)
	now := c.clock.NowMillis()
	if device == nil {
		// A filtered advertisement often omits the name, so under a UUID filter a
		// nameless advertisement must not surface a Device node until a later
		// scan-response carries the name.
		if c.scan.hasFilters() && adv.Name == "" {
			return
		}
		c.tree.Root().AppendChild(tree.KindDevice, map[string]tree.Value{
			tree.PropAddress:     tree.String(adv.Address),
			tree.PropName:        tree.String(adv.Name),
			tree.PropRSSI:        tree.Int(int64(adv.RSSI)),
			tree.PropIsConnected: tree.Bool(false),
			tree.PropLastSeen:    tree.Int(now),
		})
		return
	}
	device.SetProperty(tree.PropRSSI, tree.Int(int64(adv.RSSI)))
	device.SetProperty(tree.PropLastSeen, tree.Int(now))
	if adv.Name != "" {
		device.SetProperty(tree.PropName, tree.String(adv.Name))
	}
}

func (c *AdapterCore) applyConnectResult(address string, ok bool, maxPDU int) {
	device := c.findDeviceByAddress(address)
	if !ok {
		c.callbacks.unregister(address)
		c.queues.discard(address)
		return
	}
	if device == nil {
		return
	}
	device.SetProperty(tree.PropIsConnected, tree.Bool(true))
	// maxPDU==0 means the backend couldn't discover the negotiated MTU; leave the
	// property absent so GetMaximumValueLength falls back to cfg.DefaultMaxPDUSize
	// instead of handing the host a bogus zero-length.
	if maxPDU > 0 {
		device.SetProperty(tree.PropMaxPDUSize, tree.Int(int64(maxPDU)))
	}
}

func (c *AdapterCore) applyDisconnected(address string) {
	if device := c.findDeviceByAddress(address); device != nil {
		c.tree.Root().RemoveChild(device)
	}
	c.callbacks.unregister(address)
	c.queues.discard(address)
}

func (c *AdapterCore) applyServicesDiscovered(address string, services []backend.ServiceInfo) {
	device := c.findDeviceByAddress(address)
	if device == nil {
		return
	}
	for _, existing := range device.Children() {
		if existing.HasKind(tree.KindService) {
			device.RemoveChild(existing)
		}
	}
	for _, si := range services {
		props := map[string]tree.Value{tree.PropUUID: tree.UUID(si.UUID)}
		if si.HandleStart != nil {
			props[tree.PropHandleStart] = tree.Int(int64(*si.HandleStart))
		}
		if si.HandleEnd != nil {
			props[tree.PropHandleEnd] = tree.Int(int64(*si.HandleEnd))
		}
		svc := device.AppendChild(tree.KindService, props)
		svc.SetBackendRef(si.Ref)
	}
	device.Command(tree.KindServicesDiscovered, nil)
}

func (c *AdapterCore) applyCharacteristicsDiscovered(serviceRef string, chars []backend.CharacteristicInfo) {
	service := c.findServiceByRef(serviceRef)
	if service == nil {
		return
	}
	startVal, hasStart := service.GetProperty(tree.PropHandleStart)
	endVal, hasEnd := service.GetProperty(tree.PropHandleEnd)
	start, _ := startVal.AsIntOK()
	end, _ := endVal.AsIntOK()

	for _, existing := range service.Children() {
		if existing.HasKind(tree.KindCharacteristic) {
			service.RemoveChild(existing)
		}
	}
	for _, ci := range chars {
		if ci.Handle != nil && hasStart && hasEnd {
			h := int64(*ci.Handle)
			if h < start || h > end {
				continue // outside the parent Service's handle range
			}
		}
		props := map[string]tree.Value{tree.PropUUID: tree.UUID(ci.UUID)}
		if ci.Handle != nil {
			props[tree.PropHandle] = tree.Int(int64(*ci.Handle))
		}
		if ci.ValueHandle != nil {
			props[tree.PropValueHandle] = tree.Int(int64(*ci.ValueHandle))
		}
		if ci.Properties != nil {
			props[tree.PropProperties] = tree.Int(int64(*ci.Properties))
		}
		props[tree.PropCanWriteWithResponse] = tree.Bool(ci.CanWriteWithResponse)
		props[tree.PropCanWriteWithoutResponse] = tree.Bool(ci.CanWriteWithoutResponse)

		ch := service.AppendChild(tree.KindCharacteristic, props)
		ch.SetBackendRef(ci.Ref)
	}
}

func (c *AdapterCore) applyNotificationsEnabled(charRef string) {
	char := c.findCharByRef(charRef)
	if char == nil {
		return
	}
	char.Command(tree.KindNotificationsAreEnabled, nil)
}

func (c *AdapterCore) applyValueChanged(charRef string, data []byte) {
	char := c.findCharByRef(charRef)
	if char == nil {
		return
	}
	device := char.AncestorOfKind(tree.KindDevice)
	if device == nil {
		return
	}
	addrVal, _ := device.GetProperty(tree.PropAddress)
	cb, ok := c.callbacks.get(addrVal.AsString())
	if !ok {
		return
	}
	uuidVal, _ := char.GetProperty(tree.PropUUID)
	uuid, _ := uuidVal.AsUUIDOK()
	cb.ValueChanged(uuid, data)
}

func (c *AdapterCore) applyWriteComplete(address, charUUID string, ok bool) {
	q, exists := c.queues.get(address)
	if !exists {
		return
	}
	next, hasNext := q.completeHead()
	if cb, cbOK := c.callbacks.get(address); cbOK {
		cb.CharacteristicWritten(charUUID, ok)
	}
	if hasNext {
		_ = c.backend.Write(next.charRef, next.charUUID, address, next.data, next.withResponse)
	}
}

// --- Lookups by the backend-opaque refs Sink events arrive keyed on. ---

func (c *AdapterCore) findDeviceByAddress(address string) *tree.Node {
	return c.tree.Root().ChildOfKindWithProperty(tree.KindDevice, tree.PropAddress, tree.String(address))
}

func (c *AdapterCore) findServiceByRef(ref string) *tree.Node {
	for _, device := range c.tree.Root().Children() {
		if !device.HasKind(tree.KindDevice) {
			continue
		}
		for _, svc := range device.Children() {
			if !svc.HasKind(tree.KindService) {
				continue
			}
			if r, ok := svc.BackendRef(); ok && r == ref {
				return svc
			}
		}
	}
	return nil
}

func (c *AdapterCore) findCharByRef(ref string) *tree.Node {
	for _, device := range c.tree.Root().Children() {
		if !device.HasKind(tree.KindDevice) {
			continue
		}
		for _, svc := range device.Children() {
			if !svc.HasKind(tree.KindService) {
				continue
			}
			for _, ch := range svc.Children() {
				if !ch.HasKind(tree.KindCharacteristic) {
					continue
				}
				if r, ok := ch.BackendRef(); ok && r == ref {
					return ch
				}
			}
		}
	}
	return nil
}

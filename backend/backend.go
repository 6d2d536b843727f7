// Package backend defines the contract that every OS-specific transport implements:
// power/scan/connect/discover/subscribe/write, each reported back to the core through
// a Sink. Exactly one implementation is compiled into this repository, package
// backend/bluez (Linux/BlueZ over D-Bus); a macOS Core Bluetooth or Windows WinRT port
// would implement this same interface.
package backend

import "github.com/srg/bletree/tree"

// ServiceInfo is what a backend reports after service discovery completes. Ref is the
// backend-opaque key (a D-Bus object path, for BlueZ) stashed on the resulting Service
// node so a later DISCOVER_CHARACTERISTICS can find it again without the core decoding
// its form.
type ServiceInfo struct {
	UUID        string
	Ref         string
	HandleStart *uint16
	HandleEnd   *uint16
}

// CharacteristicInfo is what a backend reports after characteristic discovery
// completes.
type CharacteristicInfo struct {
	UUID                    string
	Ref                     string
	Handle                  *uint16
	ValueHandle             *uint16
	Properties              *int
	CanWriteWithResponse    bool
	CanWriteWithoutResponse bool
}

// Advertisement is what a backend reports for each BLE advertisement received while
// scanning.
type Advertisement struct {
	Address  string
	Name     string // empty until a scan response carries it
	RSSI     int16
	Services []string // advertised service UUIDs, when the backend can report them
}

// Sink is how a backend reports asynchronous results back to the core. Every method is
// called from whatever goroutine the backend's own OS callback arrived on; Sink
// implementations are responsible for marshaling onto the core's single dispatcher
// goroutine before touching the tree — callers do not need to do this themselves.
type Sink interface {
	// AdapterStatusChanged reports a new adapter status.
	AdapterStatusChanged(status tree.AdapterStatus)

	// AdvertisementReceived reports one advertisement seen while scanning.
	AdvertisementReceived(adv Advertisement)

	// ScanStarted/ScanStopped confirm the OS has actually started or stopped
	// scanning, driving the Idle/Starting/Running/Stopping scan lifecycle.
	ScanStarted()
	ScanStopped()

	// ConnectResult reports the outcome of a Connect call. On success maxPDU is the
	// negotiated ATT MTU minus 3, or 0 when the backend cannot discover the MTU; ok=false
	// means the connection attempt failed and
	// no further events for this address should be expected until Connect is
	// retried.
	ConnectResult(address string, ok bool, maxPDU int)

	// Disconnected reports that address is no longer connected, whether the
	// disconnect was requested or happened on the peer's/radio's initiative.
	Disconnected(address string)

	// ServicesDiscovered reports the result of service discovery. A failed
	// discovery never calls this at all — no synchronous error is surfaced; the
	// expected SERVICES_DISCOVERED event simply never fires.
	ServicesDiscovered(address string, services []ServiceInfo)

	// CharacteristicsDiscovered reports the result of characteristic discovery for
	// the service identified by serviceRef.
	CharacteristicsDiscovered(serviceRef string, chars []CharacteristicInfo)

	// NotificationsEnabled reports that a subscribe call completed successfully for
	// charRef. A failed subscribe simply never calls this.
	NotificationsEnabled(charRef string)

	// ValueChanged reports an incoming notification/indication payload for charRef.
	// data is only valid for the duration of the call; implementations must copy
	// before retaining it.
	ValueChanged(charRef string, data []byte)

	// WriteComplete reports the outcome of a single queued write.
	WriteComplete(address, charUUID string, ok bool)
}

// Backend is the OS-specific transport contract. Calls for different devices may
// arrive concurrently on different goroutines — the core serializes only the
// per-device write queue and the state-tree mutations a Sink call produces, not the OS
// calls themselves. Every method here must therefore be safe to call concurrently for
// distinct addresses/refs; it should kick off the OS operation and return quickly,
// reporting completion later through Sink, possibly from a different goroutine (a
// BlueZ D-Bus signal-handler goroutine, a Core Bluetooth delegate thread, a WinRT
// completion handler). Sink implementations marshal onto the core's single dispatcher
// goroutine themselves before touching the tree.
type Backend interface {
	// Open determines whether a usable adapter exists and is powered, reporting the
	// initial status via sink.AdapterStatusChanged before returning. On Linux, Open
	// powers the adapter on if it is found off.
	Open(sink Sink) error

	// ScanStart begins scanning, optionally filtered to advertisements whose
	// service-UUID list intersects filters. Completion is reported via
	// sink.ScanStarted.
	ScanStart(filters []string) error

	// ScanStop stops scanning. Completion is reported via sink.ScanStopped.
	ScanStop() error

	// Connect initiates a GATT connection to address. Completion is reported via
	// sink.ConnectResult.
	Connect(address string) error

	// Disconnect requests a disconnect from address. Completion is reported via
	// sink.Disconnected.
	Disconnect(address string) error

	// DiscoverServices enumerates address's primary services. Completion is
	// reported via sink.ServicesDiscovered.
	DiscoverServices(address string) error

	// DiscoverCharacteristics enumerates the characteristics of the service
	// identified by the backend-opaque serviceRef. Completion is reported via
	// sink.CharacteristicsDiscovered.
	DiscoverCharacteristics(serviceRef string) error

	// Subscribe enables notifications (or, if indication is true, indications) on
	// the characteristic identified by charRef. Completion is reported via
	// sink.NotificationsEnabled.
	Subscribe(charRef string, indication bool) error

	// Write writes data to the characteristic identified by charRef. Completion is
	// reported via sink.WriteComplete, keyed by the characteristic's UUID (not its
	// ref) because that is what the Write Queue and Callbacks bundle key on.
	Write(charRef, charUUID, address string, data []byte, withResponse bool) error

	// Close releases every OS handle the backend holds.
	Close() error
}

// Package tree implements the observable, hierarchical document that the BLE central
// core uses both as its data store and as its command bus: adapter/device/service/
// characteristic records live here, and commands are delivered as a child appended then
// immediately removed (see Node.Command).
package tree

// Kind tags every Node with its record or command type. The string values are part of
// the observable contract.
type Kind string

const (
	// Record kinds. Adapter, Device, Service and Characteristic persist; Scan is
	// transient (see Node.Command).
	KindAdapter        Kind = "ADAPTER"
	KindDevice         Kind = "DEVICE"
	KindService        Kind = "SERVICE"
	KindCharacteristic Kind = "CHARACTERISTIC"
	KindScan           Kind = "SCAN"

	// Command kinds. Never persisted: see Node.Command.
	KindDiscoverServices        Kind = "DISCOVER_SERVICES"
	KindServicesDiscovered      Kind = "SERVICES_DISCOVERED"
	KindDiscoverCharacteristics Kind = "DISCOVER_CHARACTERISTICS"
	KindEnableNotifications     Kind = "ENABLE_NOTIFICATIONS"
	KindEnableIndications       Kind = "ENABLE_INDICATIONS"
	KindNotificationsAreEnabled Kind = "NOTIFICATIONS_ARE_ENABLED"

	// kindServiceFilter tags the UUID-filter leaves a SCAN command carries as
	// children. It is not part of the external contract; hosts never see it because
	// SCAN is transient.
	kindServiceFilter Kind = "SERVICE_FILTER"
)

// commandKinds is the set the command router in package central reacts to.
var commandKinds = map[Kind]bool{
	KindScan:                    true,
	KindDiscoverServices:        true,
	KindServicesDiscovered:      true,
	KindDiscoverCharacteristics: true,
	KindEnableNotifications:     true,
	KindEnableIndications:       true,
	KindNotificationsAreEnabled: true,
}

// IsCommand reports whether k is one of the seven transient command kinds.
func (k Kind) IsCommand() bool {
	return commandKinds[k]
}

// AdapterStatus is stored in the tree as an int property, so the numeric values here
// are part of the observable contract.
type AdapterStatus int

const (
	StatusDisabled AdapterStatus = iota
	StatusPoweredOff
	StatusPoweredOn
	StatusUnauthorized
)

func (s AdapterStatus) String() string {
	switch s {
	case StatusDisabled:
		return "Disabled"
	case StatusPoweredOff:
		return "PoweredOff"
	case StatusPoweredOn:
		return "PoweredOn"
	case StatusUnauthorized:
		return "Unauthorized"
	default:
		return "Unknown"
	}
}

// Property names — stable and observable. Declared as constants so typos become
// compile errors instead of silent property misses.
const (
	PropStatus                   = "status"
	PropName                     = "name"
	PropAddress                  = "address"
	PropIsConnected              = "is_connected"
	PropMaxPDUSize               = "max_pdu_size"
	PropRSSI                     = "rssi"
	PropLastSeen                 = "last_seen"
	PropUUID                     = "uuid"
	PropHandleStart              = "handle_start"
	PropHandleEnd                = "handle_end"
	PropHandle                   = "handle"
	PropValueHandle              = "value_handle"
	PropProperties               = "properties"
	PropCanWriteWithResponse     = "can_write_with_response"
	PropCanWriteWithoutResponse  = "can_write_without_response"
	PropShouldStart              = "should_start"

	// propBackendRef is backend-private: it lets a backend stash its own opaque key
	// (a D-Bus object path, for BlueZ) on a Service/Characteristic node without the
	// core ever decoding its form.
	propBackendRef = "backend_ref"
)

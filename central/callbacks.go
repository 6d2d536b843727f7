package central

import "sync"

// Callbacks is the per-connected-device bundle the host registers at Connect time.
// The byte slice passed to ValueChanged is only valid for the duration of the call;
// implementations must copy it to retain it.
type Callbacks interface {
	ValueChanged(uuid string, data []byte)
	CharacteristicWritten(uuid string, ok bool)
}

// callbackRegistry holds one Callbacks bundle per connected device; a device with
// is_connected=true always has an entry here. It is guarded by its own mutex,
// independent of the dispatcher, because Connect is a synchronous host-facing call
// that must consult and mutate it immediately regardless of what the dispatcher
// goroutine is doing.
type callbackRegistry struct {
	mu      sync.Mutex
	byAddr  map[string]Callbacks
	handles map[string]*DeviceHandle
}

func newCallbackRegistry() *callbackRegistry {
	return &callbackRegistry{
		byAddr:  make(map[string]Callbacks),
		handles: make(map[string]*DeviceHandle),
	}
}

// registerOrGet registers cb and handle for address if none is registered yet, and
// reports whether a registration already existed. When one already existed, the
// existing handle is returned and cb is ignored — this is what makes Connect
// idempotent on an already-connected device.
func (r *callbackRegistry) registerOrGet(address string, cb Callbacks, handle *DeviceHandle) (existing *DeviceHandle, alreadyRegistered bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.handles[address]; ok {
		return h, true
	}
	r.byAddr[address] = cb
	r.handles[address] = handle
	return handle, false
}

func (r *callbackRegistry) get(address string) (Callbacks, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.byAddr[address]
	return cb, ok
}

// unregister removes address's entry, on disconnect or on Device removal.
func (r *callbackRegistry) unregister(address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byAddr, address)
	delete(r.handles, address)
}

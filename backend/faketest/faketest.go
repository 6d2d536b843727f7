// Package faketest provides a scriptable fake of backend.Backend so the central package
// test suite can exercise the core's tree-mutation logic without talking to BlueZ over
// D-Bus.
package faketest

import (
	"sync"

	"github.com/srg/bletree/backend"
)

// Call records one invocation of a Backend method, for tests that want to assert on
// call order/arguments beyond just the resulting tree state.
type Call struct {
	Method string
	Args   []any
}

// Backend is a scriptable, concurrency-safe fake of backend.Backend. Method errors are
// configured per-call via the *Err fields; zero value means "succeed". Every method
// that normally completes asynchronously through Sink does not call the sink itself —
// tests drive completion explicitly (Backend.Sink().AdapterStatusChanged(...), etc.) so
// that ordering is entirely in the test's control.
type Backend struct {
	mu sync.Mutex

	sink backend.Sink

	OpenErr                    error
	ScanStartErr               error
	ScanStopErr                error
	ConnectErr                 error
	DisconnectErr              error
	DiscoverServicesErr        error
	DiscoverCharacteristicsErr error
	SubscribeErr               error
	WriteErr                   error
	CloseErr                   error

	Calls []Call
}

// New returns a fake Backend with every call defaulting to success.
func New() *Backend {
	return &Backend{}
}

// Sink returns the Sink the core registered via Open, so tests can simulate backend
// events (sink.AdapterStatusChanged, sink.AdvertisementReceived, and so on). Nil until
// Open has been called.
func (b *Backend) Sink() backend.Sink {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sink
}

func (b *Backend) record(method string, args ...any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls = append(b.Calls, Call{Method: method, Args: args})
}

func (b *Backend) Open(sink backend.Sink) error {
	b.mu.Lock()
	b.sink = sink
	b.mu.Unlock()
	b.record("Open")
	return b.OpenErr
}

func (b *Backend) ScanStart(filters []string) error {
	b.record("ScanStart", filters)
	return b.ScanStartErr
}

func (b *Backend) ScanStop() error {
	b.record("ScanStop")
	return b.ScanStopErr
}

func (b *Backend) Connect(address string) error {
	b.record("Connect", address)
	return b.ConnectErr
}

func (b *Backend) Disconnect(address string) error {
	b.record("Disconnect", address)
	return b.DisconnectErr
}

func (b *Backend) DiscoverServices(address string) error {
	b.record("DiscoverServices", address)
	return b.DiscoverServicesErr
}

func (b *Backend) DiscoverCharacteristics(serviceRef string) error {
	b.record("DiscoverCharacteristics", serviceRef)
	return b.DiscoverCharacteristicsErr
}

func (b *Backend) Subscribe(charRef string, indication bool) error {
	b.record("Subscribe", charRef, indication)
	return b.SubscribeErr
}

func (b *Backend) Write(charRef, charUUID, address string, data []byte, withResponse bool) error {
	b.record("Write", charRef, charUUID, address, data, withResponse)
	return b.WriteErr
}

func (b *Backend) Close() error {
	b.record("Close")
	return b.CloseErr
}

// CallsTo filters Calls down to the ones matching method, in call order.
func (b *Backend) CallsTo(method string) []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Call
	for _, c := range b.Calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

package central

import (
	"sync"
	"testing"
	"time"

	"github.com/srg/bletree/backend/faketest"
)

// fakeClock gives tests control over last_seen/aging arithmetic without sleeping for
// real seconds.
type fakeClock struct {
	mu  sync.Mutex
	now int64
}

func (c *fakeClock) NowMillis() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d.Milliseconds()
}

// flush blocks until every function already posted to c's dispatcher has run, letting a
// test assert on tree state immediately after simulating a backend event.
func flush(c *AdapterCore) {
	done := make(chan struct{})
	c.dispatcher.post(func() { close(done) })
	<-done
}

// newTestCore constructs an AdapterCore wired to a fresh faketest.Backend, returning
// both for the test to script.
func newTestCore(t *testing.T, opts ...Option) (*AdapterCore, *faketest.Backend) {
	t.Helper()
	b := faketest.New()
	core, err := Construct(b, opts...)
	if err != nil {
		t.Fatalf("Construct: %v", err)
	}
	t.Cleanup(func() { core.Close() })
	return core, b
}

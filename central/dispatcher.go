package central

import "sync"

// dispatcher is the single goroutine permitted to mutate the state tree and invoke
// host callbacks. This library has no ambient host event loop to plug into, so
// AdapterCore runs one internal dispatcher rather than requiring the host to supply
// one — every effect a Backend reports through Sink, every aging sweep tick, and every
// scan-start retry is posted here rather than applied from whatever goroutine produced
// it.
type dispatcher struct {
	work chan func()
	done chan struct{}
	once sync.Once
}

func newDispatcher() *dispatcher {
	return &dispatcher{
		work: make(chan func(), 256),
		done: make(chan struct{}),
	}
}

// run processes posted work until stop is called. It is meant to be started in its own
// goroutine.
func (d *dispatcher) run() {
	for {
		select {
		case fn := <-d.work:
			fn()
		case <-d.done:
			return
		}
	}
}

// post queues fn to run on the dispatcher goroutine. It never blocks the caller beyond
// the channel send; if the dispatcher has already stopped, fn is silently dropped
// (there is nothing left to mutate).
func (d *dispatcher) post(fn func()) {
	select {
	case d.work <- fn:
	case <-d.done:
	}
}

// stop halts the dispatcher goroutine. It is idempotent.
func (d *dispatcher) stop() {
	d.once.Do(func() { close(d.done) })
}

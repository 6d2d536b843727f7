package central

import "sync"

// writeEntry is one pending characteristic write.
type writeEntry struct {
	charUUID     string
	charRef      string
	data         []byte
	withResponse bool
}

// deviceWriteQueue is the per-device write queue: FIFO order, at-most-one write in
// flight, discarded without notification on disconnect.
type deviceWriteQueue struct {
	mu        sync.Mutex
	pending   []writeEntry
	inFlight  bool
	discarded bool
}

func newDeviceWriteQueue() *deviceWriteQueue {
	return &deviceWriteQueue{}
}

// enqueue appends entry and reports whether the caller must now kick off a send (i.e.
// no write is already in flight for this device). A discarded queue silently accepts
// and drops the entry — the device is gone, and a write submitted after disconnect
// yields no callback.
func (q *deviceWriteQueue) enqueue(e writeEntry) (shouldSend bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.discarded {
		return false
	}
	q.pending = append(q.pending, e)
	if q.inFlight {
		return false
	}
	q.inFlight = true
	return true
}

// head returns the entry at the head of the queue without removing it — it is
// the one currently in flight.
func (q *deviceWriteQueue) head() (writeEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.discarded || len(q.pending) == 0 {
		return writeEntry{}, false
	}
	return q.pending[0], true
}

// completeHead pops the head entry (the one that just finished) and reports the next
// entry to send, if any. Once discarded, completeHead is a no-op — completions racing
// a disconnect must not resurrect the queue or fire further sends.
func (q *deviceWriteQueue) completeHead() (next writeEntry, hasNext bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.discarded || len(q.pending) == 0 {
		return writeEntry{}, false
	}
	q.pending = q.pending[1:]
	if len(q.pending) == 0 {
		q.inFlight = false
		return writeEntry{}, false
	}
	return q.pending[0], true
}

// discard empties the queue and marks it so that no further sends or completions are
// honored. Used on disconnect: the disconnect itself is the terminal event, so no
// per-write callback fires for the discarded entries.
func (q *deviceWriteQueue) discard() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.discarded = true
	q.pending = nil
	q.inFlight = false
}

// writeQueueManager owns one deviceWriteQueue per connected device. It is guarded by
// its own mutex because Write is a synchronous host-facing call that consults it off
// the dispatcher goroutine.
type writeQueueManager struct {
	mu     sync.Mutex
	queues map[string]*deviceWriteQueue
}

func newWriteQueueManager() *writeQueueManager {
	return &writeQueueManager{queues: make(map[string]*deviceWriteQueue)}
}

func (m *writeQueueManager) getOrCreate(address string) *deviceWriteQueue {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[address]
	if !ok {
		q = newDeviceWriteQueue()
		m.queues[address] = q
	}
	return q
}

func (m *writeQueueManager) get(address string) (*deviceWriteQueue, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[address]
	return q, ok
}

// discard removes and discards address's queue, if any.
func (m *writeQueueManager) discard(address string) {
	m.mu.Lock()
	q, ok := m.queues[address]
	delete(m.queues, address)
	m.mu.Unlock()
	if ok {
		q.discard()
	}
}

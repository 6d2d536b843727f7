package central

import "time"

// Clock supplies the monotonic millisecond counter behind Device last_seen. It is an
// interface purely so tests can control the passage of time without sleeping for real
// seconds.
type Clock interface {
	NowMillis() int64
}

// realClock is monotonic relative to its own creation (time.Since uses the runtime's
// monotonic clock reading under the hood), which is enough: last_seen values only need
// to be comparable to each other, never to wall-clock time.
type realClock struct {
	start time.Time
}

func newRealClock() *realClock {
	return &realClock{start: time.Now()}
}

func (c *realClock) NowMillis() int64 {
	return time.Since(c.start).Milliseconds()
}

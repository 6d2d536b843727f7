package central

import (
	"time"

	"github.com/srg/bletree/tree"
)

// scanState enumerates the Idle/Starting/Running/Stopping scan lifecycle.
type scanState int

const (
	scanIdle scanState = iota
	scanStarting
	scanRunning
	scanStopping
)

// scanFSM implements the scan lifecycle. Every method here must run on the core's
// dispatcher goroutine; attemptStart's retry continuation is the only part that
// originates off it (a time.AfterFunc goroutine), and it posts back before touching
// any field.
type scanFSM struct {
	core    *AdapterCore
	state   scanState
	filters []string
	elapsed time.Duration
}

func newScanFSM(core *AdapterCore) *scanFSM {
	return &scanFSM{core: core}
}

// requestStart handles SCAN{should_start: true}. Repeating it while already
// Starting/Running is a no-op.
func (s *scanFSM) requestStart(filters []string) {
	if s.state == scanStarting || s.state == scanRunning {
		return
	}
	s.filters = filters
	s.elapsed = 0
	s.state = scanStarting
	s.attemptStart()
}

// attemptStart tries the OS scan-start call once. On transient failure it retries at
// the configured interval until the configured budget is exhausted, at which point the
// adapter is marked Disabled. A late success inside the budget still ends up Running.
func (s *scanFSM) attemptStart() {
	if s.state != scanStarting {
		return // a stop request landed while a retry was in flight
	}
	if err := s.core.backend.ScanStart(s.filters); err == nil {
		return // wait for the backend to confirm via onScanStarted
	}

	s.elapsed += s.core.cfg.ScanStartRetryInterval
	if s.elapsed >= s.core.cfg.ScanStartRetryBudget {
		s.state = scanIdle
		s.core.setStatus(tree.StatusDisabled)
		return
	}
	time.AfterFunc(s.core.cfg.ScanStartRetryInterval, func() {
		s.core.dispatcher.post(s.attemptStart)
	})
}

// requestStop handles SCAN{should_start: false}. Repeating it while already Idle is a
// no-op.
func (s *scanFSM) requestStop() {
	if s.state == scanIdle || s.state == scanStopping {
		return
	}
	s.state = scanStopping
	_ = s.core.backend.ScanStop()
}

// onScanStarted is the backend's confirmation that the OS scan is actually running.
func (s *scanFSM) onScanStarted() {
	if s.state == scanStarting {
		s.state = scanRunning
	}
}

// onScanStopped is the backend's confirmation that the OS scan has actually stopped.
func (s *scanFSM) onScanStopped() {
	s.state = scanIdle
}

// forceIdle snaps the FSM back to Idle without touching the backend, for when the
// adapter itself has gone away mid-scan. Existing Device nodes are left alone; the
// aging sweep handles them. Any retry already scheduled via time.AfterFunc will still
// fire and call attemptStart, but attemptStart's state guard makes that a no-op once
// state is no longer scanStarting.
func (s *scanFSM) forceIdle() {
	s.state = scanIdle
}

// isRunning reports whether advertisements should currently be accepted. Advertisements
// delivered after a stop request (while Stopping, before onScanStopped lands) must be
// dropped.
func (s *scanFSM) isRunning() bool {
	return s.state == scanRunning
}

// hasFilters reports whether the active scan carries a UUID inclusion filter, which
// changes how advertisements without a name are treated.
func (s *scanFSM) hasFilters() bool {
	return len(s.filters) > 0
}

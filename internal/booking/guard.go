package booking

import "sync/atomic"

// SubmitGuard admits at most one in-flight submission (Idle -> Submitting -> Idle).
type SubmitGuard struct {
	busy atomic.Bool
}

// Acquire enters Submitting. The returned release must be deferred by the
// caller; it is nil when another submission holds the guard.
func (g *SubmitGuard) Acquire() (release func(), ok bool) {
	if !g.busy.CompareAndSwap(false, true) {
		return nil, false
	}
	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			g.busy.Store(false)
		}
	}, true
}

// Busy reports whether a submission is in flight.
func (g *SubmitGuard) Busy() bool {
	return g.busy.Load()
}

package readiness

import "fmt"

// latch counts down to zero exactly once.
type latch struct {
	remaining int
}

// countDown reports whether this call brought the latch to zero. Calls past
// zero report false.
func (l *latch) countDown() bool {
	if l.remaining <= 0 {
		return false
	}
	l.remaining--
	return l.remaining == 0
}

// multiWait is shared by every per-interface waiter of one WaitAllReady.
// The two latches are independent: callbacks and releases of different
// interfaces may interleave in any order.
type multiWait struct {
	final    ReadyFunc
	release  func()
	firstErr error
	fired    latch
	released latch
}

func (m *multiWait) ready(obj Object, err error) {
	if err != nil && m.firstErr == nil {
		m.firstErr = err
	}
	if m.fired.countDown() && m.final != nil {
		m.final(obj, m.firstErr)
	}
}

func (m *multiWait) releaseOne() {
	if m.released.countDown() && m.release != nil {
		m.release()
	}
}

// WaitAllReady calls final exactly once, after every interface in ifaces is
// determined, with the first error seen. Errors on one interface do not stop
// the others. release runs once every per-interface waiter is finished with,
// which may be after final returns. If owner is closed first, final never
// runs but release still does.
func (b *Broker) WaitAllReady(obj Object, typ string, ifaces []string, final ReadyFunc, release func(), owner *Owner) error {
	if len(ifaces) == 0 {
		return fmt.Errorf("%w: %s on %s", ErrNoInterfaces, obj.BusName(), typ)
	}
	m := &multiWait{
		final:    final,
		release:  release,
		fired:    latch{remaining: len(ifaces)},
		released: latch{remaining: len(ifaces)},
	}
	// Both latches are armed for every interface before the first
	// EnsureReady, which may complete inline.
	for _, iface := range ifaces {
		b.EnsureReady(obj, typ, iface, &Waiter{
			Ready:   m.ready,
			Release: m.releaseOne,
			Owner:   owner,
		})
	}
	return nil
}

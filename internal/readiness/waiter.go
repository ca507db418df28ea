package readiness

import "github.com/danmuck/missionctl/internal/observability"

// ReadyFunc is called once an interface is determined: err is the fetch
// error, the object's invalidation reason, or nil.
type ReadyFunc func(obj Object, err error)

// Waiter is one registered continuation. A Waiter is single use: hand a
// fresh one to every EnsureReady call.
type Waiter struct {
	Ready ReadyFunc
	// Release runs exactly once when the waiter is finished with, whether it
	// fired, was cancelled, or its object was disposed.
	Release func()
	// Owner cancels the waiter when closed.
	Owner *Owner

	state     *fetchState
	cancelled bool
	done      bool
	released  bool
}

// Cancelled reports whether the waiter was cancelled before firing.
func (w *Waiter) Cancelled() bool {
	return w.cancelled
}

func (w *Waiter) fire(obj Object, err error) {
	if w.cancelled || w.done {
		return
	}
	w.Ready(obj, err)
}

// finish detaches a waiter that will not be cancelled anymore.
func (w *Waiter) finish() {
	w.done = true
	w.state = nil
	if w.Owner != nil {
		w.Owner.untrack(w)
	}
	w.release()
}

func (w *Waiter) cancel() bool {
	if w.cancelled || w.done {
		return false
	}
	w.cancelled = true
	if w.Owner != nil {
		w.Owner.untrack(w)
	}
	if fs := w.state; fs != nil {
		w.state = nil
		fs.compact()
	}
	w.release()
	observability.RecordWaiterCancelled()
	return true
}

func (w *Waiter) release() {
	if w.released {
		return
	}
	w.released = true
	if w.Release != nil {
		w.Release()
	}
}

// Owner is an explicit owner handle: closing it cancels every waiter that
// named it and is still pending.
type Owner struct {
	waiters []*Waiter
	closed  bool
}

func NewOwner() *Owner {
	return &Owner{}
}

// Close cancels every pending waiter registered with o. It is idempotent.
func (o *Owner) Close() {
	if o.closed {
		return
	}
	o.closed = true
	pending := o.waiters
	o.waiters = nil
	for _, w := range pending {
		w.cancel()
	}
}

func (o *Owner) Closed() bool {
	return o.closed
}

// Pending returns how many waiters are still tracked.
func (o *Owner) Pending() int {
	return len(o.waiters)
}

func (o *Owner) track(w *Waiter) {
	o.waiters = append(o.waiters, w)
}

func (o *Owner) untrack(w *Waiter) {
	for i, tracked := range o.waiters {
		if tracked == w {
			o.waiters = append(o.waiters[:i], o.waiters[i+1:]...)
			return
		}
	}
}

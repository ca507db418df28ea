package readiness

// Object is a bus proxy that can defer work until its interfaces are fetched.
// Implementations embed Status.
type Object interface {
	BusName() string
	ObjectPath() string
	// Invalidated returns why the object can no longer be used, or nil.
	Invalidated() error

	status() *Status
}

// Status holds per-object readiness bookkeeping. The zero value is ready to
// use; embed it in every Object implementation.
type Status struct {
	pending map[string]*fetchState
	// ready records the outcome of every completed fetch.
	ready map[string]error
}

func (s *Status) status() *Status {
	return s
}

// IsReady reports whether iface has been fetched, successfully or not.
func (s *Status) IsReady(iface string) bool {
	_, ok := s.ready[iface]
	return ok
}

// FetchError returns the error the fetch of iface completed with, if any.
func (s *Status) FetchError(iface string) error {
	return s.ready[iface]
}

// IsFetching reports whether a fetch for iface is outstanding.
func (s *Status) IsFetching(iface string) bool {
	_, ok := s.pending[iface]
	return ok
}

// Dispose drops every outstanding fetch. Waiters still registered are
// released without being called back, and late replies are ignored.
func (s *Status) Dispose() {
	for iface, fs := range s.pending {
		delete(s.pending, iface)
		fs.disposed = true
		for _, w := range fs.waiters {
			if w.cancelled || w.done {
				continue
			}
			w.finish()
		}
	}
}

func (s *Status) markReady(iface string, err error) {
	delete(s.pending, iface)
	if s.ready == nil {
		s.ready = make(map[string]error)
	}
	s.ready[iface] = err
}

func (s *Status) start(iface string, fs *fetchState) {
	if s.pending == nil {
		s.pending = make(map[string]*fetchState)
	}
	s.pending[iface] = fs
}

// fetchState exists while iface is being fetched for one object.
type fetchState struct {
	desc     *InterfaceDescriptor
	waiters  []*Waiter
	firing   bool
	disposed bool
}

// compact drops cancelled waiters when no fan-out is iterating the list.
func (fs *fetchState) compact() {
	if fs.firing {
		return
	}
	live := fs.waiters[:0]
	for _, w := range fs.waiters {
		if !w.cancelled {
			live = append(live, w)
		}
	}
	for i := len(live); i < len(fs.waiters); i++ {
		fs.waiters[i] = nil
	}
	fs.waiters = live
}

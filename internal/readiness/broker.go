package readiness

import (
	"errors"
	"fmt"

	"github.com/danmuck/missionctl/internal/bus"
	"github.com/danmuck/missionctl/internal/observability"
	"github.com/rs/zerolog"
)

var (
	ErrUnregisteredInterface = errors.New("readiness: interface not registered for type")
	ErrNilWaiter             = errors.New("readiness: waiter has no callback")
	ErrNoInterfaces          = errors.New("readiness: no interfaces to wait for")
)

// Broker issues at most one property fetch per interface per object and fans
// the result out to every waiter. It must only be used from the dispatch
// loop.
type Broker struct {
	conn  bus.Conn
	descs *Descriptors
	log   zerolog.Logger
}

func NewBroker(conn bus.Conn, descs *Descriptors, logger zerolog.Logger) *Broker {
	return &Broker{
		conn:  conn,
		descs: descs,
		log:   logger.With().Str("component", "readiness").Logger(),
	}
}

func (b *Broker) Descriptors() *Descriptors {
	return b.descs
}

// EnsureReady calls w back once iface of obj is determined. If the interface
// is already determined, or obj is invalidated, w fires before EnsureReady
// returns. The result reports whether this call issued the underlying fetch.
func (b *Broker) EnsureReady(obj Object, typ, iface string, w *Waiter) bool {
	if w == nil || w.Ready == nil {
		b.log.Error().Err(ErrNilWaiter).Str("interface", iface).Msg("ensure ready")
		return false
	}
	desc, ok := b.descs.Lookup(typ, iface)
	if !ok {
		err := fmt.Errorf("%w: %s on %s", ErrUnregisteredInterface, iface, typ)
		b.log.Error().Err(err).Str("bus_name", obj.BusName()).Msg("ensure ready")
		w.fire(obj, err)
		w.finish()
		return false
	}

	first := b.ensureReady(obj, desc, w)
	if first && desc.Monitor != nil {
		desc.Monitor(obj, desc.Name)
	}
	return first
}

func (b *Broker) ensureReady(obj Object, desc *InterfaceDescriptor, w *Waiter) bool {
	st := obj.status()
	if w.Owner != nil && w.Owner.Closed() {
		w.cancel()
		return false
	}
	if err := obj.Invalidated(); err != nil {
		w.fire(obj, err)
		w.finish()
		return false
	}
	if st.IsReady(desc.Name) {
		// The fetch error went to the waiters of that fetch only.
		w.fire(obj, obj.Invalidated())
		w.finish()
		return false
	}

	fs, fetching := st.pending[desc.Name]
	if !fetching {
		fs = &fetchState{desc: desc}
		st.start(desc.Name, fs)
	}
	w.state = fs
	fs.waiters = append(fs.waiters, w)
	if w.Owner != nil {
		w.Owner.track(w)
	}
	if fetching {
		return false
	}

	// Issued after the waiter is recorded: a transport may answer inline.
	target := bus.Target{Dest: obj.BusName(), Path: obj.ObjectPath()}
	b.log.Debug().Str("bus_name", target.Dest).Str("interface", desc.Name).Msg("fetching properties")
	bus.GetAll(b.conn, target, desc.Name, func(props bus.Properties, err error) {
		b.complete(obj, fs, props, err)
	})
	return true
}

// Cancel guarantees w will not be called back and releases it immediately.
// It is safe to call from inside another waiter's callback, and more than
// once.
func (b *Broker) Cancel(w *Waiter) {
	if w == nil {
		return
	}
	w.cancel()
}

// IsReady reports whether iface of obj has been determined.
func (b *Broker) IsReady(obj Object, iface string) bool {
	return obj.status().IsReady(iface)
}

func (b *Broker) complete(obj Object, fs *fetchState, props bus.Properties, err error) {
	if fs.disposed {
		return
	}
	st := obj.status()
	iface := fs.desc.Name

	if err == nil {
		observability.RecordPropertyFetch(iface, "ok")
		fs.desc.Build(obj, props)
	} else {
		observability.RecordPropertyFetch(iface, "error")
		b.log.Warn().Err(err).Str("bus_name", obj.BusName()).Str("interface", iface).Msg("property fetch failed")
	}

	// Indexing tolerates waiters appended or cancelled by the callbacks
	// themselves; cancelled entries stay in place and are skipped.
	fs.firing = true
	for i := 0; i < len(fs.waiters); i++ {
		fs.waiters[i].fire(obj, err)
	}
	fs.firing = false
	if fs.disposed {
		return
	}

	// Failed fetches still count as determined so nobody blocks forever.
	st.markReady(iface, err)
	for _, w := range fs.waiters {
		if !w.cancelled && !w.done {
			w.finish()
		}
	}
	fs.waiters = nil
}

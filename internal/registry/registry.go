// Package registry tracks the clients present on the bus and reports when
// every client seen during startup has been introspected.
package registry

import (
	"strings"

	"github.com/danmuck/missionctl/internal/bus"
	"github.com/danmuck/missionctl/internal/client"
	"github.com/danmuck/missionctl/internal/event"
	"github.com/danmuck/missionctl/internal/observability"
	"github.com/danmuck/missionctl/internal/readiness"
	"github.com/rs/zerolog"
)

type Config struct {
	Conn   bus.Conn
	Broker *readiness.Broker
	Logger zerolog.Logger
	// Prefix narrows the names considered clients. Defaults to
	// client.BusNameBase.
	Prefix string
	// Match scores channels against handler filters. Defaults to
	// client.MatchFilters.
	Match client.MatchFunc
}

type entry struct {
	name     string
	proxy    *client.Proxy
	readyID  event.HandlerID
	goneID   event.HandlerID
	lockHeld bool
}

// Registry owns one client.Proxy per well-known client name. It must only be
// used from the dispatch loop.
type Registry struct {
	conn   bus.Conn
	broker *readiness.Broker
	log    zerolog.Logger
	prefix string
	match  client.MatchFunc

	clients map[string]*entry
	// order is discovery order; ranking ties keep it.
	order []*entry

	startupLock int
	startedUp   bool
	started     bool
	closed      bool
	nameSub     bus.Subscription

	added event.List[*client.Proxy]
	ready event.List[struct{}]
}

func New(cfg Config) *Registry {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = client.BusNameBase
	}
	match := cfg.Match
	if match == nil {
		match = client.MatchFilters
	}
	return &Registry{
		conn:        cfg.Conn,
		broker:      cfg.Broker,
		log:         cfg.Logger.With().Str("component", "registry").Logger(),
		prefix:      prefix,
		match:       match,
		clients:     make(map[string]*entry),
		startupLock: 1,
	}
}

// OnClientAdded connects fn to first sightings of a client name.
func (r *Registry) OnClientAdded(fn func(*client.Proxy)) event.HandlerID {
	return r.added.Connect(fn)
}

// OnReady connects fn to the one-time startup completion.
func (r *Registry) OnReady(fn func()) event.HandlerID {
	return r.ready.Connect(func(struct{}) { fn() })
}

// Start subscribes to ownership changes and begins discovery. The initial
// listing holds the startup lock until both name lists have been processed.
func (r *Registry) Start() {
	if r.started {
		return
	}
	r.started = true
	observability.SetStartupLock(r.startupLock)
	r.nameSub = bus.WatchNameOwnerChanged(r.conn, "", r.onNameOwnerChanged)
	bus.ListNames(r.conn, r.onListNames)
}

func (r *Registry) onListNames(names []string, err error) {
	if r.closed {
		return
	}
	if err != nil {
		r.log.Warn().Err(err).Msg("list names failed")
	}
	for _, name := range names {
		r.register(name, "", false)
	}
	bus.ListActivatableNames(r.conn, r.onListActivatableNames)
}

func (r *Registry) onListActivatableNames(names []string, err error) {
	if r.closed {
		return
	}
	if err != nil {
		r.log.Warn().Err(err).Msg("list activatable names failed")
	}
	for _, name := range names {
		r.register(name, "", true)
	}
	r.releaseStartupLock()
}

func (r *Registry) onNameOwnerChanged(name, oldOwner, newOwner string) {
	if r.closed {
		return
	}
	if oldOwner == "" && newOwner != "" {
		r.register(name, newOwner, false)
	}
}

func (r *Registry) register(name, uniqueName string, activatable bool) {
	if !strings.HasPrefix(name, r.prefix) {
		return
	}
	if err := client.CheckValidName(strings.TrimPrefix(name, r.prefix)); err != nil {
		r.log.Warn().Err(err).Str("name", name).Msg("ignoring client")
		observability.RecordInvalidClientName()
		return
	}

	if e, ok := r.clients[name]; ok {
		if activatable {
			e.proxy.SetActivatable()
		} else {
			e.proxy.SetActive(uniqueName)
		}
		return
	}

	proxy := client.NewProxy(client.ProxyConfig{
		Conn:        r.conn,
		Broker:      r.broker,
		Logger:      r.log,
		Name:        name,
		UniqueName:  uniqueName,
		Activatable: activatable,
	})
	e := &entry{name: name, proxy: proxy}
	r.clients[name] = e
	r.order = append(r.order, e)
	if !r.startedUp {
		e.lockHeld = true
		r.startupLock++
		observability.SetStartupLock(r.startupLock)
	}
	observability.SetRegistryClients(len(r.clients))
	r.log.Debug().Str("name", name).Bool("activatable", activatable).Int("startup_lock", r.startupLock).Msg("client added")

	e.readyID = proxy.OnReady(func(*client.Proxy) { r.clientReady(e) })
	e.goneID = proxy.OnGone(func(*client.Proxy) { r.remove(e.name) })
	r.added.Emit(proxy)
	proxy.Start()
}

func (r *Registry) clientReady(e *entry) {
	if !e.lockHeld {
		return
	}
	e.lockHeld = false
	r.releaseStartupLock()
}

// releaseStartupLock is a no-op once startup has completed.
func (r *Registry) releaseStartupLock() {
	if r.startedUp {
		return
	}
	if r.startupLock <= 0 {
		r.log.Error().Int("startup_lock", r.startupLock).Msg("startup lock released below zero")
		return
	}
	r.startupLock--
	observability.SetStartupLock(r.startupLock)
	r.log.Debug().Int("startup_lock", r.startupLock).Msg("startup lock released")
	if r.startupLock > 0 {
		return
	}
	r.startedUp = true
	r.log.Info().Int("clients", len(r.clients)).Msg("client registry ready")
	r.ready.Emit(struct{}{})
}

// remove drops name, releasing its startup lock if it never became ready.
func (r *Registry) remove(name string) {
	e, ok := r.clients[name]
	if !ok {
		return
	}
	e.proxy.DisconnectReady(e.readyID)
	e.proxy.DisconnectGone(e.goneID)
	delete(r.clients, name)
	for i, have := range r.order {
		if have == e {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	observability.SetRegistryClients(len(r.clients))
	r.log.Debug().Str("name", name).Msg("client removed")
	e.proxy.Dispose()
	r.clientReady(e)
}

// Lookup returns the client registered under a well-known name.
func (r *Registry) Lookup(name string) (*client.Proxy, bool) {
	e, ok := r.clients[name]
	if !ok {
		return nil, false
	}
	return e.proxy, true
}

// Clients returns every registered client in discovery order.
func (r *Registry) Clients() []*client.Proxy {
	out := make([]*client.Proxy, len(r.order))
	for i, e := range r.order {
		out[i] = e.proxy
	}
	return out
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	return len(r.clients)
}

// DupHandlerCapabilities snapshots the handler capabilities of every client.
func (r *Registry) DupHandlerCapabilities() []client.Capabilities {
	out := make([]client.Capabilities, 0, len(r.order))
	for _, e := range r.order {
		out = append(out, e.proxy.HandlerCapabilities())
	}
	return out
}

// IsReady reports whether startup has completed.
func (r *Registry) IsReady() bool {
	return r.startedUp
}

// StartupLock returns the current startup lock count.
func (r *Registry) StartupLock() int {
	return r.startupLock
}

// Close stops discovery and disposes every client. Startup completion is not
// signalled by Close.
func (r *Registry) Close() {
	if r.closed {
		return
	}
	r.closed = true
	if r.nameSub != nil {
		r.nameSub.Unsubscribe()
		r.nameSub = nil
	}
	for _, e := range r.order {
		e.proxy.DisconnectReady(e.readyID)
		e.proxy.DisconnectGone(e.goneID)
		e.proxy.Dispose()
	}
	r.clients = make(map[string]*entry)
	r.order = nil
	r.added.Clear()
	r.ready.Clear()
	observability.SetRegistryClients(0)
}

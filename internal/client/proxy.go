package client

import (
	"errors"
	"fmt"
	"sort"

	"github.com/danmuck/missionctl/internal/bus"
	"github.com/danmuck/missionctl/internal/event"
	"github.com/danmuck/missionctl/internal/readiness"
	"github.com/rs/zerolog"
)

var ErrGone = errors.New("client: name has no owner")

// Capabilities is the handler capability snapshot of one client.
type Capabilities struct {
	WellKnownName string
	Filters       []bus.Properties
	Tokens        []string
}

// ProxyConfig configures one client proxy.
type ProxyConfig struct {
	Conn        bus.Conn
	Broker      *readiness.Broker
	Logger      zerolog.Logger
	Name        string
	UniqueName  string
	Activatable bool
}

// Proxy tracks one client process and its declared roles. A proxy becomes
// ready once the Client interface and every role interface it declares have
// been fetched.
type Proxy struct {
	readiness.Status

	conn   bus.Conn
	broker *readiness.Broker
	log    zerolog.Logger
	owner  *readiness.Owner

	name        string
	uniqueName  string
	activatable bool
	active      bool
	gone        error

	interfaces      []string
	handlerFilters  []bus.Properties
	approverFilters []bus.Properties
	observerFilters []bus.Properties
	bypassApproval  bool
	capabilities    []string

	started  bool
	ready    bool
	ownerSub bus.Subscription

	readyEvents event.List[*Proxy]
	goneEvents  event.List[*Proxy]
}

func NewProxy(cfg ProxyConfig) *Proxy {
	return &Proxy{
		conn:        cfg.Conn,
		broker:      cfg.Broker,
		log:         cfg.Logger.With().Str("client", cfg.Name).Logger(),
		owner:       readiness.NewOwner(),
		name:        cfg.Name,
		uniqueName:  cfg.UniqueName,
		activatable: cfg.Activatable,
		active:      cfg.UniqueName != "" || !cfg.Activatable,
	}
}

func (p *Proxy) BusName() string    { return p.name }
func (p *Proxy) ObjectPath() string { return bus.ObjectPathForName(p.name) }
func (p *Proxy) Invalidated() error { return p.gone }

func (p *Proxy) UniqueName() string  { return p.uniqueName }
func (p *Proxy) IsActivatable() bool { return p.activatable }
func (p *Proxy) IsActive() bool      { return p.active }

// IsReady reports whether the client and all its role interfaces have been
// introspected.
func (p *Proxy) IsReady() bool { return p.ready }

// OnReady connects fn to the one-time ready notification.
func (p *Proxy) OnReady(fn func(*Proxy)) event.HandlerID { return p.readyEvents.Connect(fn) }

// OnGone connects fn to the disappearance notification.
func (p *Proxy) OnGone(fn func(*Proxy)) event.HandlerID { return p.goneEvents.Connect(fn) }

func (p *Proxy) DisconnectReady(id event.HandlerID) { p.readyEvents.Disconnect(id) }
func (p *Proxy) DisconnectGone(id event.HandlerID)  { p.goneEvents.Disconnect(id) }

// Start watches the client's name and begins introspection.
func (p *Proxy) Start() {
	if p.started {
		return
	}
	p.started = true
	p.ownerSub = bus.WatchNameOwnerChanged(p.conn, p.name, p.onOwnerChanged)
	p.broker.EnsureReady(p, ProxyType, IfaceClient, &readiness.Waiter{
		Ready: p.onClientFetched,
		Owner: p.owner,
	})
}

// SetActivatable records that the name can be service-activated.
func (p *Proxy) SetActivatable() {
	p.activatable = true
}

// SetActive records that the name currently has an owner.
func (p *Proxy) SetActive(uniqueName string) {
	p.active = true
	if uniqueName != "" {
		p.uniqueName = uniqueName
	}
}

func (p *Proxy) HasInterface(iface string) bool {
	for _, have := range p.interfaces {
		if have == iface {
			return true
		}
	}
	return false
}

func (p *Proxy) Interfaces() []string {
	return append([]string(nil), p.interfaces...)
}

func (p *Proxy) IsHandler() bool                  { return p.HasInterface(IfaceHandler) }
func (p *Proxy) BypassApproval() bool              { return p.bypassApproval }
func (p *Proxy) HandlerFilters() []bus.Properties  { return p.handlerFilters }
func (p *Proxy) ApproverFilters() []bus.Properties { return p.approverFilters }
func (p *Proxy) ObserverFilters() []bus.Properties { return p.observerFilters }

// HandlerCapabilities returns a snapshot safe to keep after the proxy
// changes.
func (p *Proxy) HandlerCapabilities() Capabilities {
	filters := make([]bus.Properties, len(p.handlerFilters))
	for i, f := range p.handlerFilters {
		filters[i] = f.Clone()
	}
	tokens := append([]string(nil), p.capabilities...)
	sort.Strings(tokens)
	return Capabilities{WellKnownName: p.name, Filters: filters, Tokens: tokens}
}

// Dispose cancels outstanding introspection and drops subscriptions.
func (p *Proxy) Dispose() {
	if p.ownerSub != nil {
		p.ownerSub.Unsubscribe()
		p.ownerSub = nil
	}
	p.owner.Close()
	p.Status.Dispose()
	p.readyEvents.Clear()
	p.goneEvents.Clear()
}

func (p *Proxy) onClientFetched(_ readiness.Object, err error) {
	if err != nil {
		// Fail open: a client we cannot introspect declares no roles.
		p.log.Debug().Err(err).Msg("client introspection failed")
		p.becomeReady()
		return
	}
	var roles []string
	for _, iface := range []string{IfaceHandler, IfaceApprover, IfaceObserver} {
		if p.HasInterface(iface) {
			roles = append(roles, iface)
		}
	}
	if len(roles) == 0 {
		p.becomeReady()
		return
	}
	if err := p.broker.WaitAllReady(p, ProxyType, roles, func(_ readiness.Object, err error) {
		if err != nil {
			p.log.Debug().Err(err).Msg("role introspection failed")
		}
		p.becomeReady()
	}, nil, p.owner); err != nil {
		p.log.Error().Err(err).Msg("wait for roles")
		p.becomeReady()
	}
}

func (p *Proxy) becomeReady() {
	if p.ready {
		return
	}
	p.ready = true
	p.log.Debug().Strs("interfaces", p.interfaces).Msg("client ready")
	p.readyEvents.Emit(p)
}

func (p *Proxy) onOwnerChanged(name, _, newOwner string) {
	if name != p.name {
		return
	}
	if newOwner != "" {
		p.SetActive(newOwner)
		return
	}
	p.active = false
	p.uniqueName = ""
	if p.activatable {
		return
	}
	p.invalidate(fmt.Errorf("%w: %s", ErrGone, p.name))
}

func (p *Proxy) invalidate(err error) {
	if p.gone != nil {
		return
	}
	p.gone = err
	p.owner.Close()
	p.log.Debug().Err(err).Msg("client gone")
	p.goneEvents.Emit(p)
}

// RegisterDescriptors adds the client interfaces to descs.
func RegisterDescriptors(descs *readiness.Descriptors) error {
	entries := []readiness.InterfaceDescriptor{
		{Name: IfaceClient, Build: func(obj readiness.Object, props bus.Properties) {
			p := obj.(*Proxy)
			p.interfaces, _ = props.Strings("Interfaces")
		}},
		{Name: IfaceHandler, Build: func(obj readiness.Object, props bus.Properties) {
			p := obj.(*Proxy)
			p.handlerFilters, _ = props.Maps("HandlerChannelFilter")
			p.bypassApproval, _ = props.Bool("BypassApproval")
			p.capabilities, _ = props.Strings("Capabilities")
		}},
		{Name: IfaceApprover, Build: func(obj readiness.Object, props bus.Properties) {
			obj.(*Proxy).approverFilters, _ = props.Maps("ApproverChannelFilter")
		}},
		{Name: IfaceObserver, Build: func(obj readiness.Object, props bus.Properties) {
			obj.(*Proxy).observerFilters, _ = props.Maps("ObserverChannelFilter")
		}},
	}
	for _, desc := range entries {
		if err := descs.Add(ProxyType, desc); err != nil {
			return err
		}
	}
	return nil
}

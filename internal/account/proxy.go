// Package account holds account proxies and the connection attempt loop
// that runs plugin filters before a connection manager is invoked.
package account

import (
	"errors"
	"strings"

	"github.com/danmuck/missionctl/internal/bus"
	"github.com/danmuck/missionctl/internal/readiness"
	"github.com/rs/zerolog"
)

const (
	ManagerName   = "org.freedesktop.Telepathy.AccountManager"
	IfaceAccount  = "org.freedesktop.Telepathy.Account"
	IfaceAvatar   = IfaceAccount + ".Interface.Avatar"
	ProxyType     = "account"
	PathBase      = "/org/freedesktop/Telepathy/Account/"
	SignalChanged = "AccountPropertyChanged"
)

var ErrRemoved = errors.New("account: removed")

// Props is the typed Account interface state.
type Props struct {
	DisplayName      string
	Icon             string
	Nickname         string
	NormalizedName   string
	Valid            bool
	Enabled          bool
	ConnectionStatus uint32
	Parameters       Params
}

type AvatarProps struct {
	Data     []byte
	MIMEType string
}

// Proxy is one account object. It is a readiness consumer of the Account
// and Avatar interfaces.
type Proxy struct {
	readiness.Status

	conn    bus.Conn
	broker  *readiness.Broker
	log     zerolog.Logger
	path    string
	removed error
	subs    []bus.Subscription

	props  Props
	avatar AvatarProps
}

func NewProxy(conn bus.Conn, broker *readiness.Broker, path string, logger zerolog.Logger) *Proxy {
	return &Proxy{
		conn:   conn,
		broker: broker,
		log:    logger.With().Str("account", path).Logger(),
		path:   path,
	}
}

func (p *Proxy) BusName() string    { return ManagerName }
func (p *Proxy) ObjectPath() string { return p.path }
func (p *Proxy) Invalidated() error { return p.removed }

// UniqueName is the account's path relative to PathBase.
func (p *Proxy) UniqueName() string {
	return strings.TrimPrefix(p.path, PathBase)
}

func (p *Proxy) Props() Props        { return p.props }
func (p *Proxy) Avatar() AvatarProps { return p.avatar }

// Parameters returns a copy of the account's connection parameters.
func (p *Proxy) Parameters() Params {
	return p.props.Parameters.Clone()
}

// WhenReady calls fn once both the Account and Avatar interfaces are
// determined. Closing owner first cancels the call.
func (p *Proxy) WhenReady(fn readiness.ReadyFunc, owner *readiness.Owner) error {
	return p.broker.WaitAllReady(p, ProxyType, []string{IfaceAccount, IfaceAvatar}, fn, nil, owner)
}

// Remove invalidates the account. Later waiters fire with ErrRemoved;
// pending ones are released without firing.
func (p *Proxy) Remove() {
	if p.removed != nil {
		return
	}
	p.removed = ErrRemoved
	p.Dispose()
}

func (p *Proxy) Dispose() {
	for _, sub := range p.subs {
		sub.Unsubscribe()
	}
	p.subs = nil
	p.Status.Dispose()
}

func (p *Proxy) monitor(iface string) {
	match := bus.Match{Sender: ManagerName, Path: p.path, Interface: IfaceAccount, Member: SignalChanged}
	if iface == IfaceAvatar {
		match = bus.Match{Sender: ManagerName, Path: p.path, Interface: IfaceAvatar, Member: "AvatarChanged"}
	}
	p.subs = append(p.subs, p.conn.Subscribe(match, func(sig bus.Signal) {
		if iface == IfaceAvatar {
			p.refetchAvatar()
			return
		}
		if len(sig.Body) != 1 {
			return
		}
		if m, ok := sig.Body[0].(map[string]any); ok {
			p.props.apply(bus.Properties(m))
		}
	}))
}

func (p *Proxy) refetchAvatar() {
	bus.GetAll(p.conn, bus.Target{Dest: ManagerName, Path: p.path}, IfaceAvatar, func(props bus.Properties, err error) {
		if err != nil {
			p.log.Warn().Err(err).Msg("avatar refresh failed")
			return
		}
		p.avatar.apply(props)
	})
}

// apply overlays the keys present in props.
func (a *Props) apply(props bus.Properties) {
	if v, ok := props.String("DisplayName"); ok {
		a.DisplayName = v
	}
	if v, ok := props.String("Icon"); ok {
		a.Icon = v
	}
	if v, ok := props.String("Nickname"); ok {
		a.Nickname = v
	}
	if v, ok := props.String("NormalizedName"); ok {
		a.NormalizedName = v
	}
	if v, ok := props.Bool("Valid"); ok {
		a.Valid = v
	}
	if v, ok := props.Bool("Enabled"); ok {
		a.Enabled = v
	}
	if v, ok := props.Uint32("ConnectionStatus"); ok {
		a.ConnectionStatus = v
	}
	if v, ok := props.Map("Parameters"); ok {
		a.Parameters = Params(v.Clone())
	}
}

func (a *AvatarProps) apply(props bus.Properties) {
	body, ok := props["Avatar"].([]any)
	if !ok || len(body) != 2 {
		return
	}
	if data, ok := body[0].([]byte); ok {
		a.Data = data
	}
	if mime, ok := body[1].(string); ok {
		a.MIMEType = mime
	}
}

// RegisterDescriptors adds the account interfaces to descs.
func RegisterDescriptors(descs *readiness.Descriptors) error {
	monitor := func(obj readiness.Object, iface string) {
		obj.(*Proxy).monitor(iface)
	}
	if err := descs.Add(ProxyType, readiness.InterfaceDescriptor{
		Name:    IfaceAccount,
		Build:   func(obj readiness.Object, props bus.Properties) { obj.(*Proxy).props.apply(props) },
		Monitor: monitor,
	}); err != nil {
		return err
	}
	return descs.Add(ProxyType, readiness.InterfaceDescriptor{
		Name:    IfaceAvatar,
		Build:   func(obj readiness.Object, props bus.Properties) { obj.(*Proxy).avatar.apply(props) },
		Monitor: monitor,
	})
}

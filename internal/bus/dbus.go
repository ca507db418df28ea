package bus

import (
	"fmt"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

// Poster queues work onto the dispatch loop.
type Poster interface {
	Post(fn func()) error
}

// DBusConn adapts a godbus connection to Conn. Calls and the signal pump run
// on godbus goroutines; every continuation is posted to the loop.
type DBusConn struct {
	conn    *dbus.Conn
	loop    Poster
	log     zerolog.Logger
	signals chan *dbus.Signal

	mu     sync.Mutex
	subs   map[uint64]*dbusSubscription
	nextID uint64
	closed bool
	done   chan struct{}
}

type dbusSubscription struct {
	id    uint64
	owner *DBusConn
	match Match
	fn    SignalFunc
	once  sync.Once
}

func (s *dbusSubscription) Unsubscribe() {
	s.once.Do(func() { s.owner.unsubscribe(s) })
}

// Dial connects to "session", "system", or an explicit bus address.
func Dial(address string, loop Poster, logger zerolog.Logger) (*DBusConn, error) {
	var (
		conn *dbus.Conn
		err  error
	)
	switch strings.TrimSpace(address) {
	case "", "session":
		conn, err = dbus.ConnectSessionBus()
	case "system":
		conn, err = dbus.ConnectSystemBus()
	default:
		conn, err = dbus.Connect(address)
	}
	if err != nil {
		return nil, fmt.Errorf("bus: connect %q: %w", address, err)
	}
	return newDBusConn(conn, loop, logger), nil
}

func newDBusConn(conn *dbus.Conn, loop Poster, logger zerolog.Logger) *DBusConn {
	c := &DBusConn{
		conn:    conn,
		loop:    loop,
		log:     logger.With().Str("component", "bus").Logger(),
		signals: make(chan *dbus.Signal, 64),
		subs:    make(map[uint64]*dbusSubscription),
		done:    make(chan struct{}),
	}
	conn.Signal(c.signals)
	go c.pump()
	return c
}

func (c *DBusConn) UniqueName() string {
	names := c.conn.Names()
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

func (c *DBusConn) Call(target Target, method string, args []any, reply ReplyFunc) {
	if target.Dest == "" || !dbus.ObjectPath(target.Path).IsValid() {
		c.post(func() {
			reply(nil, fmt.Errorf("%w: %s %s", ErrInvalidTarget, target.Dest, target.Path))
		})
		return
	}
	if c.isClosed() {
		c.post(func() { reply(nil, ErrClosed) })
		return
	}
	obj := c.conn.Object(target.Dest, dbus.ObjectPath(target.Path))
	call := obj.Go(method, 0, nil, args...)
	go func() {
		<-call.Done
		if call.Err != nil {
			err := call.Err
			c.log.Debug().Str("dest", target.Dest).Str("method", method).Err(err).Msg("call failed")
			c.post(func() { reply(nil, err) })
			return
		}
		body := make([]any, len(call.Body))
		for i, v := range call.Body {
			body[i] = unwrap(v)
		}
		c.post(func() { reply(body, nil) })
	}()
}

func (c *DBusConn) Subscribe(match Match, fn SignalFunc) Subscription {
	c.mu.Lock()
	c.nextID++
	sub := &dbusSubscription{id: c.nextID, owner: c, match: match, fn: fn}
	c.subs[sub.id] = sub
	c.mu.Unlock()

	if err := c.conn.AddMatchSignal(matchOptions(match)...); err != nil {
		// Without the bus-side filter we still see broadcasts addressed to us;
		// Match.Matches filters locally.
		c.log.Warn().Err(err).Str("member", match.Member).Msg("add match failed")
	}
	return sub
}

func (c *DBusConn) unsubscribe(sub *dbusSubscription) {
	c.mu.Lock()
	delete(c.subs, sub.id)
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	if err := c.conn.RemoveMatchSignal(matchOptions(sub.match)...); err != nil {
		c.log.Debug().Err(err).Msg("remove match failed")
	}
}

// Close stops the signal pump and closes the connection.
func (c *DBusConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	live := c.subs
	c.subs = make(map[uint64]*dbusSubscription)
	c.mu.Unlock()

	var err error
	for _, sub := range live {
		err = multierr.Append(err, c.conn.RemoveMatchSignal(matchOptions(sub.match)...))
	}
	c.conn.RemoveSignal(c.signals)
	close(c.done)
	return multierr.Append(err, c.conn.Close())
}

func (c *DBusConn) pump() {
	for {
		select {
		case <-c.done:
			return
		case raw, ok := <-c.signals:
			if !ok {
				return
			}
			sig := Signal{
				Sender: raw.Sender,
				Path:   string(raw.Path),
				Name:   raw.Name,
				Body:   make([]any, len(raw.Body)),
			}
			for i, v := range raw.Body {
				sig.Body[i] = unwrap(v)
			}
			c.post(func() { c.dispatch(sig) })
		}
	}
}

func (c *DBusConn) dispatch(sig Signal) {
	c.mu.Lock()
	matched := make([]*dbusSubscription, 0, len(c.subs))
	for _, sub := range c.subs {
		if sub.match.Matches(sig) {
			matched = append(matched, sub)
		}
	}
	c.mu.Unlock()
	for _, sub := range matched {
		// A callback may unsubscribe a later subscription.
		c.mu.Lock()
		_, live := c.subs[sub.id]
		c.mu.Unlock()
		if live {
			sub.fn(sig)
		}
	}
}

func (c *DBusConn) post(fn func()) {
	if err := c.loop.Post(fn); err != nil {
		c.log.Debug().Err(err).Msg("dropping continuation")
	}
}

func (c *DBusConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func matchOptions(m Match) []dbus.MatchOption {
	opts := []dbus.MatchOption{}
	if m.Sender != "" {
		opts = append(opts, dbus.WithMatchSender(m.Sender))
	}
	if m.Path != "" {
		opts = append(opts, dbus.WithMatchObjectPath(dbus.ObjectPath(m.Path)))
	}
	if m.Interface != "" {
		opts = append(opts, dbus.WithMatchInterface(m.Interface))
	}
	if m.Member != "" {
		opts = append(opts, dbus.WithMatchMember(m.Member))
	}
	if m.Arg0 != "" {
		opts = append(opts, dbus.WithMatchArg(0, m.Arg0))
	}
	return opts
}

// unwrap converts godbus values into plain Go values understood by
// Properties.
func unwrap(v any) any {
	switch t := v.(type) {
	case dbus.Variant:
		return unwrap(t.Value())
	case dbus.ObjectPath:
		return string(t)
	case []dbus.ObjectPath:
		out := make([]string, len(t))
		for i, p := range t {
			out[i] = string(p)
		}
		return out
	case map[string]dbus.Variant:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = unwrap(val.Value())
		}
		return out
	case []map[string]dbus.Variant:
		out := make([]map[string]any, len(t))
		for i, m := range t {
			out[i] = unwrap(m).(map[string]any)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = unwrap(item)
		}
		return out
	default:
		return v
	}
}

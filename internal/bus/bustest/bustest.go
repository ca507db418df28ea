// Package bustest provides an in-memory bus.Conn whose replies are driven by
// the test. Everything runs on the calling goroutine, which stands in for the
// dispatch loop.
package bustest

import (
	"fmt"
	"sync"

	"github.com/danmuck/missionctl/internal/bus"
)

// Call is one outstanding or answered method call.
type Call struct {
	Target bus.Target
	Method string
	Args   []any

	conn     *Conn
	reply    bus.ReplyFunc
	answered bool
}

// Return answers the call with body. Answering twice panics.
func (c *Call) Return(body ...any) {
	c.finish(body, nil)
}

// Fail answers the call with err.
func (c *Call) Fail(err error) {
	c.finish(nil, err)
}

func (c *Call) Answered() bool {
	return c.answered
}

func (c *Call) finish(body []any, err error) {
	if c.answered {
		panic(fmt.Sprintf("bustest: %s to %s answered twice", c.Method, c.Target.Dest))
	}
	c.answered = true
	c.reply(body, err)
}

// Responder answers a call synchronously.
type Responder func(call *Call)

type subscription struct {
	conn  *Conn
	id    int
	match bus.Match
	fn    bus.SignalFunc
	live  bool
}

func (s *subscription) Unsubscribe() {
	if !s.live {
		return
	}
	s.live = false
	s.conn.mu.Lock()
	delete(s.conn.subs, s.id)
	s.conn.mu.Unlock()
}

// Conn is a scripted bus connection.
type Conn struct {
	mu         sync.Mutex
	unique     string
	calls      []*Call
	responders map[string]Responder
	subs       map[int]*subscription
	nextSub    int
}

func New() *Conn {
	return &Conn{
		unique:     ":1.0",
		responders: make(map[string]Responder),
		subs:       make(map[int]*subscription),
	}
}

func (c *Conn) UniqueName() string {
	return c.unique
}

// Respond installs an automatic responder for method sent to dest. An empty
// dest matches every destination.
func (c *Conn) Respond(dest, method string, r Responder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responders[dest+"|"+method] = r
}

func (c *Conn) Call(target bus.Target, method string, args []any, reply bus.ReplyFunc) {
	call := &Call{Target: target, Method: method, Args: args, conn: c, reply: reply}
	c.mu.Lock()
	c.calls = append(c.calls, call)
	r, ok := c.responders[target.Dest+"|"+method]
	if !ok {
		r, ok = c.responders["|"+method]
	}
	c.mu.Unlock()
	if ok {
		r(call)
	}
}

func (c *Conn) Subscribe(match bus.Match, fn bus.SignalFunc) bus.Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSub++
	s := &subscription{conn: c, id: c.nextSub, match: match, fn: fn, live: true}
	c.subs[s.id] = s
	return s
}

// Calls returns every call sent so far, in order.
func (c *Conn) Calls() []*Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Call, len(c.calls))
	copy(out, c.calls)
	return out
}

// Pending returns unanswered calls of method, optionally narrowed to dest.
func (c *Conn) Pending(dest, method string) []*Call {
	var out []*Call
	for _, call := range c.Calls() {
		if call.answered || call.Method != method {
			continue
		}
		if dest != "" && call.Target.Dest != dest {
			continue
		}
		out = append(out, call)
	}
	return out
}

// Count returns how many calls of method went to dest (any dest if empty).
func (c *Conn) Count(dest, method string) int {
	n := 0
	for _, call := range c.Calls() {
		if call.Method == method && (dest == "" || call.Target.Dest == dest) {
			n++
		}
	}
	return n
}

// Subscriptions returns the number of live subscriptions.
func (c *Conn) Subscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Emit delivers sig to every matching live subscription.
func (c *Conn) Emit(sig bus.Signal) {
	c.mu.Lock()
	matched := make([]*subscription, 0, len(c.subs))
	for id := 1; id <= c.nextSub; id++ {
		if s, ok := c.subs[id]; ok && s.match.Matches(sig) {
			matched = append(matched, s)
		}
	}
	c.mu.Unlock()
	for _, s := range matched {
		if s.live {
			s.fn(sig)
		}
	}
}

// EmitNameOwnerChanged emits the daemon's ownership signal.
func (c *Conn) EmitNameOwnerChanged(name, oldOwner, newOwner string) {
	c.Emit(bus.Signal{
		Sender: bus.DaemonName,
		Path:   bus.DaemonPath,
		Name:   bus.DaemonIface + "." + bus.MemberNameOwnerChanged,
		Body:   []any{name, oldOwner, newOwner},
	})
}

// GetAllResponder answers Properties.GetAll from a per-interface table.
// Interfaces missing from the table fail with err.
func GetAllResponder(props map[string]bus.Properties, err error) Responder {
	return func(call *Call) {
		iface, _ := call.Args[0].(string)
		p, ok := props[iface]
		if !ok {
			call.Fail(err)
			return
		}
		call.Return(map[string]any(p))
	}
}

// Package bus is the message-bus boundary of missionctl.
//
// Ownership boundary:
// - asynchronous method calls with continuation replies
// - signal subscriptions (name ownership, per-client notifications)
// - property mapping helpers
//
// Every reply and signal callback runs on the dispatch loop, never on a
// transport goroutine.
package bus

import (
	"errors"
	"strings"
)

const (
	DaemonName  = "org.freedesktop.DBus"
	DaemonPath  = "/org/freedesktop/DBus"
	DaemonIface = "org.freedesktop.DBus"

	PropertiesIface = "org.freedesktop.DBus.Properties"

	MemberNameOwnerChanged = "NameOwnerChanged"
)

var (
	ErrClosed        = errors.New("bus: connection closed")
	ErrInvalidReply  = errors.New("bus: invalid reply")
	ErrInvalidTarget = errors.New("bus: invalid call target")
)

// ReplyFunc receives the body of a method return, or the transport error.
type ReplyFunc func(body []any, err error)

// SignalFunc receives one matched signal.
type SignalFunc func(sig Signal)

// Signal is a received bus signal.
type Signal struct {
	Sender string
	Path   string
	// Name is "<interface>.<member>".
	Name string
	Body []any
}

// Match selects signals for a subscription. Empty fields match anything.
type Match struct {
	Sender    string
	Path      string
	Interface string
	Member    string
	Arg0      string
}

// Matches reports whether sig satisfies m.
func (m Match) Matches(sig Signal) bool {
	if m.Sender != "" && m.Sender != sig.Sender {
		return false
	}
	if m.Path != "" && m.Path != sig.Path {
		return false
	}
	iface, member := splitSignalName(sig.Name)
	if m.Interface != "" && m.Interface != iface {
		return false
	}
	if m.Member != "" && m.Member != member {
		return false
	}
	if m.Arg0 != "" {
		if len(sig.Body) == 0 {
			return false
		}
		arg0, ok := sig.Body[0].(string)
		if !ok || arg0 != m.Arg0 {
			return false
		}
	}
	return true
}

// Target addresses one object on the bus.
type Target struct {
	Dest string
	Path string
}

// Subscription is a live signal subscription.
type Subscription interface {
	Unsubscribe()
}

// Conn is the request/response and notification primitive the core consumes.
type Conn interface {
	// Call issues method ("<interface>.<member>") on target; reply runs on
	// the dispatch loop.
	Call(target Target, method string, args []any, reply ReplyFunc)
	// Subscribe delivers matching signals on the dispatch loop until the
	// returned subscription is cancelled.
	Subscribe(match Match, fn SignalFunc) Subscription
	// UniqueName is this connection's own unique name.
	UniqueName() string
}

func splitSignalName(name string) (string, string) {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return "", name
	}
	return name[:i], name[i+1:]
}

// ObjectPathForName maps a well-known name to the conventional object path,
// e.g. "org.example.Foo" -> "/org/example/Foo".
func ObjectPathForName(name string) string {
	return "/" + strings.ReplaceAll(name, ".", "/")
}

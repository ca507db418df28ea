package bus

import "fmt"

var daemon = Target{Dest: DaemonName, Path: DaemonPath}

// ListNames asks the bus daemon for every currently owned name.
func ListNames(c Conn, reply func(names []string, err error)) {
	c.Call(daemon, DaemonIface+".ListNames", nil, stringsReply(reply))
}

// ListActivatableNames asks the bus daemon for every activatable name.
func ListActivatableNames(c Conn, reply func(names []string, err error)) {
	c.Call(daemon, DaemonIface+".ListActivatableNames", nil, stringsReply(reply))
}

// NameOwnerChangedFunc receives one ownership transition. Empty owners mean
// "unowned".
type NameOwnerChangedFunc func(name, oldOwner, newOwner string)

// WatchNameOwnerChanged subscribes to the daemon's NameOwnerChanged signal.
// A non-empty name narrows the subscription to that name.
func WatchNameOwnerChanged(c Conn, name string, fn NameOwnerChangedFunc) Subscription {
	match := Match{
		Sender:    DaemonName,
		Path:      DaemonPath,
		Interface: DaemonIface,
		Member:    MemberNameOwnerChanged,
		Arg0:      name,
	}
	return c.Subscribe(match, func(sig Signal) {
		if len(sig.Body) != 3 {
			return
		}
		n, ok1 := sig.Body[0].(string)
		oldOwner, ok2 := sig.Body[1].(string)
		newOwner, ok3 := sig.Body[2].(string)
		if !ok1 || !ok2 || !ok3 {
			return
		}
		fn(n, oldOwner, newOwner)
	})
}

// GetAll fetches every property of iface on target.
func GetAll(c Conn, target Target, iface string, reply func(Properties, error)) {
	c.Call(target, PropertiesIface+".GetAll", []any{iface}, func(body []any, err error) {
		if err != nil {
			reply(nil, err)
			return
		}
		if len(body) != 1 {
			reply(nil, fmt.Errorf("%w: GetAll returned %d values", ErrInvalidReply, len(body)))
			return
		}
		props, ok := asProperties(body[0])
		if !ok {
			reply(nil, fmt.Errorf("%w: GetAll returned %T", ErrInvalidReply, body[0]))
			return
		}
		reply(props, nil)
	})
}

func stringsReply(reply func([]string, error)) ReplyFunc {
	return func(body []any, err error) {
		if err != nil {
			reply(nil, err)
			return
		}
		if len(body) != 1 {
			reply(nil, fmt.Errorf("%w: expected one value, got %d", ErrInvalidReply, len(body)))
			return
		}
		names, ok := body[0].([]string)
		if !ok {
			reply(nil, fmt.Errorf("%w: expected []string, got %T", ErrInvalidReply, body[0]))
			return
		}
		reply(names, nil)
	}
}

// Package event provides observer lists owned by the emitting component.
package event

// HandlerID identifies one connected handler.
type HandlerID uint64

type entry[T any] struct {
	id HandlerID
	fn func(T)
}

// List is an ordered set of handlers. Handlers may connect or disconnect
// (themselves or others) while an Emit is in progress: handlers connected
// during an emit are not called by it, disconnected ones are skipped.
//
// The zero value is ready to use. A List is not safe for concurrent use.
type List[T any] struct {
	next    HandlerID
	entries []entry[T]
}

func (l *List[T]) Connect(fn func(T)) HandlerID {
	l.next++
	l.entries = append(l.entries, entry[T]{id: l.next, fn: fn})
	return l.next
}

// Disconnect removes the handler; unknown ids are ignored.
func (l *List[T]) Disconnect(id HandlerID) {
	for i, e := range l.entries {
		if e.id == id {
			l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
			return
		}
	}
}

func (l *List[T]) Len() int {
	return len(l.entries)
}

func (l *List[T]) Emit(v T) {
	snapshot := l.entries
	for _, e := range snapshot {
		if !l.connected(e.id) {
			continue
		}
		e.fn(v)
	}
}

// Clear disconnects every handler.
func (l *List[T]) Clear() {
	l.entries = nil
}

func (l *List[T]) connected(id HandlerID) bool {
	for _, e := range l.entries {
		if e.id == id {
			return true
		}
	}
	return false
}

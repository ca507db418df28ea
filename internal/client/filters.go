package client

import "github.com/danmuck/missionctl/internal/bus"

// PropRequested is the channel property a requested channel carries as true.
const PropRequested = "org.freedesktop.Telepathy.Channel.Requested"

// MatchFunc scores channel properties against a filter list; 0 means no
// match.
type MatchFunc func(props bus.Properties, filters []bus.Properties, assumeRequested bool) uint

// MatchFilters returns the best quality among filters that props satisfy. A
// filter matches when every key it names is present in props with an equal
// value; its quality is one plus its number of keys, so more specific
// filters win. With assumeRequested, props describe a channel that will be
// created on request, and Requested is taken to be true.
func MatchFilters(props bus.Properties, filters []bus.Properties, assumeRequested bool) uint {
	var best uint
	for _, filter := range filters {
		if q, ok := matchFilter(props, filter, assumeRequested); ok && q > best {
			best = q
		}
	}
	return best
}

func matchFilter(props, filter bus.Properties, assumeRequested bool) (uint, bool) {
	quality := uint(1)
	for key, want := range filter {
		var have any
		var present bool
		if assumeRequested && key == PropRequested {
			have, present = true, true
		} else {
			have, present = props[key]
		}
		if !present || !valuesEqual(have, want) {
			return 0, false
		}
		quality++
	}
	return quality, true
}

// valuesEqual compares property values; integers compare by value across
// widths and signedness.
func valuesEqual(a, b any) bool {
	if ai, aok := asInt(a); aok {
		bi, bok := asInt(b)
		return bok && ai.equal(bi)
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	default:
		return false
	}
}

type integer struct {
	neg bool
	mag uint64
}

func (i integer) equal(o integer) bool {
	if i.mag == 0 && o.mag == 0 {
		return true
	}
	return i.neg == o.neg && i.mag == o.mag
}

func signed(v int64) integer {
	if v < 0 {
		return integer{neg: true, mag: uint64(-(v + 1)) + 1}
	}
	return integer{mag: uint64(v)}
}

func asInt(v any) (integer, bool) {
	switch n := v.(type) {
	case int:
		return signed(int64(n)), true
	case int8:
		return signed(int64(n)), true
	case int16:
		return signed(int64(n)), true
	case int32:
		return signed(int64(n)), true
	case int64:
		return signed(n), true
	case uint:
		return integer{mag: uint64(n)}, true
	case uint8:
		return integer{mag: uint64(n)}, true
	case uint16:
		return integer{mag: uint64(n)}, true
	case uint32:
		return integer{mag: uint64(n)}, true
	case uint64:
		return integer{mag: n}, true
	default:
		return integer{}, false
	}
}

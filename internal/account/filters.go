package account

import "sync"

// Params is an account's connection parameter set. Filters share one map per
// attempt and may rewrite it in place.
type Params map[string]any

func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Filter inspects an attempt's parameters and calls next exactly once:
// next(true) continues the chain, next(false) rejects the attempt. next may
// be called after Filter returns.
type Filter func(account string, params Params, next func(success bool))

type namedFilter struct {
	name   string
	filter Filter
}

// FilterChain is the ordered set of connection filters supplied by plugins.
// It is safe to register filters from other goroutines.
type FilterChain struct {
	mu      sync.RWMutex
	filters []namedFilter
}

func NewFilterChain() *FilterChain {
	return &FilterChain{}
}

// Register appends a filter. Registering a name again replaces the filter in
// its original position.
func (c *FilterChain) Register(name string, f Filter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.filters {
		if c.filters[i].name == name {
			c.filters[i].filter = f
			return
		}
	}
	c.filters = append(c.filters, namedFilter{name: name, filter: f})
}

// At returns the filter at index i.
func (c *FilterChain) At(i int) (string, Filter, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < 0 || i >= len(c.filters) {
		return "", nil, false
	}
	return c.filters[i].name, c.filters[i].filter, true
}

func (c *FilterChain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.filters)
}

func (c *FilterChain) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.filters))
	for i, f := range c.filters {
		out[i] = f.name
	}
	return out
}

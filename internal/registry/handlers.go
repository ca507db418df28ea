package registry

import (
	"sort"

	"github.com/danmuck/missionctl/internal/client"
	"github.com/danmuck/missionctl/internal/dispatch"
	"github.com/danmuck/missionctl/internal/observability"
)

type candidate struct {
	proxy   *client.Proxy
	bypass  bool
	quality uint
}

// ListPossibleHandlers ranks the handlers able to take every channel in
// channels, most preferred first. With no channels the request's properties
// are scored as a single requested channel. A non-empty uniqueName restricts
// the result to the handler owning that name.
//
// If no handler qualifies, the request's preferred handler is returned alone
// when it is registered. A nil result means no handler was found.
func (r *Registry) ListPossibleHandlers(req *dispatch.Request, channels []dispatch.Channel, uniqueName string) []*client.Proxy {
	var candidates []candidate
	for _, e := range r.order {
		p := e.proxy
		if uniqueName != "" && p.UniqueName() != uniqueName {
			continue
		}
		if !p.IsHandler() {
			continue
		}
		if q := r.quality(p, req, channels); q > 0 {
			candidates = append(candidates, candidate{proxy: p, bypass: p.BypassApproval(), quality: q})
		}
	}

	if len(candidates) == 0 {
		if req == nil || req.PreferredHandler == "" {
			observability.RecordHandlerSelection(observability.SelectionNone)
			return nil
		}
		p, ok := r.Lookup(req.PreferredHandler)
		if !ok {
			observability.RecordHandlerSelection(observability.SelectionNone)
			return nil
		}
		observability.RecordHandlerSelection(observability.SelectionPreferred)
		return []*client.Proxy{p}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.bypass != b.bypass {
			return a.bypass
		}
		return a.quality > b.quality
	})
	out := make([]*client.Proxy, len(candidates))
	for i, c := range candidates {
		out[i] = c.proxy
	}
	observability.RecordHandlerSelection(observability.SelectionRanked)
	return out
}

// quality is the summed match of every channel, or 0 if any channel is not
// matched.
func (r *Registry) quality(p *client.Proxy, req *dispatch.Request, channels []dispatch.Channel) uint {
	filters := p.HandlerFilters()
	if len(channels) == 0 {
		if req == nil {
			return 0
		}
		return r.match(req.Properties, filters, true)
	}
	var total uint
	for _, ch := range channels {
		q := r.match(ch.ImmutableProperties, filters, false)
		if q == 0 {
			return 0
		}
		total += q
	}
	return total
}

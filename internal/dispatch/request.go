// Package dispatch holds the request and channel values the handler ranker
// consumes.
package dispatch

import "github.com/danmuck/missionctl/internal/bus"

const (
	PropChannelType      = "org.freedesktop.Telepathy.Channel.ChannelType"
	PropTargetHandleType = "org.freedesktop.Telepathy.Channel.TargetHandleType"
)

// Request is a channel request awaiting a handler. Properties describe the
// channel that will be created.
type Request struct {
	Path             string
	Properties       bus.Properties
	PreferredHandler string
}

// Channel is an existing channel offered for handling.
type Channel struct {
	Path                string
	ImmutableProperties bus.Properties
}

// ChannelType returns the channel's type property, or "".
func (c Channel) ChannelType() string {
	v, _ := c.ImmutableProperties.String(PropChannelType)
	return v
}

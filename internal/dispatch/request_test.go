package dispatch

import (
	"testing"

	"github.com/danmuck/missionctl/internal/bus"
	"github.com/danmuck/missionctl/internal/testutil/testlog"
)

func TestChannelType(t *testing.T) {
	testlog.Start(t)
	ch := Channel{Path: "/chan/1", ImmutableProperties: bus.Properties{PropChannelType: "text"}}
	if got := ch.ChannelType(); got != "text" {
		t.Fatalf("channel type=%q", got)
	}
	if got := (Channel{}).ChannelType(); got != "" {
		t.Fatalf("empty channel type=%q", got)
	}
}

package client

import (
	"errors"
	"testing"

	"github.com/danmuck/missionctl/internal/bus"
	"github.com/danmuck/missionctl/internal/testutil/testlog"
)

const chanType = "org.freedesktop.Telepathy.Channel.ChannelType"

func TestMatchFiltersPrefersSpecificFilter(t *testing.T) {
	testlog.Start(t)
	props := bus.Properties{chanType: "text", "TargetHandleType": uint32(1)}
	filters := []bus.Properties{
		{},
		{chanType: "text"},
		{chanType: "text", "TargetHandleType": int64(1)},
		{chanType: "call"},
	}
	if got := MatchFilters(props, filters, false); got != 3 {
		t.Fatalf("quality=%d want 3", got)
	}
	if got := MatchFilters(props, filters[3:], false); got != 0 {
		t.Fatalf("quality=%d want 0", got)
	}
	if got := MatchFilters(props, nil, false); got != 0 {
		t.Fatalf("empty filter list matched: %d", got)
	}
}

func TestMatchFiltersAssumeRequested(t *testing.T) {
	testlog.Start(t)
	props := bus.Properties{chanType: "text"}
	filters := []bus.Properties{{chanType: "text", PropRequested: true}}
	if got := MatchFilters(props, filters, false); got != 0 {
		t.Fatalf("matched without Requested: %d", got)
	}
	if got := MatchFilters(props, filters, true); got != 3 {
		t.Fatalf("quality=%d want 3", got)
	}
}

func TestValuesEqualIntegers(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		a, b any
		want bool
	}{
		{int32(-1), uint32(0xffffffff), false},
		{int64(-5), int8(-5), true},
		{uint64(7), int(7), true},
		{"7", int(7), false},
		{1.5, 1.5, true},
	}
	for _, tc := range cases {
		if got := valuesEqual(tc.a, tc.b); got != tc.want {
			t.Fatalf("valuesEqual(%#v, %#v)=%v want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestCheckValidName(t *testing.T) {
	testlog.Start(t)
	valid := []string{"Empathy", "_x.y-z", "A1.B2"}
	for _, name := range valid {
		if err := CheckValidName(name); err != nil {
			t.Fatalf("CheckValidName(%q): %v", name, err)
		}
	}
	invalid := []string{"", "1abc", "a..b", "a.", "a b", "a.9"}
	for _, name := range invalid {
		if err := CheckValidName(name); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("CheckValidName(%q)=%v want ErrInvalidName", name, err)
		}
	}
	if !HasClientPrefix(BusNameBase+"X") || HasClientPrefix("org.example.X") {
		t.Fatalf("prefix check broken")
	}
}

package account

import (
	"errors"
	"strings"
	"testing"

	"github.com/danmuck/missionctl/internal/testutil/testlog"
	"github.com/google/go-cmp/cmp"
)

type recordingManager struct {
	calls  []Params
	result error
	async  bool
	done   func(error)
}

func (m *recordingManager) Connect(_ string, params Params, done func(error)) {
	m.calls = append(m.calls, params)
	if m.async {
		m.done = done
		return
	}
	done(m.result)
}

func newConnector(t *testing.T, chain *FilterChain, mgr ConnectionManager) *Connector {
	t.Helper()
	return NewConnector(ConnectorConfig{
		Account: "gabble/jabber/alice",
		Params:  func() Params { return Params{"account": "alice@example.com"} },
		Chain:   chain,
		Manager: mgr,
		Logger:  testlog.Logger(t),
	})
}

func TestConnectorRunsFiltersInOrder(t *testing.T) {
	testlog.Start(t)
	chain := NewFilterChain()
	var order []string
	chain.Register("first", func(_ string, params Params, next func(bool)) {
		order = append(order, "first")
		params["server"] = "talk.example.com"
		next(true)
	})
	chain.Register("second", func(_ string, params Params, next func(bool)) {
		order = append(order, "second:"+params["server"].(string))
		next(true)
	})
	mgr := &recordingManager{}
	c := newConnector(t, chain, mgr)
	var processed []bool
	c.OnConnectionProcess(func(ok bool) { processed = append(processed, ok) })
	var online []error
	c.RequestOnline(func(err error) { online = append(online, err) })

	if diff := cmp.Diff([]string{"first", "second:talk.example.com"}, order); diff != "" {
		t.Fatalf("filter order mismatch (-want +got):\n%s", diff)
	}
	if c.State() != StateConnected || len(mgr.calls) != 1 {
		t.Fatalf("state=%s calls=%d", c.State(), len(mgr.calls))
	}
	want := Params{"account": "alice@example.com", "server": "talk.example.com"}
	if diff := cmp.Diff(want, mgr.calls[0]); diff != "" {
		t.Fatalf("params mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]bool{true}, processed); diff != "" {
		t.Fatalf("connection-process mismatch (-want +got):\n%s", diff)
	}
	if len(online) != 1 || online[0] != nil {
		t.Fatalf("online results=%v", online)
	}
}

func TestConnectorRejectedByFilter(t *testing.T) {
	testlog.Start(t)
	chain := NewFilterChain()
	var pending func(bool)
	chain.Register("ask-user", func(_ string, _ Params, next func(bool)) { pending = next })
	ran := false
	chain.Register("never", func(_ string, _ Params, next func(bool)) {
		ran = true
		next(true)
	})
	mgr := &recordingManager{}
	c := newConnector(t, chain, mgr)

	var got error
	c.RequestOnline(func(err error) { got = err })
	if c.State() != StateConnecting || pending == nil {
		t.Fatalf("state=%s pending=%v", c.State(), pending != nil)
	}

	// A second request joins the running attempt.
	var second error
	c.RequestOnline(func(err error) { second = err })

	pending(false)
	if ran || len(mgr.calls) != 0 {
		t.Fatalf("chain continued after rejection")
	}
	if c.State() != StateRejected {
		t.Fatalf("state=%s want rejected", c.State())
	}
	for _, err := range []error{got, second} {
		if !errors.Is(err, ErrRejectedByFilter) || !strings.Contains(err.Error(), "gabble/jabber/alice") {
			t.Fatalf("online error=%v", err)
		}
	}

	// Stale continuations are ignored.
	pending(true)
	if c.State() != StateRejected {
		t.Fatalf("stale continuation changed state to %s", c.State())
	}
}

func TestConnectorAttemptsAreIsolated(t *testing.T) {
	testlog.Start(t)
	chain := NewFilterChain()
	chain.Register("mutate", func(_ string, params Params, next func(bool)) {
		params["resource"] = "laptop"
		next(true)
	})
	mgr := &recordingManager{async: true}
	source := Params{"account": "alice@example.com"}
	c := NewConnector(ConnectorConfig{
		Account: "a",
		Params:  func() Params { return source },
		Chain:   chain,
		Manager: mgr,
		Logger:  testlog.Logger(t),
	})
	var result error = errors.New("unset")
	c.RequestOnline(func(err error) { result = err })
	if _, ok := source["resource"]; ok {
		t.Fatalf("filter mutated the account's own parameters")
	}
	cmErr := errors.New("network unreachable")
	mgr.done(cmErr)
	if !errors.Is(result, cmErr) {
		t.Fatalf("online result=%v want %v", result, cmErr)
	}

	c.Begin()
	if len(mgr.calls) != 2 {
		t.Fatalf("second attempt did not reach the manager")
	}
}

func TestProceedWithoutAttempt(t *testing.T) {
	testlog.Start(t)
	c := newConnector(t, nil, nil)
	c.Proceed(true)
	if c.State() != StateIdle {
		t.Fatalf("state=%s want idle", c.State())
	}
	c.Begin()
	if c.State() != StateConnected {
		t.Fatalf("empty chain should connect, state=%s", c.State())
	}
}

func TestFilterChainRegister(t *testing.T) {
	testlog.Start(t)
	chain := NewFilterChain()
	noop := func(string, Params, func(bool)) {}
	chain.Register("a", noop)
	chain.Register("b", noop)
	chain.Register("a", noop)
	if diff := cmp.Diff([]string{"a", "b"}, chain.Names()); diff != "" {
		t.Fatalf("names mismatch (-want +got):\n%s", diff)
	}
	if _, _, ok := chain.At(2); ok {
		t.Fatalf("At past end succeeded")
	}
}

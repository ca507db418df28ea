package registry_test

import (
	"errors"
	"testing"

	"github.com/danmuck/missionctl/internal/bus"
	"github.com/danmuck/missionctl/internal/bus/bustest"
	"github.com/danmuck/missionctl/internal/client"
	"github.com/danmuck/missionctl/internal/readiness"
	"github.com/danmuck/missionctl/internal/registry"
	"github.com/danmuck/missionctl/internal/testutil/testlog"
	"github.com/google/go-cmp/cmp"
)

const (
	getAll           = bus.PropertiesIface + ".GetAll"
	listNames        = bus.DaemonIface + ".ListNames"
	listActivatables = bus.DaemonIface + ".ListActivatableNames"
)

type fixture struct {
	t    *testing.T
	conn *bustest.Conn
	reg  *registry.Registry
}

func newFixture(t *testing.T, match client.MatchFunc) *fixture {
	t.Helper()
	conn := bustest.New()
	descs := readiness.NewDescriptors()
	if err := client.RegisterDescriptors(descs); err != nil {
		t.Fatalf("register descriptors: %v", err)
	}
	reg := registry.New(registry.Config{
		Conn:   conn,
		Broker: readiness.NewBroker(conn, descs, testlog.Logger(t)),
		Logger: testlog.Logger(t),
		Match:  match,
	})
	return &fixture{t: t, conn: conn, reg: reg}
}

// serve makes every property fetch on name answer from table.
func (f *fixture) serve(name string, table map[string]bus.Properties) {
	f.conn.Respond(name, getAll, bustest.GetAllResponder(table, errors.New("no such interface")))
}

func (f *fixture) discover(active, activatable []string) {
	f.t.Helper()
	calls := f.conn.Pending(bus.DaemonName, listNames)
	if len(calls) != 1 {
		f.t.Fatalf("expected one ListNames call, got %d", len(calls))
	}
	calls[0].Return(active)
	calls = f.conn.Pending(bus.DaemonName, listActivatables)
	if len(calls) != 1 {
		f.t.Fatalf("expected one ListActivatableNames call, got %d", len(calls))
	}
	calls[0].Return(activatable)
}

func name(suffix string) string {
	return client.BusNameBase + suffix
}

func plainClient() map[string]bus.Properties {
	return map[string]bus.Properties{client.IfaceClient: {"Interfaces": []string{}}}
}

func TestStartupWaitsForEveryClient(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, nil)
	readyCount := 0
	f.reg.OnReady(func() { readyCount++ })
	var added []string
	f.reg.OnClientAdded(func(p *client.Proxy) { added = append(added, p.BusName()) })

	f.reg.Start()
	if f.reg.IsReady() || f.reg.StartupLock() != 1 {
		t.Fatalf("ready=%v lock=%d before discovery", f.reg.IsReady(), f.reg.StartupLock())
	}
	f.discover([]string{name("One"), name("Two"), "org.example.NotAClient", name("9bad"), ":1.42"}, []string{name("Three")})

	want := []string{name("One"), name("Two"), name("Three")}
	if diff := cmp.Diff(want, added); diff != "" {
		t.Fatalf("added mismatch (-want +got):\n%s", diff)
	}
	if f.reg.Len() != 3 || f.reg.StartupLock() != 3 {
		t.Fatalf("len=%d lock=%d", f.reg.Len(), f.reg.StartupLock())
	}
	if _, ok := f.reg.Lookup("org.example.NotAClient"); ok {
		t.Fatalf("name without client prefix registered")
	}
	if _, ok := f.reg.Lookup(name("9bad")); ok {
		t.Fatalf("invalid client name registered")
	}

	for _, n := range []string{name("One"), name("Three")} {
		calls := f.conn.Pending(n, getAll)
		if len(calls) != 1 {
			t.Fatalf("%s: expected one pending fetch, got %d", n, len(calls))
		}
		calls[0].Return(map[string]any(plainClient()[client.IfaceClient]))
	}
	if f.reg.IsReady() || readyCount != 0 {
		t.Fatalf("ready while client two is still unanswered")
	}

	f.conn.EmitNameOwnerChanged(name("Two"), ":1.2", "")
	if !f.reg.IsReady() || readyCount != 1 {
		t.Fatalf("ready=%v count=%d after client two left", f.reg.IsReady(), readyCount)
	}
	if _, ok := f.reg.Lookup(name("Two")); ok {
		t.Fatalf("departed client still registered")
	}

	// Clients arriving after startup neither hold nor re-fire the lock.
	f.serve(name("Four"), plainClient())
	f.conn.EmitNameOwnerChanged(name("Four"), "", ":1.4")
	if readyCount != 1 || f.reg.StartupLock() != 0 {
		t.Fatalf("count=%d lock=%d after late client", readyCount, f.reg.StartupLock())
	}
	p, ok := f.reg.Lookup(name("Four"))
	if !ok || p.UniqueName() != ":1.4" || !p.IsReady() {
		t.Fatalf("late client not registered: %+v", p)
	}
}

func TestDiscoveryMergesDuplicateNames(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, nil)
	f.serve(name("Both"), plainClient())
	f.reg.Start()
	f.discover([]string{name("Both")}, []string{name("Both")})

	if f.reg.Len() != 1 {
		t.Fatalf("len=%d want 1", f.reg.Len())
	}
	p, _ := f.reg.Lookup(name("Both"))
	if !p.IsActivatable() || !p.IsActive() {
		t.Fatalf("activatable=%v active=%v", p.IsActivatable(), p.IsActive())
	}
	if !f.reg.IsReady() {
		t.Fatalf("registry not ready; lock=%d", f.reg.StartupLock())
	}
	if got := len(f.reg.DupHandlerCapabilities()); got != 1 {
		t.Fatalf("capabilities=%d want 1", got)
	}
}

func TestDiscoveryErrorsCountAsEmpty(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, nil)
	f.reg.Start()
	f.conn.Pending(bus.DaemonName, listNames)[0].Fail(errors.New("bus went away"))
	f.conn.Pending(bus.DaemonName, listActivatables)[0].Fail(errors.New("bus went away"))
	if !f.reg.IsReady() || f.reg.Len() != 0 {
		t.Fatalf("ready=%v len=%d", f.reg.IsReady(), f.reg.Len())
	}
}

func TestCloseDisposesClients(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, nil)
	f.reg.Start()
	f.discover([]string{name("Pending")}, nil)
	f.reg.Close()

	if f.conn.Subscriptions() != 0 {
		t.Fatalf("subscriptions left: %d", f.conn.Subscriptions())
	}
	if f.reg.Len() != 0 {
		t.Fatalf("len=%d after close", f.reg.Len())
	}
	f.conn.EmitNameOwnerChanged(name("Late"), "", ":1.9")
	if f.reg.Len() != 0 {
		t.Fatalf("closed registry registered a client")
	}
}

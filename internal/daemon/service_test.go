package daemon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/missionctl/internal/bus"
	"github.com/danmuck/missionctl/internal/bus/bustest"
	"github.com/danmuck/missionctl/internal/client"
	"github.com/danmuck/missionctl/internal/testutil/testlog"
)

func TestValidateServiceConfig(t *testing.T) {
	testlog.Start(t)
	if err := DefaultServiceConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	cfg := DefaultServiceConfig()
	cfg.ClientPrefix = "org.example.Client"
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidClientPrefix) {
		t.Fatalf("expected ErrInvalidClientPrefix, got %v", err)
	}

	cfg = DefaultServiceConfig()
	cfg.Backoff.InitialDelay = 10 * time.Second
	cfg.Backoff.MaxDelay = time.Second
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidBackoff) {
		t.Fatalf("expected ErrInvalidBackoff, got %v", err)
	}

	cfg = DefaultServiceConfig()
	cfg.LogLevel = "loud"
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidLogLevel) {
		t.Fatalf("expected ErrInvalidLogLevel, got %v", err)
	}
}

func respondNames(conn *bustest.Conn, active, activatable []string) {
	conn.Respond(bus.DaemonName, bus.DaemonIface+".ListNames", func(call *bustest.Call) { call.Return(active) })
	conn.Respond(bus.DaemonName, bus.DaemonIface+".ListActivatableNames", func(call *bustest.Call) { call.Return(activatable) })
}

func TestCoreReadyAfterDiscovery(t *testing.T) {
	testlog.Start(t)
	conn := bustest.New()
	name := client.BusNameBase + "Logger"
	respondNames(conn, []string{name}, nil)

	core, err := NewCore(conn, client.BusNameBase, testlog.Logger(t))
	if err != nil {
		t.Fatalf("new core: %v", err)
	}
	core.Start()
	if core.Ready() {
		t.Fatalf("ready before client introspection")
	}
	conn.Pending(name, bus.PropertiesIface+".GetAll")[0].Return(map[string]any{"Interfaces": []string{}})
	if !core.Ready() {
		t.Fatalf("core not ready; lock=%d", core.Registry().StartupLock())
	}
	if _, ok := core.Broker().Descriptors().Lookup("account", "org.freedesktop.Telepathy.Account"); !ok {
		t.Fatalf("account descriptors not registered")
	}
	core.Close()
	if conn.Subscriptions() != 0 {
		t.Fatalf("subscriptions left after close: %d", conn.Subscriptions())
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	testlog.Start(t)
	conn := bustest.New()
	respondNames(conn, nil, nil)

	cfg := DefaultServiceConfig()
	cfg.MetricsAddr = "127.0.0.1:0"
	svc := NewServiceWithConfig(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// Runs ahead of core.Start, so the cancel lands after it.
	if err := svc.loop.Post(func() { _ = svc.loop.Post(cancel) }); err != nil {
		t.Fatalf("post: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- svc.serve(ctx, conn) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("serve did not stop")
	}
	if n := conn.Count(bus.DaemonName, bus.DaemonIface+".ListNames"); n != 1 {
		t.Fatalf("ListNames calls=%d want 1", n)
	}
	if conn.Subscriptions() != 0 {
		t.Fatalf("subscriptions left: %d", conn.Subscriptions())
	}
}

// Package daemon wires the bus connection, dispatch loop, client registry
// and metrics endpoint into one process lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/missionctl/internal/bus"
	"github.com/danmuck/missionctl/internal/client"
	"github.com/danmuck/missionctl/internal/logging"
	"github.com/danmuck/missionctl/internal/mainloop"
	"github.com/danmuck/missionctl/internal/observability"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

var (
	ErrInvalidClientPrefix = errors.New("daemon: invalid client prefix")
	ErrInvalidBackoff      = errors.New("daemon: invalid connect backoff")
	ErrInvalidLogLevel     = errors.New("daemon: invalid log level")
)

// ServiceConfig configures the standalone daemon.
type ServiceConfig struct {
	// Bus is "session", "system", or an explicit bus address.
	Bus          string
	ClientPrefix string
	// MetricsAddr enables the /metrics and /health endpoint when set.
	MetricsAddr string
	// ConnectAttempts bounds bus connection retries; 0 retries forever.
	ConnectAttempts int
	Backoff         bus.BackoffConfig
	LogLevel        string
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Bus:             "session",
		ClientPrefix:    client.BusNameBase,
		MetricsAddr:     "",
		ConnectAttempts: 5,
		Backoff:         bus.DefaultBackoffConfig(),
		LogLevel:        "",
	}
}

// Validate reports the first invalid field.
func (cfg ServiceConfig) Validate() error {
	if !strings.HasSuffix(cfg.ClientPrefix, ".") || strings.HasPrefix(cfg.ClientPrefix, ".") {
		return fmt.Errorf("%w: %q must end with '.'", ErrInvalidClientPrefix, cfg.ClientPrefix)
	}
	if cfg.Backoff.InitialDelay < 0 || cfg.Backoff.MaxDelay < 0 {
		return fmt.Errorf("%w: negative delay", ErrInvalidBackoff)
	}
	if cfg.Backoff.MaxDelay > 0 && cfg.Backoff.InitialDelay > cfg.Backoff.MaxDelay {
		return fmt.Errorf("%w: initial %v exceeds max %v", ErrInvalidBackoff, cfg.Backoff.InitialDelay, cfg.Backoff.MaxDelay)
	}
	if cfg.ConnectAttempts < 0 {
		return fmt.Errorf("%w: connect attempts %d", ErrInvalidBackoff, cfg.ConnectAttempts)
	}
	if cfg.LogLevel != "" {
		if _, ok := logging.ParseLevel(cfg.LogLevel); !ok {
			return fmt.Errorf("%w: %q", ErrInvalidLogLevel, cfg.LogLevel)
		}
	}
	return nil
}

// Service runs the daemon until a shutdown signal arrives.
type Service struct {
	cfg  ServiceConfig
	log  zerolog.Logger
	loop *mainloop.Loop
}

func NewService() *Service {
	return NewServiceWithConfig(DefaultServiceConfig())
}

func NewServiceWithConfig(cfg ServiceConfig) *Service {
	return &Service{
		cfg:  cfg,
		log:  logging.Component("daemon"),
		loop: mainloop.New(),
	}
}

// Run blocks until SIGINT or SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.RunContext(ctx)
}

// RunContext connects to the bus and serves until ctx is done.
func (s *Service) RunContext(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	if s.cfg.LogLevel != "" {
		logging.SetLevel(s.cfg.LogLevel)
	}

	started := time.Now()
	conn, err := bus.DialWithRetry(ctx, func() (*bus.DBusConn, error) {
		return bus.Dial(s.cfg.Bus, s.loop, s.log)
	}, s.cfg.ConnectAttempts, s.cfg.Backoff, s.log)
	if err != nil {
		return err
	}
	s.log.Info().
		Str("bus", s.cfg.Bus).
		Str("unique_name", conn.UniqueName()).
		Dur("connect_time", time.Since(started)).
		Msg("bus connected")

	err = s.serve(ctx, conn)
	return multierr.Append(err, conn.Close())
}

func (s *Service) serve(ctx context.Context, conn bus.Conn) error {
	core, err := NewCore(conn, s.cfg.ClientPrefix, s.log)
	if err != nil {
		return err
	}
	if err := s.loop.Post(core.Start); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	metricsErr := make(chan error, 1)
	if addr := strings.TrimSpace(s.cfg.MetricsAddr); addr != "" {
		go func() {
			err := observability.Serve(ctx, addr, s.log, core.Ready)
			if err != nil {
				s.log.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
				cancel()
			}
			metricsErr <- err
		}()
	} else {
		metricsErr <- nil
	}

	loopErr := s.loop.Run(ctx)
	// The loop has returned; closing the core from here cannot race it.
	core.Close()
	if errors.Is(loopErr, context.Canceled) {
		loopErr = nil
	}
	cancel()
	err = multierr.Append(loopErr, <-metricsErr)
	s.log.Info().Err(err).Msg("daemon stopped")
	return err
}

package daemon

import (
	"sync/atomic"

	"github.com/danmuck/missionctl/internal/account"
	"github.com/danmuck/missionctl/internal/bus"
	"github.com/danmuck/missionctl/internal/client"
	"github.com/danmuck/missionctl/internal/readiness"
	"github.com/danmuck/missionctl/internal/registry"
	"github.com/rs/zerolog"
)

// Core holds the loop-owned state: the descriptor registry, the broker and
// the client registry. Apart from Ready, methods run on the dispatch loop.
type Core struct {
	log      zerolog.Logger
	descs    *readiness.Descriptors
	broker   *readiness.Broker
	registry *registry.Registry
	ready    atomic.Bool
}

// NewCore registers every proxy type's interfaces and builds the registry
// for clients under prefix.
func NewCore(conn bus.Conn, prefix string, logger zerolog.Logger) (*Core, error) {
	descs := readiness.NewDescriptors()
	if err := client.RegisterDescriptors(descs); err != nil {
		return nil, err
	}
	if err := account.RegisterDescriptors(descs); err != nil {
		return nil, err
	}
	broker := readiness.NewBroker(conn, descs, logger)
	c := &Core{
		log:    logger,
		descs:  descs,
		broker: broker,
		registry: registry.New(registry.Config{
			Conn:   conn,
			Broker: broker,
			Logger: logger,
			Prefix: prefix,
		}),
	}
	c.registry.OnClientAdded(func(p *client.Proxy) {
		c.log.Info().Str("client", p.BusName()).Bool("activatable", p.IsActivatable()).Msg("client added")
	})
	c.registry.OnReady(func() {
		c.ready.Store(true)
		c.log.Info().Int("clients", c.registry.Len()).Msg("startup complete")
	})
	return c, nil
}

func (c *Core) Start() {
	c.registry.Start()
}

// Ready reports startup completion; safe from any goroutine.
func (c *Core) Ready() bool {
	return c.ready.Load()
}

func (c *Core) Broker() *readiness.Broker {
	return c.broker
}

func (c *Core) Registry() *registry.Registry {
	return c.registry
}

func (c *Core) Close() {
	c.registry.Close()
}

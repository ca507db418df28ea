package account

import (
	"errors"
	"fmt"

	"github.com/danmuck/missionctl/internal/event"
	"github.com/danmuck/missionctl/internal/observability"
	"github.com/rs/zerolog"
)

var (
	ErrRejectedByFilter = errors.New("account: connection rejected by filter")
	ErrNotConnecting    = errors.New("account: no connection attempt in progress")
)

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateRejected:
		return "rejected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ConnectionManager starts a connection with the filtered parameters and
// reports its outcome through done.
type ConnectionManager interface {
	Connect(account string, params Params, done func(error))
}

type ConnectorConfig struct {
	Account string
	// Params returns the account's current parameters. Each attempt works on
	// a copy.
	Params  func() Params
	Chain   *FilterChain
	Manager ConnectionManager
	Logger  zerolog.Logger
}

// Connector runs one account's connection attempts through the filter chain.
// At most one attempt is in flight. It must only be used from the dispatch
// loop.
type Connector struct {
	account string
	params  func() Params
	chain   *FilterChain
	manager ConnectionManager
	log     zerolog.Logger

	state   State
	attempt int
	index   int
	current Params

	online  []func(error)
	process event.List[bool]
}

func NewConnector(cfg ConnectorConfig) *Connector {
	chain := cfg.Chain
	if chain == nil {
		chain = NewFilterChain()
	}
	return &Connector{
		account: cfg.Account,
		params:  cfg.Params,
		chain:   chain,
		manager: cfg.Manager,
		log:     cfg.Logger.With().Str("component", "account").Str("account", cfg.Account).Logger(),
	}
}

func (c *Connector) State() State {
	return c.state
}

// OnConnectionProcess connects fn to the end of every filter chain run; it
// receives whether the chain accepted the attempt.
func (c *Connector) OnConnectionProcess(fn func(success bool)) event.HandlerID {
	return c.process.Connect(fn)
}

func (c *Connector) DisconnectConnectionProcess(id event.HandlerID) {
	c.process.Disconnect(id)
}

// RequestOnline queues done for the outcome of the next attempt and starts
// one if none is running.
func (c *Connector) RequestOnline(done func(error)) {
	c.online = append(c.online, done)
	c.Begin()
}

// Begin starts an attempt unless one is already running.
func (c *Connector) Begin() {
	if c.state == StateConnecting {
		c.log.Debug().Msg("already trying to connect")
		return
	}
	var params Params
	if c.params != nil {
		params = c.params()
	}
	c.current = params.Clone()
	c.index = 0
	c.attempt++
	c.state = StateConnecting
	c.log.Debug().Int("filters", c.chain.Len()).Msg("connection attempt started")
	c.Proceed(true)
}

// Proceed advances the attempt. Filters call it through their continuation;
// success false ends the attempt as rejected.
func (c *Connector) Proceed(success bool) {
	if c.state != StateConnecting {
		c.log.Error().Err(ErrNotConnecting).Bool("success", success).Msg("proceed")
		return
	}
	if success {
		name, filter, ok := c.chain.At(c.index)
		if ok {
			c.index++
			c.log.Debug().Str("filter", name).Int("index", c.index-1).Msg("running connection filter")
			filter(c.account, c.current, c.continuation())
			return
		}
	}
	c.finish(success)
}

// continuation ignores repeated calls and calls from an earlier attempt.
func (c *Connector) continuation() func(bool) {
	called := false
	index := c.index
	attempt := c.attempt
	return func(success bool) {
		if called || attempt != c.attempt {
			c.log.Error().Int("index", index-1).Msg("stale connection filter continuation")
			return
		}
		called = true
		c.Proceed(success)
	}
}

func (c *Connector) finish(success bool) {
	params := c.current
	c.current = nil
	observability.RecordConnectionAttempt(success)
	c.process.Emit(success)

	if !success {
		c.state = StateRejected
		err := fmt.Errorf("%w: %s", ErrRejectedByFilter, c.account)
		c.log.Info().Err(err).Msg("connection refused")
		c.completeOnline(err)
		return
	}

	c.state = StateConnected
	if c.manager == nil {
		c.completeOnline(nil)
		return
	}
	c.manager.Connect(c.account, params, func(err error) {
		if err != nil {
			c.log.Warn().Err(err).Msg("connection manager failed")
		}
		c.completeOnline(err)
	})
}

func (c *Connector) completeOnline(err error) {
	waiting := c.online
	c.online = nil
	for _, done := range waiting {
		done(err)
	}
}

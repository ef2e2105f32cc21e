package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"fxhub/internal/application/port"
	"fxhub/internal/domain"
)

var ErrNoConnectors = errors.New("no connectors configured")

// ReconnectPolicy bounds coordinator-driven reconnection. MaxAttempts 0
// disables it.
type ReconnectPolicy struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
}

func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{MaxAttempts: 5, Initial: 500 * time.Millisecond, Max: 10 * time.Second}
}

type CoordinatorDeps struct {
	Connectors   []port.Connector
	Cache        port.RateCache
	Publisher    port.Publisher
	Calculator   *Calculator
	Validator    *ToleranceValidator
	Platforms    []string
	Symbols      []string
	SnapshotMode SnapshotMode
	Reconnect    ReconnectPolicy
	Metrics      port.Metrics
}

// Coordinator owns the connectors and runs the per-update pipeline:
// cache, validate, publish, recompute dependents.
type Coordinator struct {
	deps CoordinatorDeps

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stopping atomic.Bool
	mu       sync.Mutex
	retrying map[string]bool
}

func NewCoordinator(deps CoordinatorDeps) *Coordinator {
	if deps.Metrics == nil {
		deps.Metrics = port.NopMetrics{}
	}
	if deps.SnapshotMode == "" {
		deps.SnapshotMode = SnapshotPrior
	}
	return &Coordinator{
		deps:     deps,
		retrying: make(map[string]bool),
	}
}

// Start begins consuming every connector's events, issues the startup
// symbols and connects. A connector that fails to connect is left to the
// reconnect supervisor and does not fail Start.
func (c *Coordinator) Start(ctx context.Context) error {
	if len(c.deps.Connectors) == 0 {
		return ErrNoConnectors
	}
	c.ctx, c.cancel = context.WithCancel(ctx)

	for _, conn := range c.deps.Connectors {
		c.wg.Add(1)
		go c.consume(conn)
	}

	for _, conn := range c.deps.Connectors {
		for _, sym := range c.deps.Symbols {
			if err := conn.Subscribe(sym); err != nil && !errors.Is(err, port.ErrNotConnected) {
				log.Error().Str("platform", conn.Name()).Str("symbol", sym).Err(err).Msg("subscribe failed")
			}
		}
		if err := conn.Connect(c.ctx); err != nil {
			log.Error().Str("platform", conn.Name()).Err(err).Msg("connect failed")
			c.superviseReconnect(conn)
			continue
		}
	}

	log.Info().
		Int("connectors", len(c.deps.Connectors)).
		Strs("symbols", c.deps.Symbols).
		Str("snapshot_mode", string(c.deps.SnapshotMode)).
		Msg("coordinator started")
	return nil
}

// Stop disconnects every connector. Individual failures are logged and do
// not abort shutdown.
func (c *Coordinator) Stop() {
	if !c.stopping.CompareAndSwap(false, true) {
		return
	}
	for _, conn := range c.deps.Connectors {
		if err := conn.Disconnect(); err != nil {
			log.Error().Str("platform", conn.Name()).Err(err).Msg("disconnect failed")
		}
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	log.Info().Msg("coordinator stopped")
}

// Status reports whether each connector is connected.
func (c *Coordinator) Status() map[string]bool {
	out := make(map[string]bool, len(c.deps.Connectors))
	for _, conn := range c.deps.Connectors {
		out[conn.Name()] = conn.IsConnected()
	}
	return out
}

func (c *Coordinator) consume(conn port.Connector) {
	defer c.wg.Done()
	events := conn.Events()
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-events:
			c.handleEvent(conn, ev)
		}
	}
}

func (c *Coordinator) handleEvent(conn port.Connector, ev port.Event) {
	switch ev.Kind {
	case port.EventRate:
		c.OnRateUpdate(c.ctx, ev.Rate)

	case port.EventConnect:
		c.deps.Metrics.ConnectorUp(conn.Name(), true)
		log.Info().Str("platform", conn.Name()).Msg("connector connected")

	case port.EventDisconnect:
		c.deps.Metrics.ConnectorUp(conn.Name(), false)
		if ev.Err == nil {
			log.Info().Str("platform", conn.Name()).Msg("connector disconnected")
			return
		}
		log.Warn().Str("platform", conn.Name()).Err(ev.Err).Msg("connector lost")
		c.superviseReconnect(conn)

	case port.EventError:
		log.Error().Str("platform", conn.Name()).Err(ev.Err).Msg("connector error")
	}
}

// OnRateUpdate caches rate, checks it against the other platforms and, if
// accepted, publishes it and recomputes every dependent derived rate.
func (c *Coordinator) OnRateUpdate(ctx context.Context, rate domain.Rate) {
	if !rate.Valid() || !rate.Finite() {
		c.deps.Metrics.RateInvalid()
		log.Warn().Str("platform", rate.Platform).Str("symbol", rate.Symbol).Msg("invalid rate dropped")
		return
	}
	c.deps.Metrics.RateReceived(rate.Platform)

	var snapshot map[string]domain.Rate
	if c.deps.SnapshotMode == SnapshotPrior {
		snapshot = c.snapshot(ctx, rate.Symbol)
	}
	if err := c.deps.Cache.PutRaw(ctx, rate); err != nil {
		log.Error().Str("key", rate.Key()).Err(err).Msg("cache raw rate failed")
	}
	if c.deps.SnapshotMode == SnapshotIncludeIncoming {
		snapshot = c.snapshot(ctx, rate.Symbol)
	}

	ok, diff := c.deps.Validator.Deviation(rate, snapshot)
	if !ok {
		c.deps.Metrics.RateRejected(rate.Platform, rate.Symbol)
		log.Warn().
			Str("platform", rate.Platform).
			Str("symbol", rate.Symbol).
			Float64("mid", rate.Mid()).
			Float64("diff_pct", diff).
			Float64("tolerance_pct", c.deps.Validator.Percent()).
			Msg("rate outside tolerance")
		return
	}

	c.publish(ctx, port.ChannelRaw, rate)

	for _, target := range c.deps.Calculator.Dependents(rate.Symbol) {
		c.Recompute(ctx, target)
	}
}

// Recompute derives target from the cached raw rates of every configured
// platform. It reports false when any input is missing.
func (c *Coordinator) Recompute(ctx context.Context, target string) bool {
	f, ok := c.deps.Calculator.Formula(target)
	if !ok {
		log.Warn().Str("symbol", target).Msg("no formula for symbol")
		return false
	}

	raw := make(map[string]domain.Rate, len(c.deps.Platforms)*len(f.Inputs()))
	for _, sym := range f.Inputs() {
		for _, p := range c.deps.Platforms {
			r, found, err := c.deps.Cache.GetRaw(ctx, p, sym)
			if err != nil {
				log.Error().Str("platform", p).Str("symbol", sym).Err(err).Msg("cache read failed")
			}
			if err != nil || !found {
				c.deps.Metrics.DerivedUnavailable(target)
				log.Debug().Str("target", target).Str("missing", domain.RawKey(p, sym)).Msg("calculation unavailable")
				return false
			}
			raw[domain.RawKey(p, sym)] = r
		}
	}

	derived, ok := c.deps.Calculator.Calculate(target, raw)
	if !ok {
		c.deps.Metrics.DerivedUnavailable(target)
		log.Warn().Str("target", target).Msg("calculation failed")
		return false
	}
	if err := c.deps.Cache.PutDerived(ctx, derived); err != nil {
		log.Error().Str("key", derived.Key()).Err(err).Msg("cache derived rate failed")
	}
	c.deps.Metrics.Derived(target)
	c.publish(ctx, port.ChannelDerived, derived)
	return true
}

func (c *Coordinator) snapshot(ctx context.Context, symbol string) map[string]domain.Rate {
	snap, err := c.deps.Cache.GetAllRawForSymbol(ctx, symbol)
	if err != nil {
		log.Error().Str("symbol", symbol).Err(err).Msg("cache snapshot failed")
		return nil
	}
	return snap
}

func (c *Coordinator) publish(ctx context.Context, ch port.Channel, rate domain.Rate) {
	if c.deps.Publisher == nil {
		return
	}
	if err := c.deps.Publisher.Publish(ctx, ch, rate); err != nil {
		c.deps.Metrics.PublishFailed(ch)
		log.Error().Str("channel", string(ch)).Str("key", rate.Key()).Err(err).Msg("publish failed")
		return
	}
	c.deps.Metrics.Published(ch)
}

func (c *Coordinator) superviseReconnect(conn port.Connector) {
	policy := c.deps.Reconnect
	if policy.MaxAttempts <= 0 || c.stopping.Load() {
		return
	}
	c.mu.Lock()
	if c.retrying[conn.Name()] {
		c.mu.Unlock()
		return
	}
	c.retrying[conn.Name()] = true
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			delete(c.retrying, conn.Name())
			c.mu.Unlock()
		}()
		c.reconnect(conn, policy)
	}()
}

func (c *Coordinator) reconnect(conn port.Connector, policy ReconnectPolicy) {
	delay := policy.Initial
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		timer := time.NewTimer(delay)
		select {
		case <-c.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if c.stopping.Load() || conn.IsConnected() {
			return
		}

		err := conn.Connect(c.ctx)
		if err == nil {
			log.Info().Str("platform", conn.Name()).Int("attempt", attempt).Msg("reconnected")
			return
		}
		delay = minDur(delay*2, policy.Max)
		log.Warn().Str("platform", conn.Name()).Int("attempt", attempt).Dur("backoff", delay).Err(err).Msg("reconnect failed")
	}
	log.Error().Str("platform", conn.Name()).Int("attempts", policy.MaxAttempts).Msg("giving up reconnect")
}

func minDur(a, b time.Duration) time.Duration {
	if b > 0 && b < a {
		return b
	}
	return a
}

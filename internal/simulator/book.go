// Package simulator generates synthetic quotes for the upstream platforms.
package simulator

import (
	"context"
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"fxhub/internal/domain"
)

type Mode int

const (
	// ModeAbsolute moves bid and ask by up to ±volatility/2 per step.
	ModeAbsolute Mode = iota
	// ModePercent scales bid and ask by up to ±pct percent per step.
	ModePercent
)

// Seed is the starting quote of one symbol.
type Seed struct {
	Symbol     string
	Bid, Ask   float64
	Volatility float64
}

type quote struct {
	bid, ask   float64
	volatility float64
	ts         time.Time
}

// Book holds one platform's current quotes, keyed by PLATFORM_SYMBOL.
type Book struct {
	platform string
	mode     Mode
	pct      float64

	mu     sync.Mutex
	quotes map[string]*quote
	rnd    *rand.Rand
	now    func() time.Time
}

type Option func(*Book)

// WithPercent switches the book to percentage fluctuation.
func WithPercent(pct float64) Option {
	return func(b *Book) {
		b.mode = ModePercent
		b.pct = pct
	}
}

// WithRand fixes the random source; used by tests.
func WithRand(r *rand.Rand) Option {
	return func(b *Book) { b.rnd = r }
}

func WithClock(now func() time.Time) Option {
	return func(b *Book) { b.now = now }
}

func NewBook(platform string, seeds []Seed, opts ...Option) *Book {
	b := &Book{
		platform: platform,
		quotes:   make(map[string]*quote, len(seeds)),
		rnd:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
		now:      time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	for _, s := range seeds {
		vol := s.Volatility
		if vol <= 0 {
			vol = 0.01
		}
		b.quotes[domain.RawKey(platform, s.Symbol)] = &quote{bid: s.Bid, ask: s.Ask, volatility: vol, ts: b.now()}
	}
	return b
}

func (b *Book) Platform() string { return b.platform }

// Names returns every rate name, sorted.
func (b *Book) Names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.quotes))
	for n := range b.quotes {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (b *Book) Has(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.quotes[name]
	return ok
}

// Get returns the current quote without moving it.
func (b *Book) Get(name string) (domain.Rate, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.quotes[name]
	if !ok {
		return domain.Rate{}, false
	}
	return b.rate(name, q), true
}

// Next advances name by one step and returns the new quote.
func (b *Book) Next(name string) (domain.Rate, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.quotes[name]
	if !ok {
		return domain.Rate{}, false
	}
	b.step(q)
	return b.rate(name, q), true
}

// StepAll advances every quote once.
func (b *Book) StepAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, q := range b.quotes {
		b.step(q)
	}
}

// Run steps every quote each interval until ctx is done.
func (b *Book) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.StepAll()
			log.Debug().Str("platform", b.platform).Msg("quotes updated")
		}
	}
}

func (b *Book) step(q *quote) {
	switch b.mode {
	case ModePercent:
		f := b.pct / 100
		bid := math.Max(0.0001, q.bid*(1+(b.rnd.Float64()-0.5)*f*2))
		ask := math.Max(0.0001, q.ask*(1+(b.rnd.Float64()-0.5)*f*2))
		if minSpread := bid * f / 4; ask <= bid+minSpread {
			ask = bid + minSpread
		}
		q.bid, q.ask = bid, ask
	default:
		bid := math.Max(0, q.bid+(b.rnd.Float64()-0.5)*q.volatility)
		ask := math.Max(0, q.ask+(b.rnd.Float64()-0.5)*q.volatility)
		if ask <= bid {
			ask = bid + math.Max(math.Abs((b.rnd.Float64()-0.5)*q.volatility*0.1), q.volatility*0.01)
		}
		q.bid, q.ask = bid, ask
	}
	q.ts = b.now()
}

func (b *Book) rate(name string, q *quote) domain.Rate {
	_, symbol, _ := domain.SplitRawKey(name)
	return domain.Rate{
		Platform:  b.platform,
		Symbol:    symbol,
		Bid:       q.bid,
		Ask:       q.ask,
		Timestamp: q.ts,
	}
}

package service

import (
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"

	"fxhub/internal/domain"
)

// Calculator derives rates from raw quotes according to a formula table.
// It holds no mutable state and is safe for concurrent use.
type Calculator struct {
	formulas map[string]Formula
	order    []string
	deps     DependencyMap
}

func NewCalculator(formulas []Formula) *Calculator {
	c := &Calculator{
		formulas: make(map[string]Formula, len(formulas)),
		order:    make([]string, 0, len(formulas)),
		deps:     BuildDependencyMap(formulas),
	}
	for _, f := range formulas {
		if _, ok := c.formulas[f.Target]; !ok {
			c.order = append(c.order, f.Target)
		}
		c.formulas[f.Target] = f
	}
	return c
}

func (c *Calculator) Formula(target string) (Formula, bool) {
	f, ok := c.formulas[target]
	return f, ok
}

// Targets returns every derived symbol in table order.
func (c *Calculator) Targets() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Dependents returns the derived symbols to recompute after symbol changes.
// The slice is a copy.
func (c *Calculator) Dependents(symbol string) []string {
	deps := c.deps[symbol]
	if len(deps) == 0 {
		return nil
	}
	out := make([]string, len(deps))
	copy(out, deps)
	return out
}

// Calculate derives target from raw, keyed by PLATFORM_SYMBOL. The result
// carries the latest timestamp among the rates it consulted.
func (c *Calculator) Calculate(target string, raw map[string]domain.Rate) (domain.Rate, bool) {
	f, ok := c.formulas[target]
	if !ok {
		log.Warn().Str("symbol", target).Msg("no formula for symbol")
		return domain.Rate{}, false
	}

	switch f.Kind {
	case FormulaDirect:
		avg, ok := directAverage(f.Source, raw)
		if !ok {
			return domain.Rate{}, false
		}
		return avg.derived(target)

	case FormulaCross:
		pivot, ok := directAverage(f.Pivot, raw)
		if !ok {
			return domain.Rate{}, false
		}
		leg, ok := directAverage(f.Leg, raw)
		if !ok {
			return domain.Rate{}, false
		}
		pivotMid := (pivot.bid + pivot.ask) / 2
		ts := latest(pivot.ts, leg.ts)
		bid, ask := pivotMid*leg.bid, pivotMid*leg.ask
		if ts.IsZero() || !domain.Positive(bid) || !domain.Positive(ask) {
			return domain.Rate{}, false
		}
		return domain.Rate{
			Platform:  domain.DerivedPlatform,
			Symbol:    target,
			Bid:       bid,
			Ask:       ask,
			Timestamp: ts,
		}, true
	}
	return domain.Rate{}, false
}

type average struct {
	bid, ask float64
	ts       time.Time
}

func (a average) derived(symbol string) (domain.Rate, bool) {
	if a.ts.IsZero() {
		return domain.Rate{}, false
	}
	return domain.Rate{
		Platform:  domain.DerivedPlatform,
		Symbol:    symbol,
		Bid:       a.bid,
		Ask:       a.ask,
		Timestamp: a.ts,
	}, true
}

// directAverage averages bid and ask over every entry for symbol with
// positive finite sides.
func directAverage(symbol string, raw map[string]domain.Rate) (average, bool) {
	var bids, asks []float64
	var ts time.Time
	for _, r := range raw {
		if r.Symbol != symbol || !domain.Positive(r.Bid) || !domain.Positive(r.Ask) {
			continue
		}
		bids = append(bids, r.Bid)
		asks = append(asks, r.Ask)
		ts = latest(ts, r.Timestamp)
	}
	if len(bids) == 0 {
		return average{}, false
	}
	return average{
		bid: stat.Mean(bids, nil),
		ask: stat.Mean(asks, nil),
		ts:  ts,
	}, true
}

func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

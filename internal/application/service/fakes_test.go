package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"fxhub/internal/application/port"
	"fxhub/internal/domain"
)

var t0 = time.Date(2025, 4, 1, 22, 29, 23, 0, time.UTC)

func rate(platform, symbol string, bid, ask float64, ts time.Time) domain.Rate {
	return domain.Rate{Platform: platform, Symbol: symbol, Bid: bid, Ask: ask, Timestamp: ts}
}

type mapCache struct {
	mu      sync.Mutex
	raw     map[string]domain.Rate
	derived map[string]domain.Rate
}

func newMapCache() *mapCache {
	return &mapCache{raw: map[string]domain.Rate{}, derived: map[string]domain.Rate{}}
}

func (m *mapCache) PutRaw(ctx context.Context, r domain.Rate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raw[domain.RawKey(r.Platform, r.Symbol)] = r
	return nil
}

func (m *mapCache) GetRaw(ctx context.Context, platform, symbol string) (domain.Rate, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.raw[domain.RawKey(platform, symbol)]
	return r, ok, nil
}

func (m *mapCache) GetAllRawForSymbol(ctx context.Context, symbol string) (map[string]domain.Rate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]domain.Rate{}
	for _, r := range m.raw {
		if r.Symbol == symbol {
			out[r.Platform] = r
		}
	}
	return out, nil
}

func (m *mapCache) PutDerived(ctx context.Context, r domain.Rate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.derived[r.Symbol] = r
	return nil
}

func (m *mapCache) GetDerived(ctx context.Context, symbol string) (domain.Rate, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.derived[symbol]
	return r, ok, nil
}

func (m *mapCache) delete(platform, symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.raw, domain.RawKey(platform, symbol))
}

type recordingPublisher struct {
	mu      sync.Mutex
	raw     []domain.Rate
	derived []domain.Rate
}

func (p *recordingPublisher) Publish(ctx context.Context, ch port.Channel, r domain.Rate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ch == port.ChannelRaw {
		p.raw = append(p.raw, r)
	} else {
		p.derived = append(p.derived, r)
	}
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) rawKeys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.raw))
	for _, r := range p.raw {
		out = append(out, r.Key())
	}
	return out
}

func (p *recordingPublisher) derivedSymbols() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.derived))
	for _, r := range p.derived {
		out = append(out, r.Symbol)
	}
	return out
}

var errDial = errors.New("dial refused")

type fakeConnector struct {
	name   string
	events chan port.Event

	mu            sync.Mutex
	connected     bool
	subscribed    []string
	failConnects  int
	connectCalls  int
	disconnects   int
	disconnectErr error
}

func newFakeConnector(name string) *fakeConnector {
	return &fakeConnector{name: name, events: make(chan port.Event, 64)}
}

func (f *fakeConnector) Name() string { return f.name }

func (f *fakeConnector) Connect(ctx context.Context) error {
	f.mu.Lock()
	f.connectCalls++
	if f.failConnects > 0 {
		f.failConnects--
		f.mu.Unlock()
		return errDial
	}
	f.connected = true
	f.mu.Unlock()
	f.events <- port.Event{Kind: port.EventConnect, Platform: f.name}
	return nil
}

func (f *fakeConnector) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.connected = false
	return f.disconnectErr
}

func (f *fakeConnector) Subscribe(symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, symbol)
	return nil
}

func (f *fakeConnector) Unsubscribe(symbol string) error { return nil }

func (f *fakeConnector) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeConnector) Events() <-chan port.Event { return f.events }

// drop simulates a broken link.
func (f *fakeConnector) drop(err error) {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	f.events <- port.Event{Kind: port.EventDisconnect, Platform: f.name, Err: err}
}

func (f *fakeConnector) calls() (connects, disconnects int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectCalls, f.disconnects
}

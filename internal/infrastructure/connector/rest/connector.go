package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"fxhub/internal/application/port"
	"fxhub/internal/domain"
)

const eventBuffer = 1024

type Options struct {
	PollInterval time.Duration
	Timeout      time.Duration
	Concurrency  int
	Client       *http.Client
}

// Connector polls GET <base>/api/rates/<PLATFORM>_<SYMBOL> for every
// subscribed symbol. The subscription set survives Disconnect.
type Connector struct {
	name    string
	baseURL string
	opts    Options
	client  *http.Client
	events  chan port.Event

	mu      sync.Mutex
	subs    map[string]struct{}
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(name, baseURL string, opts Options) *Connector {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	return &Connector{
		name:    name,
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		opts:    opts,
		client:  client,
		events:  make(chan port.Event, eventBuffer),
		subs:    make(map[string]struct{}),
	}
}

func (c *Connector) Name() string { return c.name }

func (c *Connector) Events() <-chan port.Event { return c.events }

func (c *Connector) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Connect starts the poll loop. The loop outlives ctx and runs until
// Disconnect.
func (c *Connector) Connect(ctx context.Context) error {
	if u, err := url.Parse(c.baseURL); err != nil || u.Scheme == "" || u.Host == "" {
		err = fmt.Errorf("invalid base url %q", c.baseURL)
		c.emit(port.Event{Kind: port.EventError, Err: err})
		return err
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		log.Warn().Str("platform", c.name).Msg("connect ignored, already polling")
		return nil
	}
	pctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.running, c.cancel, c.done = true, cancel, done
	c.mu.Unlock()

	c.emit(port.Event{Kind: port.EventConnect})
	go c.run(pctx, done)
	log.Info().Str("platform", c.name).Str("base_url", c.baseURL).Dur("interval", c.opts.PollInterval).Msg("rest polling started")
	return nil
}

func (c *Connector) Disconnect() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	cancel()
	<-done
	c.emit(port.Event{Kind: port.EventDisconnect})
	log.Info().Str("platform", c.name).Msg("rest polling stopped")
	return nil
}

func (c *Connector) Subscribe(symbol string) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return errors.New("empty symbol")
	}
	c.mu.Lock()
	c.subs[symbol] = struct{}{}
	c.mu.Unlock()
	return nil
}

func (c *Connector) Unsubscribe(symbol string) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	c.mu.Lock()
	delete(c.subs, symbol)
	c.mu.Unlock()
	return nil
}

// Subscriptions returns the subscribed symbols, sorted.
func (c *Connector) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subs))
	for s := range c.subs {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (c *Connector) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	c.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.pollOnce(ctx)
		}
	}
}

// pollOnce fetches every subscribed symbol with bounded fan-out. A failed
// symbol is skipped for this cycle only.
func (c *Connector) pollOnce(ctx context.Context) {
	var g errgroup.Group
	g.SetLimit(c.opts.Concurrency)
	for _, sym := range c.Subscriptions() {
		g.Go(func() error {
			r, err := c.fetch(ctx, sym)
			if err != nil {
				if ctx.Err() == nil {
					log.Warn().Str("platform", c.name).Str("symbol", sym).Err(err).Msg("poll skipped")
				}
				return nil
			}
			c.emitOr(ctx, port.Event{Kind: port.EventRate, Rate: r})
			return nil
		})
	}
	_ = g.Wait()
}

// ErrNotFound is returned for a 404 on a rate.
var ErrNotFound = errors.New("rate not found")

type ratePayload struct {
	RateName  string    `json:"rateName"`
	Name      string    `json:"name"`
	Symbol    string    `json:"symbol"`
	Bid       flexFloat `json:"bid"`
	Ask       flexFloat `json:"ask"`
	Timestamp string    `json:"timestamp"`
}

func (p ratePayload) name() string {
	for _, n := range []string{p.RateName, p.Name, p.Symbol} {
		if n != "" {
			return n
		}
	}
	return ""
}

func (c *Connector) fetch(ctx context.Context, symbol string) (domain.Rate, error) {
	key := domain.RawKey(c.name, symbol)
	rctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(rctx, http.MethodGet, c.baseURL+"/api/rates/"+url.PathEscape(key), nil)
	if err != nil {
		return domain.Rate{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.Rate{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.Rate{}, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.Rate{}, fmt.Errorf("%s: status %d: %s", key, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var p ratePayload
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return domain.Rate{}, fmt.Errorf("%s: decode: %w", key, err)
	}
	if n := p.name(); n != "" && n != key {
		return domain.Rate{}, fmt.Errorf("%s: unexpected rate name %q", key, n)
	}
	ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(p.Timestamp))
	if err != nil {
		return domain.Rate{}, fmt.Errorf("%s: timestamp: %w", key, err)
	}
	return domain.Rate{
		Platform:  c.name,
		Symbol:    symbol,
		Bid:       float64(p.Bid),
		Ask:       float64(p.Ask),
		Timestamp: ts.UTC(),
	}, nil
}

// flexFloat accepts a JSON number or a numeric string, with a decimal comma
// tolerated in the string form.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	if unq, err := strconv.Unquote(s); err == nil {
		s = strings.ReplaceAll(strings.TrimSpace(unq), ",", ".")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("bad number %s: %w", string(b), err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("non-finite number %s", string(b))
	}
	*f = flexFloat(v)
	return nil
}

func (c *Connector) emit(ev port.Event) {
	ev.Platform, ev.At = c.name, time.Now()
	select {
	case c.events <- ev:
	default:
		log.Warn().Str("platform", c.name).Str("event", ev.Kind.String()).Msg("event channel full, dropped")
	}
}

func (c *Connector) emitOr(ctx context.Context, ev port.Event) {
	ev.Platform, ev.At = c.name, time.Now()
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}

var _ port.Connector = (*Connector)(nil)

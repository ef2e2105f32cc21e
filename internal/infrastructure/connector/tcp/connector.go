package tcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"fxhub/internal/application/port"
	"fxhub/internal/domain"
	"fxhub/internal/protocol"
)

type state int

const (
	stateDisconnected state = iota
	stateConnecting
	stateConnected
)

const (
	eventBuffer  = 1024
	maxLineBytes = 64 * 1024
)

type Options struct {
	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

// Connector speaks the line protocol to one platform over a persistent
// socket. It never reconnects on its own.
type Connector struct {
	name   string
	addr   string
	opts   Options
	events chan port.Event

	mu    sync.Mutex
	state state
	conn  net.Conn
	stop  chan struct{}
	done  chan struct{}
	subs  map[string]struct{}

	wmu sync.Mutex
}

func New(name, addr string, opts Options) *Connector {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	return &Connector{
		name:   name,
		addr:   addr,
		opts:   opts,
		events: make(chan port.Event, eventBuffer),
		subs:   make(map[string]struct{}),
	}
}

func (c *Connector) Name() string { return c.name }

func (c *Connector) Events() <-chan port.Event { return c.events }

func (c *Connector) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateConnected
}

// Connect dials the platform, resubmits every ledger subscription and starts
// the reader. ctx only bounds the dial.
func (c *Connector) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != stateDisconnected {
		c.mu.Unlock()
		log.Warn().Str("platform", c.name).Msg("connect ignored, already connected")
		return nil
	}
	c.state = stateConnecting
	c.mu.Unlock()

	log.Info().Str("platform", c.name).Str("addr", c.addr).Msg("tcp connecting")
	dctx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	conn, err := (&net.Dialer{}).DialContext(dctx, "tcp", c.addr)
	cancel()
	if err != nil {
		c.mu.Lock()
		c.state = stateDisconnected
		c.mu.Unlock()
		err = fmt.Errorf("dial %s: %w", c.addr, err)
		c.emit(port.Event{Kind: port.EventError, Err: err})
		return err
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.stop = stop
	c.done = done
	c.state = stateConnected
	ledger := c.ledgerLocked()
	c.mu.Unlock()

	c.emit(port.Event{Kind: port.EventConnect})
	for _, sym := range ledger {
		if err := c.send(conn, protocol.SubscribeCommand(domain.RawKey(c.name, sym))); err != nil {
			log.Error().Str("platform", c.name).Str("symbol", sym).Err(err).Msg("resubscribe failed")
		}
	}

	go c.readLoop(conn, stop, done)
	log.Info().Str("platform", c.name).Int("subscriptions", len(ledger)).Msg("tcp connected")
	return nil
}

// Disconnect closes the socket and waits for the reader to exit. The
// subscription ledger is kept for the next Connect.
func (c *Connector) Disconnect() error {
	c.mu.Lock()
	if c.state != stateConnected {
		c.mu.Unlock()
		return nil
	}
	c.state = stateDisconnected
	conn, stop, done := c.conn, c.stop, c.done
	c.conn = nil
	c.mu.Unlock()

	close(stop)
	err := conn.Close()
	<-done
	c.emit(port.Event{Kind: port.EventDisconnect})
	log.Info().Str("platform", c.name).Msg("tcp disconnected")
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// Subscribe records symbol in the ledger and, when connected, sends the
// subscribe command right away.
func (c *Connector) Subscribe(symbol string) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return errors.New("empty symbol")
	}
	c.mu.Lock()
	c.subs[symbol] = struct{}{}
	conn, connected := c.conn, c.state == stateConnected
	c.mu.Unlock()

	if !connected {
		log.Warn().Str("platform", c.name).Str("symbol", symbol).Msg("not connected, subscription queued")
		return nil
	}
	return c.send(conn, protocol.SubscribeCommand(domain.RawKey(c.name, symbol)))
}

func (c *Connector) Unsubscribe(symbol string) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	c.mu.Lock()
	delete(c.subs, symbol)
	conn, connected := c.conn, c.state == stateConnected
	c.mu.Unlock()

	if !connected {
		return port.ErrNotConnected
	}
	return c.send(conn, protocol.UnsubscribeCommand(domain.RawKey(c.name, symbol)))
}

// Subscriptions returns the ledger, sorted.
func (c *Connector) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledgerLocked()
}

func (c *Connector) ledgerLocked() []string {
	out := make([]string, 0, len(c.subs))
	for s := range c.subs {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (c *Connector) send(conn net.Conn, line string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	if _, err := io.WriteString(conn, line+"\n"); err != nil {
		return fmt.Errorf("write %q: %w", line, err)
	}
	return nil
}

func (c *Connector) readLoop(conn net.Conn, stop, done chan struct{}) {
	defer close(done)

	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 4096), maxLineBytes)
	for sc.Scan() {
		c.handleLine(sc.Text(), stop)
	}
	err := sc.Err()
	if err == nil {
		err = io.EOF
	}

	c.mu.Lock()
	if c.conn != conn {
		// Disconnect was requested; it emits the event.
		c.mu.Unlock()
		return
	}
	c.state = stateDisconnected
	c.conn = nil
	c.mu.Unlock()

	_ = conn.Close()
	log.Warn().Str("platform", c.name).Err(err).Msg("tcp connection lost")
	c.emit(port.Event{Kind: port.EventDisconnect, Err: err})
}

func (c *Connector) handleLine(line string, stop <-chan struct{}) {
	msg, err := protocol.ParseLine(c.name, line)
	if err != nil {
		log.Warn().Str("platform", c.name).Err(err).Msg("line dropped")
		return
	}
	switch msg.Kind {
	case protocol.KindConfirmation:
		log.Info().Str("platform", c.name).Str("msg", msg.Text).Msg("platform reply")
	case protocol.KindError:
		log.Warn().Str("platform", c.name).Str("msg", msg.Text).Msg("platform error")
		c.emitOr(stop, port.Event{Kind: port.EventError, Err: fmt.Errorf("%s: %s", c.name, msg.Text)})
	case protocol.KindQuote:
		log.Debug().Str("platform", c.name).Str("symbol", msg.Rate.Symbol).Float64("bid", msg.Rate.Bid).Float64("ask", msg.Rate.Ask).Msg("quote")
		c.emitOr(stop, port.Event{Kind: port.EventRate, Rate: msg.Rate})
	}
}

// emit never blocks; lifecycle events are dropped if nobody drains the channel.
func (c *Connector) emit(ev port.Event) {
	ev.Platform, ev.At = c.name, time.Now()
	select {
	case c.events <- ev:
	default:
		log.Warn().Str("platform", c.name).Str("event", ev.Kind.String()).Msg("event channel full, dropped")
	}
}

// emitOr blocks until the event is taken or the session stops.
func (c *Connector) emitOr(stop <-chan struct{}, ev port.Event) {
	ev.Platform, ev.At = c.name, time.Now()
	select {
	case c.events <- ev:
	case <-stop:
	}
}

var _ port.Connector = (*Connector)(nil)

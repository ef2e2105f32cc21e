// Package feedserver is the platform side of the line protocol: clients subscribe
// to rate names and receive one quote line per interval.
package feedserver

import (
	"bufio"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"fxhub/internal/domain"
	"fxhub/internal/protocol"
)

const (
	replyNotFound       = "ERROR|Rate data not found for "
	replyNotSubscribed  = "ERROR|Not subscribed to "
	replyUnsubscribeAll = "Unsubscribed from all rates."
	replyInvalid        = "ERROR|Invalid request format"
	replyInternal       = "ERROR|Internal server error"

	defaultWriteTimeout = 5 * time.Second
)

// Source supplies quotes. Next advances the quote before returning it.
type Source interface {
	Has(name string) bool
	Next(name string) (domain.Rate, bool)
}

type Options struct {
	Interval     time.Duration
	WriteTimeout time.Duration
}

type Server struct {
	addr   string
	source Source
	sched  *Scheduler
	opts   Options

	mu       sync.Mutex
	ln       net.Listener
	sessions map[uuid.UUID]*session
	closed   bool
	wg       sync.WaitGroup
}

func New(addr string, source Source, sched *Scheduler, opts Options) *Server {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	return &Server{
		addr:     addr,
		source:   source,
		sched:    sched,
		opts:     opts,
		sessions: make(map[uuid.UUID]*session),
	}
}

// Start binds the listener and accepts clients in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	log.Info().Str("addr", ln.Addr().String()).Msg("feed server listening")

	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Sessions returns the number of connected clients.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warn().Err(err).Msg("accept failed")
			continue
		}

		sess := &session{
			id:    uuid.New(),
			conn:  conn,
			srv:   s,
			tasks: make(map[string]func()),
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.sessions[sess.id] = sess
		s.mu.Unlock()

		log.Info().Str("session", sess.id.String()).Str("remote", conn.RemoteAddr().String()).Msg("client connected")

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			sess.serve()
		}()
	}
}

// Close stops accepting, drops every client and waits for their goroutines.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ln := s.ln
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	for _, sess := range sessions {
		_ = sess.conn.Close()
	}
	s.wg.Wait()
	log.Info().Msg("feed server stopped")
	return err
}

func (s *Server) remove(id uuid.UUID) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

type session struct {
	id   uuid.UUID
	conn net.Conn
	srv  *Server

	mu    sync.Mutex
	tasks map[string]func()

	wmu sync.Mutex
}

func (c *session) serve() {
	defer func() {
		c.cancelAll()
		_ = c.conn.Close()
		c.srv.remove(c.id)
		log.Info().Str("session", c.id.String()).Msg("client disconnected")
	}()

	sc := bufio.NewScanner(c.conn)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := c.write(c.handle(line)); err != nil {
			log.Debug().Err(err).Str("session", c.id.String()).Msg("reply failed")
			return
		}
	}
}

// handle executes one command and returns the reply line.
func (c *session) handle(line string) (reply string) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("session", c.id.String()).Str("request", line).Msg("request failed")
			reply = replyInternal
		}
	}()

	cmd, name, ok := protocol.ParseCommand(line)
	if !ok {
		return replyInvalid
	}
	switch cmd {
	case protocol.CmdSubscribe:
		return c.subscribe(name)
	default:
		if strings.EqualFold(name, protocol.UnsubscribeAll) {
			c.cancelAll()
			return replyUnsubscribeAll
		}
		return c.unsubscribe(name)
	}
}

func (c *session) subscribe(name string) string {
	if !c.srv.source.Has(name) {
		return replyNotFound + name
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cancel, ok := c.tasks[name]; ok {
		cancel()
	}

	// the confirmation must precede the first push
	if err := c.write(protocol.SubscribedPrefix + name); err != nil {
		return replyInternal
	}
	c.tasks[name] = c.srv.sched.Every(c.srv.opts.Interval, func() bool {
		r, ok := c.srv.source.Next(name)
		if !ok {
			return true
		}
		if err := c.write(protocol.FormatQuote(name, r.Bid, r.Ask, r.Timestamp)); err != nil {
			log.Debug().Err(err).Str("session", c.id.String()).Str("rate", name).Msg("push failed, stopping")
			return false
		}
		return true
	})
	log.Debug().Str("session", c.id.String()).Str("rate", name).Msg("subscribed")
	return ""
}

func (c *session) unsubscribe(name string) string {
	c.mu.Lock()
	cancel, ok := c.tasks[name]
	delete(c.tasks, name)
	c.mu.Unlock()
	if !ok {
		return replyNotSubscribed + name
	}
	cancel()
	return protocol.UnsubscribedPrefix + name
}

func (c *session) cancelAll() {
	c.mu.Lock()
	tasks := c.tasks
	c.tasks = make(map[string]func())
	c.mu.Unlock()
	for _, cancel := range tasks {
		cancel()
	}
}

// write sends one line. An empty line is skipped.
func (c *session) write(line string) error {
	if line == "" {
		return nil
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.srv.opts.WriteTimeout))
	_, err := c.conn.Write([]byte(line + "\r\n"))
	return err
}

// Package redisserver provides the RESP protocol server for rediskv.
//
// It implements the line-oriented Redis wire protocol over plain TCP:
// one goroutine per accepted connection, commands decoded from a RESP
// array stream and dispatched against the shared keyspace.
package redisserver

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/rediskv-go/internal/telemetry/metric"
)

// Config holds the RESP server configuration.
type Config struct {
	// Addr is the TCP listen address.
	Addr string
	// ReadTimeout is the timeout for reading a command once its first
	// byte arrived. Helps against slowloris clients.
	ReadTimeout time.Duration
	// WriteTimeout is the timeout for writing a response.
	WriteTimeout time.Duration
	// IdleTimeout is the timeout for idle connections.
	IdleTimeout time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:         "127.0.0.1:6379",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  5 * time.Minute,
	}
}

// Server is the RESP protocol server.
type Server struct {
	cfg     *Config
	handler *CommandHandler
	logger  *slog.Logger
	metrics *metric.Metrics
	ln      net.Listener
	running atomic.Bool
	wg      sync.WaitGroup
}

// Conn represents a single client connection.
type Conn struct {
	id      string
	netConn net.Conn
	br      *bufio.Reader
	bw      *bufio.Writer

	closed atomic.Bool
}

func newConn(c net.Conn) *Conn {
	return &Conn{
		id:      ulid.Make().String(),
		netConn: c,
		br:      bufio.NewReader(c),
		bw:      bufio.NewWriter(c),
	}
}

// ID returns the connection's ULID, used to correlate log entries.
func (c *Conn) ID() string {
	return c.id
}

func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.netConn.Close()
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.netConn.RemoteAddr()
}

// New creates a new RESP server serving the given command handler.
func New(cfg *Config, handler *CommandHandler, logger *slog.Logger, metrics *metric.Metrics) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		metrics: metrics,
	}
}

// Start begins listening and accepting connections. It returns once the
// listener is bound; accepting runs on its own goroutine. The keyspace
// must be fully loaded before Start is called.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.running.Store(true)
	s.logger.Info("resp server listening", "address", ln.Addr().String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.acceptLoop(ctx, ln); err != nil && s.running.Load() {
			s.logger.Error("resp server accept error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listen address, useful when Addr was ":0".
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Shutdown gracefully shuts down the server, closing the listener and
// waiting for in-flight connections up to ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.running.Store(false)

	var firstErr error
	if s.ln != nil {
		if err := s.ln.Close(); err != nil {
			firstErr = err
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return firstErr
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		c, err := ln.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(newConn(c))
		}()
	}
}

// serveConn runs the per-connection loop: read a command, dispatch,
// flush the reply. Errors terminate only this connection.
func (s *Server) serveConn(c *Conn) {
	defer c.Close()

	s.metrics.ConnOpened()
	defer s.metrics.ConnClosed()

	log := s.logger.With("conn", c.ID(), "remote", c.RemoteAddr().String())
	log.Debug("client connected")

	readTimeout := s.cfg.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 30 * time.Second
	}
	writeTimeout := s.cfg.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = 30 * time.Second
	}
	idleTimeout := s.cfg.IdleTimeout
	if idleTimeout == 0 {
		idleTimeout = 5 * time.Minute
	}

	for {
		// First byte: allow the idle timeout, the connection may sit
		// quiet between commands.
		if err := c.netConn.SetReadDeadline(time.Now().Add(idleTimeout)); err != nil {
			return
		}
		if _, err := c.br.Peek(1); err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug("client read error", "error", err)
			}
			return
		}

		// After the first byte: tighten to the per-command read timeout.
		if err := c.netConn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return
		}

		args, err := ReadCommand(c.br)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				log.Debug("client timed out")
				return
			}
			_ = c.netConn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if errors.Is(err, ErrLimitExceeded) {
				log.Warn("protocol limit exceeded", "error", err)
				_ = WriteError(c.bw, "ERR protocol limit exceeded")
				_ = c.bw.Flush()
				return
			}
			_ = WriteError(c.bw, "ERR protocol error: "+err.Error())
			_ = c.bw.Flush()
			return
		}

		if len(args) == 0 {
			// Empty inline line or empty array; nothing to answer.
			continue
		}

		s.handler.Handle(c, args)

		if err := c.netConn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			return
		}
		if err := c.bw.Flush(); err != nil {
			log.Debug("client write error", "error", err)
			return
		}
	}
}

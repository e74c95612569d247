// Copyright 2026 The Lapse Authors
// SPDX-License-Identifier: Apache-2.0

package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/lapse-project/lapse/lib/clock"
	"github.com/lapse-project/lapse/protocol"
)

// NoticeKind discriminates the connection lifecycle and message
// notices a Server emits.
type NoticeKind int

const (
	// NoticeConnected reports a new client. By the time the notice is
	// delivered the client is addressable via SendTo.
	NoticeConnected NoticeKind = iota

	// NoticeDisconnected reports that a client is gone. Emitted
	// exactly once per client, whether the peer hung up, faulted, or
	// was closed after a failed send.
	NoticeDisconnected

	// NoticeMessage carries one decoded message from a client.
	NoticeMessage
)

// Notice is one occurrence on the server's socket: a connect, a
// disconnect, or an inbound message. Message is set only for
// NoticeMessage.
type Notice struct {
	Kind     NoticeKind
	ClientID uint64
	Message  protocol.Message
}

// writeTimeout bounds a single frame write to one client. A client
// that cannot drain a small control message within this window is
// wedged, and the server closes it rather than block a broadcast.
const writeTimeout = 5 * time.Second

// defaultStopGrace bounds how long Serve waits for per-connection
// goroutines after closing their connections.
const defaultStopGrace = 5 * time.Second

// defaultNoticeBuffer is the notice channel capacity. It only absorbs
// bursts; a consumer that stops draining eventually backpressures the
// per-connection readers.
const defaultNoticeBuffer = 64

// ServerConfig holds the parameters for NewServer. SocketPath is
// required.
type ServerConfig struct {
	// SocketPath is the Unix socket to serve on. The parent directory
	// is created if needed and any stale socket file is replaced.
	SocketPath string

	// Logger receives connection lifecycle and fault messages. Nil
	// discards them.
	Logger *slog.Logger

	// Clock is used for the shutdown grace wait. Nil means Real.
	Clock clock.Clock

	// StopGrace bounds the wait for connection goroutines during
	// shutdown. Zero means defaultStopGrace.
	StopGrace time.Duration
}

// Server accepts control-protocol clients on a Unix socket. Each
// accepted connection gets its own reader goroutine; everything those
// readers observe funnels into the Notices channel for a single
// consumer to act on.
//
// Client ids start at 1 and only ever grow. An id seen in a
// NoticeDisconnected will never identify another client for the
// lifetime of the server.
type Server struct {
	socketPath string
	logger     *slog.Logger
	clock      clock.Clock
	stopGrace  time.Duration

	notices chan Notice
	ready   chan struct{}

	// stopping is closed when Serve begins teardown. Readers blocked
	// on a notice send select against it so shutdown never deadlocks
	// on an absent consumer.
	stopping chan struct{}

	mu     sync.Mutex
	nextID uint64
	conns  map[uint64]*serverConn

	active sync.WaitGroup
}

// serverConn is one accepted connection. The write mutex serializes
// frames from SendTo and Broadcast; reads have a dedicated goroutine
// and need no lock.
type serverConn struct {
	id      uint64
	conn    net.Conn
	writeMu sync.Mutex
}

// send writes one message with a bounded deadline. On failure the
// connection is closed so its reader unwinds and the client gets a
// disconnect notice. A transport already reported closed surfaces as
// ErrNotConnected.
func (c *serverConn) send(message protocol.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := protocol.WriteMessage(c.conn, message); err != nil {
		c.conn.Close()
		if errors.Is(err, net.ErrClosed) {
			return fmt.Errorf("sending to client %d: %w", c.id, ErrNotConnected)
		}
		return fmt.Errorf("sending to client %d: %w", c.id, err)
	}
	return nil
}

// NewServer creates a server for the given socket. Call Serve to
// start accepting.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	stopGrace := cfg.StopGrace
	if stopGrace <= 0 {
		stopGrace = defaultStopGrace
	}
	return &Server{
		socketPath: cfg.SocketPath,
		logger:     logger,
		clock:      clk,
		stopGrace:  stopGrace,
		notices:    make(chan Notice, defaultNoticeBuffer),
		ready:      make(chan struct{}),
		stopping:   make(chan struct{}),
		conns:      make(map[uint64]*serverConn),
	}
}

// Notices returns the channel of connection and message notices. The
// channel is never closed; consumers select against their own context.
func (s *Server) Notices() <-chan Notice {
	return s.notices
}

// Ready is closed once the server is listening. Useful for callers
// that start Serve on a goroutine and need to know when clients can
// connect.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// ClientCount returns the number of currently connected clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Serve listens on the configured socket and accepts clients until
// ctx is cancelled, then closes every connection and waits a bounded
// grace period for their readers. The socket file is removed on
// return. Serve is one-shot: it must not be called again after it
// returns.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := listenSocket(s.socketPath)
	if err != nil {
		return err
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("control socket listening", "path", s.socketPath)
	close(s.ready)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.active.Add(1)
		go func() {
			defer s.active.Done()
			s.handleConnection(conn)
		}()
	}

	close(s.stopping)
	for _, sc := range s.snapshot() {
		sc.conn.Close()
	}

	done := make(chan struct{})
	go func() {
		s.active.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-s.clock.After(s.stopGrace):
		s.logger.Warn("connection readers still running at shutdown",
			"grace", s.stopGrace,
		)
	}

	s.logger.Info("control socket closed", "path", s.socketPath)
	return nil
}

// SendTo delivers one message to a single client. Returns
// ErrNotConnected when the id does not name a live client, which
// callers routinely ignore: the client may have hung up between
// deciding to send and sending.
func (s *Server) SendTo(clientID uint64, message protocol.Message) error {
	s.mu.Lock()
	sc, ok := s.conns[clientID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("client %d: %w", clientID, ErrNotConnected)
	}
	return sc.send(message)
}

// Broadcast delivers one message to every connected client, best
// effort. A client that fails its write is closed and logged; the
// remaining clients still get the message.
func (s *Server) Broadcast(message protocol.Message) {
	for _, sc := range s.snapshot() {
		if err := sc.send(message); err != nil {
			s.logger.Warn("broadcast delivery failed", "error", err)
		}
	}
}

// snapshot copies the live connection list so senders iterate without
// holding the registry lock.
func (s *Server) snapshot() []*serverConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	conns := make([]*serverConn, 0, len(s.conns))
	for _, sc := range s.conns {
		conns = append(conns, sc)
	}
	return conns
}

// register adds a connection under a fresh id.
func (s *Server) register(conn net.Conn) *serverConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	sc := &serverConn{id: s.nextID, conn: conn}
	s.conns[sc.id] = sc
	return sc
}

// remove drops a connection from the registry. Returns false when the
// id was already removed, making disconnect handling exactly-once no
// matter how many paths observe the close.
func (s *Server) remove(clientID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conns[clientID]; !ok {
		return false
	}
	delete(s.conns, clientID)
	return true
}

// notify delivers a notice unless the server is tearing down.
func (s *Server) notify(notice Notice) {
	select {
	case s.notices <- notice:
	case <-s.stopping:
	}
}

// handleConnection owns one client from accept to close: it emits the
// connected notice, pumps frames into message notices, and emits the
// disconnected notice on the way out.
func (s *Server) handleConnection(conn net.Conn) {
	sc := s.register(conn)
	s.logger.Info("client connected", "client", sc.id, "clients", s.ClientCount())
	s.notify(Notice{Kind: NoticeConnected, ClientID: sc.id})

	defer func() {
		sc.conn.Close()
		if s.remove(sc.id) {
			s.logger.Info("client disconnected", "client", sc.id, "clients", s.ClientCount())
			s.notify(Notice{Kind: NoticeDisconnected, ClientID: sc.id})
		}
	}()

	for {
		payload, err := protocol.ReadFrame(sc.conn)
		if err != nil {
			if !isExpectedCloseError(err) {
				s.logger.Warn("client receive failed", "client", sc.id, "error", err)
			}
			return
		}
		message, err := protocol.Decode(payload)
		if err != nil {
			// Bad payload, intact framing: drop the message, keep
			// the client.
			s.logger.Warn("discarding undecodable message", "client", sc.id, "error", err)
			continue
		}
		s.notify(Notice{Kind: NoticeMessage, ClientID: sc.id, Message: message})
	}
}

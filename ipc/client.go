// Copyright 2026 The Lapse Authors
// SPDX-License-Identifier: Apache-2.0

package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/lapse-project/lapse/lib/clock"
	"github.com/lapse-project/lapse/protocol"
)

// defaultDialTimeout bounds a single connection attempt.
const defaultDialTimeout = 2 * time.Second

// defaultRetryDelay is the fixed pause between attempts in DialRetry.
const defaultRetryDelay = 200 * time.Millisecond

// messageBuffer is the inbound message channel capacity.
const messageBuffer = 16

// ClientConfig holds the parameters for Dial and DialRetry.
// SocketPath is required.
type ClientConfig struct {
	// SocketPath is the tracker's control socket.
	SocketPath string

	// Logger receives receive-loop fault messages. Nil discards them.
	Logger *slog.Logger

	// Clock paces DialRetry. Nil means Real.
	Clock clock.Clock

	// DialTimeout bounds one connection attempt. Zero means
	// defaultDialTimeout.
	DialTimeout time.Duration

	// RetryDelay is the fixed pause between DialRetry attempts. Zero
	// means defaultRetryDelay.
	RetryDelay time.Duration
}

// Client is one side of a control-protocol conversation with the
// tracker. Inbound messages arrive on Messages; Done closes when the
// connection ends for any reason, and Err then tells a clean
// disconnect (nil) from a receive fault (non-nil).
//
// The consumer must drain Messages; an abandoned channel eventually
// stalls the receive loop.
type Client struct {
	conn   net.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	messages chan protocol.Message
	done     chan struct{}

	closeOnce sync.Once

	mu         sync.Mutex
	receiveErr error
}

// Dial makes a single connection attempt bounded by the configured
// dial timeout.
func Dial(cfg ClientConfig) (*Client, error) {
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}
	conn, err := net.DialTimeout("unix", cfg.SocketPath, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", cfg.SocketPath, err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	client := &Client{
		conn:     conn,
		logger:   logger,
		messages: make(chan protocol.Message, messageBuffer),
		done:     make(chan struct{}),
	}
	go client.receiveLoop()
	return client, nil
}

// DialRetry keeps attempting Dial at a fixed delay until an attempt
// succeeds or ctx expires. Use a context deadline to bound the whole
// wait:
//
//	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
//	defer cancel()
//	client, err := ipc.DialRetry(ctx, cfg)
func DialRetry(ctx context.Context, cfg ClientConfig) (*Client, error) {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}

	for {
		client, err := Dial(cfg)
		if err == nil {
			return client, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("giving up on %s (%v): %w", cfg.SocketPath, ctx.Err(), err)
		case <-clk.After(retryDelay):
		}
	}
}

// Send writes one message to the tracker with a bounded deadline.
// Fails with ErrNotConnected once the connection has ended.
func (c *Client) Send(message protocol.Message) error {
	select {
	case <-c.done:
		return fmt.Errorf("sending %s: %w", messageName(message), ErrNotConnected)
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := protocol.WriteMessage(c.conn, message); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return fmt.Errorf("sending %s: %w", messageName(message), ErrNotConnected)
		}
		return fmt.Errorf("sending %s: %w", messageName(message), err)
	}
	return nil
}

// Messages returns the inbound message channel. It closes when the
// connection ends; buffered messages remain readable after close.
func (c *Client) Messages() <-chan protocol.Message {
	return c.messages
}

// Done closes when the connection has ended and the final state is
// readable via Err.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err reports how the connection ended: nil for a clean disconnect or
// local Close, non-nil for a receive fault. Meaningful once Done is
// closed.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.receiveErr
}

// Close hangs up. Safe to call repeatedly and concurrently with the
// receive loop.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

// receiveLoop pumps frames into the message channel until the
// connection ends. Undecodable payloads are skipped; framing damage
// ends the connection with the error recorded for Err.
func (c *Client) receiveLoop() {
	defer func() {
		c.conn.Close()
		close(c.messages)
		close(c.done)
	}()

	for {
		payload, err := protocol.ReadFrame(c.conn)
		if err != nil {
			if !isExpectedCloseError(err) {
				c.logger.Warn("receive failed", "error", err)
				c.mu.Lock()
				c.receiveErr = err
				c.mu.Unlock()
			}
			return
		}
		message, err := protocol.Decode(payload)
		if err != nil {
			c.logger.Warn("discarding undecodable message", "error", err)
			continue
		}
		c.messages <- message
	}
}

// messageName renders a message's discriminating name for logs.
func messageName(message protocol.Message) string {
	switch {
	case message.Command != "":
		return message.Command
	case message.Event != "":
		return message.Event
	default:
		return "(unnamed message)"
	}
}

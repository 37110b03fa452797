/*
 * Copyright 2025 The servicemon Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package client maintains one connection to the monitor server and runs the
// operator's interactive command session over it.
package client

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/servicemon/servicemon/pkg/logger"
	"github.com/servicemon/servicemon/pkg/models"
	"github.com/servicemon/servicemon/pkg/server"
	"github.com/servicemon/servicemon/pkg/wire"
)

// DefaultRequestTimeout bounds the wait for a response before the session
// reports the server unresponsive.
const DefaultRequestTimeout = 5 * time.Second

// Session is the client side of one connection. It is not safe for
// concurrent use; the interaction loop is strictly sequential.
type Session struct {
	addr    string
	conn    net.Conn
	seq     uint64
	timeout time.Duration
	logger  logger.Logger
	eventFn func(rec models.LogRecord)
	closed  bool
}

// Connect dials the server and opens a session.
func Connect(addr string, timeout time.Duration, log logger.Logger) (*Session, error) {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	// The dial gets a fixed bound; the request timeout only governs waits
	// for responses on the established session.
	conn, err := net.DialTimeout("tcp", addr, DefaultRequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	log.Info().Str("server_addr", addr).Msg("Connected to monitor server")

	return &Session{
		addr:    addr,
		conn:    conn,
		timeout: timeout,
		logger:  log,
	}, nil
}

// OnEvent registers a callback for transition events pushed by the server
// while a watch subscription is active. Events arriving while a response is
// awaited are delivered from inside Do.
func (s *Session) OnEvent(fn func(rec models.LogRecord)) {
	s.eventFn = fn
}

// Do sends one command and blocks until the matching response arrives or the
// request timeout elapses, in which case it reports ErrServerUnresponsive.
// Any transport or protocol failure closes the session.
func (s *Session) Do(command string, args ...string) (*wire.Response, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}

	s.seq++
	seq := s.seq

	if err := wire.WriteFrame(s.conn, wire.NewRequest(seq, command, args...)); err != nil {
		s.teardown()
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if err := s.conn.SetReadDeadline(time.Now().Add(s.timeout)); err != nil {
		s.teardown()
		return nil, err
	}

	for {
		frame, err := wire.ReadFrame(s.conn)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				// The connection may still be healthy; the caller
				// decides whether to reconnect or quit.
				return nil, ErrServerUnresponsive
			}

			s.teardown()

			if errors.Is(err, wire.ErrMalformedFrame) {
				return nil, fmt.Errorf("protocol error: %w", err)
			}

			return nil, fmt.Errorf("connection lost: %w", err)
		}

		switch frame.Type {
		case wire.FrameEvent:
			if s.eventFn != nil {
				s.eventFn(frame.Event.Record)
			}
		case wire.FrameResponse:
			if frame.Response.Seq != seq {
				// Stale response from an abandoned request; keep
				// waiting for ours.
				continue
			}

			return frame.Response, nil
		default:
			s.teardown()
			return nil, fmt.Errorf("protocol error: unexpected %s frame", frame.Type)
		}
	}
}

// Close performs the scoped teardown: a quit frame is sent best-effort if the
// connection is still writable, then the connection is released
// unconditionally.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}

	s.seq++
	_ = wire.WriteFrame(s.conn, wire.NewRequest(s.seq, server.CmdQuit))

	s.teardown()

	return nil
}

// Closed reports whether the session has been torn down.
func (s *Session) Closed() bool {
	return s.closed
}

func (s *Session) teardown() {
	if s.closed {
		return
	}

	s.closed = true
	_ = s.conn.Close()
	s.logger.Debug().Str("server_addr", s.addr).Msg("Session released")
}

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

// Package server accepts client connections and dispatches their commands
// against the service registry. Each connection gets its own session
// goroutine; a transport failure or malformed frame ends only that session.
package server

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/servicemon/servicemon/pkg/logger"
	"github.com/servicemon/servicemon/pkg/probe"
	"github.com/servicemon/servicemon/pkg/registry"
)

// Server is the session dispatcher.
type Server struct {
	registry    *registry.Registry
	probes      probe.Registry
	broadcaster *Broadcaster
	logger      logger.Logger

	mu       sync.Mutex
	sessions map[string]*session
	closing  bool
	wg       sync.WaitGroup
}

// New creates a session dispatcher. broadcaster may be nil when watch
// support is not wired (tests).
func New(reg *registry.Registry, probes probe.Registry, broadcaster *Broadcaster, log logger.Logger) *Server {
	return &Server{
		registry:    reg,
		probes:      probes,
		broadcaster: broadcaster,
		logger:      log,
		sessions:    make(map[string]*session),
	}
}

// Serve accepts connections until ctx is cancelled, then closes the listener
// and all open sessions and waits for their goroutines to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info().Str("listen_addr", ln.Addr().String()).Msg("Server listening")

	go func() {
		<-ctx.Done()
		_ = ln.Close()
		s.closeSessions()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				s.logger.Info().Msg("Server stopped")

				return nil
			}

			return err
		}

		s.startSession(conn)
	}
}

func (s *Server) startSession(conn net.Conn) {
	sess := &session{
		id:   uuid.New().String(),
		conn: conn,
		srv:  s,
	}
	sess.logger = s.logger.With().Str("session_id", sess.id).Logger()

	// Registration and the closing flag share one lock, so a connection
	// accepted during shutdown is either closed here or seen by
	// closeSessions; it can never slip between the two.
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = conn.Close()

		return
	}
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	if s.broadcaster != nil {
		s.broadcaster.subscribe(sess.id, sess)
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		sess.serve()
	}()
}

func (s *Server) dropSession(id string) {
	if s.broadcaster != nil {
		s.broadcaster.unsubscribe(id)
	}

	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

func (s *Server) closeSessions() {
	s.mu.Lock()
	s.closing = true
	open := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.Unlock()

	for _, sess := range open {
		sess.close()
	}
}

// SessionCount reports the number of open sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.sessions)
}

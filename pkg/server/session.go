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

package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/servicemon/servicemon/pkg/models"
	"github.com/servicemon/servicemon/pkg/probe"
	"github.com/servicemon/servicemon/pkg/registry"
	"github.com/servicemon/servicemon/pkg/wire"
)

// Supported command names. The set is closed; anything else is rejected with
// an ERROR response.
const (
	CmdAdd     = "add"
	CmdRemove  = "remove"
	CmdStatus  = "status"
	CmdList    = "list"
	CmdSuspend = "suspend"
	CmdResume  = "resume"
	CmdWatch   = "watch"
	CmdUnwatch = "unwatch"
	CmdQuit    = "quit"
)

// session is the per-connection state: one read loop, one in-flight request
// at a time, responses written in request order. Event frames for watch
// subscriptions share the write mutex so frames never interleave.
type session struct {
	id       string
	conn     net.Conn
	srv      *Server
	logger   zerolog.Logger
	writeMu  sync.Mutex
	watching atomic.Bool
	closed   atomic.Bool
}

// serve runs the session until quit, transport error, or malformed frame.
func (s *session) serve() {
	defer s.close()

	s.logger.Info().Str("remote_addr", s.conn.RemoteAddr().String()).Msg("Session opened")

	for {
		frame, err := wire.ReadFrame(s.conn)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				s.logger.Info().Msg("Session closed by peer")
			case errors.Is(err, wire.ErrMalformedFrame):
				s.logger.Warn().Err(err).Msg("Malformed frame, closing session")
			case s.closed.Load():
				// Shutdown closed the connection under the reader.
			default:
				s.logger.Warn().Err(err).Msg("Transport error, closing session")
			}

			return
		}

		if frame.Type != wire.FrameRequest || frame.Request == nil {
			s.logger.Warn().Str("frame_type", string(frame.Type)).Msg("Unexpected frame type, closing session")
			return
		}

		req := frame.Request
		resp, quit := s.handle(req)

		if err := s.send(resp); err != nil {
			return
		}

		if quit {
			s.logger.Info().Msg("Session quit")
			return
		}
	}
}

// handle runs one command to completion and builds the response frame.
// Command-level failures become ERROR responses; they never end the session.
func (s *session) handle(req *wire.Request) (resp *wire.Frame, quit bool) {
	s.logger.Debug().
		Uint64("seq", req.Seq).
		Str("command", req.Command).
		Int("args", len(req.Args)).
		Msg("Handling command")

	switch req.Command {
	case CmdAdd:
		return s.handleAdd(req), false
	case CmdRemove:
		return s.handleRemove(req), false
	case CmdStatus:
		return s.handleStatus(req), false
	case CmdList:
		entries := s.srv.registry.List()
		return wire.NewResponse(req.Seq, fmt.Sprintf("%d services", len(entries)), entries), false
	case CmdSuspend:
		return s.handleSuspend(req), false
	case CmdResume:
		return s.handleResume(req), false
	case CmdWatch:
		s.watching.Store(true)
		return wire.NewResponse(req.Seq, "watching status transitions", nil), false
	case CmdUnwatch:
		s.watching.Store(false)
		return wire.NewResponse(req.Seq, "stopped watching", nil), false
	case CmdQuit:
		return wire.NewResponse(req.Seq, "bye", nil), true
	default:
		return wire.NewErrorResponse(req.Seq, fmt.Sprintf("unknown command: %s", req.Command)), false
	}
}

func (s *session) handleAdd(req *wire.Request) *wire.Frame {
	if len(req.Args) < 2 || len(req.Args) > 4 {
		return wire.NewErrorResponse(req.Seq, "usage: add <id> <target> [probe-kind] [interval]")
	}

	id, target := req.Args[0], req.Args[1]

	kind := probe.DefaultKind
	if len(req.Args) >= 3 {
		kind = req.Args[2]
	}

	var every models.Duration

	if len(req.Args) == 4 {
		dur, err := time.ParseDuration(req.Args[3])
		if err != nil || dur <= 0 {
			return wire.NewErrorResponse(req.Seq, fmt.Sprintf("invalid duration: %s", req.Args[3]))
		}

		every = models.Duration(dur)
	}

	// Reject unknown probe kinds up front. A malformed target for a known
	// kind is accepted and surfaces as ERROR status after the first probe.
	if _, err := s.srv.probes.Get(kind, target, time.Second); errors.Is(err, probe.ErrUnknownKind) {
		return wire.NewErrorResponse(req.Seq, err.Error())
	}

	entry, err := s.srv.registry.Add(id, target, kind, every)
	if err != nil {
		if errors.Is(err, registry.ErrDuplicateIdentifier) {
			return wire.NewErrorResponse(req.Seq, fmt.Sprintf("duplicate identifier: %s", id))
		}

		return wire.NewErrorResponse(req.Seq, err.Error())
	}

	return wire.NewResponse(req.Seq, fmt.Sprintf("added %s (%s, %s probe)", id, target, kind), []models.ServiceEntry{entry})
}

func (s *session) handleRemove(req *wire.Request) *wire.Frame {
	if len(req.Args) != 1 {
		return wire.NewErrorResponse(req.Seq, "usage: remove <id>")
	}

	id := req.Args[0]

	if err := s.srv.registry.Remove(id); err != nil {
		return wire.NewErrorResponse(req.Seq, fmt.Sprintf("service not found: %s", id))
	}

	return wire.NewResponse(req.Seq, fmt.Sprintf("removed %s", id), nil)
}

func (s *session) handleStatus(req *wire.Request) *wire.Frame {
	if len(req.Args) != 1 {
		return wire.NewErrorResponse(req.Seq, "usage: status <id>")
	}

	id := req.Args[0]

	entry, err := s.srv.registry.Get(id)
	if err != nil {
		return wire.NewErrorResponse(req.Seq, fmt.Sprintf("service not found: %s", id))
	}

	return wire.NewResponse(req.Seq, string(entry.Status), []models.ServiceEntry{entry})
}

func (s *session) handleSuspend(req *wire.Request) *wire.Frame {
	if len(req.Args) != 2 {
		return wire.NewErrorResponse(req.Seq, "usage: suspend <id> <duration>")
	}

	id := req.Args[0]

	dur, err := time.ParseDuration(req.Args[1])
	if err != nil || dur <= 0 {
		return wire.NewErrorResponse(req.Seq, fmt.Sprintf("invalid duration: %s", req.Args[1]))
	}

	until := time.Now().Add(dur)

	if err := s.srv.registry.Suspend(id, until); err != nil {
		return wire.NewErrorResponse(req.Seq, fmt.Sprintf("service not found: %s", id))
	}

	return wire.NewResponse(req.Seq, fmt.Sprintf("suspended %s until %s", id, until.Format(time.RFC3339)), nil)
}

func (s *session) handleResume(req *wire.Request) *wire.Frame {
	if len(req.Args) != 1 {
		return wire.NewErrorResponse(req.Seq, "usage: resume <id>")
	}

	id := req.Args[0]

	if err := s.srv.registry.Resume(id); err != nil {
		return wire.NewErrorResponse(req.Seq, fmt.Sprintf("service not found: %s", id))
	}

	return wire.NewResponse(req.Seq, fmt.Sprintf("resumed %s", id), nil)
}

// notify implements subscriber: pushes one transition event to a watching
// session. Write failures close the session; the read loop notices.
func (s *session) notify(rec models.LogRecord) {
	if !s.watching.Load() {
		return
	}

	if err := s.send(wire.NewEvent(rec)); err != nil && !errors.Is(err, errSessionClosing) {
		s.logger.Warn().Err(err).Msg("Failed to push event, closing session")
	}
}

func (s *session) send(f *wire.Frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed.Load() {
		return errSessionClosing
	}

	if err := wire.WriteFrame(s.conn, f); err != nil {
		s.close()
		return err
	}

	return nil
}

func (s *session) close() {
	if s.closed.Swap(true) {
		return
	}

	s.srv.dropSession(s.id)
	_ = s.conn.Close()
}

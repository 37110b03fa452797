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

// Package wire implements the framed protocol spoken between the monitor
// server and its clients. Each frame is a JSON envelope preceded by a
// big-endian uint32 length, so frame boundaries survive partial reads and
// arguments may carry arbitrary bytes.
package wire

import (
	"encoding/json"

	"github.com/servicemon/servicemon/pkg/models"
)

// FrameType discriminates the envelope contents.
type FrameType string

const (
	FrameRequest  FrameType = "request"
	FrameResponse FrameType = "response"
	FrameEvent    FrameType = "event"
)

// Status is the outcome of one command.
type Status string

const (
	StatusOK    Status = "OK"
	StatusError Status = "ERROR"
)

// Frame is the envelope carried on the wire. Exactly one of Request,
// Response, or Event is set, matching Type.
type Frame struct {
	Type     FrameType `json:"type"`
	Request  *Request  `json:"request,omitempty"`
	Response *Response `json:"response,omitempty"`
	Event    *Event    `json:"event,omitempty"`
}

// Request is a client command. Seq correlates the eventual response.
type Request struct {
	Seq     uint64 `json:"seq"`
	Command string `json:"command"`
	Args    Args   `json:"args,omitempty"`
}

// Args is the ordered argument list of a request. Arguments may contain
// arbitrary bytes, so each one travels base64-encoded; a plain JSON string
// would silently replace invalid UTF-8 with U+FFFD.
type Args []string

func (a Args) MarshalJSON() ([]byte, error) {
	raw := make([][]byte, len(a))
	for i, arg := range a {
		raw[i] = []byte(arg)
	}

	return json.Marshal(raw)
}

func (a *Args) UnmarshalJSON(b []byte) error {
	var raw [][]byte
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	args := make(Args, len(raw))
	for i, arg := range raw {
		args[i] = string(arg)
	}

	*a = args

	return nil
}

// Response carries the outcome of the request with the same Seq. Payload is
// human-readable status text; Entries is set for commands returning service
// snapshots.
type Response struct {
	Seq     uint64                `json:"seq"`
	Status  Status                `json:"status"`
	Payload string                `json:"payload,omitempty"`
	Entries []models.ServiceEntry `json:"entries,omitempty"`
}

// Event is a server-initiated push of one status transition, delivered to
// sessions that issued a watch command. Events carry no sequence number and
// never count against request/response ordering.
type Event struct {
	Record models.LogRecord `json:"record"`
}

// NewRequest builds a request frame.
func NewRequest(seq uint64, command string, args ...string) *Frame {
	return &Frame{
		Type:    FrameRequest,
		Request: &Request{Seq: seq, Command: command, Args: args},
	}
}

// NewResponse builds an OK response frame.
func NewResponse(seq uint64, payload string, entries []models.ServiceEntry) *Frame {
	return &Frame{
		Type:     FrameResponse,
		Response: &Response{Seq: seq, Status: StatusOK, Payload: payload, Entries: entries},
	}
}

// NewErrorResponse builds an ERROR response frame.
func NewErrorResponse(seq uint64, payload string) *Frame {
	return &Frame{
		Type:     FrameResponse,
		Response: &Response{Seq: seq, Status: StatusError, Payload: payload},
	}
}

// NewEvent builds an event frame for one transition record.
func NewEvent(record models.LogRecord) *Frame {
	return &Frame{
		Type:  FrameEvent,
		Event: &Event{Record: record},
	}
}

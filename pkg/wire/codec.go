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

package wire

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	// MaxFrameSize bounds a single frame body. Anything larger is treated
	// as a protocol violation, not a resource request.
	MaxFrameSize = 1 << 20

	lenPrefixSize = 4
)

// WriteFrame encodes f and writes it as one length-prefixed record.
func WriteFrame(w io.Writer, f *Frame) error {
	body, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}

	if len(body) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(body))
	}

	buf := make([]byte, lenPrefixSize+len(body))
	binary.BigEndian.PutUint32(buf, uint32(len(body)))
	copy(buf[lenPrefixSize:], body)

	// Single Write keeps the prefix and body contiguous so concurrent
	// writers serialized by the caller never interleave partial frames.
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}

	return nil
}

// ReadFrame reads and decodes the next frame from r. It returns io.EOF on a
// clean close at a frame boundary and ErrMalformedFrame on truncated or
// garbled input; the caller must close the session on ErrMalformedFrame.
func ReadFrame(r io.Reader) (*Frame, error) {
	header := make([]byte, lenPrefixSize)

	if _, err := io.ReadFull(r, header); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}

		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: truncated length prefix", ErrMalformedFrame)
		}

		return nil, fmt.Errorf("failed to read frame header: %w", err)
	}

	size := binary.BigEndian.Uint32(header)
	if size == 0 || size > MaxFrameSize {
		return nil, fmt.Errorf("%w: length prefix %d", ErrMalformedFrame, size)
	}

	body := make([]byte, size)

	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: truncated body", ErrMalformedFrame)
		}

		return nil, fmt.Errorf("failed to read frame body: %w", err)
	}

	var f Frame
	if err := json.Unmarshal(body, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	if err := validate(&f); err != nil {
		return nil, err
	}

	return &f, nil
}

func validate(f *Frame) error {
	switch f.Type {
	case FrameRequest:
		if f.Request == nil {
			return fmt.Errorf("%w: request frame without request", ErrMalformedFrame)
		}
	case FrameResponse:
		if f.Response == nil {
			return fmt.Errorf("%w: response frame without response", ErrMalformedFrame)
		}
	case FrameEvent:
		if f.Event == nil {
			return fmt.Errorf("%w: event frame without event", ErrMalformedFrame)
		}
	default:
		return fmt.Errorf("%w: unknown frame type %q", ErrMalformedFrame, f.Type)
	}

	return nil
}

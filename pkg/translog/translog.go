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

// Package translog appends status-transition records to a log file as JSON
// lines, one record per transition. Records are never rewritten; rotation and
// retention belong to whoever owns the file.
package translog

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/servicemon/servicemon/pkg/models"
	"github.com/servicemon/servicemon/pkg/registry"
)

// Writer is a registry.TransitionSink backed by an append-only file.
type Writer struct {
	log    zerolog.Logger
	closer io.Closer
}

// New opens (creating if necessary) the transition log at path.
func New(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open transition log: %w", err)
	}

	return &Writer{
		log:    zerolog.New(f),
		closer: f,
	}, nil
}

// NewWithWriter builds a transition log over an arbitrary writer. Used by
// tests and by callers that manage the file themselves.
func NewWithWriter(w io.Writer) *Writer {
	return &Writer{log: zerolog.New(w)}
}

// Record appends one transition. zerolog serializes concurrent events, so
// Record is safe from multiple goroutines.
func (w *Writer) Record(rec models.LogRecord) {
	w.log.Log().
		Time("timestamp", rec.Timestamp).
		Str("service_id", rec.ServiceID).
		Str("old_status", string(rec.OldStatus)).
		Str("new_status", string(rec.NewStatus)).
		Str("reason", rec.Reason).
		Send()
}

// Close closes the underlying file, if any.
func (w *Writer) Close() error {
	if w.closer == nil {
		return nil
	}

	return w.closer.Close()
}

// Multi fans one transition out to several sinks in order.
func Multi(sinks ...registry.TransitionSink) registry.TransitionSink {
	return multiSink(sinks)
}

type multiSink []registry.TransitionSink

func (m multiSink) Record(rec models.LogRecord) {
	for _, s := range m {
		if s != nil {
			s.Record(rec)
		}
	}
}

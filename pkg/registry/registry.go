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

// Package registry holds the authoritative table of monitored services.
// All mutable state lives behind one mutex; callers only ever receive
// value snapshots of entries.
package registry

import (
	"sync"
	"time"

	"github.com/servicemon/servicemon/pkg/logger"
	"github.com/servicemon/servicemon/pkg/models"
)

// TransitionSink receives one record per observed status transition.
// Implementations must tolerate concurrent callers; records are emitted
// under the registry lock so sink order matches transition order.
type TransitionSink interface {
	Record(rec models.LogRecord)
}

// Registry maps service identifiers to their monitoring state. Insertion
// order is preserved for List output stability.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*models.ServiceEntry
	order   []string
	sink    TransitionSink
	logger  logger.Logger
}

// New creates an empty registry. sink may be nil, in which case transitions
// are only logged.
func New(sink TransitionSink, log logger.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*models.ServiceEntry),
		sink:    sink,
		logger:  log,
	}
}

// Add registers a new service for monitoring with status UNKNOWN.
// A non-zero every overrides the polling engine's default cadence for this
// entry. It returns a snapshot of the created entry.
func (r *Registry) Add(id, target, probeKind string, every models.Duration) (models.ServiceEntry, error) {
	if id == "" {
		return models.ServiceEntry{}, ErrEmptyIdentifier
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; ok {
		return models.ServiceEntry{}, ErrDuplicateIdentifier
	}

	entry := &models.ServiceEntry{
		ID:           id,
		Target:       target,
		ProbeKind:    probeKind,
		Status:       models.StatusUnknown,
		PollInterval: every,
	}

	r.entries[id] = entry
	r.order = append(r.order, id)

	r.logger.Info().
		Str("service_id", id).
		Str("target", target).
		Str("probe_kind", probeKind).
		Msg("Service registered")

	return *entry, nil
}

// Remove deletes a service. Probes already in flight for the removed entry
// are discarded when they report back and find the entry gone.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; !ok {
		return ErrNotFound
	}

	delete(r.entries, id)

	for i, ordered := range r.order {
		if ordered == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	r.logger.Info().Str("service_id", id).Msg("Service removed")

	return nil
}

// Get returns a snapshot of one entry.
func (r *Registry) Get(id string) (models.ServiceEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return models.ServiceEntry{}, ErrNotFound
	}

	return *entry, nil
}

// List returns snapshots of all entries in insertion order.
func (r *Registry) List() []models.ServiceEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.ServiceEntry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.entries[id])
	}

	return out
}

// Suspend opens a maintenance window for a service: probes are skipped until
// the deadline passes and the current status is left untouched.
func (r *Registry) Suspend(id string, until time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return ErrNotFound
	}

	entry.SuspendedUntil = until

	r.logger.Info().
		Str("service_id", id).
		Time("until", until).
		Msg("Service monitoring suspended")

	return nil
}

// Resume closes a maintenance window early.
func (r *Registry) Resume(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return ErrNotFound
	}

	entry.SuspendedUntil = time.Time{}

	r.logger.Info().Str("service_id", id).Msg("Service monitoring resumed")

	return nil
}

// UpdateStatus applies a probe outcome that maps directly to a status. It is
// called only by the polling engine. A result for a removed entry returns
// ErrNotFound and must be discarded by the caller. A successful status sets
// the consecutive-failure count back to zero. The returned record is non-nil
// only when the status actually changed.
func (r *Registry) UpdateStatus(id string, status models.ServiceStatus, at time.Time, reason string) (*models.LogRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return nil, ErrNotFound
	}

	entry.LastChecked = at

	if status == models.StatusUp {
		entry.FailureCount = 0
	}

	return r.transitionLocked(entry, status, at, reason), nil
}

// RecordFailure counts one failed probe. The status flips to DOWN only once
// threshold consecutive failures have accumulated; below the threshold the
// prior status is kept so a transient failure never flaps the service.
func (r *Registry) RecordFailure(id string, at time.Time, threshold int, reason string) (*models.LogRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return nil, ErrNotFound
	}

	entry.LastChecked = at
	entry.FailureCount++

	if entry.FailureCount < threshold {
		r.logger.Debug().
			Str("service_id", id).
			Int("failure_count", entry.FailureCount).
			Int("threshold", threshold).
			Msg("Probe failed below threshold")

		return nil, nil
	}

	return r.transitionLocked(entry, models.StatusDown, at, reason), nil
}

func (r *Registry) transitionLocked(entry *models.ServiceEntry, status models.ServiceStatus, at time.Time, reason string) *models.LogRecord {
	if entry.Status == status {
		return nil
	}

	rec := models.LogRecord{
		Timestamp: at,
		ServiceID: entry.ID,
		OldStatus: entry.Status,
		NewStatus: status,
		Reason:    reason,
	}

	entry.Status = status

	r.logger.Info().
		Str("service_id", entry.ID).
		Str("old_status", string(rec.OldStatus)).
		Str("new_status", string(rec.NewStatus)).
		Str("reason", reason).
		Msg("Service status changed")

	if r.sink != nil {
		r.sink.Record(rec)
	}

	return &rec
}

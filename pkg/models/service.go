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

// Package models defines the shared domain types for the service monitor.
package models

import "time"

// ServiceStatus is the last observed liveness of a monitored service.
type ServiceStatus string

const (
	// StatusUnknown is the status of an entry that has not been probed yet.
	StatusUnknown ServiceStatus = "UNKNOWN"
	// StatusUp means the most recent probe reached the target.
	StatusUp ServiceStatus = "UP"
	// StatusDown means the failure threshold was crossed.
	StatusDown ServiceStatus = "DOWN"
	// StatusError means the probe itself could not run against the target.
	StatusError ServiceStatus = "ERROR"
)

// ServiceEntry is a snapshot of one monitored service. The registry hands out
// value copies only; mutating a snapshot never affects registry state.
type ServiceEntry struct {
	ID             string        `json:"id"`
	Target         string        `json:"target"`
	ProbeKind      string        `json:"probe_kind"`
	Status         ServiceStatus `json:"status"`
	LastChecked    time.Time     `json:"last_checked,omitzero"`
	FailureCount   int           `json:"failure_count"`
	SuspendedUntil time.Time     `json:"suspended_until,omitzero"`

	// PollInterval overrides the engine-wide poll cadence for this entry.
	// Zero means the engine default.
	PollInterval Duration `json:"poll_interval,omitempty"`
}

// Suspended reports whether the entry is inside a maintenance window at t.
func (e *ServiceEntry) Suspended(t time.Time) bool {
	return t.Before(e.SuspendedUntil)
}

// LogRecord describes one status transition. Records are append-only.
type LogRecord struct {
	Timestamp time.Time     `json:"timestamp"`
	ServiceID string        `json:"service_id"`
	OldStatus ServiceStatus `json:"old_status"`
	NewStatus ServiceStatus `json:"new_status"`
	Reason    string        `json:"reason"`
}

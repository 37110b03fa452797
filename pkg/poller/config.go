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

package poller

import (
	"time"

	"github.com/servicemon/servicemon/pkg/models"
)

const (
	defaultPollInterval     = 10 * time.Second
	defaultInitialDelay     = 2 * time.Second
	defaultProbeTimeout     = 5 * time.Second
	defaultFailureThreshold = 3
	defaultMaxConcurrent    = 64
)

// Config represents polling engine configuration.
type Config struct {
	// PollInterval is the time between probes of one entry. Entries are
	// scheduled independently; there is no global lockstep.
	PollInterval models.Duration `json:"poll_interval"`

	// InitialDelay bounds the random delay before a newly added entry's
	// first probe, so a bulk add does not produce a thundering herd.
	InitialDelay models.Duration `json:"initial_delay"`

	// ProbeTimeout bounds a single probe attempt.
	ProbeTimeout models.Duration `json:"probe_timeout"`

	// FailureThreshold is the number of consecutive failures before an
	// entry transitions to DOWN.
	FailureThreshold int `json:"failure_threshold"`

	// MaxConcurrentProbes bounds in-flight probes across all entries;
	// excess work queues instead of spawning unbounded goroutines.
	MaxConcurrentProbes int `json:"max_concurrent_probes"`
}

// Validate implements config.Validator and applies defaults.
func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		c.PollInterval = models.Duration(defaultPollInterval)
	}

	if c.InitialDelay <= 0 {
		c.InitialDelay = models.Duration(defaultInitialDelay)
	}

	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = models.Duration(defaultProbeTimeout)
	}

	if c.FailureThreshold <= 0 {
		c.FailureThreshold = defaultFailureThreshold
	}

	if c.MaxConcurrentProbes <= 0 {
		c.MaxConcurrentProbes = defaultMaxConcurrent
	}

	return nil
}

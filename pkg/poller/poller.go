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

// Package poller drives recurring health probes of every registered service.
// Each entry has its own schedule; probe work runs on a bounded worker pool,
// and results are written back through the registry so stale results for
// removed entries are discarded.
package poller

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/servicemon/servicemon/pkg/logger"
	"github.com/servicemon/servicemon/pkg/models"
	"github.com/servicemon/servicemon/pkg/probe"
	"github.com/servicemon/servicemon/pkg/registry"
)

const (
	reasonProbeSucceeded = "probe succeeded"
	reasonProbeFailed    = "probe failed"

	minScanResolution = 50 * time.Millisecond
	maxScanResolution = time.Second

	stopTimeout = 10 * time.Second
)

var errStopTimeout = errors.New("timed out waiting for poller to stop")

type job struct {
	entry models.ServiceEntry
}

// Poller is the polling engine.
type Poller struct {
	config   Config
	registry *registry.Registry
	probes   probe.Registry
	clock    Clock
	logger   logger.Logger

	mu       sync.Mutex
	nextDue  map[string]time.Time
	inFlight map[string]struct{}

	workCh chan job
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

// New creates a polling engine over the given registry and probe factories.
// A nil clock defaults to the real clock.
func New(config *Config, reg *registry.Registry, probes probe.Registry, clock Clock, log logger.Logger) *Poller {
	if clock == nil {
		clock = realClock{}
	}

	return &Poller{
		config:   *config,
		registry: reg,
		probes:   probes,
		clock:    clock,
		logger:   log,
		nextDue:  make(map[string]time.Time),
		inFlight: make(map[string]struct{}),
	}
}

// Start launches the scan loop and the probe workers. It returns immediately;
// use Stop for teardown.
func (p *Poller) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.workCh = make(chan job, p.config.MaxConcurrentProbes*2)

	for i := 0; i < p.config.MaxConcurrentProbes; i++ {
		p.wg.Add(1)

		go func() {
			defer p.wg.Done()

			p.worker(runCtx)
		}()
	}

	go p.run(runCtx)

	p.logger.Info().
		Dur("poll_interval", time.Duration(p.config.PollInterval)).
		Int("failure_threshold", p.config.FailureThreshold).
		Int("max_concurrent_probes", p.config.MaxConcurrentProbes).
		Msg("Starting polling engine")

	return nil
}

// Stop shuts the engine down, waiting for in-flight probes to finish or the
// stop timeout to elapse, whichever comes first.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel == nil {
		return nil
	}

	p.cancel()
	<-p.done

	waited := make(chan struct{})

	go func() {
		p.wg.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		p.logger.Info().Msg("Polling engine stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(stopTimeout):
		return errStopTimeout
	}
}

// run is the scan loop: on every tick it schedules due entries onto the
// worker pool.
func (p *Poller) run(ctx context.Context) {
	defer close(p.done)
	defer close(p.workCh)

	ticker := p.clock.Ticker(p.scanResolution())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			p.scan()
		}
	}
}

// scanResolution derives the scheduler tick from the poll interval so short
// test intervals still get probed promptly.
func (p *Poller) scanResolution() time.Duration {
	res := time.Duration(p.config.PollInterval) / 10

	if res < minScanResolution {
		return minScanResolution
	}

	if res > maxScanResolution {
		return maxScanResolution
	}

	return res
}

func (p *Poller) scan() {
	now := p.clock.Now()
	entries := p.registry.List()

	p.mu.Lock()
	defer p.mu.Unlock()

	// Drop schedule state for removed entries; their future probes are
	// thereby cancelled.
	live := make(map[string]struct{}, len(entries))
	for i := range entries {
		live[entries[i].ID] = struct{}{}
	}

	for id := range p.nextDue {
		if _, ok := live[id]; !ok {
			delete(p.nextDue, id)
		}
	}

	for i := range entries {
		entry := entries[i]

		if entry.Suspended(now) {
			continue
		}

		if _, busy := p.inFlight[entry.ID]; busy {
			continue
		}

		due, scheduled := p.nextDue[entry.ID]
		if !scheduled {
			// First sighting: spread initial probes out to avoid a
			// thundering herd on bulk adds.
			p.nextDue[entry.ID] = now.Add(p.initialJitter())
			continue
		}

		if now.Before(due) {
			continue
		}

		select {
		case p.workCh <- job{entry: entry}:
			p.inFlight[entry.ID] = struct{}{}
			p.nextDue[entry.ID] = now.Add(p.entryInterval(&entry))
		default:
			// Pool saturated; leave the entry due and retry on the
			// next tick.
		}
	}
}

// entryInterval is the poll cadence for one entry: its own interval when set,
// the engine default otherwise.
func (p *Poller) entryInterval(entry *models.ServiceEntry) time.Duration {
	if entry.PollInterval > 0 {
		return time.Duration(entry.PollInterval)
	}

	return time.Duration(p.config.PollInterval)
}

func (p *Poller) initialJitter() time.Duration {
	limit := int64(time.Duration(p.config.InitialDelay))
	if limit <= 0 {
		return 0
	}

	return time.Duration(rand.Int63n(limit))
}

func (p *Poller) worker(ctx context.Context) {
	for j := range p.workCh {
		p.runProbe(ctx, j.entry)

		p.mu.Lock()
		delete(p.inFlight, j.entry.ID)
		p.mu.Unlock()
	}
}

func (p *Poller) runProbe(ctx context.Context, entry models.ServiceEntry) {
	checker, err := p.probes.Get(entry.ProbeKind, entry.Target, time.Duration(p.config.ProbeTimeout))
	if err != nil {
		p.applyError(entry.ID, fmt.Sprintf("probe unsupported: %v", err))
		return
	}

	err = checker.Check(ctx)
	if ctx.Err() != nil {
		// Shutting down; the attempt's outcome is meaningless.
		return
	}

	at := p.clock.Now()

	switch {
	case err == nil:
		p.applyResult(entry.ID, func() (*models.LogRecord, error) {
			return p.registry.UpdateStatus(entry.ID, models.StatusUp, at, reasonProbeSucceeded)
		})
	case errors.Is(err, probe.ErrUnreachable):
		p.logger.Debug().Str("service_id", entry.ID).Err(err).Msg("Probe failed")
		p.applyResult(entry.ID, func() (*models.LogRecord, error) {
			return p.registry.RecordFailure(entry.ID, at, p.config.FailureThreshold, reasonProbeFailed)
		})
	default:
		p.applyError(entry.ID, fmt.Sprintf("probe error: %v", err))
	}
}

func (p *Poller) applyError(id, reason string) {
	p.applyResult(id, func() (*models.LogRecord, error) {
		return p.registry.UpdateStatus(id, models.StatusError, p.clock.Now(), reason)
	})
}

// applyResult writes a probe outcome back, discarding results for entries
// removed while the probe was in flight.
func (p *Poller) applyResult(id string, update func() (*models.LogRecord, error)) {
	if _, err := update(); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			p.logger.Debug().Str("service_id", id).Msg("Discarding probe result for removed service")
			return
		}

		p.logger.Error().Str("service_id", id).Err(err).Msg("Failed to record probe result")
	}
}

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
	"sync"

	"github.com/servicemon/servicemon/pkg/logger"
	"github.com/servicemon/servicemon/pkg/models"
)

const eventBufferSize = 256

// subscriber receives status-transition events.
type subscriber interface {
	notify(rec models.LogRecord)
}

// Broadcaster fans status transitions out to watching sessions. It implements
// registry.TransitionSink; Record never blocks the caller, since the registry
// emits records while holding its lock.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[string]subscriber
	events      chan models.LogRecord
	done        chan struct{}
	logger      logger.Logger
}

// NewBroadcaster creates a broadcaster and starts its dispatch loop.
func NewBroadcaster(log logger.Logger) *Broadcaster {
	b := &Broadcaster{
		subscribers: make(map[string]subscriber),
		events:      make(chan models.LogRecord, eventBufferSize),
		done:        make(chan struct{}),
		logger:      log,
	}

	go b.run()

	return b
}

// Record implements registry.TransitionSink.
func (b *Broadcaster) Record(rec models.LogRecord) {
	select {
	case b.events <- rec:
	case <-b.done:
	default:
		b.logger.Warn().Str("service_id", rec.ServiceID).Msg("Event buffer full, dropping transition event")
	}
}

// Close stops the dispatch loop. Pending events are dropped.
func (b *Broadcaster) Close() {
	close(b.done)
}

func (b *Broadcaster) subscribe(id string, s subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribers[id] = s
}

func (b *Broadcaster) unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, id)
}

func (b *Broadcaster) run() {
	for {
		select {
		case <-b.done:
			return
		case rec := <-b.events:
			b.mu.Lock()
			targets := make([]subscriber, 0, len(b.subscribers))
			for _, s := range b.subscribers {
				targets = append(targets, s)
			}
			b.mu.Unlock()

			for _, s := range targets {
				s.notify(rec)
			}
		}
	}
}

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

// Package probe implements the health checks run against monitored services.
// Probes are capability-typed: each kind (port, process, exec) has a factory
// registered in a Registry, and the polling engine is agnostic to the kind.
package probe

import (
	"context"
	"fmt"
	"time"
)

// Checker is a single probe capability bound to one target.
type Checker interface {
	// Check performs one health-check attempt. A nil return means the
	// target is up. ErrUnreachable (possibly wrapped) means the probe ran
	// and the target was not reachable; any other error means the probe
	// itself could not run against the target.
	Check(ctx context.Context) error
}

// CheckerCreator builds a Checker for one target. Creators validate the
// target eagerly so malformed targets surface as ERROR, not DOWN.
type CheckerCreator func(target string, timeout time.Duration) (Checker, error)

// Registry defines how to store and retrieve checker factories.
type Registry interface {
	Register(kind string, creator CheckerCreator)
	Get(kind, target string, timeout time.Duration) (Checker, error)
}

type checkerRegistry struct {
	factories map[string]CheckerCreator
}

// NewRegistry creates a registry with the built-in probe kinds registered:
// "port" (TCP reachability, the default), "process" (local process check),
// and "exec" (custom command, exit 0 means up).
func NewRegistry() Registry {
	r := &checkerRegistry{factories: make(map[string]CheckerCreator)}

	r.Register(KindPort, func(target string, timeout time.Duration) (Checker, error) {
		return NewPortChecker(target, timeout)
	})

	r.Register(KindProcess, func(target string, _ time.Duration) (Checker, error) {
		return NewProcessChecker(target)
	})

	r.Register(KindExec, func(target string, _ time.Duration) (Checker, error) {
		return NewExecChecker(target)
	})

	return r
}

// Register adds a checker creator function to the registry for a given kind.
func (r *checkerRegistry) Register(kind string, creator CheckerCreator) {
	r.factories[kind] = creator
}

// Get builds a checker of the given kind for the target.
func (r *checkerRegistry) Get(kind, target string, timeout time.Duration) (Checker, error) {
	f, ok := r.factories[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	return f(target, timeout)
}

const (
	KindPort    = "port"
	KindProcess = "process"
	KindExec    = "exec"

	// DefaultKind is used when an add command names no probe kind.
	DefaultKind = KindPort
)

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

package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"regexp"
	"strconv"
	"time"
)

const maxProcessNameLength = 256

// validProcessName ensures process names only contain alphanumeric chars,
// hyphens, underscores, and periods.
var validProcessName = regexp.MustCompile(`^[a-zA-Z0-9\-_.]+$`)

// PortChecker probes TCP reachability of a host:port target.
type PortChecker struct {
	Host    string
	Port    int
	Timeout time.Duration
}

// NewPortChecker validates the target address and builds a port checker.
func NewPortChecker(target string, timeout time.Duration) (*PortChecker, error) {
	if target == "" {
		return nil, fmt.Errorf("%w: empty target", ErrUnsupportedTarget)
	}

	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not host:port", ErrUnsupportedTarget, target)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("%w: invalid port %q", ErrUnsupportedTarget, portStr)
	}

	return &PortChecker{Host: host, Port: port, Timeout: timeout}, nil
}

// Check attempts to establish a TCP connection within the configured timeout.
func (p *PortChecker) Check(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	var d net.Dialer

	conn, err := d.DialContext(probeCtx, "tcp", net.JoinHostPort(p.Host, strconv.Itoa(p.Port)))
	if err != nil {
		if probeCtx.Err() != nil {
			return fmt.Errorf("%w: timeout: %w", ErrUnreachable, probeCtx.Err())
		}

		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}

	return conn.Close()
}

// ProcessChecker probes for a running local process by exact name.
type ProcessChecker struct {
	ProcessName string
}

// NewProcessChecker validates the process name and builds a process checker.
func NewProcessChecker(name string) (*ProcessChecker, error) {
	if len(name) == 0 || len(name) > maxProcessNameLength {
		return nil, fmt.Errorf("%w: process name length %d", ErrUnsupportedTarget, len(name))
	}

	if !validProcessName.MatchString(name) {
		return nil, fmt.Errorf("%w: %q contains invalid characters", ErrUnsupportedTarget, name)
	}

	return &ProcessChecker{ProcessName: name}, nil
}

// Check reports whether a process with the exact name is running.
func (p *ProcessChecker) Check(ctx context.Context) error {
	// The name was validated at construction, so it is safe to pass as an
	// argument.
	cmd := exec.CommandContext(ctx, "pgrep", "-x", p.ProcessName)

	err := cmd.Run()
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		// pgrep exit 1: no process matched.
		return fmt.Errorf("%w: no process named %q", ErrUnreachable, p.ProcessName)
	}

	return fmt.Errorf("process check failed: %w", err)
}

// ExecChecker runs a custom command; exit status zero means the service is up.
type ExecChecker struct {
	Command string
}

// NewExecChecker builds a custom-command checker.
func NewExecChecker(command string) (*ExecChecker, error) {
	if command == "" {
		return nil, fmt.Errorf("%w: empty command", ErrUnsupportedTarget)
	}

	return &ExecChecker{Command: command}, nil
}

// Check runs the command and maps a non-zero exit to unreachable.
func (e *ExecChecker) Check(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "sh", "-c", e.Command)

	err := cmd.Run()
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("%w: command exited %d", ErrUnreachable, exitErr.ExitCode())
	}

	return fmt.Errorf("exec check failed: %w", err)
}

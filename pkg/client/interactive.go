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

package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/servicemon/servicemon/pkg/logger"
	"github.com/servicemon/servicemon/pkg/models"
	"github.com/servicemon/servicemon/pkg/server"
	"github.com/servicemon/servicemon/pkg/wire"
)

// Interactive is the operator-facing prompt loop over one session. When the
// session is lost or unresponsive the operator is offered a reconnect.
type Interactive struct {
	addr    string
	timeout time.Duration
	in      *bufio.Scanner
	out     io.Writer
	logger  logger.Logger
	session *Session
}

// NewInteractive builds an interactive loop reading commands from in and
// rendering to out.
func NewInteractive(addr string, timeout time.Duration, in io.Reader, out io.Writer, log logger.Logger) *Interactive {
	return &Interactive{
		addr:    addr,
		timeout: timeout,
		in:      bufio.NewScanner(in),
		out:     out,
		logger:  log,
	}
}

// Run connects and serves the prompt until quit or input EOF. A failure to
// establish the initial connection is returned so the process can exit
// non-zero with a diagnostic.
func (i *Interactive) Run() error {
	session, err := Connect(i.addr, i.timeout, i.logger)
	if err != nil {
		return err
	}

	i.session = session
	i.session.OnEvent(i.renderEvent)

	fmt.Fprintf(i.out, "connected to %s\n", i.addr)

	defer func() {
		_ = i.session.Close()
	}()

	for {
		fmt.Fprint(i.out, "> ")

		if !i.in.Scan() {
			return i.in.Err()
		}

		line := strings.TrimSpace(i.in.Text())
		if line == "" {
			continue
		}

		fields, err := splitLine(line)
		if err != nil {
			fmt.Fprintf(i.out, "error: %v\n", err)
			continue
		}

		if len(fields) == 0 {
			continue
		}

		command, args := fields[0], fields[1:]

		if command == server.CmdQuit {
			fmt.Fprintln(i.out, "bye")
			return nil
		}

		resp, err := i.session.Do(command, args...)
		if err != nil {
			if cont := i.handleSessionError(err); !cont {
				return nil
			}

			continue
		}

		i.render(resp)
	}
}

// splitLine tokenizes one prompt line. Double quotes group characters
// (including spaces) into one token; inside quotes a backslash escapes the
// next character. Ids, targets, and exec commands with spaces stay intact.
func splitLine(line string) ([]string, error) {
	var (
		tokens  []string
		current strings.Builder
		inToken bool
		quoted  bool
		escaped bool
	)

	for _, r := range line {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case quoted && r == '\\':
			escaped = true
		case r == '"':
			quoted = !quoted
			inToken = true
		case !quoted && (r == ' ' || r == '\t'):
			if inToken {
				tokens = append(tokens, current.String())
				current.Reset()
				inToken = false
			}
		default:
			current.WriteRune(r)
			inToken = true
		}
	}

	if quoted || escaped {
		return nil, errUnbalancedQuotes
	}

	if inToken {
		tokens = append(tokens, current.String())
	}

	return tokens, nil
}

// handleSessionError reports the failure and offers reconnect-or-quit.
// It returns false when the loop should end.
func (i *Interactive) handleSessionError(err error) bool {
	if errors.Is(err, ErrServerUnresponsive) {
		fmt.Fprintln(i.out, "server unresponsive")
	} else {
		fmt.Fprintf(i.out, "connection error: %v\n", err)
	}

	fmt.Fprint(i.out, "reconnect? [y/N] ")

	if !i.in.Scan() {
		return false
	}

	answer := strings.ToLower(strings.TrimSpace(i.in.Text()))
	if answer != "y" && answer != "yes" {
		return false
	}

	_ = i.session.Close()

	session, err := Connect(i.addr, i.timeout, i.logger)
	if err != nil {
		fmt.Fprintf(i.out, "reconnect failed: %v\n", err)
		return false
	}

	i.session = session
	i.session.OnEvent(i.renderEvent)

	fmt.Fprintf(i.out, "reconnected to %s\n", i.addr)

	return true
}

func (i *Interactive) render(resp *wire.Response) {
	if resp.Status == wire.StatusError {
		fmt.Fprintf(i.out, "error: %s\n", resp.Payload)
		return
	}

	if resp.Payload != "" {
		fmt.Fprintln(i.out, resp.Payload)
	}

	for idx := range resp.Entries {
		entry := &resp.Entries[idx]

		checked := "never"
		if !entry.LastChecked.IsZero() {
			checked = entry.LastChecked.Format(time.RFC3339)
		}

		fmt.Fprintf(i.out, "  %-20s %-24s %-8s checked=%s failures=%d\n",
			entry.ID, entry.Target, entry.Status, checked, entry.FailureCount)
	}
}

func (i *Interactive) renderEvent(rec models.LogRecord) {
	fmt.Fprintf(i.out, "! %s %s -> %s (%s)\n",
		rec.ServiceID, rec.OldStatus, rec.NewStatus, rec.Reason)
}

package client

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servicemon/servicemon/pkg/logger"
	"github.com/servicemon/servicemon/pkg/probe"
	"github.com/servicemon/servicemon/pkg/registry"
	"github.com/servicemon/servicemon/pkg/server"
)

func startRealServer(t *testing.T) string {
	t.Helper()

	b := server.NewBroadcaster(logger.NewTestLogger())
	reg := registry.New(b, logger.NewTestLogger())
	srv := server.New(reg, probe.NewRegistry(), b, logger.NewTestLogger())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)

		_ = srv.Serve(ctx, ln)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
		b.Close()
	})

	return ln.Addr().String()
}

func TestInteractiveCommandSession(t *testing.T) {
	addr := startRealServer(t)

	input := strings.Join([]string{
		"add web 127.0.0.1:8080",
		"status web",
		"status ghost",
		"list",
		"remove web",
		"quit",
	}, "\n") + "\n"

	var out strings.Builder

	i := NewInteractive(addr, 5*time.Second, strings.NewReader(input), &out, logger.NewTestLogger())
	require.NoError(t, i.Run())

	rendered := out.String()
	assert.Contains(t, rendered, "connected to "+addr)
	assert.Contains(t, rendered, "added web (127.0.0.1:8080, port probe)")
	assert.Contains(t, rendered, "UNKNOWN")
	assert.Contains(t, rendered, "error: service not found: ghost")
	assert.Contains(t, rendered, "removed web")
	assert.Contains(t, rendered, "bye")
}

func TestSplitLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []string
	}{
		{
			name: "plain fields",
			line: "add web 127.0.0.1:8080",
			want: []string{"add", "web", "127.0.0.1:8080"},
		},
		{
			name: "quoted token with spaces",
			line: `add "name with spaces" 127.0.0.1:8080`,
			want: []string{"add", "name with spaces", "127.0.0.1:8080"},
		},
		{
			name: "quoted exec command",
			line: `add health "curl -fs localhost:8080/health" exec`,
			want: []string{"add", "health", "curl -fs localhost:8080/health", "exec"},
		},
		{
			name: "escaped quote inside quotes",
			line: `add web "say \"hi\""`,
			want: []string{"add", "web", `say "hi"`},
		},
		{
			name: "quotes adjacent to text",
			line: `status "web"-prod`,
			want: []string{"status", "web-prod"},
		},
		{
			name: "collapsed whitespace",
			line: "  list \t ",
			want: []string{"list"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := splitLine(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := splitLine(`add "unterminated`)
	assert.ErrorIs(t, err, errUnbalancedQuotes)
}

func TestInteractiveQuotedArguments(t *testing.T) {
	addr := startRealServer(t)

	input := strings.Join([]string{
		`add "name with spaces" 127.0.0.1:8080`,
		`status "name with spaces"`,
		`add "broken`,
		"quit",
	}, "\n") + "\n"

	var out strings.Builder

	i := NewInteractive(addr, 5*time.Second, strings.NewReader(input), &out, logger.NewTestLogger())
	require.NoError(t, i.Run())

	rendered := out.String()
	assert.Contains(t, rendered, "added name with spaces (127.0.0.1:8080, port probe)")
	assert.Contains(t, rendered, "name with spaces")
	assert.Contains(t, rendered, "error: unbalanced quotes")
	assert.Contains(t, rendered, "bye")
}

func TestInteractiveBlankLinesIgnored(t *testing.T) {
	addr := startRealServer(t)

	input := "\n   \nquit\n"

	var out strings.Builder

	i := NewInteractive(addr, 5*time.Second, strings.NewReader(input), &out, logger.NewTestLogger())
	require.NoError(t, i.Run())

	assert.Contains(t, out.String(), "bye")
}

func TestInteractiveInitialConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	var out strings.Builder

	i := NewInteractive(addr, time.Second, strings.NewReader(""), &out, logger.NewTestLogger())
	assert.Error(t, i.Run())
}

func TestInteractiveDeclinesReconnect(t *testing.T) {
	addr := startRealServer(t)

	var out strings.Builder

	// A tiny request timeout makes the first command report the server
	// unresponsive even though it is healthy; the operator declines the
	// reconnect offer.
	i := NewInteractive(addr, time.Nanosecond, strings.NewReader("list\nn\n"), &out, logger.NewTestLogger())
	require.NoError(t, i.Run())

	rendered := out.String()
	assert.Contains(t, rendered, "server unresponsive")
	assert.Contains(t, rendered, "reconnect? [y/N]")
}

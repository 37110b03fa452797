package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servicemon/servicemon/pkg/logger"
	"github.com/servicemon/servicemon/pkg/models"
	"github.com/servicemon/servicemon/pkg/poller"
	"github.com/servicemon/servicemon/pkg/probe"
	"github.com/servicemon/servicemon/pkg/registry"
	"github.com/servicemon/servicemon/pkg/server"
	"github.com/servicemon/servicemon/pkg/wire"
)

// startFullStack wires registry, polling engine, and dispatcher the way the
// server executable does, with a fast poll cadence for tests.
func startFullStack(t *testing.T) string {
	t.Helper()

	log := logger.NewTestLogger()

	b := server.NewBroadcaster(log)
	reg := registry.New(b, log)
	probes := probe.NewRegistry()

	cfg := poller.Config{
		PollInterval:        models.Duration(100 * time.Millisecond),
		InitialDelay:        models.Duration(time.Millisecond),
		ProbeTimeout:        models.Duration(time.Second),
		FailureThreshold:    3,
		MaxConcurrentProbes: 8,
	}

	engine := poller.New(&cfg, reg, probes, nil, log)
	require.NoError(t, engine.Start(context.Background()))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)

		_ = server.New(reg, probes, b, log).Serve(ctx, ln)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
		require.NoError(t, engine.Stop(context.Background()))
		b.Close()
	})

	return ln.Addr().String()
}

func TestEndToEndServiceGoesUp(t *testing.T) {
	serverAddr := startFullStack(t)

	// A real listener to monitor.
	target, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	defer func() { _ = target.Close() }()

	session, err := Connect(serverAddr, 5*time.Second, logger.NewTestLogger())
	require.NoError(t, err)

	defer func() { _ = session.Close() }()

	resp, err := session.Do("add", "svc1", target.Addr().String())
	require.NoError(t, err)
	require.Equal(t, wire.StatusOK, resp.Status)

	// Status is UNKNOWN immediately after the add.
	resp, err = session.Do("status", "svc1")
	require.NoError(t, err)
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, models.StatusUnknown, resp.Entries[0].Status)

	// After at least one poll interval the probe result lands.
	assert.Eventually(t, func() bool {
		resp, err := session.Do("status", "svc1")
		if err != nil || len(resp.Entries) != 1 {
			return false
		}

		return resp.Entries[0].Status == models.StatusUp
	}, 5*time.Second, 50*time.Millisecond)
}

func TestEndToEndServiceGoesDown(t *testing.T) {
	serverAddr := startFullStack(t)

	// Grab a port and close it so probes are refused.
	target, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	targetAddr := target.Addr().String()
	require.NoError(t, target.Close())

	session, err := Connect(serverAddr, 5*time.Second, logger.NewTestLogger())
	require.NoError(t, err)

	defer func() { _ = session.Close() }()

	resp, err := session.Do("add", "svc1", targetAddr)
	require.NoError(t, err)
	require.Equal(t, wire.StatusOK, resp.Status)

	// DOWN only lands after the failure threshold accumulates.
	assert.Eventually(t, func() bool {
		resp, err := session.Do("status", "svc1")
		if err != nil || len(resp.Entries) != 1 {
			return false
		}

		return resp.Entries[0].Status == models.StatusDown
	}, 10*time.Second, 50*time.Millisecond)
}

func TestEndToEndWatchSeesTransition(t *testing.T) {
	serverAddr := startFullStack(t)

	target, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	defer func() { _ = target.Close() }()

	session, err := Connect(serverAddr, 5*time.Second, logger.NewTestLogger())
	require.NoError(t, err)

	defer func() { _ = session.Close() }()

	events := make(chan models.LogRecord, 16)
	session.OnEvent(func(rec models.LogRecord) {
		events <- rec
	})

	resp, err := session.Do("watch")
	require.NoError(t, err)
	require.Equal(t, wire.StatusOK, resp.Status)

	resp, err = session.Do("add", "svc1", target.Addr().String())
	require.NoError(t, err)
	require.Equal(t, wire.StatusOK, resp.Status)

	// The UNKNOWN -> UP transition is pushed to the watching session.
	// Events are only drained while a request is outstanding, so poll
	// with status commands.
	require.Eventually(t, func() bool {
		_, err := session.Do("status", "svc1")
		if err != nil {
			return false
		}

		select {
		case rec := <-events:
			return rec.ServiceID == "svc1" && rec.NewStatus == models.StatusUp
		default:
			return false
		}
	}, 10*time.Second, 100*time.Millisecond)
}

package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servicemon/servicemon/pkg/logger"
	"github.com/servicemon/servicemon/pkg/models"
	"github.com/servicemon/servicemon/pkg/probe"
	"github.com/servicemon/servicemon/pkg/registry"
)

const testKind = "scripted"

// scriptedChecker runs a scripted check function, letting tests control
// probe outcomes per target.
type scriptedChecker struct {
	fn func(ctx context.Context) error
}

func (s *scriptedChecker) Check(ctx context.Context) error {
	return s.fn(ctx)
}

type captureSink struct {
	mu      sync.Mutex
	records []models.LogRecord
}

func (s *captureSink) Record(rec models.LogRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, rec)
}

func (s *captureSink) count(status models.ServiceStatus) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0

	for _, rec := range s.records {
		if rec.NewStatus == status {
			n++
		}
	}

	return n
}

func testConfig() *Config {
	return &Config{
		PollInterval:        models.Duration(50 * time.Millisecond),
		InitialDelay:        models.Duration(time.Millisecond),
		ProbeTimeout:        models.Duration(time.Second),
		FailureThreshold:    3,
		MaxConcurrentProbes: 4,
	}
}

// startPoller wires a registry, a scripted probe kind, and a running poller.
func startPoller(t *testing.T, check func(ctx context.Context) error) (*registry.Registry, *captureSink) {
	t.Helper()

	sink := &captureSink{}
	reg := registry.New(sink, logger.NewTestLogger())

	probes := probe.NewRegistry()
	probes.Register(testKind, func(string, time.Duration) (probe.Checker, error) {
		return &scriptedChecker{fn: check}, nil
	})

	p := New(testConfig(), reg, probes, nil, logger.NewTestLogger())
	require.NoError(t, p.Start(context.Background()))

	t.Cleanup(func() {
		require.NoError(t, p.Stop(context.Background()))
	})

	return reg, sink
}

func entryStatus(t *testing.T, reg *registry.Registry, id string) models.ServiceStatus {
	t.Helper()

	entry, err := reg.Get(id)
	require.NoError(t, err)

	return entry.Status
}

func TestPollerTransitionsToUp(t *testing.T) {
	reg, sink := startPoller(t, func(context.Context) error { return nil })

	_, err := reg.Add("web", "anything", testKind, 0)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return entryStatus(t, reg, "web") == models.StatusUp
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, sink.count(models.StatusUp))
}

func TestPollerThresholdGatesDown(t *testing.T) {
	reg, sink := startPoller(t, func(context.Context) error {
		return probe.ErrUnreachable
	})

	_, err := reg.Add("web", "anything", testKind, 0)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return entryStatus(t, reg, "web") == models.StatusDown
	}, 3*time.Second, 10*time.Millisecond)

	entry, err := reg.Get("web")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, entry.FailureCount, 3)

	// The DOWN transition happened exactly once.
	assert.Equal(t, 1, sink.count(models.StatusDown))
}

func TestPollerProbeErrorBecomesErrorStatus(t *testing.T) {
	reg, _ := startPoller(t, func(context.Context) error {
		return errors.New("probe binary missing")
	})

	_, err := reg.Add("web", "anything", testKind, 0)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return entryStatus(t, reg, "web") == models.StatusError
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPollerUnknownKindBecomesErrorStatus(t *testing.T) {
	reg, _ := startPoller(t, func(context.Context) error { return nil })

	_, err := reg.Add("mystery", "anything", "no-such-kind", 0)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return entryStatus(t, reg, "mystery") == models.StatusError
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPollerNeverOverlapsProbesForSameService(t *testing.T) {
	var current, peak int32

	reg, _ := startPoller(t, func(ctx context.Context) error {
		n := atomic.AddInt32(&current, 1)
		defer atomic.AddInt32(&current, -1)

		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}

		select {
		case <-time.After(200 * time.Millisecond):
		case <-ctx.Done():
		}

		return nil
	})

	// One service, probe duration far above the poll interval.
	_, err := reg.Add("slow", "anything", testKind, 0)
	require.NoError(t, err)

	time.Sleep(time.Second)

	assert.Equal(t, int32(1), atomic.LoadInt32(&peak))
}

func TestPollerSkipsSuspendedEntries(t *testing.T) {
	var probes int32

	reg, _ := startPoller(t, func(context.Context) error {
		atomic.AddInt32(&probes, 1)
		return nil
	})

	_, err := reg.Add("web", "anything", testKind, 0)
	require.NoError(t, err)
	require.NoError(t, reg.Suspend("web", time.Now().Add(time.Hour)))

	time.Sleep(500 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt32(&probes))

	require.NoError(t, reg.Resume("web"))

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&probes) > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPollerRepolls(t *testing.T) {
	var probes int32

	reg, _ := startPoller(t, func(context.Context) error {
		atomic.AddInt32(&probes, 1)
		return nil
	})

	_, err := reg.Add("web", "anything", testKind, 0)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&probes) >= 3
	}, 3*time.Second, 10*time.Millisecond)
}

func TestPollerHonorsPerEntryInterval(t *testing.T) {
	var fast, slow int32

	count := func(counter *int32) func(ctx context.Context) error {
		return func(context.Context) error {
			atomic.AddInt32(counter, 1)
			return nil
		}
	}

	reg := registry.New(&captureSink{}, logger.NewTestLogger())

	kinds := probe.NewRegistry()
	kinds.Register("fast", func(string, time.Duration) (probe.Checker, error) {
		return &scriptedChecker{fn: count(&fast)}, nil
	})
	kinds.Register("slow", func(string, time.Duration) (probe.Checker, error) {
		return &scriptedChecker{fn: count(&slow)}, nil
	})

	p := New(testConfig(), reg, kinds, nil, logger.NewTestLogger())
	require.NoError(t, p.Start(context.Background()))

	t.Cleanup(func() {
		require.NoError(t, p.Stop(context.Background()))
	})

	// The engine default is 50ms; the slow entry overrides it far beyond
	// the observation window, so it only gets its initial probe.
	_, err := reg.Add("fast", "anything", "fast", 0)
	require.NoError(t, err)

	_, err = reg.Add("slow", "anything", "slow", models.Duration(time.Hour))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&fast) >= 3 && atomic.LoadInt32(&slow) >= 1
	}, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, int32(1), atomic.LoadInt32(&slow))
}

func TestConfigValidateDefaults(t *testing.T) {
	var cfg Config

	require.NoError(t, cfg.Validate())

	assert.Equal(t, defaultPollInterval, time.Duration(cfg.PollInterval))
	assert.Equal(t, defaultInitialDelay, time.Duration(cfg.InitialDelay))
	assert.Equal(t, defaultProbeTimeout, time.Duration(cfg.ProbeTimeout))
	assert.Equal(t, defaultFailureThreshold, cfg.FailureThreshold)
	assert.Equal(t, defaultMaxConcurrent, cfg.MaxConcurrentProbes)
}

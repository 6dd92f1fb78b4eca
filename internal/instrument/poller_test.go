package instrument

import (
	"context"
	"testing"
	"time"

	"github.com/openbench/benchlink-core/internal/infrastructure/config"
)

func TestPollerNextInterval(t *testing.T) {
	adapter := &mockAdapter{}
	m := NewManager(ManagerConfig{
		Kind:    KindShaker,
		Adapter: adapter,
		Poll: config.PollConfig{
			Interval:         10,
			BackoffInterval:  500,
			FailureThreshold: 1,
		},
		Monitor: testMonitorConfig(),
	})
	p := NewPoller(m, m.poll)

	if got := p.nextInterval(); got != 10*time.Millisecond {
		t.Errorf("nextInterval() = %v before any poll, want 10ms", got)
	}

	// One failed poll reaches the threshold; the interval used for the
	// following tick must be the backoff interval.
	m.PollOnce(context.Background())
	if got := p.nextInterval(); got != 500*time.Millisecond {
		t.Errorf("nextInterval() = %v after backoff engaged, want 500ms", got)
	}

	// A single successful poll restores the normal interval, no ramp.
	adapter.setConnected(true)
	m.PollOnce(context.Background())
	if got := p.nextInterval(); got != 10*time.Millisecond {
		t.Errorf("nextInterval() = %v after recovery, want 10ms", got)
	}
}

func TestPollerBackoffSlowsTicks(t *testing.T) {
	adapter := &mockAdapter{} // always failing
	m := NewManager(ManagerConfig{
		Kind:    KindShaker,
		Adapter: adapter,
		Poll: config.PollConfig{
			Interval:         10,
			BackoffInterval:  1000,
			FailureThreshold: 2,
		},
		Monitor: testMonitorConfig(),
	})
	p := NewPoller(m, m.poll)

	p.Start(context.Background())
	time.Sleep(200 * time.Millisecond)
	p.Stop()

	// Without backoff ~20 ticks would fit in 200ms at a 10ms cadence.
	// With the threshold at 2, the poller should reach backoff within a
	// few ticks and then go quiet.
	adapter.mu.Lock()
	ticks := adapter.isConnectedCalls
	adapter.mu.Unlock()

	if ticks < 2 {
		t.Errorf("poll ticks = %d, want at least the failure threshold", ticks)
	}
	if ticks > 6 {
		t.Errorf("poll ticks = %d in 200ms, want backoff to suppress ticking", ticks)
	}
	if !m.ConnectionState().BackoffActive {
		t.Error("BackoffActive = false after sustained failures")
	}
}

func TestPollerStop(t *testing.T) {
	adapter := &mockAdapter{}
	m := newTestManager(adapter)
	p := NewPoller(m, testPollConfig())

	p.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	p.Stop()

	adapter.mu.Lock()
	after := adapter.isConnectedCalls
	adapter.mu.Unlock()

	time.Sleep(50 * time.Millisecond)

	adapter.mu.Lock()
	later := adapter.isConnectedCalls
	adapter.mu.Unlock()

	if later != after {
		t.Errorf("poll ticks continued after Stop(): %d -> %d", after, later)
	}

	// Stop is idempotent.
	p.Stop()
}

func TestPollerContextCancel(t *testing.T) {
	adapter := &mockAdapter{}
	m := newTestManager(adapter)
	p := NewPoller(m, testPollConfig())

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	cancel()
	time.Sleep(30 * time.Millisecond)

	adapter.mu.Lock()
	after := adapter.isConnectedCalls
	adapter.mu.Unlock()

	time.Sleep(50 * time.Millisecond)

	adapter.mu.Lock()
	later := adapter.isConnectedCalls
	adapter.mu.Unlock()

	if later != after {
		t.Errorf("poll ticks continued after context cancel: %d -> %d", after, later)
	}
}

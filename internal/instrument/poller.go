package instrument

import (
	"context"
	"sync"
	"time"

	"github.com/openbench/benchlink-core/internal/infrastructure/config"
)

// Poller drives periodic status synchronisation for one Manager.
//
// It ticks at the normal interval while the instrument is healthy and
// drops to the backoff interval once repeated failures engage backoff, so
// an unreachable device is not hammered. Interval switches take effect
// from the next tick, never retroactively: the manager's failure
// accounting during tick N chooses the delay before tick N+1.
type Poller struct {
	manager  *Manager
	normal   time.Duration
	backoff  time.Duration
	logger   Logger
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewPoller creates a poller for the given manager.
func NewPoller(manager *Manager, cfg config.PollConfig) *Poller {
	return &Poller{
		manager: manager,
		normal:  cfg.GetPollInterval(),
		backoff: cfg.GetBackoffInterval(),
		logger:  noopLogger{},
		done:    make(chan struct{}),
	}
}

// SetLogger sets the logger for the poller.
func (p *Poller) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	p.logger = logger
}

// Start begins polling. Call Stop to shut down.
func (p *Poller) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.run(ctx)
	p.logger.Info("status poller started",
		"kind", p.manager.Kind(),
		"interval", p.normal.String(),
		"backoff_interval", p.backoff.String())
}

// Stop gracefully stops polling. Safe to call multiple times.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
		p.wg.Wait()
	})
}

// run is the poll loop. One timer, re-armed after each tick with whichever
// interval the manager's backoff state selects.
func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	timer := time.NewTimer(p.normal)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case <-timer.C:
			p.manager.PollOnce(ctx)
			timer.Reset(p.nextInterval())
		}
	}
}

// nextInterval picks the delay before the next tick.
func (p *Poller) nextInterval() time.Duration {
	if p.manager.ConnectionState().BackoffActive {
		return p.backoff
	}
	return p.normal
}

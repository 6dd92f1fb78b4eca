package instrument

import (
	"context"
	"strings"
	"time"

	"github.com/openbench/benchlink-core/internal/infrastructure/config"
)

// completionKeywords are action-label fragments that mark a run as finished.
// Vendor drivers report labels like "MeasurementComplete" or "Run Finished".
var completionKeywords = []string{"Complete", "Finished", "End"}

// Monitor decides when a long-running operation has finished.
//
// Measurement runs are started by a single adapter call that returns
// immediately; the device then reports progress asynchronously and never
// sends an explicit done signal. The monitor infers completion from the
// event stream using, in order:
//
//  1. Explicit hint: an action label containing a completion keyword.
//  2. Volume + quiescence: more than MinDataPoints data events observed
//     and the stream silent for QuietAfterVolume.
//  3. Quiescence after data: at least one data event observed and the
//     stream silent for QuietAfterData.
//  4. Timeout: absolute elapsed time exceeds the caller's timeout.
//
// The quiescence thresholds are empirically tuned approximations of true
// completion, not a guarantee; slow instruments may need larger windows,
// which is why they live in configuration.
type Monitor struct {
	quietAfterData   time.Duration
	quietAfterVolume time.Duration
	minDataPoints    int
	checkInterval    time.Duration
	defaultTimeout   time.Duration
	logger           Logger
}

// NewMonitor creates a monitor with the given completion-detection tuning.
func NewMonitor(cfg config.MonitorConfig) *Monitor {
	return &Monitor{
		quietAfterData:   cfg.GetQuietAfterData(),
		quietAfterVolume: cfg.GetQuietAfterVolume(),
		minDataPoints:    cfg.MinDataPoints,
		checkInterval:    cfg.GetCheckInterval(),
		defaultTimeout:   cfg.GetDefaultTimeout(),
		logger:           noopLogger{},
	}
}

// SetLogger sets the logger for the monitor.
func (m *Monitor) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	m.logger = logger
}

// Wait consumes the progress stream until a terminal state is reached and
// returns that state along with the number of data events observed.
//
// A timeout of zero selects the configured default. Cancelling ctx while
// the run is in flight returns OperationCancelled. Wait blocks the calling
// goroutine but must never be called while holding the owning Manager's
// lock: the whole point of this loop is that polling and other commands
// proceed during a run. On return the stream is detached: Wait stops
// receiving and the adapter is free to tear the channel down.
//
// The callback, if non-nil, is invoked for every event received, in stream
// order, from this goroutine.
func (m *Monitor) Wait(ctx context.Context, events <-chan ProgressEvent, timeout time.Duration, onEvent func(ProgressEvent)) (OperationState, int) {
	if timeout <= 0 {
		timeout = m.defaultTimeout
	}

	var (
		start        = time.Now()
		dataCount    int
		lastEvent    time.Time
		explicitDone bool
	)

	handle := func(ev ProgressEvent) {
		lastEvent = time.Now()
		if ev.Reason == ReasonData {
			dataCount++
		}
		if ev.ActionLabel != "" && hasCompletionKeyword(ev.ActionLabel) {
			explicitDone = true
			m.logger.Debug("completion hint received", "action_label", ev.ActionLabel)
		}
		if onEvent != nil {
			onEvent(ev)
		}
	}

	// recv goes nil once the adapter closes the stream; a nil channel
	// never fires in select, so the ticker keeps the loop moving.
	recv := events

	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		// Drain anything already queued so bursts are accounted for
		// before the policy is evaluated.
	drain:
		for recv != nil {
			select {
			case ev, ok := <-recv:
				if !ok {
					recv = nil
					break drain
				}
				handle(ev)
			default:
				break drain
			}
		}

		// Policy evaluation, in rule order.
		if explicitDone {
			return OperationCompleted, dataCount
		}
		if dataCount > m.minDataPoints && time.Since(lastEvent) >= m.quietAfterVolume {
			return OperationCompleted, dataCount
		}
		if dataCount >= 1 && time.Since(lastEvent) >= m.quietAfterData {
			return OperationCompleted, dataCount
		}
		if time.Since(start) >= timeout {
			return OperationTimedOut, dataCount
		}

		// Suspend until the next event, tick, or cancellation. Never
		// busy-spin: the event source needs this goroutine to yield.
		select {
		case <-ctx.Done():
			return OperationCancelled, dataCount
		case ev, ok := <-recv:
			if !ok {
				recv = nil
				continue
			}
			handle(ev)
		case <-ticker.C:
		}
	}
}

// hasCompletionKeyword reports whether an action label signals run completion.
func hasCompletionKeyword(label string) bool {
	for _, kw := range completionKeywords {
		if strings.Contains(label, kw) {
			return true
		}
	}
	return false
}

package instrument

import (
	"context"
	"testing"
	"time"

	"github.com/openbench/benchlink-core/internal/infrastructure/config"
)

// monitorUnderTest returns a monitor with millisecond-scale thresholds so
// the completion heuristics can be exercised in real time. The production
// defaults are seconds; the rules are identical.
func monitorUnderTest() *Monitor {
	return NewMonitor(config.MonitorConfig{
		QuietAfterData:   300,
		QuietAfterVolume: 100,
		MinDataPoints:    10,
		CheckInterval:    10,
		DefaultTimeout:   5,
	})
}

func dataEvent(v float64) ProgressEvent {
	return ProgressEvent{Reason: ReasonData, Value: v, At: time.Now()}
}

func actionEvent(label string) ProgressEvent {
	return ProgressEvent{Reason: ReasonAction, ActionLabel: label, At: time.Now()}
}

func TestWait_ExplicitCompletionHint(t *testing.T) {
	tests := []struct {
		name  string
		label string
	}{
		{"complete", "MeasurementComplete"},
		{"finished", "Run Finished"},
		{"end", "EndOfRun"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mon := monitorUnderTest()
			events := make(chan ProgressEvent, 4)
			events <- dataEvent(0.5)
			events <- actionEvent(tt.label)

			start := time.Now()
			state, points := mon.Wait(context.Background(), events, time.Second, nil)

			if state != OperationCompleted {
				t.Errorf("state = %s, want completed", state)
			}
			if points != 1 {
				t.Errorf("data points = %d, want 1", points)
			}
			// Explicit hint is immediate, no quiescence wait.
			if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
				t.Errorf("completion took %v, want near-immediate on explicit hint", elapsed)
			}
		})
	}
}

func TestWait_NonCompletionLabelIgnored(t *testing.T) {
	mon := monitorUnderTest()
	events := make(chan ProgressEvent, 4)
	events <- actionEvent("CarrierMoving")
	events <- dataEvent(0.1)

	start := time.Now()
	state, _ := mon.Wait(context.Background(), events, time.Second, nil)

	if state != OperationCompleted {
		t.Errorf("state = %s, want completed", state)
	}
	// Completion must come from quiescence, not the action label.
	if elapsed := time.Since(start); elapsed < 250*time.Millisecond {
		t.Errorf("completed after %v, want >= quiet-after-data window", elapsed)
	}
}

func TestWait_QuiescenceAfterData(t *testing.T) {
	mon := monitorUnderTest()
	events := make(chan ProgressEvent, 8)
	for i := 0; i < 3; i++ {
		events <- dataEvent(float64(i))
	}

	start := time.Now()
	state, points := mon.Wait(context.Background(), events, 2*time.Second, nil)
	elapsed := time.Since(start)

	if state != OperationCompleted {
		t.Errorf("state = %s, want completed", state)
	}
	if points != 3 {
		t.Errorf("data points = %d, want 3", points)
	}
	// Three events are below MinDataPoints, so the longer window applies.
	if elapsed < 290*time.Millisecond {
		t.Errorf("completed after %v, want >= 300ms quiet-after-data window", elapsed)
	}
	if elapsed > 600*time.Millisecond {
		t.Errorf("completed after %v, want well within timeout", elapsed)
	}
}

func TestWait_VolumeQuiescenceBeatsDataWindow(t *testing.T) {
	mon := monitorUnderTest()
	events := make(chan ProgressEvent, 32)
	for i := 0; i < 15; i++ {
		events <- dataEvent(float64(i))
	}

	start := time.Now()
	state, points := mon.Wait(context.Background(), events, 2*time.Second, nil)
	elapsed := time.Since(start)

	if state != OperationCompleted {
		t.Errorf("state = %s, want completed", state)
	}
	if points != 15 {
		t.Errorf("data points = %d, want 15", points)
	}
	// Above MinDataPoints the shorter window applies: completion within
	// QuietAfterVolume (100ms) of the last event, not at QuietAfterData.
	if elapsed < 90*time.Millisecond {
		t.Errorf("completed after %v, want >= 100ms quiet-after-volume window", elapsed)
	}
	if elapsed >= 290*time.Millisecond {
		t.Errorf("completed after %v, want before the 300ms quiet-after-data window", elapsed)
	}
}

func TestWait_TimeoutWithNoEvents(t *testing.T) {
	mon := monitorUnderTest()
	events := make(chan ProgressEvent) // nothing ever arrives

	timeout := 200 * time.Millisecond
	start := time.Now()
	state, points := mon.Wait(context.Background(), events, timeout, nil)
	elapsed := time.Since(start)

	if state != OperationTimedOut {
		t.Errorf("state = %s, want timed_out", state)
	}
	if points != 0 {
		t.Errorf("data points = %d, want 0", points)
	}
	// Never earlier than the configured timeout.
	if elapsed < timeout {
		t.Errorf("timed out after %v, want >= %v", elapsed, timeout)
	}
	if elapsed > timeout+150*time.Millisecond {
		t.Errorf("timed out after %v, want close to %v", elapsed, timeout)
	}
}

func TestWait_DefaultTimeout(t *testing.T) {
	mon := NewMonitor(config.MonitorConfig{
		QuietAfterData:   300,
		QuietAfterVolume: 100,
		MinDataPoints:    10,
		CheckInterval:    10,
		DefaultTimeout:   1,
	})
	events := make(chan ProgressEvent)

	start := time.Now()
	state, _ := mon.Wait(context.Background(), events, 0, nil)

	if state != OperationTimedOut {
		t.Errorf("state = %s, want timed_out", state)
	}
	if elapsed := time.Since(start); elapsed < time.Second {
		t.Errorf("timed out after %v, want >= 1s default", elapsed)
	}
}

func TestWait_Cancelled(t *testing.T) {
	mon := monitorUnderTest()
	events := make(chan ProgressEvent)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	state, _ := mon.Wait(ctx, events, 5*time.Second, nil)
	if state != OperationCancelled {
		t.Errorf("state = %s, want cancelled", state)
	}
}

func TestWait_ClosedStream(t *testing.T) {
	mon := monitorUnderTest()
	events := make(chan ProgressEvent, 4)
	events <- dataEvent(1.0)
	close(events)

	// A closed stream is not itself terminal; quiescence still decides.
	state, points := mon.Wait(context.Background(), events, time.Second, nil)
	if state != OperationCompleted {
		t.Errorf("state = %s, want completed", state)
	}
	if points != 1 {
		t.Errorf("data points = %d, want 1", points)
	}
}

func TestWait_CallbackReceivesEveryEvent(t *testing.T) {
	mon := monitorUnderTest()
	events := make(chan ProgressEvent, 8)
	events <- dataEvent(0.1)
	events <- dataEvent(0.2)
	events <- actionEvent("MeasurementComplete")

	var got []ProgressEvent
	state, _ := mon.Wait(context.Background(), events, time.Second, func(ev ProgressEvent) {
		got = append(got, ev)
	})

	if state != OperationCompleted {
		t.Fatalf("state = %s, want completed", state)
	}
	if len(got) != 3 {
		t.Fatalf("callback received %d events, want 3", len(got))
	}
	if got[0].Value != 0.1 || got[1].Value != 0.2 {
		t.Error("callback events out of stream order")
	}
}

func TestWait_EventsArrivingDuringWait(t *testing.T) {
	mon := monitorUnderTest()
	events := make(chan ProgressEvent, 4)

	// Feed events with gaps shorter than the quiet window so the run
	// stays alive, then go silent.
	go func() {
		for i := 0; i < 12; i++ {
			events <- dataEvent(float64(i))
			time.Sleep(20 * time.Millisecond)
		}
	}()

	state, points := mon.Wait(context.Background(), events, 2*time.Second, nil)
	if state != OperationCompleted {
		t.Errorf("state = %s, want completed", state)
	}
	if points != 12 {
		t.Errorf("data points = %d, want 12", points)
	}
}

func TestHasCompletionKeyword(t *testing.T) {
	tests := []struct {
		label string
		want  bool
	}{
		{"MeasurementComplete", true},
		{"Run Finished", true},
		{"EndOfMeasurement", true},
		{"CarrierMoving", false},
		{"CycleStart", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := hasCompletionKeyword(tt.label); got != tt.want {
			t.Errorf("hasCompletionKeyword(%q) = %v, want %v", tt.label, got, tt.want)
		}
	}
}

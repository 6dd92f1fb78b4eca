package sim

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/openbench/benchlink-core/internal/instrument"
)

// ReaderOptions tunes the simulated measurement stream.
type ReaderOptions struct {
	// Rows and Cols define the plate format. Default: 8x12 (96-well).
	Rows int
	Cols int

	// EventInterval is the delay between per-well data events.
	// Default: 50ms.
	EventInterval time.Duration

	// EmitCompletionLabel controls whether the run ends with an action
	// event labelled "Measurement Complete". Disable it to exercise
	// quiescence-based completion detection. Default when constructed
	// via NewReader: enabled.
	EmitCompletionLabel bool
}

// Reader simulates a microplate absorbance reader.
type Reader struct {
	mu        sync.Mutex
	devices   []instrument.Device
	connected bool
	current   instrument.Device
	opts      ReaderOptions

	targetTemp  float64
	temperature float64
	plateIn     bool
	lastScript  string
	lastStep    time.Time
}

// NewReader creates a simulated plate reader with default options.
func NewReader() *Reader {
	return NewReaderWithOptions(ReaderOptions{EmitCompletionLabel: true})
}

// NewReaderWithOptions creates a simulated plate reader.
func NewReaderWithOptions(opts ReaderOptions) *Reader {
	if opts.Rows == 0 {
		opts.Rows = 8
	}
	if opts.Cols == 0 {
		opts.Cols = 12
	}
	if opts.EventInterval == 0 {
		opts.EventInterval = 50 * time.Millisecond
	}

	return &Reader{
		devices: []instrument.Device{
			{ID: "PR-3100-0042", DisplayName: "Plate Reader 3100", Kind: instrument.KindReader, Present: true},
			{ID: "PR-3100-0099", DisplayName: "Plate Reader 3100 (service)", Kind: instrument.KindReader, Present: false},
		},
		opts:        opts,
		targetTemp:  ambientCelsius,
		temperature: ambientCelsius,
		lastStep:    time.Now(),
	}
}

// Discover returns the reader roster. The service unit reports as not
// present so connection attempts against it can be exercised.
func (r *Reader) Discover(_ context.Context) ([]instrument.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]instrument.Device, len(r.devices))
	copy(out, r.devices)
	return out, nil
}

// Connect attaches to a reader by id. Absent devices refuse the link.
func (r *Reader) Connect(_ context.Context, device instrument.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range r.devices {
		if d.ID == device.ID {
			if !d.Present {
				return fmt.Errorf("sim: reader %q is not present", device.ID)
			}
			r.connected = true
			r.current = d
			r.lastStep = time.Now()
			return nil
		}
	}
	return fmt.Errorf("sim: no reader with id %q", device.ID)
}

// Disconnect drops the link.
func (r *Reader) Disconnect(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = false
	r.current = instrument.Device{}
	return nil
}

// IsConnected reports the link state.
func (r *Reader) IsConnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

// ReadStatus advances the chamber model and returns the current values.
func (r *Reader) ReadStatus(_ context.Context) (instrument.StatusSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.connected {
		return instrument.StatusSnapshot{}, instrument.ErrNotConnected
	}

	now := time.Now()
	elapsed := now.Sub(r.lastStep).Seconds()
	if elapsed > 0 {
		r.temperature = approach(r.temperature, r.targetTemp, tempRampPerSecond*elapsed)
		r.lastStep = now
	}

	return instrument.StatusSnapshot{
		Temperature:       r.temperature,
		TargetTemperature: r.targetTemp,
		PlateIn:           r.plateIn,
		Model:             "SimReader 3100",
		Serial:            r.current.ID,
		Firmware:          "5.12-sim",
		UpdatedAt:         now.UTC(),
	}, nil
}

// SendCommand executes a reader operation.
func (r *Reader) SendCommand(_ context.Context, name string, args map[string]any) (map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.connected {
		return nil, instrument.ErrNotConnected
	}

	switch name {
	case instrument.CmdSetTemperature:
		celsius, ok := args["celsius"].(float64)
		if !ok {
			return nil, fmt.Errorf("sim: set_temperature needs a celsius value")
		}
		r.targetTemp = celsius
		return nil, nil

	default:
		return nil, fmt.Errorf("%w: %q", instrument.ErrUnknownCommand, name)
	}
}

// StartMeasurement begins a simulated run. One data event is emitted per
// well in row-major order, then a completion action event unless disabled.
// The returned channel is closed when the run ends or ctx is cancelled.
func (r *Reader) StartMeasurement(ctx context.Context, script string) (<-chan instrument.ProgressEvent, error) {
	r.mu.Lock()
	if !r.connected {
		r.mu.Unlock()
		return nil, instrument.ErrNotConnected
	}
	r.lastScript = script
	r.plateIn = true
	opts := r.opts
	r.mu.Unlock()

	events := make(chan instrument.ProgressEvent, opts.Rows*opts.Cols+1)

	go func() {
		defer close(events)

		total := opts.Rows * opts.Cols
		cycle := 0
		for row := 0; row < opts.Rows; row++ {
			for col := 0; col < opts.Cols; col++ {
				select {
				case <-ctx.Done():
					return
				case <-time.After(opts.EventInterval):
				}

				cycle++
				emit(events, instrument.ProgressEvent{
					Reason:       instrument.ReasonData,
					CycleCurrent: cycle,
					CycleTotal:   total,
					Row:          row,
					Col:          col,
					Value:        wellValue(row, col),
					At:           time.Now().UTC(),
				})
			}
		}

		if opts.EmitCompletionLabel {
			emit(events, instrument.ProgressEvent{
				Reason:      instrument.ReasonAction,
				ActionLabel: "Measurement Complete",
				At:          time.Now().UTC(),
			})
		}
	}()

	return events, nil
}

// LastScript returns the script passed to the most recent run.
func (r *Reader) LastScript() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastScript
}

// emit sends without blocking; a full buffer drops the event, matching
// real drivers that cannot stall the instrument's event pump.
func emit(ch chan<- instrument.ProgressEvent, ev instrument.ProgressEvent) {
	select {
	case ch <- ev:
	default:
	}
}

// wellValue produces a deterministic absorbance-like value for a well.
func wellValue(row, col int) float64 {
	return 0.05 + 0.45*(1+math.Sin(float64(row*13+col*7)))
}

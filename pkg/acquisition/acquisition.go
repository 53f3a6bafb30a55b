// Package acquisition pairs every edge reported by the interrupt line with a
// fresh sensor sample.
package acquisition

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ericogr/icm42688p-monitor/pkg/edge"
	"github.com/ericogr/icm42688p-monitor/pkg/metrics"
	"github.com/ericogr/icm42688p-monitor/pkg/sensor"
	log "github.com/sirupsen/logrus"
)

// DefaultMaxBatch is the number of events requested per read.
const DefaultMaxBatch = 16

// State of a Loop. Transitions only move forward.
type State int

const (
	Uninitialized State = iota
	Ready
	Running
	Terminated
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Terminated:
		return "terminated"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Record is one edge event with the sample measured in response to it.
type Record struct {
	Event  edge.Event
	Sample sensor.Sample
}

// Measurer takes one sample. *sensor.Device implements it.
type Measurer interface {
	Measure() (sensor.Sample, error)
}

// Sink receives records in event order.
type Sink interface {
	Publish(Record) error
}

type Option func(*Loop)

func WithMaxBatch(n int) Option { return func(l *Loop) { l.maxBatch = n } }

func WithMetrics(c *metrics.Collector) Option { return func(l *Loop) { l.metrics = c } }

func WithLogger(logger log.FieldLogger) Option { return func(l *Loop) { l.log = logger } }

// WithUnits expresses every sample in u before it reaches the sink.
func WithUnits(u sensor.Units) Option { return func(l *Loop) { l.units = u } }

// Loop owns the device and the line once Init succeeds and releases both on
// Close.
type Loop struct {
	sink     Sink
	maxBatch int
	units    sensor.Units
	metrics  *metrics.Collector
	log      log.FieldLogger

	dev Measurer
	mon edge.Monitor

	mu    sync.Mutex
	state State
	err   error
}

func New(sink Sink, opts ...Option) *Loop {
	l := &Loop{sink: sink, maxBatch: DefaultMaxBatch, log: log.StandardLogger()}
	for _, o := range opts {
		o(l)
	}
	return l
}

// State returns the current state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Err returns the error that terminated the loop.
func (l *Loop) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	prev := l.state
	l.state = s
	l.mu.Unlock()
	l.log.WithFields(log.Fields{"from": prev, "to": s}).Debug("acquisition state")
}

func (l *Loop) terminate(stage string, err error) error {
	l.mu.Lock()
	l.state = Terminated
	l.err = err
	l.mu.Unlock()
	entry := l.log.WithFields(log.Fields{"stage": stage, "state": Terminated})
	if errors.Is(err, context.Canceled) {
		entry.Info("acquisition stopped")
		return err
	}
	l.metrics.Failure(stage)
	entry.WithError(err).Error("acquisition terminated")
	return err
}

// Init initializes the device, then claims the line. Either failure
// terminates the loop; the line is not requested if the device fails.
func (l *Loop) Init(openDevice func() (Measurer, error), openLine func() (edge.Monitor, error)) error {
	if s := l.State(); s != Uninitialized {
		return fmt.Errorf("init: loop is %s", s)
	}
	if l.maxBatch < 1 {
		return l.terminate("init", fmt.Errorf("init: batch size %d must be positive", l.maxBatch))
	}
	dev, err := openDevice()
	if err != nil {
		return l.terminate("device", fmt.Errorf("initialize device: %w", err))
	}
	mon, err := openLine()
	if err != nil {
		closeQuietly(dev)
		return l.terminate("line", fmt.Errorf("request line: %w", err))
	}
	l.dev, l.mon = dev, mon
	l.setState(Ready)
	return nil
}

// Run blocks on the line and emits one record per event until a read or
// measurement fails or ctx is cancelled. It always returns a non-nil error.
// Sink errors are logged and do not stop acquisition.
func (l *Loop) Run(ctx context.Context) error {
	if s := l.State(); s != Ready {
		return fmt.Errorf("run: loop is %s", s)
	}
	l.setState(Running)
	for batch, err := range edge.Batches(ctx, l.mon, l.maxBatch) {
		if err != nil {
			return l.terminate("read", err)
		}
		l.metrics.Batch(len(batch))
		for _, ev := range batch {
			sample, err := l.dev.Measure()
			if err != nil {
				return l.terminate("measure", fmt.Errorf("event #%d: %w", ev.SequenceNo, err))
			}
			rec := Record{Event: ev, Sample: sample.In(l.units)}
			if err := l.sink.Publish(rec); err != nil {
				l.metrics.Failure("publish")
				l.log.WithError(err).WithField("seq", ev.SequenceNo).Warn("publish record")
			}
			l.metrics.Record(ev.Type.String(), sample.TemperatureC)
		}
	}
	return l.terminate("read", errors.New("event source ended"))
}

// Close releases the line and the device.
func (l *Loop) Close() error {
	var errs []error
	if l.mon != nil {
		errs = append(errs, l.mon.Close())
	}
	if c, ok := l.dev.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func closeQuietly(v any) {
	if c, ok := v.(io.Closer); ok {
		_ = c.Close()
	}
}

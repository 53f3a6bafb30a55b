// Package edge claims a digital input line for rising-edge detection and
// delivers the detected edges in bounded batches.
package edge

import (
	"context"
	"fmt"
	"iter"

	"github.com/ericogr/icm42688p-monitor/pkg/hwerr"
	"github.com/warthog618/go-gpiocdev"
)

// Type is the direction of a detected edge.
type Type int

const (
	Unknown Type = iota
	Rising
	Falling
)

func (t Type) String() string {
	switch t {
	case Rising:
		return "Rising"
	case Falling:
		return "Falling"
	default:
		return "Unknown"
	}
}

// Classify maps a kernel line event type to a Type. Unrecognized codes are
// reported as Unknown.
func Classify(t gpiocdev.LineEventType) Type {
	switch t {
	case gpiocdev.LineEventRisingEdge:
		return Rising
	case gpiocdev.LineEventFallingEdge:
		return Falling
	default:
		return Unknown
	}
}

// Event is one detected edge.
type Event struct {
	LineOffset  uint
	Type        Type
	TimestampNs uint64
	SequenceNo  uint64
}

// Monitor is a claimed line.
type Monitor interface {
	// ReadEvents blocks until at least one edge is available and returns
	// between 1 and max events in arrival order.
	ReadEvents(ctx context.Context, max int) ([]Event, error)
	Close() error
}

// Batches returns the unbounded sequence of event batches read from m. The
// sequence ends after yielding the first read error. It reads one batch at a
// time and cannot be restarted once the monitor is closed.
func Batches(ctx context.Context, m Monitor, max int) iter.Seq2[[]Event, error] {
	return func(yield func([]Event, error) bool) {
		for {
			batch, err := m.ReadEvents(ctx, max)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(batch, nil) {
				return
			}
		}
	}
}

func checkMax(max int) error {
	if max < 1 {
		return fmt.Errorf("batch size %d: %w", max, hwerr.ErrInvalidArgument)
	}
	return nil
}

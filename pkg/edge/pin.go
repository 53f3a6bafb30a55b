package edge

import (
	"context"
	"fmt"
	"time"

	"github.com/ericogr/icm42688p-monitor/pkg/hwerr"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

var hostInit = host.Init

// Pin watches a periph.io GPIO pin. periph reports neither kernel timestamps
// nor sequence numbers, so timestamps are monotonic nanoseconds since the
// request and sequence numbers are counted locally starting at 1. Each read
// returns a single event.
type Pin struct {
	pin   gpio.PinIO
	start time.Time
	seq   uint64
}

// RequestPin initializes the host drivers and claims the pin registered as
// name (e.g. "GPIO4").
func RequestPin(name string) (*Pin, error) {
	if _, err := hostInit(); err != nil {
		return nil, fmt.Errorf("host init: %w: %w", hwerr.ErrResourceUnavailable, err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("pin %q: %w", name, hwerr.ErrResourceUnavailable)
	}
	return NewPin(p)
}

// NewPin configures p as an input with rising-edge detection.
func NewPin(p gpio.PinIO) (*Pin, error) {
	if err := p.In(gpio.PullNoChange, gpio.RisingEdge); err != nil {
		return nil, fmt.Errorf("pin %s: %w: %w", p, hwerr.ErrResourceUnavailable, err)
	}
	return &Pin{pin: p, start: time.Now()}, nil
}

func (p *Pin) ReadEvents(ctx context.Context, max int) ([]Event, error) {
	if err := checkMax(max); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() { _ = p.pin.Halt() })
	defer stop()
	if !p.pin.WaitForEdge(-1) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("wait for edge on %s: %w", p.pin, hwerr.ErrTransport)
	}
	p.seq++
	return []Event{{
		LineOffset:  uint(p.pin.Number()),
		Type:        Rising,
		TimestampNs: uint64(time.Since(p.start).Nanoseconds()),
		SequenceNo:  p.seq,
	}}, nil
}

func (p *Pin) Close() error {
	if err := p.pin.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		return err
	}
	return p.pin.Halt()
}

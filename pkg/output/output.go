// Package output delivers acquisition records to their destinations.
package output

import (
	"errors"
	"sync"
	"time"

	"github.com/ericogr/icm42688p-monitor/pkg/acquisition"
)

type Output interface {
	Publish(acquisition.Record) error
	Close() error
}

// helper constructors are in subpackages

// Throttle forwards at most one record per interval to out and drops the
// rest. A zero interval forwards everything.
func Throttle(out Output, interval time.Duration) Output {
	if interval <= 0 {
		return out
	}
	return &throttled{out: out, interval: interval, now: time.Now}
}

type throttled struct {
	out      Output
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last time.Time
}

func (t *throttled) Publish(r acquisition.Record) error {
	t.mu.Lock()
	now := t.now()
	if !t.last.IsZero() && now.Sub(t.last) < t.interval {
		t.mu.Unlock()
		return nil
	}
	t.last = now
	t.mu.Unlock()
	return t.out.Publish(r)
}

func (t *throttled) Close() error { return t.out.Close() }

// Multi publishes every record to all outputs in order. A failing output
// does not prevent delivery to the others.
type Multi []Output

func (m Multi) Publish(r acquisition.Record) error {
	var errs []error
	for _, o := range m {
		if err := o.Publish(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, o := range m {
		errs = append(errs, o.Close())
	}
	return errors.Join(errs...)
}

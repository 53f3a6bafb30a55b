package edge

import (
	"context"
	"fmt"
	"sync"

	"github.com/ericogr/icm42688p-monitor/pkg/hwerr"
)

// queue hands events from a producer goroutine to ReadEvents. A full queue
// blocks the producer rather than dropping events.
type queue struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

func newQueue(size int) *queue {
	if size < 1 {
		size = 1
	}
	return &queue{ch: make(chan Event, size), done: make(chan struct{})}
}

func (q *queue) push(ev Event) {
	select {
	case q.ch <- ev:
	case <-q.done:
	}
}

func (q *queue) read(ctx context.Context, max int) ([]Event, error) {
	if err := checkMax(max); err != nil {
		return nil, err
	}
	batch := make([]Event, 0, max)
	select {
	case ev := <-q.ch:
		batch = append(batch, ev)
	case <-q.done:
		return nil, fmt.Errorf("read events: line released: %w", hwerr.ErrTransport)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	for len(batch) < max {
		select {
		case ev := <-q.ch:
			batch = append(batch, ev)
		default:
			return batch, nil
		}
	}
	return batch, nil
}

func (q *queue) close() {
	q.once.Do(func() { close(q.done) })
}

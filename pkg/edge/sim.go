package edge

import (
	"context"
	"sync"
	"time"
)

// Sim produces rising edges either on a fixed period or on demand via Emit.
type Sim struct {
	q      *queue
	offset uint
	start  time.Time

	mu  sync.Mutex
	seq uint64

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSim starts a simulated line. A zero period disables the ticker.
func NewSim(offset uint, period time.Duration) *Sim {
	s := &Sim{q: newQueue(DefaultQueueSize), offset: offset, start: time.Now(), stop: make(chan struct{})}
	if period > 0 {
		s.wg.Add(1)
		go s.run(period)
	}
	return s
}

func (s *Sim) run(period time.Duration) {
	defer s.wg.Done()
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.Emit(Rising)
		case <-s.stop:
			return
		}
	}
}

// Emit queues one edge of type t, stamped with the next sequence number.
func (s *Sim) Emit(t Type) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	ev := Event{
		LineOffset:  s.offset,
		Type:        t,
		TimestampNs: uint64(time.Since(s.start).Nanoseconds()),
		SequenceNo:  s.seq,
	}
	s.q.push(ev)
}

func (s *Sim) ReadEvents(ctx context.Context, max int) ([]Event, error) {
	return s.q.read(ctx, max)
}

func (s *Sim) Close() error {
	s.q.close()
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
	return nil
}

package edge

import (
	"context"
	"fmt"

	"github.com/ericogr/icm42688p-monitor/pkg/hwerr"
	"github.com/warthog618/go-gpiocdev"
)

// DefaultQueueSize is the number of events buffered between the kernel
// watcher and ReadEvents.
const DefaultQueueSize = 64

// Line is a line requested through the GPIO character device. Events carry
// the kernel monotonic timestamp and the per-line sequence number.
type Line struct {
	line *gpiocdev.Line
	q    *queue
}

// Request claims offset on chipPath (e.g. "/dev/gpiochip0") as an input with
// rising-edge detection. queueSize <= 0 selects DefaultQueueSize.
func Request(chipPath string, offset int, consumer string, queueSize int) (*Line, error) {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	l := &Line{q: newQueue(queueSize)}
	line, err := gpiocdev.RequestLine(chipPath, offset,
		gpiocdev.AsInput,
		gpiocdev.WithRisingEdge,
		gpiocdev.WithConsumer(consumer),
		gpiocdev.WithEventHandler(l.handle))
	if err != nil {
		return nil, fmt.Errorf("request %s:%d: %w: %w", chipPath, offset, hwerr.ErrResourceUnavailable, err)
	}
	l.line = line
	return l, nil
}

func (l *Line) handle(evt gpiocdev.LineEvent) {
	l.q.push(fromLineEvent(evt))
}

func fromLineEvent(evt gpiocdev.LineEvent) Event {
	return Event{
		LineOffset:  uint(evt.Offset),
		Type:        Classify(evt.Type),
		TimestampNs: uint64(evt.Timestamp.Nanoseconds()),
		SequenceNo:  uint64(evt.LineSeqno),
	}
}

func (l *Line) ReadEvents(ctx context.Context, max int) ([]Event, error) {
	return l.q.read(ctx, max)
}

func (l *Line) Close() error {
	l.q.close()
	if l.line == nil {
		return nil
	}
	return l.line.Close()
}

package edge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ericogr/icm42688p-monitor/pkg/hwerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warthog618/go-gpiocdev"
)

func seqs(events []Event) []uint64 {
	out := make([]uint64, len(events))
	for i, ev := range events {
		out[i] = ev.SequenceNo
	}
	return out
}

func TestClassify(t *testing.T) {
	tests := []struct {
		in   gpiocdev.LineEventType
		want Type
		name string
	}{
		{gpiocdev.LineEventRisingEdge, Rising, "Rising"},
		{gpiocdev.LineEventFallingEdge, Falling, "Falling"},
		{gpiocdev.LineEventType(0), Unknown, "Unknown"},
		{gpiocdev.LineEventType(42), Unknown, "Unknown"},
	}
	for _, tt := range tests {
		got := Classify(tt.in)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, tt.name, got.String())
	}
}

func TestFromLineEvent(t *testing.T) {
	ev := fromLineEvent(gpiocdev.LineEvent{
		Offset:    4,
		Timestamp: 1000 * time.Nanosecond,
		Type:      gpiocdev.LineEventRisingEdge,
		Seqno:     7,
		LineSeqno: 1,
	})
	assert.Equal(t, Event{LineOffset: 4, Type: Rising, TimestampNs: 1000, SequenceNo: 1}, ev)
}

func TestQueueBatchOrdering(t *testing.T) {
	q := newQueue(8)
	for i := uint64(1); i <= 5; i++ {
		q.push(Event{SequenceNo: i})
	}

	b, err := q.read(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, seqs(b))

	b, err = q.read(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []uint64{4, 5}, seqs(b))
}

func TestQueueBlocksUntilEvent(t *testing.T) {
	q := newQueue(1)
	go func() {
		time.Sleep(20 * time.Millisecond)
		q.push(Event{SequenceNo: 9})
	}()

	b, err := q.read(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, []uint64{9}, seqs(b))
}

func TestQueueErrors(t *testing.T) {
	q := newQueue(1)

	_, err := q.read(context.Background(), 0)
	assert.True(t, errors.Is(err, hwerr.ErrInvalidArgument))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = q.read(ctx, 1)
	assert.True(t, errors.Is(err, context.Canceled))

	q.close()
	q.close()
	_, err = q.read(context.Background(), 1)
	assert.True(t, errors.Is(err, hwerr.ErrTransport))

	// push on a released queue must not block.
	q.push(Event{})
	q.push(Event{})
}

func TestLineDeliversHandlerEvents(t *testing.T) {
	l := &Line{q: newQueue(4)}
	for i := uint32(1); i <= 3; i++ {
		l.handle(gpiocdev.LineEvent{Offset: 4, Type: gpiocdev.LineEventRisingEdge, LineSeqno: i, Timestamp: time.Duration(i) * time.Millisecond})
	}

	b, err := l.ReadEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, seqs(b))
	assert.Equal(t, uint64(3e6), b[2].TimestampNs)

	require.NoError(t, l.Close())
	_, err = l.ReadEvents(context.Background(), 1)
	assert.True(t, errors.Is(err, hwerr.ErrTransport))
}

func TestSimEmit(t *testing.T) {
	s := NewSim(4, 0)
	defer s.Close()
	s.Emit(Rising)
	s.Emit(Falling)
	s.Emit(Rising)

	b, err := s.ReadEvents(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, b, 2)
	assert.Equal(t, []uint64{1, 2}, seqs(b))
	assert.Equal(t, Falling, b[1].Type)
	assert.Equal(t, uint(4), b[0].LineOffset)
	assert.LessOrEqual(t, b[0].TimestampNs, b[1].TimestampNs)
}

func TestSimTicker(t *testing.T) {
	s := NewSim(4, time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	b, err := s.ReadEvents(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, Rising, b[0].Type)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestBatches(t *testing.T) {
	s := NewSim(4, 0)
	for i := 0; i < 3; i++ {
		s.Emit(Rising)
	}

	var got []uint64
	for batch, err := range Batches(context.Background(), s, 2) {
		require.NoError(t, err)
		got = append(got, seqs(batch)...)
		if len(got) == 3 {
			break
		}
	}
	assert.Equal(t, []uint64{1, 2, 3}, got)

	require.NoError(t, s.Close())
	var errs []error
	for batch, err := range Batches(context.Background(), s, 2) {
		assert.Nil(t, batch)
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], hwerr.ErrTransport))
}

func TestRequestMissingChip(t *testing.T) {
	_, err := Request("/dev/gpiochip_missing", 4, "imu-data-event", 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, hwerr.ErrResourceUnavailable))
	assert.ErrorContains(t, err, "/dev/gpiochip_missing:4")
}

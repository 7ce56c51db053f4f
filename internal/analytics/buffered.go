package analytics

import (
	"context"
	"errors"

	"github.com/MagnunAVF/shortener-core/internal"
)

var ErrBufferFull = errors.New("click buffer full")

// BufferedSink queues click events in memory for a Batcher running in the
// same process. When the queue is full new events are dropped.
type BufferedSink struct {
	ch chan Message
}

func NewBufferedSink(capacity int) *BufferedSink {
	if capacity <= 0 {
		capacity = 10000
	}
	return &BufferedSink{ch: make(chan Message, capacity)}
}

func (s *BufferedSink) Publish(_ context.Context, ev *internal.ClickEvent) error {
	select {
	case s.ch <- Message{Event: *ev}:
		return nil
	default:
		return ErrBufferFull
	}
}

// Messages is the queue a Batcher consumes.
func (s *BufferedSink) Messages() <-chan Message {
	return s.ch
}

func (s *BufferedSink) Len() int {
	return len(s.ch)
}

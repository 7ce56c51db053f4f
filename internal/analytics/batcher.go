package analytics

import (
	"context"
	"time"

	"github.com/MagnunAVF/shortener-core/internal"
	"github.com/MagnunAVF/shortener-core/internal/logger"
	"github.com/MagnunAVF/shortener-core/internal/metrics"
)

// Message is a click event plus the callbacks that settle it with its source.
// Ack and Nack may be nil.
type Message struct {
	Event internal.ClickEvent
	Ack   func()
	Nack  func()
}

type ClickWriter interface {
	InsertClicks(ctx context.Context, events []internal.ClickEvent) (int, error)
}

// Batcher writes click events in batches, flushing when a batch is full or
// when the interval passes, whichever comes first.
type Batcher struct {
	writer   ClickWriter
	size     int
	interval time.Duration
	timeout  time.Duration
	metrics  *metrics.Metrics
}

func NewBatcher(writer ClickWriter, size int, interval time.Duration, m *metrics.Metrics) *Batcher {
	if size <= 0 {
		size = 100
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Batcher{writer: writer, size: size, interval: interval, timeout: 30 * time.Second, metrics: m}
}

// Run consumes in until it is closed or ctx ends. Whatever is pending at
// that point is flushed before Run returns.
func (b *Batcher) Run(ctx context.Context, in <-chan Message) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	batch := make([]Message, 0, b.size)
	for {
		select {
		case m, ok := <-in:
			if !ok {
				b.flush(batch)
				return
			}
			batch = append(batch, m)
			if len(batch) >= b.size {
				b.flush(batch)
				batch = batch[:0]
				ticker.Reset(b.interval)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				logger.Default().Debug("Timer flush: processing queued events", "count", len(batch))
				b.flush(batch)
				batch = batch[:0]
			}
		case <-ctx.Done():
			b.flush(drain(batch, in))
			return
		}
	}
}

// drain appends whatever is already waiting in in without blocking.
func drain(batch []Message, in <-chan Message) []Message {
	for {
		select {
		case m, ok := <-in:
			if !ok {
				return batch
			}
			batch = append(batch, m)
		default:
			return batch
		}
	}
}

// flush runs on its own context so a shutdown still gets its last write.
func (b *Batcher) flush(batch []Message) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	events := make([]internal.ClickEvent, len(batch))
	for i, m := range batch {
		events[i] = m.Event
	}

	written, err := b.writer.InsertClicks(ctx, events)
	if err != nil {
		logger.Default().Error("Failed to persist click batch. Nacking messages.", "count", len(batch), "err", err)
		b.metrics.ClickEvents.WithLabelValues("failed").Add(float64(len(batch)))
		for _, m := range batch {
			if m.Nack != nil {
				m.Nack()
			}
		}
		return
	}

	for _, m := range batch {
		if m.Ack != nil {
			m.Ack()
		}
	}
	b.metrics.ClickEvents.WithLabelValues("persisted").Add(float64(written))
	if orphans := len(batch) - written; orphans > 0 {
		b.metrics.ClickEvents.WithLabelValues("dropped").Add(float64(orphans))
	}
	logger.Default().Info("Persisted click batch", "count", written)
}

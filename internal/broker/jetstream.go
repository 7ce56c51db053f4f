package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/MagnunAVF/shortener-core/internal"
	"github.com/MagnunAVF/shortener-core/internal/analytics"
	"github.com/MagnunAVF/shortener-core/internal/logger"
)

const ackWait = 30 * time.Second

// JetStreamPublishing is the part of nats.JetStreamContext the publisher uses.
type JetStreamPublishing interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

type JetStreamPublisher struct {
	js      JetStreamPublishing
	subject string
}

func NewJetStreamPublisher(js JetStreamPublishing, subject string) *JetStreamPublisher {
	return &JetStreamPublisher{js: js, subject: subject}
}

// Publish waits for the stream to persist ev. The event id doubles as the
// JetStream message id, so retried publishes are deduplicated.
func (p *JetStreamPublisher) Publish(ctx context.Context, ev *internal.ClickEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal click event: %w", err)
	}
	if _, err := p.js.Publish(p.subject, body, nats.Context(ctx), nats.MsgId(ev.ID.String())); err != nil {
		return fmt.Errorf("publish click event: %w", err)
	}
	return nil
}

// EnsureStream creates the click stream or updates it to the wanted config.
func EnsureStream(js nats.JetStreamContext, name, subject string) error {
	cfg := &nats.StreamConfig{
		Name:       name,
		Subjects:   []string{subject},
		Storage:    nats.FileStorage,
		MaxAge:     7 * 24 * time.Hour,
		Duplicates: 2 * time.Minute,
		Replicas:   1,
	}
	_, err := js.StreamInfo(name)
	if errors.Is(err, nats.ErrStreamNotFound) {
		if _, err := js.AddStream(cfg); err != nil {
			return fmt.Errorf("add stream %s: %w", name, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("stream info %s: %w", name, err)
	}
	if _, err := js.UpdateStream(cfg); err != nil {
		return fmt.Errorf("update stream %s: %w", name, err)
	}
	return nil
}

// SubscribeJetStream joins the durable worker group on subject. Messages
// are acked by the batcher once their batch is stored.
func SubscribeJetStream(ctx context.Context, js nats.JetStreamContext, subject, durable string, maxPending int) (<-chan analytics.Message, *nats.Subscription, error) {
	out := make(chan analytics.Message)
	sub, err := js.QueueSubscribe(subject, durable, jetStreamHandler(ctx, out),
		nats.Durable(durable),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.AckWait(ackWait),
		nats.MaxAckPending(maxPending),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	go func() {
		<-ctx.Done()
		_ = sub.Drain()
	}()
	return out, sub, nil
}

// jetStreamMsg is the part of *nats.Msg the handler settles.
type jetStreamMsg interface {
	Ack(opts ...nats.AckOpt) error
	Nak(opts ...nats.AckOpt) error
	Term(opts ...nats.AckOpt) error
}

func jetStreamHandler(ctx context.Context, out chan<- analytics.Message) nats.MsgHandler {
	return func(m *nats.Msg) {
		forward(ctx, out, m.Data, m)
	}
}

func forward(ctx context.Context, out chan<- analytics.Message, data []byte, m jetStreamMsg) {
	var ev internal.ClickEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		logger.Default().Error("Error decoding message. Terminating.", "err", err)
		_ = m.Term()
		return
	}
	msg := analytics.Message{
		Event: ev,
		Ack:   func() { _ = m.Ack() },
		Nack:  func() { _ = m.Nak() },
	}
	select {
	case out <- msg:
	case <-ctx.Done():
		_ = m.Nak()
	}
}

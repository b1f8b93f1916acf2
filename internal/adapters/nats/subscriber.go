package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/tripcore/internal/core/domain"
)

// Subscriber implements ports.UsageEventSubscriber using NATS JetStream.
type Subscriber struct {
	conn    *nats.Conn
	js      nats.JetStreamContext
	durable string
	subs    []*nats.Subscription
}

// NewSubscriber creates a subscriber with its own connection. An empty durable
// name gives an ephemeral consumer that only sees new events.
func NewSubscriber(url, durable string) (*Subscriber, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Subscriber{conn: conn, js: js, durable: durable}, nil
}

func (s *Subscriber) SubscribeUsageEvents(ctx context.Context, handler func(ctx context.Context, event domain.UsageEvent) error) error {
	opts := []nats.SubOpt{
		nats.ManualAck(),
		nats.MaxDeliver(3),
	}
	if s.durable != "" {
		opts = append(opts, nats.Durable(s.durable))
	} else {
		opts = append(opts, nats.DeliverNew())
	}

	sub, err := s.js.Subscribe(UsageSubjects, func(msg *nats.Msg) {
		var event domain.UsageEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			// poison message, redelivery will not help
			_ = msg.Term()
			return
		}
		if err := handler(ctx, event); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	}, opts...)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}

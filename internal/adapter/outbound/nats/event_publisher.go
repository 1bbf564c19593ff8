package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/platemate/platemate-server/internal/domain/event"
	"github.com/platemate/platemate-server/internal/port/outbound/messaging"
)

// eventPublisher implements messaging.EventPublisher.
type eventPublisher struct {
	conn          *nats.Conn
	subjectPrefix string
}

// NewEventPublisher creates a new EventPublisher. Subjects take the form
// <prefix>.<topic>.<aggregateID>, so consumers can subscribe to a single
// session's stream or wildcard across all of them.
func NewEventPublisher(conn *nats.Conn, subjectPrefix string) messaging.EventPublisher {
	if subjectPrefix == "" {
		subjectPrefix = "platemate"
	}
	return &eventPublisher{
		conn:          conn,
		subjectPrefix: subjectPrefix,
	}
}

func (p *eventPublisher) Publish(ctx context.Context, evt event.Event) error {
	envelope := eventEnvelope{
		EventID:       evt.EventID(),
		EventType:     evt.EventType(),
		AggregateID:   evt.AggregateID(),
		AggregateType: evt.AggregateType(),
		OccurredAt:    evt.OccurredAt().UTC().Format(time.RFC3339Nano),
		Payload:       evt,
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", evt.EventType(), err)
	}

	msg := nats.NewMsg(p.subjectFor(evt))
	msg.Data = data
	// The event id doubles as the dedupe key for JetStream consumers.
	msg.Header.Set(nats.MsgIdHdr, evt.EventID())
	msg.Header.Set("Event-Type", evt.EventType())

	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", evt.EventType(), err)
	}
	return nil
}

func (p *eventPublisher) PublishAll(ctx context.Context, events []event.Event) error {
	for _, evt := range events {
		if err := p.Publish(ctx, evt); err != nil {
			return err
		}
	}
	// Publishes are buffered client-side; one flush covers the batch.
	return p.conn.FlushTimeout(flushTimeout)
}

const flushTimeout = 2 * time.Second

func (p *eventPublisher) subjectFor(evt event.Event) string {
	return fmt.Sprintf("%s.%s.%s", p.subjectPrefix, messaging.TopicForEvent(evt), evt.AggregateID())
}

// eventEnvelope wraps an event with transport metadata.
type eventEnvelope struct {
	EventID       string `json:"event_id"`
	EventType     string `json:"event_type"`
	AggregateID   string `json:"aggregate_id"`
	AggregateType string `json:"aggregate_type"`
	OccurredAt    string `json:"occurred_at"`
	Payload       any    `json:"payload"`
}

/*
Package notify delivers post-commit engine events to downstream consumers:
the email/PDF pipeline, analytics, and anything else listening on the
ticket-events topic.

Delivery is best-effort by design: the engine commits first and publishes
after, so a broker outage can drop events but never a sale.
*/
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/fieldpass/festival-engine/core"
)

const (
	eventTicketsMinted   = "tickets.minted"
	eventTicketNominated = "ticket.nominated"
)

// envelope wraps every published event with its kind so consumers can route
// without inspecting payloads.
type envelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// KafkaNotifier publishes engine events to one Kafka topic. Messages are
// keyed by festival (sales) or ticket (nominations) so per-aggregate order
// is preserved within a partition.
type KafkaNotifier struct {
	writer *kafka.Writer
	log    *logrus.Entry
}

func NewKafkaNotifier(brokers []string, topic string, log *logrus.Logger) *KafkaNotifier {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaNotifier{
		writer: writer,
		log:    log.WithField("component", "notify"),
	}
}

func (n *KafkaNotifier) TicketsMinted(ctx context.Context, ev core.SaleEvent) error {
	return n.publish(ctx, eventTicketsMinted, string(ev.FestivalID), ev)
}

func (n *KafkaNotifier) TicketNominated(ctx context.Context, ev core.NominationEvent) error {
	return n.publish(ctx, eventTicketNominated, string(ev.TicketID), ev)
}

func (n *KafkaNotifier) publish(ctx context.Context, kind, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", kind, err)
	}
	body, err := json.Marshal(envelope{Kind: kind, Payload: data})
	if err != nil {
		return fmt.Errorf("failed to marshal %s envelope: %w", kind, err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: body,
		Time:  time.Now(),
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", kind, err)
	}
	n.log.WithFields(logrus.Fields{"kind": kind, "key": key}).Debug("event published")
	return nil
}

// Close flushes and closes the underlying writer.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

package kafka

import (
	"context"
	"encoding/json"
	"log"

	"github.com/segmentio/kafka-go"

	"github.com/example/shopfront/internal/domain/order"
)

// EventHandler processes one decoded lifecycle event. The key is the order ID
// the producer keyed the message with.
type EventHandler func(ctx context.Context, orderID string, env order.Envelope) error

// Consumer reads the order lifecycle topic as part of a consumer group and
// hands each decoded envelope to a handler. Decoding happens once here so
// handlers never see raw bytes.
type Consumer struct {
	reader *kafka.Reader
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader}
}

// Consume blocks until ctx is cancelled. Malformed messages are skipped and
// handler failures are logged; neither stops the loop, so one bad event
// cannot stall the topic.
func (c *Consumer) Consume(ctx context.Context, handler EventHandler) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[Consumer] Failed to read message: %v", err)
			continue
		}

		var env order.Envelope
		if err := json.Unmarshal(msg.Value, &env); err != nil {
			log.Printf("[Consumer] Skipping malformed event at offset %d: %v", msg.Offset, err)
			continue
		}

		if err := handler(ctx, string(msg.Key), env); err != nil {
			log.Printf("[Consumer] Handler failed for %s event, order %s: %v", env.Type, string(msg.Key), err)
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

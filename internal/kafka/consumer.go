package kafka

import (
	"context"
	"encoding/json"
	"log"

	"github.com/segmentio/kafka-go"
)

// ShowRemovedEvent is what the catalog service publishes when it deletes a
// show instance. Receiving one triggers the bulk cancellation cascade.
type ShowRemovedEvent struct {
	ShowInstanceID string `json:"show_instance_id"`
	Reason         string `json:"reason"`
}

type Consumer struct {
	reader *kafka.Reader
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	return &Consumer{reader: reader}
}

// Start consumes show-removed events until the context is cancelled.
func (c *Consumer) Start(ctx context.Context, handler func(ctx context.Context, event ShowRemovedEvent)) {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("kafka: error reading message: %v", err)
			continue
		}

		var event ShowRemovedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			log.Printf("kafka: malformed show-removed event: %v", err)
			continue
		}
		handler(ctx, event)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

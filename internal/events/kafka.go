package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/techbreeze/order-service/internal/config"
	"github.com/techbreeze/order-service/internal/entities"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const (
	TypeOrderCreated     = "order.created"
	TypeStatusTransition = "order.status_changed"
)

// OrderEvent is published after every successful order mutation. Keyed by
// order id so consumers see a given order's events in commit order.
type OrderEvent struct {
	Type       string     `json:"type"`
	OrderUID   uuid.UUID  `json:"order_uid"`
	Status     string     `json:"status"`
	RiderUID   *uuid.UUID `json:"rider_uid,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(cfg config.Kafka) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: cfg.BatchTimeout,
		},
	}
}

func (p *Publisher) OrderCreated(ctx context.Context, order entities.Order) error {
	return p.publish(ctx, OrderEvent{
		Type:       TypeOrderCreated,
		OrderUID:   order.ID,
		Status:     order.Status.String(),
		OccurredAt: order.CreatedAt,
	})
}

func (p *Publisher) StatusChanged(ctx context.Context, order entities.Order) error {
	return p.publish(ctx, OrderEvent{
		Type:       TypeStatusTransition,
		OrderUID:   order.ID,
		Status:     order.Status.String(),
		RiderUID:   order.RiderID,
		OccurredAt: order.UpdatedAt,
	})
}

func (p *Publisher) publish(ctx context.Context, event OrderEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// kafka-go retries transient write errors itself
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.OrderUID.String()),
		Value: value,
	})
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

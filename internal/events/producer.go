package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/jaehoon-lee/infinite-buying-bot/internal/models"
)

// Producer publishes trade events to Kafka. A nil *Producer is a valid
// disabled producer; every publish on it is a no-op.
type Producer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer creates a Kafka producer for trade events
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{
		writer: writer,
		topic:  topic,
	}
}

// PublishOrderSubmitted publishes an order submission event
func (p *Producer) PublishOrderSubmitted(ctx context.Context, order *models.Order) error {
	if p == nil {
		return nil
	}
	event := models.TradeEvent{
		EventType: models.EventOrderSubmitted,
		Symbol:    order.Symbol,
		Order:     order,
		Timestamp: time.Now(),
	}
	return p.publish(ctx, order.Symbol, event)
}

// PublishCycleCompleted publishes a cycle completion event
func (p *Producer) PublishCycleCompleted(ctx context.Context, history *models.CycleHistory) error {
	if p == nil {
		return nil
	}
	event := models.TradeEvent{
		EventType: models.EventCycleCompleted,
		Symbol:    history.Symbol,
		Cycle:     history,
		Timestamp: time.Now(),
	}
	return p.publish(ctx, history.Symbol, event)
}

func (p *Producer) publish(ctx context.Context, key string, event models.TradeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	return nil
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}

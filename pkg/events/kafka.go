package events

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaPublisher forwards market events to a Kafka topic for downstream
// consumers (billing, analytics). Publishing is best-effort: a write
// failure is logged and the event is dropped, never surfaced back into
// the market.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewKafkaPublisher creates a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers: brokers,
		Topic:   topic,
	})
	return &KafkaPublisher{writer: writer, logger: logger}
}

// Run consumes events from ch until the context is cancelled or the
// channel closes. Call in its own goroutine with a Log subscription.
func (p *KafkaPublisher) Run(ctx context.Context, ch <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			p.publish(ctx, e)
		}
	}
}

func (p *KafkaPublisher) publish(ctx context.Context, e Event) {
	value, err := json.Marshal(e)
	if err != nil {
		p.logger.Warn("kafka_encode_failed", zap.String("type", string(e.Type)), zap.Error(err))
		return
	}

	msg := kafka.Message{
		Key:   []byte(e.Type),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Warn("kafka_publish_failed",
			zap.String("type", string(e.Type)),
			zap.String("event_id", e.ID),
			zap.Error(err),
		)
		return
	}
	p.logger.Debug("kafka_published", zap.String("type", string(e.Type)), zap.String("event_id", e.ID))
}

// Close closes the underlying Kafka writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

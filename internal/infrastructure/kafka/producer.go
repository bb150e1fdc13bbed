package kafka

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/git-krishnabisht/vaatsip-sub000/internal/domain"

	"github.com/segmentio/kafka-go"
)

type KafkaProducer struct {
	Writer *kafka.Writer
}

func NewKafkaProducer(broker string) *KafkaProducer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(broker),
		Balancer: &kafka.LeastBytes{},
		// Optimize for low latency
		BatchSize:    1,
		BatchTimeout: 0 * time.Millisecond,
		RequiredAcks: 1,
		Async:        false,
	}
	return &KafkaProducer{Writer: writer}
}

// Publish fans an event out to its topic. Callers treat failures as
// best-effort; the live relay path never blocks on the broker.
func (k *KafkaProducer) Publish(ctx context.Context, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	topic := k.topicForEvent(event)

	msg := kafka.Message{
		Topic: topic,
		Value: data,
	}

	if err := k.Writer.WriteMessages(ctx, msg); err != nil {
		log.Printf("Failed to publish event to Kafka topic %s: %v", topic, err)
		return err
	}
	return nil
}

func (k *KafkaProducer) topicForEvent(event interface{}) string {
	switch event.(type) {
	case domain.MessageEvent:
		return "chat-messages"
	case domain.PresenceEvent:
		return "presence-events"
	case domain.TypingEvent:
		return "typing-indicators"
	default:
		return "chat-messages"
	}
}

func (k *KafkaProducer) Close() error {
	return k.Writer.Close()
}

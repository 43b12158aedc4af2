package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Freeeeeet/engagement_service/internal/model"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink пишет доменные события в топик. Ключ сообщения — заявка или переписка,
// поэтому события одной сущности попадают в одну партицию.
type KafkaSink struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

func NewKafkaSink(brokers []string, topic string, logger *zap.Logger) *KafkaSink {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("Failed to deliver events to kafka",
					zap.String("topic", topic),
					zap.Int("count", len(messages)),
					zap.Error(err),
				)
			}
		},
	}

	return newKafkaSink(writer, topic, logger)
}

func newKafkaSink(writer messageWriter, topic string, logger *zap.Logger) *KafkaSink {
	return &KafkaSink{
		writer: writer,
		topic:  topic,
		logger: logger,
	}
}

func (s *KafkaSink) Name() string {
	return "kafka"
}

func (s *KafkaSink) Handle(ctx context.Context, event model.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(event.Key()),
		Value: data,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}

	if err := s.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to send %s event: %w", event.Type, err)
	}

	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

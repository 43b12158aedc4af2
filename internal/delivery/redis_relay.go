package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Freeeeeet/engagement_service/internal/model"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultChannelPrefix = "conversation:"

// RedisRelay разносит MessageSent между экземплярами сервиса через Redis pub/sub.
// Каждый экземпляр публикует в канал переписки и раздаёт полученное своему Broker.
type RedisRelay struct {
	rdb    *redis.Client
	broker *Broker
	prefix string
	logger *zap.Logger
}

func NewRedisRelay(rdb *redis.Client, broker *Broker, prefix string, logger *zap.Logger) *RedisRelay {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisRelay{
		rdb:    rdb,
		broker: broker,
		prefix: prefix,
		logger: logger,
	}
}

// Name имя получателя событий
func (r *RedisRelay) Name() string {
	return "redis_relay"
}

// Handle публикует сообщение в канал переписки. Если Redis недоступен, доставляет локально.
func (r *RedisRelay) Handle(ctx context.Context, event model.Event) error {
	if event.Type != model.EventMessageSent || event.Message == nil {
		return nil
	}

	data, err := json.Marshal(event.Message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	channel := r.prefix + event.Message.ConversationID.String()
	if err := r.rdb.Publish(ctx, channel, data).Err(); err != nil {
		r.broker.Deliver(event.Message)
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// Run слушает каналы всех переписок до отмены ctx
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.rdb.PSubscribe(ctx, r.prefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	r.logger.Info("Redis relay started", zap.String("pattern", r.prefix+"*"))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.relay(msg)
		}
	}
}

func (r *RedisRelay) relay(msg *redis.Message) {
	var message model.Message
	if err := json.Unmarshal([]byte(msg.Payload), &message); err != nil {
		r.logger.Warn("Skipping malformed relay payload",
			zap.String("channel", msg.Channel),
			zap.Error(err),
		)
		return
	}
	if !strings.HasSuffix(msg.Channel, message.ConversationID.String()) {
		r.logger.Warn("Relay payload does not match channel", zap.String("channel", msg.Channel))
		return
	}
	r.broker.Deliver(&message)
}

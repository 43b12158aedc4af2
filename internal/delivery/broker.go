// Package delivery доставляет новые сообщения подписчикам переписки в реальном времени.
package delivery

import (
	"context"
	"fmt"
	"sync"

	"github.com/Freeeeeet/engagement_service/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultSnapshotSize = 50
	DefaultBufferSize   = 64
)

// MessageSource читает историю переписки из хранилища
type MessageSource interface {
	ListMessages(ctx context.Context, in model.ListMessagesInput) (*model.MessagePage, error)
	MessagesAfter(ctx context.Context, conversationID uuid.UUID, afterSeq int64, limit int) ([]*model.Message, error)
}

// Handler получает сообщения одной подписки строго по возрастанию seq
type Handler func(message *model.Message)

// Broker раздаёт опубликованные сообщения подписчикам их переписки
type Broker struct {
	source       MessageSource
	snapshotSize int
	bufferSize   int
	logger       *zap.Logger

	mu     sync.RWMutex
	subs   map[uuid.UUID]map[*Subscription]struct{}
	closed bool
}

type Option func(*Broker)

// WithSnapshotSize задаёт, сколько последних сообщений получает новый подписчик
func WithSnapshotSize(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.snapshotSize = n
		}
	}
}

// WithBufferSize задаёт размер очереди подписчика; при переполнении он догоняет из хранилища
func WithBufferSize(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

func NewBroker(source MessageSource, logger *zap.Logger, opts ...Option) *Broker {
	b := &Broker{
		source:       source,
		snapshotSize: DefaultSnapshotSize,
		bufferSize:   DefaultBufferSize,
		logger:       logger,
		subs:         make(map[uuid.UUID]map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe подписывает onMessage на переписку: сначала последние сообщения, затем новые.
// Подписка живёт до Unsubscribe или отмены ctx.
func (b *Broker) Subscribe(ctx context.Context, conversationID uuid.UUID, onMessage Handler) (*Subscription, error) {
	sub := newSubscription(ctx, b, conversationID, onMessage)

	// регистрируемся до чтения снимка, чтобы не потерять сообщения между ними
	if err := b.add(sub); err != nil {
		sub.cancel()
		return nil, err
	}

	page, err := b.source.ListMessages(ctx, model.ListMessagesInput{
		ConversationID: conversationID,
		Limit:          b.snapshotSize,
	})
	if err != nil {
		sub.Unsubscribe()
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	go sub.run(page.Messages)

	b.logger.Debug("Subscribed to conversation",
		zap.String("conversation_id", conversationID.String()),
		zap.Int("snapshot", len(page.Messages)),
	)

	return sub, nil
}

// Deliver передаёт сообщение всем подписчикам его переписки. Не блокируется.
func (b *Broker) Deliver(message *model.Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs[message.ConversationID] {
		sub.push(message)
	}
}

// Name имя получателя событий
func (b *Broker) Name() string {
	return "broker"
}

// Handle принимает доменные события и раздаёт MessageSent
func (b *Broker) Handle(_ context.Context, event model.Event) error {
	if event.Type == model.EventMessageSent && event.Message != nil {
		b.Deliver(event.Message)
	}
	return nil
}

// Subscribers возвращает число активных подписок на переписку
func (b *Broker) Subscribers(conversationID uuid.UUID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[conversationID])
}

// Close завершает все подписки и отклоняет новые
func (b *Broker) Close() {
	b.mu.Lock()
	b.closed = true
	all := make([]*Subscription, 0)
	for _, set := range b.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range all {
		sub.Unsubscribe()
	}
}

func (b *Broker) add(sub *Subscription) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	set, ok := b.subs[sub.conversationID]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subs[sub.conversationID] = set
	}
	set[sub] = struct{}{}
	return nil
}

func (b *Broker) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set := b.subs[sub.conversationID]
	delete(set, sub)
	if len(set) == 0 {
		delete(b.subs, sub.conversationID)
	}
}

package delivery

import (
	"context"
	"errors"
	"sync"

	"github.com/Freeeeeet/engagement_service/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("broker is closed")

// Subscription поток сообщений одной переписки для одного получателя
type Subscription struct {
	broker         *Broker
	conversationID uuid.UUID
	onMessage      Handler

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once

	inbox chan *model.Message
	// resync получает сигнал, если inbox переполнен
	resync chan struct{}
	done   chan struct{}

	// lastSeq меняется только в горутине run
	lastSeq int64
}

func newSubscription(ctx context.Context, b *Broker, conversationID uuid.UUID, onMessage Handler) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	return &Subscription{
		broker:         b,
		conversationID: conversationID,
		onMessage:      onMessage,
		ctx:            ctx,
		cancel:         cancel,
		inbox:          make(chan *model.Message, b.bufferSize),
		resync:         make(chan struct{}, 1),
		done:           make(chan struct{}),
	}
}

// ConversationID переписка подписки
func (s *Subscription) ConversationID() uuid.UUID {
	return s.conversationID
}

// Unsubscribe останавливает доставку. Повторные вызовы ничего не делают.
// Можно вызывать из onMessage.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.broker.remove(s)
		s.cancel()
	})
}

// Done закрывается, когда горутина доставки завершилась
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) push(message *model.Message) {
	select {
	case s.inbox <- message:
	default:
		select {
		case s.resync <- struct{}{}:
		default:
		}
	}
}

func (s *Subscription) run(snapshot []*model.Message) {
	defer close(s.done)
	defer s.Unsubscribe()

	if len(snapshot) > 0 {
		s.lastSeq = snapshot[0].Seq - 1
	}
	for _, message := range snapshot {
		s.emit(message)
	}

	for {
		select {
		case <-s.ctx.Done():
			return
		case message := <-s.inbox:
			s.accept(message)
		case <-s.resync:
			s.catchUp()
		}
	}
}

func (s *Subscription) accept(message *model.Message) {
	if message.Seq <= s.lastSeq {
		return
	}
	if message.Seq > s.lastSeq+1 {
		s.catchUp()
		if message.Seq <= s.lastSeq {
			return
		}
	}
	s.emit(message)
}

// catchUp дочитывает из хранилища всё, что пришло после lastSeq
func (s *Subscription) catchUp() {
	for s.ctx.Err() == nil {
		missed, err := s.broker.source.MessagesAfter(s.ctx, s.conversationID, s.lastSeq, 0)
		if err != nil {
			if s.ctx.Err() == nil {
				s.broker.logger.Warn("Failed to catch up conversation",
					zap.String("conversation_id", s.conversationID.String()),
					zap.Int64("after_seq", s.lastSeq),
					zap.Error(err),
				)
			}
			return
		}
		if len(missed) == 0 {
			return
		}
		for _, message := range missed {
			if message.Seq > s.lastSeq {
				s.emit(message)
			}
		}
	}
}

func (s *Subscription) emit(message *model.Message) {
	if s.ctx.Err() != nil {
		return
	}
	s.lastSeq = message.Seq
	s.onMessage(message)
}

package delivery_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/engagement_service/internal/delivery"
	"github.com/Freeeeeet/engagement_service/internal/errdefs"
	"github.com/Freeeeeet/engagement_service/internal/model"
	"github.com/Freeeeeet/engagement_service/internal/repository/memory"
	"github.com/Freeeeeet/engagement_service/internal/service"
	"github.com/Freeeeeet/engagement_service/internal/validation"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const waitFor = 2 * time.Second

// collector собирает доставленные сообщения
type collector struct {
	mu       sync.Mutex
	messages []*model.Message
}

func (c *collector) handle(m *model.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, m)
}

func (c *collector) seqs() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	seqs := make([]int64, 0, len(c.messages))
	for _, m := range c.messages {
		seqs = append(seqs, m.Seq)
	}
	return seqs
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

type env struct {
	conversations *service.ConversationService
	broker        *delivery.Broker
	conversation  *model.Conversation
}

// publisherFunc адаптирует функцию к service.EventPublisher
type publisherFunc func(ctx context.Context, event model.Event)

func (f publisherFunc) Publish(ctx context.Context, event model.Event) { f(ctx, event) }

func setup(t *testing.T, opts ...delivery.Option) *env {
	t.Helper()

	logger := zap.NewNop()
	var broker *delivery.Broker
	publisher := publisherFunc(func(ctx context.Context, event model.Event) {
		_ = broker.Handle(ctx, event)
	})
	conversations := service.NewConversationService(memory.New().Conversations, publisher, validation.New(), nil, logger)
	broker = delivery.NewBroker(conversations, logger, opts...)
	t.Cleanup(broker.Close)

	conversation, _, err := conversations.EnsureConversation(context.Background(), model.EnsureConversationInput{
		StudentID: "student-1",
		TeacherID: "teacher-1",
	})
	require.NoError(t, err)

	return &env{conversations: conversations, broker: broker, conversation: conversation}
}

func (e *env) send(t *testing.T, content string) *model.Message {
	t.Helper()
	message, err := e.conversations.Send(context.Background(), model.SendMessageInput{
		ConversationID: e.conversation.ID,
		SenderID:       "student-1",
		SenderRole:     model.RoleStudent,
		Content:        content,
	})
	require.NoError(t, err)
	return message
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()

	t.Run("SnapshotThenLive", func(t *testing.T) {
		e := setup(t)
		e.send(t, "one")
		e.send(t, "two")

		got := &collector{}
		sub, err := e.broker.Subscribe(ctx, e.conversation.ID, got.handle)
		require.NoError(t, err)
		defer sub.Unsubscribe()

		e.send(t, "three")

		require.Eventually(t, func() bool { return got.count() == 3 }, waitFor, 5*time.Millisecond)
		assert.Equal(t, []int64{1, 2, 3}, got.seqs())
	})

	t.Run("SnapshotIsBounded", func(t *testing.T) {
		e := setup(t, delivery.WithSnapshotSize(2))
		for i := 0; i < 5; i++ {
			e.send(t, fmt.Sprintf("m%d", i))
		}

		got := &collector{}
		sub, err := e.broker.Subscribe(ctx, e.conversation.ID, got.handle)
		require.NoError(t, err)
		defer sub.Unsubscribe()

		require.Eventually(t, func() bool { return got.count() == 2 }, waitFor, 5*time.Millisecond)
		assert.Equal(t, []int64{4, 5}, got.seqs())
	})

	t.Run("Error_UnknownConversation", func(t *testing.T) {
		e := setup(t)

		_, err := e.broker.Subscribe(ctx, uuid.New(), func(*model.Message) {})
		assert.True(t, errors.Is(err, errdefs.ErrNotFound))
		assert.Equal(t, 0, e.broker.Subscribers(e.conversation.ID))
	})

	t.Run("Error_Closed", func(t *testing.T) {
		e := setup(t)
		e.broker.Close()

		_, err := e.broker.Subscribe(ctx, e.conversation.ID, func(*model.Message) {})
		assert.True(t, errors.Is(err, delivery.ErrClosed))
	})
}

func TestDeliveryOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("DeduplicatesAndHealsGaps", func(t *testing.T) {
		e := setup(t)
		got := &collector{}
		sub, err := e.broker.Subscribe(ctx, e.conversation.ID, got.handle)
		require.NoError(t, err)
		defer sub.Unsubscribe()

		first := e.send(t, "one")
		second := e.send(t, "two")
		third := e.send(t, "three")

		// повторы и публикация не по порядку
		e.broker.Deliver(third)
		e.broker.Deliver(first)
		e.broker.Deliver(second)

		require.Eventually(t, func() bool { return got.count() >= 3 }, waitFor, 5*time.Millisecond)
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, []int64{1, 2, 3}, got.seqs())
	})

	t.Run("SlowConsumerCatchesUp", func(t *testing.T) {
		e := setup(t, delivery.WithBufferSize(1))
		release := make(chan struct{})
		got := &collector{}
		sub, err := e.broker.Subscribe(ctx, e.conversation.ID, func(m *model.Message) {
			<-release
			got.handle(m)
		})
		require.NoError(t, err)
		defer sub.Unsubscribe()

		for i := 0; i < 20; i++ {
			e.send(t, fmt.Sprintf("m%d", i))
		}
		close(release)

		require.Eventually(t, func() bool { return got.count() == 20 }, waitFor, 5*time.Millisecond)
		seqs := got.seqs()
		for i := range seqs {
			assert.Equal(t, int64(i+1), seqs[i])
		}
	})

	t.Run("ConcurrentSenders", func(t *testing.T) {
		e := setup(t)
		got := &collector{}
		sub, err := e.broker.Subscribe(ctx, e.conversation.ID, got.handle)
		require.NoError(t, err)
		defer sub.Unsubscribe()

		var wg sync.WaitGroup
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < 10; i++ {
					e.send(t, fmt.Sprintf("w%d-%d", w, i))
				}
			}(w)
		}
		wg.Wait()

		require.Eventually(t, func() bool { return got.count() == 40 }, waitFor, 5*time.Millisecond)
		seqs := got.seqs()
		for i := 1; i < len(seqs); i++ {
			assert.Equal(t, seqs[i-1]+1, seqs[i])
		}
	})
}

func TestUnsubscribe(t *testing.T) {
	ctx := context.Background()

	t.Run("Idempotent", func(t *testing.T) {
		e := setup(t)
		got := &collector{}
		sub, err := e.broker.Subscribe(ctx, e.conversation.ID, got.handle)
		require.NoError(t, err)
		assert.Equal(t, 1, e.broker.Subscribers(e.conversation.ID))

		sub.Unsubscribe()
		sub.Unsubscribe()

		select {
		case <-sub.Done():
		case <-time.After(waitFor):
			t.Fatal("delivery goroutine did not stop")
		}
		assert.Equal(t, 0, e.broker.Subscribers(e.conversation.ID))

		e.send(t, "after unsubscribe")
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, 0, got.count())
	})

	t.Run("FromHandler", func(t *testing.T) {
		e := setup(t)
		e.send(t, "one")

		var sub *delivery.Subscription
		ready := make(chan struct{})
		calls := 0
		var err error
		sub, err = e.broker.Subscribe(ctx, e.conversation.ID, func(*model.Message) {
			<-ready
			calls++
			sub.Unsubscribe()
		})
		require.NoError(t, err)
		close(ready)

		select {
		case <-sub.Done():
		case <-time.After(waitFor):
			t.Fatal("delivery goroutine did not stop")
		}
		assert.Equal(t, 1, calls)
	})

	t.Run("ContextCancel", func(t *testing.T) {
		e := setup(t)
		subCtx, cancel := context.WithCancel(ctx)
		sub, err := e.broker.Subscribe(subCtx, e.conversation.ID, func(*model.Message) {})
		require.NoError(t, err)

		cancel()
		select {
		case <-sub.Done():
		case <-time.After(waitFor):
			t.Fatal("delivery goroutine did not stop")
		}
		assert.Equal(t, 0, e.broker.Subscribers(e.conversation.ID))
	})
}

// Package events раздаёт доменные события внешним получателям: Kafka, брокеру доставки, уведомлениям.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/Freeeeeet/engagement_service/internal/model"
	"go.uber.org/zap"
)

// Sink получатель доменных событий. Handle не должен надолго блокировать вызывающего.
type Sink interface {
	Name() string
	Handle(ctx context.Context, event model.Event) error
}

// DefaultSinkTimeout ограничивает обработку события одним получателем
const DefaultSinkTimeout = 5 * time.Second

// Dispatcher передаёт каждое событие всем получателям по очереди.
// Ошибка получателя логируется и не влияет на остальных и на исходную операцию.
type Dispatcher struct {
	mu      sync.RWMutex
	sinks   []Sink
	timeout time.Duration
	logger  *zap.Logger
}

func NewDispatcher(logger *zap.Logger, timeout time.Duration, sinks ...Sink) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultSinkTimeout
	}
	return &Dispatcher{
		sinks:   sinks,
		timeout: timeout,
		logger:  logger,
	}
}

// Register добавляет получателя. Брокеру нужен уже созданный сервис переписок,
// поэтому часть получателей подключается после создания сервисов.
func (d *Dispatcher) Register(sinks ...Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.sinks = append(d.sinks, sinks...)
}

// Publish реализует service.EventPublisher
func (d *Dispatcher) Publish(ctx context.Context, event model.Event) {
	// событие уже случилось: отмена запроса не должна его терять
	ctx = context.WithoutCancel(ctx)

	d.mu.RLock()
	sinks := d.sinks
	d.mu.RUnlock()

	for _, sink := range sinks {
		d.dispatch(ctx, sink, event)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, sink Sink, event model.Event) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Event sink panicked",
				zap.String("sink", sink.Name()),
				zap.String("event_type", string(event.Type)),
				zap.Any("panic", r),
			)
		}
	}()

	if err := sink.Handle(ctx, event); err != nil {
		d.logger.Error("Failed to dispatch event",
			zap.String("sink", sink.Name()),
			zap.String("event_type", string(event.Type)),
			zap.String("event_id", event.ID.String()),
			zap.Error(err),
		)
	}
}

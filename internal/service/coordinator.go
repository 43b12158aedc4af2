package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/engagement_service/internal/errdefs"
	"github.com/Freeeeeet/engagement_service/internal/model"
	"github.com/Freeeeeet/engagement_service/internal/validation"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// RetryPolicy ограничивает повторы при ErrUnavailable
type RetryPolicy struct {
	Base       time.Duration
	MaxRetries uint64
	MaxDelay   time.Duration
}

// DefaultRetryPolicy: 50ms, 100ms, 200ms, 400ms
var DefaultRetryPolicy = RetryPolicy{
	Base:       50 * time.Millisecond,
	MaxRetries: 4,
	MaxDelay:   time.Second,
}

func (p RetryPolicy) backoff() retry.Backoff {
	b := retry.NewExponential(p.Base)
	b = retry.WithCappedDuration(p.MaxDelay, b)
	return retry.WithMaxRetries(p.MaxRetries, b)
}

// Coordinator проводит заявку через все шаги: заявка -> engagement -> доступ -> переписка
type Coordinator struct {
	registry      *EngagementRegistry
	access        *AccessService
	conversations *ConversationService
	events        EventPublisher
	validator     *validation.Validator
	retry         RetryPolicy
	now           Clock
	logger        *zap.Logger
}

func NewCoordinator(
	registry *EngagementRegistry,
	access *AccessService,
	conversations *ConversationService,
	events EventPublisher,
	validator *validation.Validator,
	policy RetryPolicy,
	now Clock,
	logger *zap.Logger,
) *Coordinator {
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		registry:      registry,
		access:        access,
		conversations: conversations,
		events:        events,
		validator:     validator,
		retry:         policy,
		now:           now,
		logger:        logger,
	}
}

// SubmitRequest создаёт заявку студента. Студент подаёт только от своего имени.
func (c *Coordinator) SubmitRequest(ctx context.Context, actor model.Actor, in model.SubmitRequestInput) (*model.EngagementRequest, error) {
	switch actor.Role {
	case model.RoleStudent:
		in.StudentID = actor.UserID
		if in.StudentProfile.Name == "" {
			in.StudentProfile.Name = actor.DisplayName
		}
	case model.RoleSuperAdmin:
	default:
		return nil, errdefs.Denied("only students can submit engagement requests")
	}

	if err := c.validator.Struct(in); err != nil {
		return nil, err
	}

	request, err := withRetry(ctx, c, "submit request", func(ctx context.Context) (*model.EngagementRequest, error) {
		return c.registry.CreateRequest(ctx, in)
	})
	if err != nil {
		return nil, err
	}

	c.publish(ctx, model.EventRequestSubmitted, request, nil)
	return request, nil
}

// Approve одобряет заявку и доводит все побочные шаги до конца.
// Повторный вызов для одобренной заявки достраивает недостающее и возвращает те же ID.
func (c *Coordinator) Approve(ctx context.Context, requestID uuid.UUID, actor model.Actor, notes string) (*model.ApprovalResult, error) {
	result := &model.ApprovalResult{RequestID: requestID}

	// после сбоя переход мог уже записаться, тогда повтор увидит свою же заявку одобренной
	interrupted := false
	engagement, err := withRetry(ctx, c, "approve request", func(ctx context.Context) (*model.Engagement, error) {
		e, err := c.registry.Approve(ctx, requestID, actor, notes)
		interrupted = interrupted || errdefs.IsRetriable(err)
		return e, err
	})
	if errors.Is(err, errdefs.ErrAlreadyProcessed) {
		result.AlreadyProcessed = !interrupted
		engagement, err = withRetry(ctx, c, "ensure engagement", func(ctx context.Context) (*model.Engagement, error) {
			return c.registry.EnsureEngagement(ctx, requestID)
		})
		if errors.Is(err, errdefs.ErrPreconditionFailed) {
			// заявку решили иначе: отклонили или отменили
			return nil, fmt.Errorf("%w: %w", errdefs.ErrAlreadyProcessed, err)
		}
	}
	if err != nil {
		return nil, err
	}
	result.EngagementID = engagement.ID

	request, err := withRetry(ctx, c, "get request", func(ctx context.Context) (*model.EngagementRequest, error) {
		return c.registry.GetRequest(ctx, requestID)
	})
	if err != nil {
		return nil, err
	}

	var grantCreated bool
	grant, err := withRetry(ctx, c, "grant access", func(ctx context.Context) (*model.AccessGrant, error) {
		g, created, err := c.access.Grant(ctx, model.GrantInput{
			StudentID:       request.StudentID,
			TeacherID:       request.TeacherID,
			Plan:            request.Plan,
			Subject:         request.Subject,
			SourceRequestID: &request.ID,
		})
		grantCreated = grantCreated || created
		return g, err
	})
	if err != nil {
		return nil, err
	}
	result.GrantID = grant.ID

	var conversationCreated bool
	conversation, err := withRetry(ctx, c, "ensure conversation", func(ctx context.Context) (*model.Conversation, error) {
		conv, created, err := c.conversations.EnsureConversation(ctx, model.EnsureConversationInput{
			StudentID:    request.StudentID,
			StudentName:  request.StudentProfile.Name,
			TeacherID:    request.TeacherID,
			TeacherName:  request.TeacherName,
			EngagementID: &engagement.ID,
		})
		conversationCreated = conversationCreated || created
		return conv, err
	})
	if err != nil {
		return nil, err
	}
	result.ConversationID = conversation.ID

	c.logger.Info("Engagement request approval completed",
		zap.String("request_id", requestID.String()),
		zap.String("engagement_id", result.EngagementID.String()),
		zap.String("grant_id", result.GrantID.String()),
		zap.String("conversation_id", result.ConversationID.String()),
		zap.Bool("already_processed", result.AlreadyProcessed),
	)

	// повторный вызов, который достроил прерванное одобрение, тоже сообщает о нём
	if !result.AlreadyProcessed || grantCreated || conversationCreated {
		c.publish(ctx, model.EventRequestApproved, request, engagement)
	}

	return result, nil
}

// Reject отклоняет заявку. Повтор уже выполненного отклонения не считается ошибкой.
func (c *Coordinator) Reject(ctx context.Context, requestID uuid.UUID, actor model.Actor, reason, notes string) (*model.EngagementRequest, error) {
	request, err := withRetry(ctx, c, "reject request", func(ctx context.Context) (*model.EngagementRequest, error) {
		return c.registry.Reject(ctx, requestID, actor, reason, notes)
	})
	if errors.Is(err, errdefs.ErrAlreadyProcessed) {
		current, getErr := withRetry(ctx, c, "get request", func(ctx context.Context) (*model.EngagementRequest, error) {
			return c.registry.GetRequest(ctx, requestID)
		})
		if getErr != nil {
			return nil, getErr
		}
		if current.IsRejected() {
			return current, nil
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	c.publish(ctx, model.EventRequestRejected, request, nil)
	return request, nil
}

// CancelRequest отменяет заявку, её engagement и отзывает доступ
func (c *Coordinator) CancelRequest(ctx context.Context, requestID uuid.UUID, actor model.Actor) (*Cancellation, error) {
	cancellation, err := withRetry(ctx, c, "cancel request", func(ctx context.Context) (*Cancellation, error) {
		return c.registry.CancelRequest(ctx, requestID, actor)
	})
	if err != nil {
		return nil, err
	}
	return c.finishCancellation(ctx, cancellation)
}

// CancelEngagement отменяет engagement и заявку, из которой он создан
func (c *Coordinator) CancelEngagement(ctx context.Context, engagementID uuid.UUID, actor model.Actor) (*Cancellation, error) {
	cancellation, err := withRetry(ctx, c, "cancel engagement", func(ctx context.Context) (*Cancellation, error) {
		return c.registry.CancelEngagement(ctx, engagementID, actor)
	})
	if err != nil {
		return nil, err
	}
	return c.finishCancellation(ctx, cancellation)
}

func (c *Coordinator) finishCancellation(ctx context.Context, cancellation *Cancellation) (*Cancellation, error) {
	request := cancellation.Request

	grant, err := withRetry(ctx, c, "get active grant", func(ctx context.Context) (*model.AccessGrant, error) {
		return c.access.ActiveGrant(ctx, request.StudentID, request.TeacherID)
	})
	switch {
	case errors.Is(err, errdefs.ErrNotFound):
	case err != nil:
		return nil, err
	case cancellation.EngagementCancelled || grantFrom(grant, request.ID):
		if _, err := withRetry(ctx, c, "revoke grant", func(ctx context.Context) (*model.AccessGrant, error) {
			return c.access.Revoke(ctx, grant.ID)
		}); err != nil {
			return nil, err
		}
	}

	if !cancellation.AlreadyCancelled {
		c.publish(ctx, model.EventRequestCancelled, request, cancellation.Engagement)
	}
	return cancellation, nil
}

func grantFrom(grant *model.AccessGrant, requestID uuid.UUID) bool {
	return grant.SourceRequestID != nil && *grant.SourceRequestID == requestID
}

func (c *Coordinator) publish(ctx context.Context, t model.EventType, request *model.EngagementRequest, engagement *model.Engagement) {
	if c.events == nil {
		return
	}
	event := model.NewEvent(t, c.now().UTC())
	event.Request = request
	event.Engagement = engagement
	c.events.Publish(ctx, event)
}

// withRetry повторяет fn с экспоненциальной задержкой, пока она возвращает ErrUnavailable
func withRetry[T any](ctx context.Context, c *Coordinator, op string, fn func(context.Context) (T, error)) (T, error) {
	var result T
	attempt := 0

	err := retry.Do(ctx, c.retry.backoff(), func(ctx context.Context) error {
		attempt++
		value, err := fn(ctx)
		if err != nil {
			if errdefs.IsRetriable(err) {
				c.logger.Warn("Store unavailable, retrying",
					zap.String("op", op),
					zap.Int("attempt", attempt),
					zap.Error(err),
				)
				return retry.RetryableError(err)
			}
			return err
		}
		result = value
		return nil
	})

	return result, err
}

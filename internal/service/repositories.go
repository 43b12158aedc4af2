package service

import (
	"context"
	"time"

	"github.com/Freeeeeet/engagement_service/internal/model"
	"github.com/google/uuid"
)

// Хранилища, которые используют сервисы. Реализации: repository (Postgres) и repository/memory.
// Отсутствующая запись -> errdefs.ErrNotFound, временный сбой -> errdefs.ErrUnavailable.

type RequestRepository interface {
	Create(ctx context.Context, request *model.EngagementRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.EngagementRequest, error)
	HasPending(ctx context.Context, studentID, teacherID string) (bool, error)
	ListByStudent(ctx context.Context, studentID string) ([]*model.EngagementRequest, error)
	// ListPending возвращает pending заявки учителя, или все при пустом teacherID
	ListPending(ctx context.Context, teacherID string) ([]*model.EngagementRequest, error)
	// MarkProcessed переводит заявку из pending; если она уже не pending -> errdefs.ErrAlreadyProcessed
	MarkProcessed(ctx context.Context, id uuid.UUID, decision model.RequestDecision) (*model.EngagementRequest, error)
	// MarkCancelled переводит заявку из pending|approved; иначе errdefs.ErrAlreadyProcessed
	MarkCancelled(ctx context.Context, id uuid.UUID, by string, at time.Time) (*model.EngagementRequest, error)
	SetEngagement(ctx context.Context, id, engagementID uuid.UUID) error
}

type EngagementRepository interface {
	// Create -> errdefs.ErrAlreadyExists, если у пары уже есть active engagement
	Create(ctx context.Context, engagement *model.Engagement) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Engagement, error)
	GetByRequestID(ctx context.Context, requestID uuid.UUID) (*model.Engagement, error)
	GetActiveByPair(ctx context.Context, studentID, teacherID string) (*model.Engagement, error)
	// UpdateStatus меняет статус только из from; иначе errdefs.ErrAlreadyProcessed
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.EngagementStatus, at time.Time) (*model.Engagement, error)
	// AdvanceBilling записывает next, только если сохранённая дата всё ещё равна expected
	AdvanceBilling(ctx context.Context, id uuid.UUID, expected, next, at time.Time) (bool, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*model.Engagement, error)
}

type AccessRepository interface {
	// Create -> errdefs.ErrAlreadyExists, если у пары уже есть active grant
	Create(ctx context.Context, grant *model.AccessGrant) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.AccessGrant, error)
	GetActiveByPair(ctx context.Context, studentID, teacherID string) (*model.AccessGrant, error)
	// Revoke идемпотентен: уже отозванный доступ возвращается без изменений
	Revoke(ctx context.Context, id uuid.UUID, at time.Time) (*model.AccessGrant, error)
	ListByStudent(ctx context.Context, studentID string) ([]*model.AccessGrant, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]*model.AccessGrant, error)
	// ExpireBefore помечает expired все active гранты с expires_at <= now
	ExpireBefore(ctx context.Context, now time.Time) (int64, error)
}

type ConversationRepository interface {
	// CreateOrGet вставляет переписку или возвращает уже существующую для пары
	CreateOrGet(ctx context.Context, conversation *model.Conversation) (*model.Conversation, bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Conversation, error)
	// LinkEngagement проставляет engagement_id, если он ещё пуст
	LinkEngagement(ctx context.Context, id, engagementID uuid.UUID) (*model.Conversation, error)
	ListByParticipant(ctx context.Context, userID string, role model.Role) ([]*model.Conversation, error)
	SumUnread(ctx context.Context, userID string, role model.Role) (int, error)
	// AppendMessage назначает seq и created_at, обновляет превью и атомарно увеличивает счётчик получателя
	AppendMessage(ctx context.Context, message *model.Message) (*model.Message, error)
	// MarkRead помечает прочитанными сообщения, входящие в счётчик reader, и обнуляет его
	MarkRead(ctx context.Context, conversationID uuid.UUID, reader model.Role, at time.Time) (int64, error)
	// ListMessages возвращает до limit последних сообщений с seq < beforeSeq (0 — без ограничения), от старых к новым
	ListMessages(ctx context.Context, conversationID uuid.UUID, beforeSeq int64, limit int) ([]*model.Message, error)
	MessagesAfter(ctx context.Context, conversationID uuid.UUID, afterSeq int64, limit int) ([]*model.Message, error)
}

// EventPublisher принимает доменные события. Ошибки публикации не откатывают операцию.
type EventPublisher interface {
	Publish(ctx context.Context, event model.Event)
}

// Clock отдаёт текущее время; в тестах подменяется
type Clock func() time.Time

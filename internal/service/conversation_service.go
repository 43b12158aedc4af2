package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/engagement_service/internal/errdefs"
	"github.com/Freeeeeet/engagement_service/internal/model"
	"github.com/Freeeeeet/engagement_service/internal/validation"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// ConversationService переписки студент-учитель и сообщения в них
type ConversationService struct {
	repo      ConversationRepository
	events    EventPublisher
	validator *validation.Validator
	now       Clock
	logger    *zap.Logger
}

func NewConversationService(
	repo ConversationRepository,
	events EventPublisher,
	validator *validation.Validator,
	now Clock,
	logger *zap.Logger,
) *ConversationService {
	if now == nil {
		now = time.Now
	}
	return &ConversationService{
		repo:      repo,
		events:    events,
		validator: validator,
		now:       now,
		logger:    logger,
	}
}

// EnsureConversation возвращает переписку пары, создавая её при первом обращении.
// created == true только у вызова, который создал запись.
func (s *ConversationService) EnsureConversation(ctx context.Context, in model.EnsureConversationInput) (conversation *model.Conversation, created bool, err error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, false, err
	}

	conversation, created, err = s.repo.CreateOrGet(ctx, &model.Conversation{
		ID:           uuid.New(),
		StudentID:    in.StudentID,
		StudentName:  in.StudentName,
		TeacherID:    in.TeacherID,
		TeacherName:  in.TeacherName,
		EngagementID: in.EngagementID,
	})
	if err != nil {
		return nil, false, fmt.Errorf("create conversation: %w", err)
	}

	if in.EngagementID != nil && conversation.EngagementID == nil {
		conversation, err = s.repo.LinkEngagement(ctx, conversation.ID, *in.EngagementID)
		if err != nil {
			return nil, false, fmt.Errorf("link engagement: %w", err)
		}
	}

	if created {
		s.logger.Info("Conversation created",
			zap.String("conversation_id", conversation.ID.String()),
			zap.String("student_id", in.StudentID),
			zap.String("teacher_id", in.TeacherID),
		)
	}

	return conversation, created, nil
}

// GetConversation получает переписку по ID
func (s *ConversationService) GetConversation(ctx context.Context, id uuid.UUID) (*model.Conversation, error) {
	conversation, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return conversation, nil
}

// Authorize получает переписку и проверяет, что actor её участник или администратор
func (s *ConversationService) Authorize(ctx context.Context, id uuid.UUID, actor model.Actor) (*model.Conversation, error) {
	conversation, err := s.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkSender(conversation, actor.UserID, actor.Role); err != nil {
		return nil, err
	}
	return conversation, nil
}

// ListConversations получает переписки пользователя, свежие первыми
func (s *ConversationService) ListConversations(ctx context.Context, userID string, role model.Role) ([]*model.Conversation, error) {
	conversations, err := s.repo.ListByParticipant(ctx, userID, role)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return conversations, nil
}

// Send добавляет сообщение в переписку и публикует MessageSent
func (s *ConversationService) Send(ctx context.Context, in model.SendMessageInput) (*model.Message, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, errdefs.Invalid("message content must not be empty")
	}

	conversation, err := s.GetConversation(ctx, in.ConversationID)
	if err != nil {
		return nil, err
	}
	if err := checkSender(conversation, in.SenderID, in.SenderRole); err != nil {
		return nil, err
	}

	message, err := s.repo.AppendMessage(ctx, &model.Message{
		ID:             uuid.New(),
		ConversationID: conversation.ID,
		SenderID:       in.SenderID,
		SenderName:     in.SenderName,
		SenderRole:     in.SenderRole,
		Content:        in.Content,
	})
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	s.logger.Debug("Message sent",
		zap.String("conversation_id", conversation.ID.String()),
		zap.Int64("seq", message.Seq),
		zap.String("sender_id", message.SenderID),
	)

	if s.events != nil {
		event := model.NewEvent(model.EventMessageSent, message.CreatedAt)
		event.Message = message
		s.events.Publish(ctx, event)
	}

	return message, nil
}

// ListMessages получает страницу истории: последние limit сообщений до BeforeSeq, от старых к новым
func (s *ConversationService) ListMessages(ctx context.Context, in model.ListMessagesInput) (*model.MessagePage, error) {
	if in.BeforeSeq < 0 {
		return nil, errdefs.Invalid("before must not be negative")
	}
	limit := in.Limit
	switch {
	case limit <= 0:
		limit = DefaultPageSize
	case limit > MaxPageSize:
		limit = MaxPageSize
	}

	messages, err := s.repo.ListMessages(ctx, in.ConversationID, in.BeforeSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	page := &model.MessagePage{Messages: messages}
	if len(messages) == limit && messages[0].Seq > 1 {
		next := messages[0].Seq
		page.NextBefore = &next
	}
	return page, nil
}

// MessagesAfter получает сообщения с seq > afterSeq по возрастанию
func (s *ConversationService) MessagesAfter(ctx context.Context, conversationID uuid.UUID, afterSeq int64, limit int) ([]*model.Message, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	messages, err := s.repo.MessagesAfter(ctx, conversationID, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("messages after %d: %w", afterSeq, err)
	}
	return messages, nil
}

// MarkRead помечает прочитанными сообщения, адресованные reader, и обнуляет его счётчик.
// Для администратора ничего не делает.
func (s *ConversationService) MarkRead(ctx context.Context, conversationID uuid.UUID, readerID string, readerRole model.Role) (int64, error) {
	if readerRole == model.RoleSuperAdmin {
		return 0, nil
	}
	if !readerRole.Valid() {
		return 0, errdefs.Invalid("unknown role %q", readerRole)
	}

	conversation, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	if err := checkSender(conversation, readerID, readerRole); err != nil {
		return 0, err
	}

	marked, err := s.repo.MarkRead(ctx, conversationID, readerRole, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return marked, nil
}

// UnreadCountFor суммирует непрочитанные пользователя по всем перепискам
func (s *ConversationService) UnreadCountFor(ctx context.Context, userID string, role model.Role) (int, error) {
	if role == model.RoleSuperAdmin {
		return 0, nil
	}
	total, err := s.repo.SumUnread(ctx, userID, role)
	if err != nil {
		return 0, fmt.Errorf("sum unread: %w", err)
	}
	return total, nil
}

// checkSender проверяет, что пользователь выступает в переписке в заявленной роли
func checkSender(c *model.Conversation, userID string, role model.Role) error {
	switch role {
	case model.RoleSuperAdmin:
		return nil
	case model.RoleStudent:
		if c.StudentID == userID {
			return nil
		}
	case model.RoleTeacher:
		if c.TeacherID == userID {
			return nil
		}
	}
	return errdefs.Denied("user %s is not a participant of this conversation", userID)
}

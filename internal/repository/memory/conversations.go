package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Freeeeeet/engagement_service/internal/errdefs"
	"github.com/Freeeeeet/engagement_service/internal/model"
	"github.com/google/uuid"
)

type ConversationRepository struct {
	mu            sync.RWMutex
	conversations map[uuid.UUID]*model.Conversation
	byPair        map[string]uuid.UUID
	// messages хранятся по возрастанию seq
	messages map[uuid.UUID][]*model.Message
}

func NewConversationRepository() *ConversationRepository {
	return &ConversationRepository{
		conversations: make(map[uuid.UUID]*model.Conversation),
		byPair:        make(map[string]uuid.UUID),
		messages:      make(map[uuid.UUID][]*model.Message),
	}
}

func copyConversation(c *model.Conversation) *model.Conversation {
	cp := *c
	return &cp
}

func copyMessage(m *model.Message) *model.Message {
	cp := *m
	return &cp
}

// CreateOrGet создаёт переписку или возвращает существующую для пары
func (r *ConversationRepository) CreateOrGet(_ context.Context, conversation *model.Conversation) (*model.Conversation, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := pairKey(conversation.StudentID, conversation.TeacherID)
	if id, ok := r.byPair[key]; ok {
		return copyConversation(r.conversations[id]), false, nil
	}

	created := copyConversation(conversation)
	if created.ID == uuid.Nil {
		created.ID = uuid.New()
	}
	now := time.Now().UTC()
	created.CreatedAt = now
	created.UpdatedAt = now

	r.conversations[created.ID] = created
	r.byPair[key] = created.ID
	return copyConversation(created), true, nil
}

// GetByID получает переписку по ID
func (r *ConversationRepository) GetByID(_ context.Context, id uuid.UUID) (*model.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conversation, ok := r.conversations[id]
	if !ok {
		return nil, errdefs.NotFound("conversation")
	}
	return copyConversation(conversation), nil
}

// LinkEngagement связывает переписку с engagement
func (r *ConversationRepository) LinkEngagement(_ context.Context, id, engagementID uuid.UUID) (*model.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conversation, ok := r.conversations[id]
	if !ok {
		return nil, errdefs.NotFound("conversation")
	}
	if conversation.EngagementID == nil {
		conversation.EngagementID = &engagementID
		conversation.UpdatedAt = time.Now().UTC()
	}
	return copyConversation(conversation), nil
}

// ListByParticipant получает переписки пользователя, свежие первыми
func (r *ConversationRepository) ListByParticipant(_ context.Context, userID string, role model.Role) ([]*model.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.Conversation, 0)
	for _, conversation := range r.conversations {
		if participates(conversation, userID, role) {
			result = append(result, copyConversation(conversation))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return result, nil
}

// SumUnread суммирует непрочитанные по всем перепискам пользователя
func (r *ConversationRepository) SumUnread(_ context.Context, userID string, role model.Role) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, conversation := range r.conversations {
		if participates(conversation, userID, role) {
			total += conversation.UnreadFor(role)
		}
	}
	return total, nil
}

func participates(c *model.Conversation, userID string, role model.Role) bool {
	switch role {
	case model.RoleStudent:
		return c.StudentID == userID
	case model.RoleTeacher:
		return c.TeacherID == userID
	}
	return false
}

// AppendMessage добавляет сообщение в конец переписки
func (r *ConversationRepository) AppendMessage(_ context.Context, message *model.Message) (*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conversation, ok := r.conversations[message.ConversationID]
	if !ok {
		return nil, errdefs.NotFound("conversation")
	}

	createdAt := time.Now().UTC()
	if conversation.LastMessageAt != nil && !createdAt.After(*conversation.LastMessageAt) {
		createdAt = conversation.LastMessageAt.Add(time.Microsecond)
	}

	stored := copyMessage(message)
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	conversation.MessageSeq++
	stored.Seq = conversation.MessageSeq
	stored.CreatedAt = createdAt
	stored.Read = false
	stored.ReadAt = nil

	conversation.LastMessage = model.Preview(stored.Content)
	conversation.LastMessageAt = &createdAt
	conversation.UpdatedAt = createdAt
	if model.RecipientRole(stored.SenderRole) == model.RoleTeacher {
		conversation.UnreadCountTeacher++
	} else {
		conversation.UnreadCountStudent++
	}

	r.messages[conversation.ID] = append(r.messages[conversation.ID], stored)
	return copyMessage(stored), nil
}

// MarkRead помечает прочитанными сообщения для роли reader
func (r *ConversationRepository) MarkRead(_ context.Context, conversationID uuid.UUID, reader model.Role, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conversation, ok := r.conversations[conversationID]
	if !ok {
		return 0, errdefs.NotFound("conversation")
	}

	var marked int64
	for _, message := range r.messages[conversationID] {
		if message.CountsAsUnreadFor(reader) {
			readAt := at
			message.Read = true
			message.ReadAt = &readAt
			marked++
		}
	}

	switch reader {
	case model.RoleStudent:
		conversation.UnreadCountStudent = 0
	case model.RoleTeacher:
		conversation.UnreadCountTeacher = 0
	}
	return marked, nil
}

// ListMessages получает страницу истории
func (r *ConversationRepository) ListMessages(_ context.Context, conversationID uuid.UUID, beforeSeq int64, limit int) ([]*model.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.conversations[conversationID]; !ok {
		return nil, errdefs.NotFound("conversation")
	}

	all := r.messages[conversationID]
	end := len(all)
	if beforeSeq > 0 {
		end = sort.Search(len(all), func(i int) bool { return all[i].Seq >= beforeSeq })
	}
	start := end - limit
	if start < 0 {
		start = 0
	}

	page := make([]*model.Message, 0, end-start)
	for _, message := range all[start:end] {
		page = append(page, copyMessage(message))
	}
	return page, nil
}

// MessagesAfter получает сообщения с seq > afterSeq по возрастанию
func (r *ConversationRepository) MessagesAfter(_ context.Context, conversationID uuid.UUID, afterSeq int64, limit int) ([]*model.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.conversations[conversationID]; !ok {
		return nil, errdefs.NotFound("conversation")
	}

	all := r.messages[conversationID]
	start := sort.Search(len(all), func(i int) bool { return all[i].Seq > afterSeq })
	end := len(all)
	if limit > 0 && end-start > limit {
		end = start + limit
	}

	result := make([]*model.Message, 0, end-start)
	for _, message := range all[start:end] {
		result = append(result, copyMessage(message))
	}
	return result, nil
}

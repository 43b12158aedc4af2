package model

import (
	"time"

	"github.com/google/uuid"
)

// Message сообщение переписки; меняются только Read/ReadAt, и только false -> true
type Message struct {
	ID             uuid.UUID  `json:"id"`
	ConversationID uuid.UUID  `json:"conversation_id"`
	Seq            int64      `json:"seq"`
	SenderID       string     `json:"sender_id"`
	SenderName     string     `json:"sender_name"`
	SenderRole     Role       `json:"sender_role"`
	Content        string     `json:"content"`
	Read           bool       `json:"read"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// RecipientRole возвращает роль, чей счётчик непрочитанных увеличивает сообщение.
// Сообщения администратора адресованы студенту.
func RecipientRole(sender Role) Role {
	if sender == RoleStudent {
		return RoleTeacher
	}
	return RoleStudent
}

// CountsAsUnreadFor входит ли сообщение в счётчик непрочитанных reader
func (m *Message) CountsAsUnreadFor(reader Role) bool {
	return !m.Read && RecipientRole(m.SenderRole) == reader
}

// MessagePage страница истории, от старых к новым
type MessagePage struct {
	Messages []*Message `json:"messages"`
	// NextBefore курсор более старой страницы; nil, если история закончилась
	NextBefore *int64 `json:"next_before,omitempty"`
}

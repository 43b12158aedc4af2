package model

import (
	"time"

	"github.com/google/uuid"
)

// Conversation единственная переписка пары студент-учитель
type Conversation struct {
	ID                 uuid.UUID  `json:"id"`
	StudentID          string     `json:"student_id"`
	StudentName        string     `json:"student_name"`
	TeacherID          string     `json:"teacher_id"`
	TeacherName        string     `json:"teacher_name"`
	EngagementID       *uuid.UUID `json:"engagement_id,omitempty"`
	LastMessage        string     `json:"last_message"`
	LastMessageAt      *time.Time `json:"last_message_at,omitempty"`
	UnreadCountStudent int        `json:"unread_count_student"`
	UnreadCountTeacher int        `json:"unread_count_teacher"`
	MessageSeq         int64      `json:"-"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// HasParticipant проверяет, участвует ли пользователь в переписке
func (c *Conversation) HasParticipant(userID string) bool {
	return c.StudentID == userID || c.TeacherID == userID
}

// UnreadFor возвращает счётчик непрочитанных для роли
func (c *Conversation) UnreadFor(role Role) int {
	switch role {
	case RoleStudent:
		return c.UnreadCountStudent
	case RoleTeacher:
		return c.UnreadCountTeacher
	}
	return 0
}

// PreviewLimit максимальная длина превью LastMessage в рунах
const PreviewLimit = 120

// Preview обрезает текст сообщения для LastMessage
func Preview(content string) string {
	runes := []rune(content)
	if len(runes) <= PreviewLimit {
		return content
	}
	return string(runes[:PreviewLimit-1]) + "…"
}

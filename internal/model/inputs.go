package model

import (
	"time"

	"github.com/google/uuid"
)

// SubmitRequestInput данные новой заявки от студента
type SubmitRequestInput struct {
	StudentID      string         `json:"student_id" validate:"required"`
	StudentProfile StudentProfile `json:"student_profile"`
	TeacherID      string         `json:"teacher_id" validate:"required,nefield=StudentID"`
	TeacherName    string         `json:"teacher_name"`
	Plan           Plan           `json:"plan" validate:"required,plan"`
	Subject        string         `json:"subject" validate:"required,notblank"`
	Objectives     string         `json:"objectives" validate:"max=4000"`
	Availability   []string       `json:"availability" validate:"dive,notblank"`
}

// EnsureConversationInput участники переписки
type EnsureConversationInput struct {
	StudentID    string     `validate:"required"`
	StudentName  string
	TeacherID    string     `validate:"required,nefield=StudentID"`
	TeacherName  string
	EngagementID *uuid.UUID
}

// SendMessageInput сообщение для отправки в переписку
type SendMessageInput struct {
	ConversationID uuid.UUID
	SenderID       string `validate:"required"`
	SenderName     string
	SenderRole     Role   `validate:"required,role"`
	Content        string
}

// ListMessagesInput страница истории; при BeforeSeq = 0 самая новая страница
type ListMessagesInput struct {
	ConversationID uuid.UUID
	Limit          int
	BeforeSeq      int64
}

// GrantInput параметры выдаваемого доступа
type GrantInput struct {
	StudentID       string `validate:"required"`
	TeacherID       string `validate:"required"`
	Plan            Plan
	Subject         string
	SourceRequestID *uuid.UUID
}

// ApprovalResult итог одобрения заявки
type ApprovalResult struct {
	RequestID      uuid.UUID `json:"request_id"`
	EngagementID   uuid.UUID `json:"engagement_id"`
	GrantID        uuid.UUID `json:"grant_id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	// AlreadyProcessed выставлен, если заявку одобрили до этого вызова
	AlreadyProcessed bool `json:"already_processed"`
}

// RequestDecision решение администратора или учителя по pending заявке
type RequestDecision struct {
	Status          RequestStatus
	ProcessedBy     string
	ProcessedAt     time.Time
	RejectionReason string
	AdminNotes      string
}

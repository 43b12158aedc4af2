package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType тип доменного события
type EventType string

const (
	EventRequestSubmitted EventType = "RequestSubmitted"
	EventRequestApproved  EventType = "RequestApproved"
	EventRequestRejected  EventType = "RequestRejected"
	EventRequestCancelled EventType = "RequestCancelled"
	EventMessageSent      EventType = "MessageSent"
)

// Event доменное событие для внешних получателей; заполненные поля зависят от Type
type Event struct {
	ID         uuid.UUID          `json:"id"`
	Type       EventType          `json:"type"`
	OccurredAt time.Time          `json:"occurred_at"`
	Request    *EngagementRequest `json:"request,omitempty"`
	Engagement *Engagement        `json:"engagement,omitempty"`
	Message    *Message           `json:"message,omitempty"`
}

// Key возвращает ключ партиционирования: события одной заявки или переписки идут по порядку
func (e Event) Key() string {
	switch {
	case e.Message != nil:
		return e.Message.ConversationID.String()
	case e.Request != nil:
		return e.Request.ID.String()
	}
	return e.ID.String()
}

// NewEvent создаёт событие с новым ID
func NewEvent(t EventType, at time.Time) Event {
	return Event{ID: uuid.New(), Type: t, OccurredAt: at}
}

// Package memory содержит хранилища в памяти процесса: для разработки без Postgres и для тестов.
package memory

import "github.com/Freeeeeet/engagement_service/internal/service"

// Store объединяет все хранилища в памяти
type Store struct {
	Requests      *RequestRepository
	Engagements   *EngagementRepository
	Access        *AccessRepository
	Conversations *ConversationRepository
}

// New создаёт пустое хранилище
func New() *Store {
	return &Store{
		Requests:      NewRequestRepository(),
		Engagements:   NewEngagementRepository(),
		Access:        NewAccessRepository(),
		Conversations: NewConversationRepository(),
	}
}

func pairKey(studentID, teacherID string) string {
	return studentID + "\x00" + teacherID
}

var (
	_ service.RequestRepository      = (*RequestRepository)(nil)
	_ service.EngagementRepository   = (*EngagementRepository)(nil)
	_ service.AccessRepository       = (*AccessRepository)(nil)
	_ service.ConversationRepository = (*ConversationRepository)(nil)
)

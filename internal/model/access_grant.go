package model

import (
	"time"

	"github.com/google/uuid"
)

// GrantStatus статус доступа студента к материалам учителя
type GrantStatus string

// Grant status constants
const (
	GrantStatusActive  GrantStatus = "active"
	GrantStatusExpired GrantStatus = "expired"
	GrantStatusRevoked GrantStatus = "revoked"
)

// AccessGrant доступ студента к закрытым материалам учителя
type AccessGrant struct {
	ID              uuid.UUID   `json:"id"`
	StudentID       string      `json:"student_id"`
	TeacherID       string      `json:"teacher_id"`
	Plan            Plan        `json:"plan"`
	Subject         string      `json:"subject"`
	GrantedAt       time.Time   `json:"granted_at"`
	ExpiresAt       *time.Time  `json:"expires_at,omitempty"`
	Status          GrantStatus `json:"status"`
	SourceRequestID *uuid.UUID  `json:"source_request_id,omitempty"`
	RevokedAt       *time.Time  `json:"revoked_at,omitempty"`
}

// IsValidAt проверяет, что доступ активен и не истёк на момент at
func (g *AccessGrant) IsValidAt(at time.Time) bool {
	if g.Status != GrantStatusActive {
		return false
	}
	return g.ExpiresAt == nil || at.Before(*g.ExpiresAt)
}

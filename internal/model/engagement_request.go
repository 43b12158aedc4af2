package model

import (
	"time"

	"github.com/google/uuid"
)

// RequestStatus статус заявки
type RequestStatus string

// Request status constants
const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusApproved  RequestStatus = "approved"
	RequestStatusRejected  RequestStatus = "rejected"
	RequestStatusCancelled RequestStatus = "cancelled"
)

// StudentProfile данные студента на момент подачи заявки
type StudentProfile struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Level  string `json:"level"`
	School string `json:"school"`
}

// EngagementRequest represents a student's request for tutoring with a teacher
type EngagementRequest struct {
	ID              uuid.UUID      `json:"id"`
	StudentID       string         `json:"student_id"`
	StudentProfile  StudentProfile `json:"student_profile"`
	TeacherID       string         `json:"teacher_id"`
	TeacherName     string         `json:"teacher_name"`
	Plan            Plan           `json:"plan"`
	Subject         string         `json:"subject"`
	Objectives      string         `json:"objectives"`
	Availability    []string       `json:"availability"`
	Status          RequestStatus  `json:"status"`
	AdminNotes      string         `json:"admin_notes"`
	RejectionReason string         `json:"rejection_reason"`
	ProcessedBy     *string        `json:"processed_by,omitempty"`
	ProcessedAt     *time.Time     `json:"processed_at,omitempty"`
	EngagementID    *uuid.UUID     `json:"engagement_id,omitempty"`
	CancelledBy     *string        `json:"cancelled_by,omitempty"`
	CancelledAt     *time.Time     `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// IsPending checks if request is pending
func (r *EngagementRequest) IsPending() bool {
	return r.Status == RequestStatusPending
}

// IsApproved checks if request is approved
func (r *EngagementRequest) IsApproved() bool {
	return r.Status == RequestStatusApproved
}

// IsRejected checks if request is rejected
func (r *EngagementRequest) IsRejected() bool {
	return r.Status == RequestStatusRejected
}

// IsCancelled checks if request is cancelled
func (r *EngagementRequest) IsCancelled() bool {
	return r.Status == RequestStatusCancelled
}

// Cancellable можно ли ещё отменить заявку
func (r *EngagementRequest) Cancellable() bool {
	return r.Status == RequestStatusPending || r.Status == RequestStatusApproved
}

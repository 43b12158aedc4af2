package model

import (
	"time"

	"github.com/google/uuid"
)

type EngagementStatus string

const (
	EngagementStatusActive    EngagementStatus = "active"
	EngagementStatusSuspended EngagementStatus = "suspended"
	EngagementStatusCancelled EngagementStatus = "cancelled"
)

// Engagement оплачиваемое помесячно занятие пары студент-учитель
type Engagement struct {
	ID               uuid.UUID        `json:"id"`
	RequestID        uuid.UUID        `json:"request_id"`
	StudentID        string           `json:"student_id"`
	TeacherID        string           `json:"teacher_id"`
	Plan             Plan             `json:"plan"`
	Status           EngagementStatus `json:"status"`
	StartDate        time.Time        `json:"start_date"`
	NextBillingDate  time.Time        `json:"next_billing_date"`
	MonthlyAmount    int64            `json:"monthly_amount"`
	SessionsPerMonth int              `json:"sessions_per_month"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// IsActive checks if engagement is active
func (e *Engagement) IsActive() bool {
	return e.Status == EngagementStatusActive
}

// BillingDue наступила ли сохранённая дата следующего списания
func (e *Engagement) BillingDue(now time.Time) bool {
	return !e.NextBillingDate.After(now)
}

// FollowingBillingDate возвращает дату следующего списания после текущей NextBillingDate.
// День месяца берётся из StartDate и обрезается по длине месяца (31 января -> 28/29 февраля -> 31 марта).
func (e *Engagement) FollowingBillingDate() time.Time {
	return AddBillingMonth(e.StartDate.Day(), e.NextBillingDate)
}

// AddBillingMonth сдвигает prev ровно на один календарный месяц с якорным днём anchorDay
func AddBillingMonth(anchorDay int, prev time.Time) time.Time {
	year, month := prev.Year(), prev.Month()+1
	if month > time.December {
		month = time.January
		year++
	}

	day := anchorDay
	if last := daysIn(year, month, prev.Location()); day > last {
		day = last
	}

	return time.Date(year, month, day,
		prev.Hour(), prev.Minute(), prev.Second(), prev.Nanosecond(), prev.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

package repository

import (
	"strings"
	"testing"
	"time"

	"github.com/Freeeeeet/engagement_service/internal/model"
	"github.com/Freeeeeet/engagement_service/internal/repository/base"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

func newMockBase(t *testing.T) (pgxmock.PgxPoolIface, *base.Repository) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)
	return mockPool, base.NewRepository(mockPool, time.Second)
}

func columns(list string) []string {
	fields := strings.Split(list, ",")
	for i, f := range fields {
		fields[i] = strings.TrimSpace(f)
	}
	return fields
}

func requestRows(req *model.EngagementRequest) *pgxmock.Rows {
	return pgxmock.NewRows(columns(requestColumns)).AddRow(
		req.ID,
		req.StudentID,
		req.StudentProfile.Name,
		req.StudentProfile.Email,
		req.StudentProfile.Level,
		req.StudentProfile.School,
		req.TeacherID,
		req.TeacherName,
		req.Plan,
		req.Subject,
		req.Objectives,
		req.Availability,
		req.Status,
		req.AdminNotes,
		req.RejectionReason,
		req.ProcessedBy,
		req.ProcessedAt,
		req.EngagementID,
		req.CancelledBy,
		req.CancelledAt,
		req.CreatedAt,
		req.UpdatedAt,
	)
}

func engagementRows(e *model.Engagement) *pgxmock.Rows {
	return pgxmock.NewRows(columns(engagementColumns)).AddRow(
		e.ID,
		e.RequestID,
		e.StudentID,
		e.TeacherID,
		e.Plan,
		e.Status,
		e.StartDate,
		e.NextBillingDate,
		e.MonthlyAmount,
		e.SessionsPerMonth,
		e.CreatedAt,
		e.UpdatedAt,
	)
}

func conversationRows(c *model.Conversation) *pgxmock.Rows {
	return pgxmock.NewRows(columns(conversationColumns)).AddRow(
		c.ID,
		c.StudentID,
		c.StudentName,
		c.TeacherID,
		c.TeacherName,
		c.EngagementID,
		c.LastMessage,
		c.LastMessageAt,
		c.UnreadCountStudent,
		c.UnreadCountTeacher,
		c.MessageSeq,
		c.CreatedAt,
		c.UpdatedAt,
	)
}

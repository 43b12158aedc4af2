package repository

import (
	"context"
	"testing"

	"github.com/Freeeeeet/engagement_service/internal/errdefs"
	"github.com/Freeeeeet/engagement_service/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingRequest() *model.EngagementRequest {
	return &model.EngagementRequest{
		ID:             uuid.New(),
		StudentID:      "student-1",
		StudentProfile: model.StudentProfile{Name: "Alice", Email: "alice@example.com"},
		TeacherID:      "teacher-1",
		TeacherName:    "Mr. Brown",
		Plan:           model.PlanIntensive,
		Subject:        "Mathématiques",
		Availability:   []string{"Mon 18:00"},
		Status:         model.RequestStatusPending,
		CreatedAt:      testNow,
		UpdatedAt:      testNow,
	}
}

func TestRequestRepo_Create_PendingPairTaken(t *testing.T) {
	mockPool, b := newMockBase(t)
	repo := NewRequestRepository(b)

	args := make([]any, 14)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	mockPool.ExpectQuery("INSERT INTO engagement_requests").
		WithArgs(args...).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "engagement_requests_pending_pair_idx"})

	err := repo.Create(context.Background(), pendingRequest())
	assert.ErrorIs(t, err, errdefs.ErrAlreadyExists)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestRequestRepo_MarkProcessed(t *testing.T) {
	ctx := context.Background()

	t.Run("Approved", func(t *testing.T) {
		mockPool, b := newMockBase(t)
		repo := NewRequestRepository(b)

		req := pendingRequest()
		by := "admin-1"
		approved := *req
		approved.Status = model.RequestStatusApproved
		approved.ProcessedBy = &by
		approved.ProcessedAt = &testNow

		mockPool.ExpectQuery("UPDATE engagement_requests SET status = \\$2, processed_by = \\$3, processed_at = \\$4").
			WithArgs(req.ID, model.RequestStatusApproved, by, testNow, "", "").
			WillReturnRows(requestRows(&approved))

		got, err := repo.MarkProcessed(ctx, req.ID, model.RequestDecision{
			Status:      model.RequestStatusApproved,
			ProcessedBy: by,
			ProcessedAt: testNow,
		})
		require.NoError(t, err)
		assert.Equal(t, model.RequestStatusApproved, got.Status)
		require.NotNil(t, got.ProcessedBy)
		assert.Equal(t, by, *got.ProcessedBy)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("LostRace", func(t *testing.T) {
		mockPool, b := newMockBase(t)
		repo := NewRequestRepository(b)
		id := uuid.New()

		// условие status = 'pending' не выполнилось, строка есть
		mockPool.ExpectQuery("UPDATE engagement_requests").
			WithArgs(id, model.RequestStatusRejected, "admin-2", testNow, "Niveau incompatible", "").
			WillReturnError(pgx.ErrNoRows)
		mockPool.ExpectQuery("SELECT EXISTS").
			WithArgs(id).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

		_, err := repo.MarkProcessed(ctx, id, model.RequestDecision{
			Status:          model.RequestStatusRejected,
			ProcessedBy:     "admin-2",
			ProcessedAt:     testNow,
			RejectionReason: "Niveau incompatible",
		})
		assert.ErrorIs(t, err, errdefs.ErrAlreadyProcessed)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		mockPool, b := newMockBase(t)
		repo := NewRequestRepository(b)
		id := uuid.New()

		mockPool.ExpectQuery("UPDATE engagement_requests").
			WithArgs(id, model.RequestStatusApproved, "admin-1", testNow, "", "").
			WillReturnError(pgx.ErrNoRows)
		mockPool.ExpectQuery("SELECT EXISTS").
			WithArgs(id).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

		_, err := repo.MarkProcessed(ctx, id, model.RequestDecision{
			Status:      model.RequestStatusApproved,
			ProcessedBy: "admin-1",
			ProcessedAt: testNow,
		})
		assert.ErrorIs(t, err, errdefs.ErrNotFound)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("Error_Unavailable", func(t *testing.T) {
		mockPool, b := newMockBase(t)
		repo := NewRequestRepository(b)
		id := uuid.New()

		mockPool.ExpectQuery("UPDATE engagement_requests").
			WithArgs(id, model.RequestStatusApproved, "admin-1", testNow, "", "").
			WillReturnError(&pgconn.PgError{Code: "40001"})

		_, err := repo.MarkProcessed(ctx, id, model.RequestDecision{
			Status:      model.RequestStatusApproved,
			ProcessedBy: "admin-1",
			ProcessedAt: testNow,
		})
		assert.ErrorIs(t, err, errdefs.ErrUnavailable)
	})
}

func TestRequestRepo_MarkCancelled_ClearsDecision(t *testing.T) {
	mockPool, b := newMockBase(t)
	repo := NewRequestRepository(b)

	req := pendingRequest()
	by := "student-1"
	cancelled := *req
	cancelled.Status = model.RequestStatusCancelled
	cancelled.CancelledBy = &by
	cancelled.CancelledAt = &testNow

	mockPool.ExpectQuery("SET status = 'cancelled', processed_by = NULL, processed_at = NULL, cancelled_by = \\$2").
		WithArgs(req.ID, by, testNow).
		WillReturnRows(requestRows(&cancelled))

	got, err := repo.MarkCancelled(context.Background(), req.ID, by, testNow)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusCancelled, got.Status)
	assert.Nil(t, got.ProcessedBy)
	assert.Nil(t, got.ProcessedAt)
	require.NotNil(t, got.CancelledBy)
	assert.Equal(t, by, *got.CancelledBy)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/engagement_service/internal/errdefs"
	"github.com/Freeeeeet/engagement_service/internal/model"
	"github.com/Freeeeeet/engagement_service/internal/repository/base"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const requestColumns = `
	id, student_id, student_name, student_email, student_level, student_school,
	teacher_id, teacher_name, plan, subject, objectives, availability, status,
	admin_notes, rejection_reason, processed_by, processed_at, engagement_id,
	cancelled_by, cancelled_at, created_at, updated_at`

type RequestRepository struct {
	*base.Repository
}

func NewRequestRepository(b *base.Repository) *RequestRepository {
	return &RequestRepository{Repository: b}
}

func scanRequest(row pgx.Row) (*model.EngagementRequest, error) {
	var req model.EngagementRequest
	err := row.Scan(
		&req.ID,
		&req.StudentID,
		&req.StudentProfile.Name,
		&req.StudentProfile.Email,
		&req.StudentProfile.Level,
		&req.StudentProfile.School,
		&req.TeacherID,
		&req.TeacherName,
		&req.Plan,
		&req.Subject,
		&req.Objectives,
		&req.Availability,
		&req.Status,
		&req.AdminNotes,
		&req.RejectionReason,
		&req.ProcessedBy,
		&req.ProcessedAt,
		&req.EngagementID,
		&req.CancelledBy,
		&req.CancelledAt,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// Create создает заявку
func (r *RequestRepository) Create(ctx context.Context, req *model.EngagementRequest) error {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	if req.Availability == nil {
		req.Availability = []string{}
	}

	query := `
		INSERT INTO engagement_requests (
			id, student_id, student_name, student_email, student_level, student_school,
			teacher_id, teacher_name, plan, subject, objectives, availability, status, admin_notes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at
	`

	err := r.Pool().QueryRow(
		ctx, query,
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
	).Scan(&req.CreatedAt, &req.UpdatedAt)
	if base.IsUniqueViolation(err) {
		// у пары уже есть pending заявка
		return errdefs.ErrAlreadyExists
	}

	return base.Wrap("create engagement request", err)
}

// GetByID получает заявку по ID
func (r *RequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.EngagementRequest, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	query := `SELECT ` + requestColumns + ` FROM engagement_requests WHERE id = $1`

	req, err := scanRequest(r.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, errdefs.NotFound("engagement request")
		}
		return nil, base.Wrap("get engagement request", err)
	}

	return req, nil
}

// HasPending проверяет, есть ли у пары pending заявка
func (r *RequestRepository) HasPending(ctx context.Context, studentID, teacherID string) (bool, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	query := `
		SELECT EXISTS(
			SELECT 1 FROM engagement_requests
			WHERE student_id = $1 AND teacher_id = $2 AND status = 'pending'
		)
	`

	var exists bool
	if err := r.Pool().QueryRow(ctx, query, studentID, teacherID).Scan(&exists); err != nil {
		return false, base.Wrap("check pending request", err)
	}

	return exists, nil
}

// ListByStudent получает заявки студента
func (r *RequestRepository) ListByStudent(ctx context.Context, studentID string) ([]*model.EngagementRequest, error) {
	query := `SELECT ` + requestColumns + `
		FROM engagement_requests
		WHERE student_id = $1
		ORDER BY created_at DESC`

	return r.list(ctx, "list student requests", query, studentID)
}

// ListPending получает pending заявки учителя или все
func (r *RequestRepository) ListPending(ctx context.Context, teacherID string) ([]*model.EngagementRequest, error) {
	query := `SELECT ` + requestColumns + `
		FROM engagement_requests
		WHERE status = 'pending' AND ($1 = '' OR teacher_id = $1)
		ORDER BY created_at DESC`

	return r.list(ctx, "list pending requests", query, teacherID)
}

func (r *RequestRepository) list(ctx context.Context, op, query string, args ...any) ([]*model.EngagementRequest, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	rows, err := r.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, base.Wrap(op, err)
	}
	defer rows.Close()

	requests := make([]*model.EngagementRequest, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan engagement request: %w", err)
		}
		requests = append(requests, req)
	}

	if err := rows.Err(); err != nil {
		return nil, base.Wrap(op, err)
	}

	return requests, nil
}

// MarkProcessed фиксирует решение; условие status = 'pending' защищает от двойной обработки
func (r *RequestRepository) MarkProcessed(ctx context.Context, id uuid.UUID, decision model.RequestDecision) (*model.EngagementRequest, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	query := `
		UPDATE engagement_requests
		SET status = $2,
			processed_by = $3,
			processed_at = $4,
			rejection_reason = $5,
			admin_notes = CASE WHEN $6 = '' THEN admin_notes ELSE $6 END,
			updated_at = $4
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + requestColumns

	req, err := scanRequest(r.Pool().QueryRow(
		ctx, query,
		id,
		decision.Status,
		decision.ProcessedBy,
		decision.ProcessedAt,
		decision.RejectionReason,
		decision.AdminNotes,
	))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, r.missOrProcessed(ctx, id)
		}
		return nil, base.Wrap("mark request processed", err)
	}

	return req, nil
}

// MarkCancelled отменяет pending или approved заявку; processed_* снимаются, остаются cancelled_*
func (r *RequestRepository) MarkCancelled(ctx context.Context, id uuid.UUID, by string, at time.Time) (*model.EngagementRequest, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	query := `
		UPDATE engagement_requests
		SET status = 'cancelled',
			processed_by = NULL,
			processed_at = NULL,
			cancelled_by = $2,
			cancelled_at = $3,
			updated_at = $3
		WHERE id = $1 AND status IN ('pending', 'approved')
		RETURNING ` + requestColumns

	req, err := scanRequest(r.Pool().QueryRow(ctx, query, id, by, at))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, r.missOrProcessed(ctx, id)
		}
		return nil, base.Wrap("mark request cancelled", err)
	}

	return req, nil
}

// missOrProcessed различает отсутствующую заявку и проигранную гонку
func (r *RequestRepository) missOrProcessed(ctx context.Context, id uuid.UUID) error {
	var exists bool
	err := r.Pool().QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM engagement_requests WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return base.Wrap("check request exists", err)
	}
	if !exists {
		return errdefs.NotFound("engagement request")
	}
	return errdefs.ErrAlreadyProcessed
}

// SetEngagement связывает заявку с созданным engagement
func (r *RequestRepository) SetEngagement(ctx context.Context, id, engagementID uuid.UUID) error {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	tag, err := r.Pool().Exec(ctx, `
		UPDATE engagement_requests SET engagement_id = $2, updated_at = now() WHERE id = $1
	`, id, engagementID)
	if err != nil {
		return base.Wrap("set request engagement", err)
	}
	if tag.RowsAffected() == 0 {
		return errdefs.NotFound("engagement request")
	}

	return nil
}

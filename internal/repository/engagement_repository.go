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

const engagementColumns = `
	id, request_id, student_id, teacher_id, plan, status, start_date,
	next_billing_date, monthly_amount, sessions_per_month, created_at, updated_at`

type EngagementRepository struct {
	*base.Repository
}

func NewEngagementRepository(b *base.Repository) *EngagementRepository {
	return &EngagementRepository{Repository: b}
}

func scanEngagement(row pgx.Row) (*model.Engagement, error) {
	var e model.Engagement
	err := row.Scan(
		&e.ID,
		&e.RequestID,
		&e.StudentID,
		&e.TeacherID,
		&e.Plan,
		&e.Status,
		&e.StartDate,
		&e.NextBillingDate,
		&e.MonthlyAmount,
		&e.SessionsPerMonth,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Create создаёт engagement; уникальный индекс не даёт завести второй active для пары
func (r *EngagementRepository) Create(ctx context.Context, e *model.Engagement) error {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	query := `
		INSERT INTO engagements (
			id, request_id, student_id, teacher_id, plan, status, start_date,
			next_billing_date, monthly_amount, sessions_per_month
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`

	err := r.Pool().QueryRow(
		ctx, query,
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
	).Scan(&e.CreatedAt, &e.UpdatedAt)

	if err != nil {
		if base.IsUniqueViolation(err) {
			return errdefs.ErrAlreadyExists
		}
		return base.Wrap("create engagement", err)
	}

	return nil
}

// GetByID получает engagement по ID
func (r *EngagementRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Engagement, error) {
	return r.getOne(ctx, "get engagement", `SELECT `+engagementColumns+` FROM engagements WHERE id = $1`, id)
}

// GetByRequestID получает engagement по заявке
func (r *EngagementRepository) GetByRequestID(ctx context.Context, requestID uuid.UUID) (*model.Engagement, error) {
	query := `SELECT ` + engagementColumns + `
		FROM engagements
		WHERE request_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	return r.getOne(ctx, "get engagement by request", query, requestID)
}

// GetActiveByPair получает активный engagement пары
func (r *EngagementRepository) GetActiveByPair(ctx context.Context, studentID, teacherID string) (*model.Engagement, error) {
	query := `SELECT ` + engagementColumns + `
		FROM engagements
		WHERE student_id = $1 AND teacher_id = $2 AND status = 'active'`

	return r.getOne(ctx, "get active engagement", query, studentID, teacherID)
}

func (r *EngagementRepository) getOne(ctx context.Context, op, query string, args ...any) (*model.Engagement, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	e, err := scanEngagement(r.Pool().QueryRow(ctx, query, args...))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, errdefs.NotFound("engagement")
		}
		return nil, base.Wrap(op, err)
	}

	return e, nil
}

// UpdateStatus переводит engagement из from в to
func (r *EngagementRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.EngagementStatus, at time.Time) (*model.Engagement, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	query := `
		UPDATE engagements
		SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
		RETURNING ` + engagementColumns

	e, err := scanEngagement(r.Pool().QueryRow(ctx, query, id, from, to, at))
	if err != nil {
		switch {
		case base.IsUniqueViolation(err):
			return nil, errdefs.ErrAlreadyExists
		case base.IsNotFound(err):
			if _, getErr := r.GetByID(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, errdefs.ErrAlreadyProcessed
		}
		return nil, base.Wrap("update engagement status", err)
	}

	return e, nil
}

// AdvanceBilling сдвигает next_billing_date по принципу compare-and-swap
func (r *EngagementRepository) AdvanceBilling(ctx context.Context, id uuid.UUID, expected, next, at time.Time) (bool, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	tag, err := r.Pool().Exec(ctx, `
		UPDATE engagements
		SET next_billing_date = $3, updated_at = $4
		WHERE id = $1 AND status = 'active' AND next_billing_date = $2
	`, id, expected, next, at)
	if err != nil {
		return false, base.Wrap("advance billing", err)
	}

	return tag.RowsAffected() == 1, nil
}

// ListDue получает активные engagement, по которым наступила дата списания
func (r *EngagementRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*model.Engagement, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	query := `SELECT ` + engagementColumns + `
		FROM engagements
		WHERE status = 'active' AND next_billing_date <= $1
		ORDER BY next_billing_date
		LIMIT $2`

	rows, err := r.Pool().Query(ctx, query, now, limit)
	if err != nil {
		return nil, base.Wrap("list due engagements", err)
	}
	defer rows.Close()

	due := make([]*model.Engagement, 0)
	for rows.Next() {
		e, err := scanEngagement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan engagement: %w", err)
		}
		due = append(due, e)
	}

	if err := rows.Err(); err != nil {
		return nil, base.Wrap("list due engagements", err)
	}

	return due, nil
}

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

const grantColumns = `
	id, student_id, teacher_id, plan, subject, granted_at, expires_at,
	status, source_request_id, revoked_at`

type AccessRepository struct {
	*base.Repository
}

func NewAccessRepository(b *base.Repository) *AccessRepository {
	return &AccessRepository{Repository: b}
}

func scanGrant(row pgx.Row) (*model.AccessGrant, error) {
	var g model.AccessGrant
	err := row.Scan(
		&g.ID,
		&g.StudentID,
		&g.TeacherID,
		&g.Plan,
		&g.Subject,
		&g.GrantedAt,
		&g.ExpiresAt,
		&g.Status,
		&g.SourceRequestID,
		&g.RevokedAt,
	)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// Create предоставляет доступ студенту к учителю
func (r *AccessRepository) Create(ctx context.Context, grant *model.AccessGrant) error {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	if grant.ID == uuid.Nil {
		grant.ID = uuid.New()
	}
	grant.Status = model.GrantStatusActive

	query := `
		INSERT INTO access_grants (id, student_id, teacher_id, plan, subject, expires_at, status, source_request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING granted_at
	`

	err := r.Pool().QueryRow(
		ctx, query,
		grant.ID,
		grant.StudentID,
		grant.TeacherID,
		grant.Plan,
		grant.Subject,
		grant.ExpiresAt,
		grant.Status,
		grant.SourceRequestID,
	).Scan(&grant.GrantedAt)

	if err != nil {
		if base.IsUniqueViolation(err) {
			return errdefs.ErrAlreadyExists
		}
		return base.Wrap("grant access", err)
	}

	return nil
}

// GetByID получает доступ по ID
func (r *AccessRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.AccessGrant, error) {
	return r.getOne(ctx, "get access grant", `SELECT `+grantColumns+` FROM access_grants WHERE id = $1`, id)
}

// GetActiveByPair получает активный доступ студента к учителю
func (r *AccessRepository) GetActiveByPair(ctx context.Context, studentID, teacherID string) (*model.AccessGrant, error) {
	query := `SELECT ` + grantColumns + `
		FROM access_grants
		WHERE student_id = $1 AND teacher_id = $2 AND status = 'active'`

	return r.getOne(ctx, "get active access grant", query, studentID, teacherID)
}

func (r *AccessRepository) getOne(ctx context.Context, op, query string, args ...any) (*model.AccessGrant, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	grant, err := scanGrant(r.Pool().QueryRow(ctx, query, args...))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, errdefs.NotFound("access grant")
		}
		return nil, base.Wrap(op, err)
	}

	return grant, nil
}

// Revoke отзывает доступ; повторный вызов возвращает уже отозванную запись
func (r *AccessRepository) Revoke(ctx context.Context, id uuid.UUID, at time.Time) (*model.AccessGrant, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	query := `
		UPDATE access_grants
		SET status = 'revoked', revoked_at = $2
		WHERE id = $1 AND status <> 'revoked'
		RETURNING ` + grantColumns

	grant, err := scanGrant(r.Pool().QueryRow(ctx, query, id, at))
	if err != nil {
		if base.IsNotFound(err) {
			return r.GetByID(ctx, id)
		}
		return nil, base.Wrap("revoke access", err)
	}

	return grant, nil
}

// ListByStudent получает полный список доступов студента
func (r *AccessRepository) ListByStudent(ctx context.Context, studentID string) ([]*model.AccessGrant, error) {
	query := `SELECT ` + grantColumns + `
		FROM access_grants
		WHERE student_id = $1
		ORDER BY granted_at DESC`

	return r.list(ctx, "get student access list", query, studentID)
}

// ListByTeacher получает полный список доступов к учителю
func (r *AccessRepository) ListByTeacher(ctx context.Context, teacherID string) ([]*model.AccessGrant, error) {
	query := `SELECT ` + grantColumns + `
		FROM access_grants
		WHERE teacher_id = $1
		ORDER BY granted_at DESC`

	return r.list(ctx, "get teacher access list", query, teacherID)
}

func (r *AccessRepository) list(ctx context.Context, op, query string, args ...any) ([]*model.AccessGrant, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	rows, err := r.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, base.Wrap(op, err)
	}
	defer rows.Close()

	grants := make([]*model.AccessGrant, 0)
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan access: %w", err)
		}
		grants = append(grants, grant)
	}

	if err := rows.Err(); err != nil {
		return nil, base.Wrap(op, err)
	}

	return grants, nil
}

// ExpireBefore помечает истёкшие доступы
func (r *AccessRepository) ExpireBefore(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	tag, err := r.Pool().Exec(ctx, `
		UPDATE access_grants
		SET status = 'expired'
		WHERE status = 'active' AND expires_at IS NOT NULL AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, base.Wrap("expire access grants", err)
	}

	return tag.RowsAffected(), nil
}

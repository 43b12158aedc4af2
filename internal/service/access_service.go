package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/engagement_service/internal/errdefs"
	"github.com/Freeeeeet/engagement_service/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AccessCache кэширует ответы HasAccess. Ошибки кэша не должны ломать проверку доступа.
type AccessCache interface {
	Get(ctx context.Context, studentID, teacherID string) (hasAccess bool, found bool)
	Set(ctx context.Context, studentID, teacherID string, hasAccess bool, ttl time.Duration)
	Invalidate(ctx context.Context, studentID, teacherID string)
}

// AccessCacheTTL срок жизни закэшированного ответа HasAccess по умолчанию
const AccessCacheTTL = time.Minute

// AccessService реестр доступов студентов к закрытым материалам учителей
type AccessService struct {
	repo     AccessRepository
	cache    AccessCache
	cacheTTL time.Duration
	now      Clock
	logger   *zap.Logger
}

func NewAccessService(repo AccessRepository, cache AccessCache, now Clock, logger *zap.Logger) *AccessService {
	if now == nil {
		now = time.Now
	}
	return &AccessService{
		repo:     repo,
		cache:    cache,
		cacheTTL: AccessCacheTTL,
		now:      now,
		logger:   logger,
	}
}

// SetCacheTTL меняет срок жизни ответов в кэше; вызывается до начала работы
func (s *AccessService) SetCacheTTL(ttl time.Duration) {
	if ttl > 0 {
		s.cacheTTL = ttl
	}
}

// Grant предоставляет доступ. Если у пары уже есть активный доступ, возвращает его.
// created == true, только если запись создана этим вызовом.
func (s *AccessService) Grant(ctx context.Context, in model.GrantInput) (grant *model.AccessGrant, created bool, err error) {
	if strings.TrimSpace(in.StudentID) == "" || strings.TrimSpace(in.TeacherID) == "" {
		return nil, false, errdefs.Invalid("student_id and teacher_id are required")
	}

	existing, err := s.repo.GetActiveByPair(ctx, in.StudentID, in.TeacherID)
	switch {
	case err == nil && existing.IsValidAt(s.now()):
		return existing, false, nil
	case err == nil:
		// активная запись с истёкшим сроком мешает уникальному индексу
		if _, err := s.repo.ExpireBefore(ctx, s.now()); err != nil {
			return nil, false, fmt.Errorf("expire stale grants: %w", err)
		}
	case !errors.Is(err, errdefs.ErrNotFound):
		return nil, false, fmt.Errorf("get active grant: %w", err)
	}

	grant = &model.AccessGrant{
		ID:              uuid.New(),
		StudentID:       in.StudentID,
		TeacherID:       in.TeacherID,
		Plan:            in.Plan,
		Subject:         in.Subject,
		GrantedAt:       s.now().UTC(),
		Status:          model.GrantStatusActive,
		SourceRequestID: in.SourceRequestID,
	}

	err = s.repo.Create(ctx, grant)
	if errors.Is(err, errdefs.ErrAlreadyExists) {
		existing, err := s.repo.GetActiveByPair(ctx, in.StudentID, in.TeacherID)
		if err != nil {
			return nil, false, fmt.Errorf("read concurrent grant: %w", err)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("create grant: %w", err)
	}

	s.invalidate(ctx, in.StudentID, in.TeacherID)

	s.logger.Info("Access granted",
		zap.String("grant_id", grant.ID.String()),
		zap.String("student_id", in.StudentID),
		zap.String("teacher_id", in.TeacherID),
	)

	return grant, true, nil
}

// Revoke отзывает доступ. Отзыв необратим, повторный вызов ничего не меняет.
func (s *AccessService) Revoke(ctx context.Context, grantID uuid.UUID) (*model.AccessGrant, error) {
	grant, err := s.repo.Revoke(ctx, grantID, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("revoke grant: %w", err)
	}

	s.invalidate(ctx, grant.StudentID, grant.TeacherID)

	s.logger.Info("Access revoked",
		zap.String("grant_id", grantID.String()),
		zap.String("student_id", grant.StudentID),
		zap.String("teacher_id", grant.TeacherID),
	)

	return grant, nil
}

// RevokeForPair отзывает активный доступ пары, если он есть
func (s *AccessService) RevokeForPair(ctx context.Context, studentID, teacherID string) (*model.AccessGrant, error) {
	grant, err := s.repo.GetActiveByPair(ctx, studentID, teacherID)
	if err != nil {
		return nil, fmt.Errorf("get active grant: %w", err)
	}
	return s.Revoke(ctx, grant.ID)
}

// ActiveGrant возвращает активный доступ пары
func (s *AccessService) ActiveGrant(ctx context.Context, studentID, teacherID string) (*model.AccessGrant, error) {
	grant, err := s.repo.GetActiveByPair(ctx, studentID, teacherID)
	if err != nil {
		return nil, fmt.Errorf("get active grant: %w", err)
	}
	return grant, nil
}

// HasAccess проверяет, есть ли у студента действующий доступ к учителю
func (s *AccessService) HasAccess(ctx context.Context, studentID, teacherID string) (bool, error) {
	if s.cache != nil {
		if has, ok := s.cache.Get(ctx, studentID, teacherID); ok {
			return has, nil
		}
	}

	now := s.now()
	grant, err := s.repo.GetActiveByPair(ctx, studentID, teacherID)
	if err != nil && !errors.Is(err, errdefs.ErrNotFound) {
		return false, fmt.Errorf("check access: %w", err)
	}

	has := err == nil && grant.IsValidAt(now)

	if s.cache != nil {
		ttl := s.cacheTTL
		if has && grant.ExpiresAt != nil {
			if left := grant.ExpiresAt.Sub(now); left < ttl {
				ttl = left
			}
		}
		s.cache.Set(ctx, studentID, teacherID, has, ttl)
	}

	return has, nil
}

// ListForStudent получает все доступы студента
func (s *AccessService) ListForStudent(ctx context.Context, studentID string) ([]*model.AccessGrant, error) {
	grants, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list student grants: %w", err)
	}
	return grants, nil
}

// ListForTeacher получает все доступы к материалам учителя
func (s *AccessService) ListForTeacher(ctx context.Context, teacherID string) ([]*model.AccessGrant, error) {
	grants, err := s.repo.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, fmt.Errorf("list teacher grants: %w", err)
	}
	return grants, nil
}

// ExpireStale помечает expired доступы с наступившим expires_at
func (s *AccessService) ExpireStale(ctx context.Context) (int64, error) {
	expired, err := s.repo.ExpireBefore(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("expire grants: %w", err)
	}

	if expired > 0 {
		s.logger.Info("Access grants expired", zap.Int64("count", expired))
	}

	return expired, nil
}

func (s *AccessService) invalidate(ctx context.Context, studentID, teacherID string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, studentID, teacherID)
	}
}

package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Freeeeeet/engagement_service/internal/errdefs"
	"github.com/Freeeeeet/engagement_service/internal/model"
	"github.com/google/uuid"
)

type EngagementRepository struct {
	mu          sync.RWMutex
	engagements map[uuid.UUID]*model.Engagement
	// active индекс (student, teacher) -> id, аналог частичного уникального индекса
	active map[string]uuid.UUID
}

func NewEngagementRepository() *EngagementRepository {
	return &EngagementRepository{
		engagements: make(map[uuid.UUID]*model.Engagement),
		active:      make(map[string]uuid.UUID),
	}
}

func copyEngagement(e *model.Engagement) *model.Engagement {
	c := *e
	return &c
}

// Create сохраняет engagement
func (r *EngagementRepository) Create(_ context.Context, engagement *model.Engagement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := pairKey(engagement.StudentID, engagement.TeacherID)
	if engagement.IsActive() {
		if _, exists := r.active[key]; exists {
			return errdefs.ErrAlreadyExists
		}
	}

	if engagement.ID == uuid.Nil {
		engagement.ID = uuid.New()
	}
	now := time.Now().UTC()
	engagement.CreatedAt = now
	engagement.UpdatedAt = now

	r.engagements[engagement.ID] = copyEngagement(engagement)
	if engagement.IsActive() {
		r.active[key] = engagement.ID
	}
	return nil
}

// GetByID получает engagement по ID
func (r *EngagementRepository) GetByID(_ context.Context, id uuid.UUID) (*model.Engagement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	engagement, ok := r.engagements[id]
	if !ok {
		return nil, errdefs.NotFound("engagement")
	}
	return copyEngagement(engagement), nil
}

// GetByRequestID получает engagement, созданный по заявке
func (r *EngagementRepository) GetByRequestID(_ context.Context, requestID uuid.UUID) (*model.Engagement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, engagement := range r.engagements {
		if engagement.RequestID == requestID {
			return copyEngagement(engagement), nil
		}
	}
	return nil, errdefs.NotFound("engagement")
}

// GetActiveByPair получает активный engagement пары
func (r *EngagementRepository) GetActiveByPair(_ context.Context, studentID, teacherID string) (*model.Engagement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.active[pairKey(studentID, teacherID)]
	if !ok {
		return nil, errdefs.NotFound("engagement")
	}
	return copyEngagement(r.engagements[id]), nil
}

// UpdateStatus меняет статус с проверкой текущего
func (r *EngagementRepository) UpdateStatus(_ context.Context, id uuid.UUID, from, to model.EngagementStatus, at time.Time) (*model.Engagement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	engagement, ok := r.engagements[id]
	if !ok {
		return nil, errdefs.NotFound("engagement")
	}
	if engagement.Status != from {
		return nil, errdefs.ErrAlreadyProcessed
	}

	key := pairKey(engagement.StudentID, engagement.TeacherID)
	if to == model.EngagementStatusActive {
		if _, exists := r.active[key]; exists {
			return nil, errdefs.ErrAlreadyExists
		}
		r.active[key] = id
	} else if from == model.EngagementStatusActive {
		delete(r.active, key)
	}

	engagement.Status = to
	engagement.UpdatedAt = at
	return copyEngagement(engagement), nil
}

// AdvanceBilling сдвигает дату списания, если она не менялась с момента чтения
func (r *EngagementRepository) AdvanceBilling(_ context.Context, id uuid.UUID, expected, next, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	engagement, ok := r.engagements[id]
	if !ok {
		return false, errdefs.NotFound("engagement")
	}
	if !engagement.IsActive() || !engagement.NextBillingDate.Equal(expected) {
		return false, nil
	}

	engagement.NextBillingDate = next
	engagement.UpdatedAt = at
	return true, nil
}

// ListDue получает активные engagement с наступившей датой списания
func (r *EngagementRepository) ListDue(_ context.Context, now time.Time, limit int) ([]*model.Engagement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	due := make([]*model.Engagement, 0)
	for _, engagement := range r.engagements {
		if engagement.IsActive() && engagement.BillingDue(now) {
			due = append(due, copyEngagement(engagement))
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].NextBillingDate.Before(due[j].NextBillingDate)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

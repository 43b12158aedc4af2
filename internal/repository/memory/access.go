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

type AccessRepository struct {
	mu     sync.RWMutex
	grants map[uuid.UUID]*model.AccessGrant
	active map[string]uuid.UUID
}

func NewAccessRepository() *AccessRepository {
	return &AccessRepository{
		grants: make(map[uuid.UUID]*model.AccessGrant),
		active: make(map[string]uuid.UUID),
	}
}

func copyGrant(g *model.AccessGrant) *model.AccessGrant {
	c := *g
	return &c
}

// Create предоставляет доступ
func (r *AccessRepository) Create(_ context.Context, grant *model.AccessGrant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := pairKey(grant.StudentID, grant.TeacherID)
	if _, exists := r.active[key]; exists {
		return errdefs.ErrAlreadyExists
	}

	if grant.ID == uuid.Nil {
		grant.ID = uuid.New()
	}
	if grant.GrantedAt.IsZero() {
		grant.GrantedAt = time.Now().UTC()
	}
	grant.Status = model.GrantStatusActive

	r.grants[grant.ID] = copyGrant(grant)
	r.active[key] = grant.ID
	return nil
}

// GetByID получает доступ по ID
func (r *AccessRepository) GetByID(_ context.Context, id uuid.UUID) (*model.AccessGrant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	grant, ok := r.grants[id]
	if !ok {
		return nil, errdefs.NotFound("access grant")
	}
	return copyGrant(grant), nil
}

// GetActiveByPair получает активный доступ пары
func (r *AccessRepository) GetActiveByPair(_ context.Context, studentID, teacherID string) (*model.AccessGrant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.active[pairKey(studentID, teacherID)]
	if !ok {
		return nil, errdefs.NotFound("access grant")
	}
	return copyGrant(r.grants[id]), nil
}

// Revoke отзывает доступ
func (r *AccessRepository) Revoke(_ context.Context, id uuid.UUID, at time.Time) (*model.AccessGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	grant, ok := r.grants[id]
	if !ok {
		return nil, errdefs.NotFound("access grant")
	}
	if grant.Status == model.GrantStatusRevoked {
		return copyGrant(grant), nil
	}

	if grant.Status == model.GrantStatusActive {
		delete(r.active, pairKey(grant.StudentID, grant.TeacherID))
	}
	grant.Status = model.GrantStatusRevoked
	grant.RevokedAt = &at

	return copyGrant(grant), nil
}

// ListByStudent получает все доступы студента
func (r *AccessRepository) ListByStudent(_ context.Context, studentID string) ([]*model.AccessGrant, error) {
	return r.filter(func(g *model.AccessGrant) bool { return g.StudentID == studentID }), nil
}

// ListByTeacher получает все доступы к материалам учителя
func (r *AccessRepository) ListByTeacher(_ context.Context, teacherID string) ([]*model.AccessGrant, error) {
	return r.filter(func(g *model.AccessGrant) bool { return g.TeacherID == teacherID }), nil
}

func (r *AccessRepository) filter(keep func(*model.AccessGrant) bool) []*model.AccessGrant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.AccessGrant, 0)
	for _, grant := range r.grants {
		if keep(grant) {
			result = append(result, copyGrant(grant))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].GrantedAt.After(result[j].GrantedAt)
	})
	return result
}

// ExpireBefore помечает истёкшие доступы
func (r *AccessRepository) ExpireBefore(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired int64
	for key, id := range r.active {
		grant := r.grants[id]
		if grant.ExpiresAt != nil && !grant.ExpiresAt.After(now) {
			grant.Status = model.GrantStatusExpired
			delete(r.active, key)
			expired++
		}
	}
	return expired, nil
}

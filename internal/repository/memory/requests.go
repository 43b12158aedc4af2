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

type RequestRepository struct {
	mu       sync.RWMutex
	requests map[uuid.UUID]*model.EngagementRequest
}

func NewRequestRepository() *RequestRepository {
	return &RequestRepository{requests: make(map[uuid.UUID]*model.EngagementRequest)}
}

func copyRequest(r *model.EngagementRequest) *model.EngagementRequest {
	c := *r
	c.Availability = append([]string(nil), r.Availability...)
	return &c
}

// Create сохраняет новую заявку
func (r *RequestRepository) Create(_ context.Context, request *model.EngagementRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if request.ID == uuid.Nil {
		request.ID = uuid.New()
	}
	if _, ok := r.requests[request.ID]; ok {
		return errdefs.ErrAlreadyExists
	}
	if request.IsPending() {
		for _, existing := range r.requests {
			if existing.IsPending() && existing.StudentID == request.StudentID && existing.TeacherID == request.TeacherID {
				return errdefs.ErrAlreadyExists
			}
		}
	}
	now := time.Now().UTC()
	if request.CreatedAt.IsZero() {
		request.CreatedAt = now
	}
	request.UpdatedAt = request.CreatedAt

	r.requests[request.ID] = copyRequest(request)
	return nil
}

// GetByID получает заявку по ID
func (r *RequestRepository) GetByID(_ context.Context, id uuid.UUID) (*model.EngagementRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	request, ok := r.requests[id]
	if !ok {
		return nil, errdefs.NotFound("engagement request")
	}
	return copyRequest(request), nil
}

// HasPending проверяет наличие pending заявки у пары
func (r *RequestRepository) HasPending(_ context.Context, studentID, teacherID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, request := range r.requests {
		if request.StudentID == studentID && request.TeacherID == teacherID && request.IsPending() {
			return true, nil
		}
	}
	return false, nil
}

// ListByStudent получает заявки студента, новые первыми
func (r *RequestRepository) ListByStudent(_ context.Context, studentID string) ([]*model.EngagementRequest, error) {
	return r.filter(func(req *model.EngagementRequest) bool {
		return req.StudentID == studentID
	}), nil
}

// ListPending получает pending заявки
func (r *RequestRepository) ListPending(_ context.Context, teacherID string) ([]*model.EngagementRequest, error) {
	return r.filter(func(req *model.EngagementRequest) bool {
		return req.IsPending() && (teacherID == "" || req.TeacherID == teacherID)
	}), nil
}

func (r *RequestRepository) filter(keep func(*model.EngagementRequest) bool) []*model.EngagementRequest {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.EngagementRequest, 0)
	for _, request := range r.requests {
		if keep(request) {
			result = append(result, copyRequest(request))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result
}

// MarkProcessed фиксирует решение по pending заявке
func (r *RequestRepository) MarkProcessed(_ context.Context, id uuid.UUID, decision model.RequestDecision) (*model.EngagementRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	request, ok := r.requests[id]
	if !ok {
		return nil, errdefs.NotFound("engagement request")
	}
	if !request.IsPending() {
		return nil, errdefs.ErrAlreadyProcessed
	}

	processedBy := decision.ProcessedBy
	processedAt := decision.ProcessedAt
	request.Status = decision.Status
	request.ProcessedBy = &processedBy
	request.ProcessedAt = &processedAt
	request.RejectionReason = decision.RejectionReason
	if decision.AdminNotes != "" {
		request.AdminNotes = decision.AdminNotes
	}
	request.UpdatedAt = processedAt

	return copyRequest(request), nil
}

// MarkCancelled отменяет заявку
func (r *RequestRepository) MarkCancelled(_ context.Context, id uuid.UUID, by string, at time.Time) (*model.EngagementRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	request, ok := r.requests[id]
	if !ok {
		return nil, errdefs.NotFound("engagement request")
	}
	if !request.Cancellable() {
		return nil, errdefs.ErrAlreadyProcessed
	}

	request.Status = model.RequestStatusCancelled
	request.ProcessedBy = nil
	request.ProcessedAt = nil
	request.CancelledBy = &by
	request.CancelledAt = &at
	request.UpdatedAt = at

	return copyRequest(request), nil
}

// SetEngagement связывает заявку с engagement
func (r *RequestRepository) SetEngagement(_ context.Context, id, engagementID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	request, ok := r.requests[id]
	if !ok {
		return errdefs.NotFound("engagement request")
	}
	request.EngagementID = &engagementID
	return nil
}

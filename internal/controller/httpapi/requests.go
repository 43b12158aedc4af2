package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/Freeeeeet/engagement_service/internal/errdefs"
	"github.com/Freeeeeet/engagement_service/internal/model"
	"github.com/Freeeeeet/engagement_service/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Coordinator операции, затрагивающие несколько хранилищ
type Coordinator interface {
	SubmitRequest(ctx context.Context, actor model.Actor, in model.SubmitRequestInput) (*model.EngagementRequest, error)
	Approve(ctx context.Context, requestID uuid.UUID, actor model.Actor, notes string) (*model.ApprovalResult, error)
	Reject(ctx context.Context, requestID uuid.UUID, actor model.Actor, reason, notes string) (*model.EngagementRequest, error)
	CancelRequest(ctx context.Context, requestID uuid.UUID, actor model.Actor) (*service.Cancellation, error)
	CancelEngagement(ctx context.Context, engagementID uuid.UUID, actor model.Actor) (*service.Cancellation, error)
}

// Registry чтение заявок и операции над engagement
type Registry interface {
	GetRequest(ctx context.Context, id uuid.UUID) (*model.EngagementRequest, error)
	ListRequestsForStudent(ctx context.Context, studentID string) ([]*model.EngagementRequest, error)
	ListPendingRequests(ctx context.Context, teacherID string) ([]*model.EngagementRequest, error)
	GetEngagement(ctx context.Context, id uuid.UUID) (*model.Engagement, error)
	SetEngagementStatus(ctx context.Context, id uuid.UUID, actor model.Actor, status model.EngagementStatus) (*model.Engagement, error)
	AdvanceBillingCycle(ctx context.Context, id uuid.UUID, period time.Time) (*model.Engagement, bool, error)
}

type RequestHandler struct {
	coordinator Coordinator
	registry    Registry
}

func NewRequestHandler(coordinator Coordinator, registry Registry) *RequestHandler {
	return &RequestHandler{coordinator: coordinator, registry: registry}
}

func (h *RequestHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Submit)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/approve", h.Approve)
	r.Post("/{id}/reject", h.Reject)
	r.Post("/{id}/cancel", h.Cancel)
}

type decisionBody struct {
	Reason string `json:"reason"`
	Notes  string `json:"notes"`
}

type cancellationResponse struct {
	Request             *model.EngagementRequest `json:"request"`
	Engagement          *model.Engagement        `json:"engagement,omitempty"`
	EngagementCancelled bool                     `json:"engagement_cancelled"`
	AlreadyCancelled    bool                     `json:"already_cancelled"`
}

func newCancellationResponse(c *service.Cancellation) cancellationResponse {
	return cancellationResponse{
		Request:             c.Request,
		Engagement:          c.Engagement,
		EngagementCancelled: c.EngagementCancelled,
		AlreadyCancelled:    c.AlreadyCancelled,
	}
}

func (h *RequestHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var in model.SubmitRequestInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	request, err := h.coordinator.SubmitRequest(r.Context(), actorFrom(r.Context()), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, request)
}

// List: студент видит свои заявки, учитель свои pending, администратор все pending
// (или pending выбранного учителя через ?teacher_id=)
func (h *RequestHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := actorFrom(ctx)

	var (
		requests []*model.EngagementRequest
		err      error
	)
	switch actor.Role {
	case model.RoleStudent:
		requests, err = h.registry.ListRequestsForStudent(ctx, actor.UserID)
	case model.RoleTeacher:
		requests, err = h.registry.ListPendingRequests(ctx, actor.UserID)
	default:
		if studentID := r.URL.Query().Get("student_id"); studentID != "" {
			requests, err = h.registry.ListRequestsForStudent(ctx, studentID)
		} else {
			requests, err = h.registry.ListPendingRequests(ctx, r.URL.Query().Get("teacher_id"))
		}
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": requests})
}

func (h *RequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	request, err := h.registry.GetRequest(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !canView(actorFrom(r.Context()), request.StudentID, request.TeacherID) {
		// не раскрываем существование чужих заявок
		writeError(w, r, errdefs.NotFound("request"))
		return
	}
	writeJSON(w, http.StatusOK, request)
}

func (h *RequestHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body decisionBody
	if err := decodeOptionalBody(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.coordinator.Approve(r.Context(), id, actorFrom(r.Context()), body.Notes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *RequestHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body decisionBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	request, err := h.coordinator.Reject(r.Context(), id, actorFrom(r.Context()), body.Reason, body.Notes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

func (h *RequestHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	cancellation, err := h.coordinator.CancelRequest(r.Context(), id, actorFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCancellationResponse(cancellation))
}

func canView(actor model.Actor, studentID, teacherID string) bool {
	switch actor.Role {
	case model.RoleSuperAdmin:
		return true
	case model.RoleStudent:
		return actor.UserID == studentID
	case model.RoleTeacher:
		return actor.UserID == teacherID
	}
	return false
}

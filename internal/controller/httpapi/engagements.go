package httpapi

import (
	"net/http"
	"time"

	"github.com/Freeeeeet/engagement_service/internal/errdefs"
	"github.com/Freeeeeet/engagement_service/internal/model"
	"github.com/go-chi/chi/v5"
)

type EngagementHandler struct {
	coordinator Coordinator
	registry    Registry
}

func NewEngagementHandler(coordinator Coordinator, registry Registry) *EngagementHandler {
	return &EngagementHandler{coordinator: coordinator, registry: registry}
}

func (h *EngagementHandler) RegisterRoutes(r chi.Router) {
	r.Get("/{id}", h.Get)
	r.Post("/{id}/cancel", h.Cancel)
	r.Put("/{id}/status", h.SetStatus)
	r.Post("/{id}/billing/advance", h.AdvanceBilling)
}

type billingResponse struct {
	Engagement *model.Engagement `json:"engagement"`
	Advanced   bool              `json:"advanced"`
}

func (h *EngagementHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	engagement, err := h.registry.GetEngagement(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !canView(actorFrom(r.Context()), engagement.StudentID, engagement.TeacherID) {
		writeError(w, r, errdefs.NotFound("engagement"))
		return
	}
	writeJSON(w, http.StatusOK, engagement)
}

func (h *EngagementHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	cancellation, err := h.coordinator.CancelEngagement(r.Context(), id, actorFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCancellationResponse(cancellation))
}

func (h *EngagementHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body struct {
		Status model.EngagementStatus `json:"status"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	engagement, err := h.registry.SetEngagementStatus(r.Context(), id, actorFrom(r.Context()), body.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, engagement)
}

// AdvanceBilling вызывается платёжным процессором, поэтому доступен только администратору
func (h *EngagementHandler) AdvanceBilling(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !actorFrom(r.Context()).IsAdmin() {
		writeError(w, r, errdefs.Denied("only an administrator can advance billing"))
		return
	}
	// период, за который прошло списание; повтор с тем же значением ничего не сдвигает
	var body struct {
		ExpectedNextBillingDate *time.Time `json:"expected_next_billing_date"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	if body.ExpectedNextBillingDate == nil {
		writeError(w, r, errdefs.Invalid("expected_next_billing_date is required"))
		return
	}

	engagement, advanced, err := h.registry.AdvanceBillingCycle(r.Context(), id, *body.ExpectedNextBillingDate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, billingResponse{Engagement: engagement, Advanced: advanced})
}

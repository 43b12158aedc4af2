package httpapi

import (
	"context"
	"net/http"

	"github.com/Freeeeeet/engagement_service/internal/errdefs"
	"github.com/Freeeeeet/engagement_service/internal/model"
	"github.com/go-chi/chi/v5"
)

// AccessChecker проверка доступа к материалам учителя
type AccessChecker interface {
	HasAccess(ctx context.Context, studentID, teacherID string) (bool, error)
	ListForStudent(ctx context.Context, studentID string) ([]*model.AccessGrant, error)
	ListForTeacher(ctx context.Context, teacherID string) ([]*model.AccessGrant, error)
}

type AccessHandler struct {
	access AccessChecker
}

func NewAccessHandler(access AccessChecker) *AccessHandler {
	return &AccessHandler{access: access}
}

func (h *AccessHandler) RegisterRoutes(r chi.Router) {
	r.Get("/check", h.Check)
	r.Get("/", h.List)
}

// Check: студент проверяет свой доступ, администратор может передать student_id
func (h *AccessHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := actorFrom(ctx)

	teacherID := r.URL.Query().Get("teacher_id")
	if teacherID == "" {
		writeError(w, r, errdefs.Invalid("teacher_id is required"))
		return
	}

	studentID := actor.UserID
	if actor.IsAdmin() {
		studentID = r.URL.Query().Get("student_id")
	}
	if studentID == "" {
		writeError(w, r, errdefs.Invalid("student_id is required"))
		return
	}

	has, err := h.access.HasAccess(ctx, studentID, teacherID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"has_access": has})
}

func (h *AccessHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := actorFrom(ctx)

	var (
		grants []*model.AccessGrant
		err    error
	)
	switch {
	case actor.Role == model.RoleStudent:
		grants, err = h.access.ListForStudent(ctx, actor.UserID)
	case actor.Role == model.RoleTeacher:
		grants, err = h.access.ListForTeacher(ctx, actor.UserID)
	case r.URL.Query().Get("student_id") != "":
		grants, err = h.access.ListForStudent(ctx, r.URL.Query().Get("student_id"))
	case r.URL.Query().Get("teacher_id") != "":
		grants, err = h.access.ListForTeacher(ctx, r.URL.Query().Get("teacher_id"))
	default:
		err = errdefs.Invalid("student_id or teacher_id is required")
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"grants": grants})
}

package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Freeeeeet/engagement_service/internal/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapErr(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"BadRequest", ErrBadRequest, http.StatusBadRequest},
		{"InvalidArgument", errdefs.Invalid("content is empty"), http.StatusBadRequest},
		{"Validation", &errdefs.ValidationError{Fields: []errdefs.FieldError{{Field: "Plan", Error: "required"}}}, http.StatusBadRequest},
		{"PreconditionFailed", errdefs.Precondition("request is rejected"), http.StatusPreconditionFailed},
		{"AlreadyProcessed", fmt.Errorf("approve: %w", errdefs.ErrAlreadyProcessed), http.StatusConflict},
		{"NotFound", errdefs.NotFound("request"), http.StatusNotFound},
		{"Unavailable", errdefs.Unavailable(errors.New("conn refused")), http.StatusServiceUnavailable},
		{"PermissionDenied", errdefs.Denied("no"), http.StatusForbidden},
		{"UnknownError", errors.New("unknown"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, mapErr(tc.err))
		})
	}
}

func TestWriteErrorJSON(t *testing.T) {
	w := httptest.NewRecorder()
	writeErrorJSON(w, http.StatusBadRequest, "test error")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]string
	err := json.Unmarshal(w.Body.Bytes(), &body)
	require.NoError(t, err)
	assert.Equal(t, "test error", body["error"])
}

func TestWriteError_Validation(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/requests", nil)
	writeError(w, r, &errdefs.ValidationError{Fields: []errdefs.FieldError{{Field: "Subject", Error: "required"}}})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"Subject"`)
}

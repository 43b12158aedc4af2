package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/Freeeeeet/engagement_service/internal/errdefs"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrBadRequest некорректные параметры пути, запроса или тела
var ErrBadRequest = errors.New("bad request")

// Максимальный размер тела запроса
const maxBodyBytes = 1 << 20

func mapErr(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, errdefs.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, errdefs.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, errdefs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errdefs.ErrAlreadyProcessed):
		return http.StatusConflict
	case errors.Is(err, errdefs.ErrPreconditionFailed):
		return http.StatusPreconditionFailed
	case errors.Is(err, errdefs.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// errorMessage возвращает текст, который можно показать пользователю
func errorMessage(err error, status int) string {
	switch status {
	case http.StatusConflict:
		return "request already processed by another administrator"
	case http.StatusServiceUnavailable:
		return "service temporarily unavailable, retry"
	case http.StatusInternalServerError:
		return http.StatusText(status)
	}
	return err.Error()
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErr(err)
	if status >= http.StatusInternalServerError {
		loggerFrom(r.Context()).Error("request failed", zap.Error(err))
	} else {
		loggerFrom(r.Context()).Info("request rejected", zap.Int("status", status), zap.Error(err))
	}

	var verr *errdefs.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, status, map[string]any{"error": "validation failed", "fields": verr.Fields})
		return
	}
	writeErrorJSON(w, status, errorMessage(err, status))
}

func writeErrorJSON(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeBody(r *http.Request, dst any) error {
	return decode(r, dst, false)
}

// decodeOptionalBody допускает пустое тело
func decodeOptionalBody(r *http.Request, dst any) error {
	return decode(r, dst, true)
}

func decode(r *http.Request, dst any, optional bool) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(dst)
	if optional && errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: invalid request body: %v", ErrBadRequest, err)
	}
	return nil
}

func parseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	val := chi.URLParam(r, key)
	if val == "" {
		return uuid.Nil, fmt.Errorf("%w: missing path param: %s", ErrBadRequest, key)
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s", ErrBadRequest, key)
	}
	return id, nil
}

func parseIntQuery(r *http.Request, key string) (int64, error) {
	val := r.URL.Query().Get(key)
	if val == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", ErrBadRequest, key)
	}
	return n, nil
}

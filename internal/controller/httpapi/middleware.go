package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Freeeeeet/engagement_service/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Заголовки, которые выставляет шлюз после аутентификации
const (
	HeaderUserID   = "X-User-Id"
	HeaderUserName = "X-User-Name"
	HeaderUserRole = "X-User-Role"
	HeaderTraceID  = "X-Trace-Id"
)

type ctxKey int

const (
	actorKey ctxKey = iota
	loggerKey
)

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap нужен http.ResponseController, чтобы стрим мог сбрасывать буфер
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// NewLoggingMiddleware присваивает запросу trace id и пишет access log
func NewLoggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			traceID, err := uuid.NewV7()
			if err != nil {
				traceID = uuid.New()
			}

			r.Header.Set(HeaderTraceID, traceID.String())
			reqLogger := logger.With(zap.String("trace_id", traceID.String()))
			r = r.WithContext(context.WithValue(r.Context(), loggerKey, reqLogger))

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			w.Header().Set(HeaderTraceID, traceID.String())

			next.ServeHTTP(sw, r)

			reqLogger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", sw.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

// NewIdentityMiddleware читает пользователя из заголовков шлюза
func NewIdentityMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := model.Actor{
				UserID:      strings.TrimSpace(r.Header.Get(HeaderUserID)),
				DisplayName: strings.TrimSpace(r.Header.Get(HeaderUserName)),
				Role:        model.Role(strings.TrimSpace(r.Header.Get(HeaderUserRole))),
			}
			if actor.UserID == "" {
				loggerFrom(r.Context()).Info("no identity headers", zap.String("path", r.URL.Path))
				writeErrorJSON(w, http.StatusUnauthorized, "missing "+HeaderUserID)
				return
			}
			if !actor.Role.Valid() {
				writeErrorJSON(w, http.StatusUnauthorized, "unknown role")
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey, actor)))
		})
	}
}

func actorFrom(ctx context.Context) model.Actor {
	actor, _ := ctx.Value(actorKey).(model.Actor)
	return actor
}

func loggerFrom(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

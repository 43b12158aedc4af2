package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handlers все HTTP-обработчики сервиса
type Handlers struct {
	Requests      *RequestHandler
	Engagements   *EngagementHandler
	Access        *AccessHandler
	Conversations *ConversationHandler
}

// NewRouter собирает маршруты API
func NewRouter(h Handlers, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(NewLoggingMiddleware(logger))
	r.Use(func(next http.Handler) http.Handler {
		return http.MaxBytesHandler(next, maxBodyBytes)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Group(func(r chi.Router) {
		r.Use(NewIdentityMiddleware())

		r.Route("/requests", h.Requests.RegisterRoutes)
		r.Route("/engagements", h.Engagements.RegisterRoutes)
		r.Route("/access", h.Access.RegisterRoutes)
		r.Route("/conversations", h.Conversations.RegisterRoutes)
	})

	return r
}

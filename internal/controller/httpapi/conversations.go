package httpapi

import (
	"context"
	"net/http"

	"github.com/Freeeeeet/engagement_service/internal/model"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Conversations операции переписки
type Conversations interface {
	Authorize(ctx context.Context, id uuid.UUID, actor model.Actor) (*model.Conversation, error)
	ListConversations(ctx context.Context, userID string, role model.Role) ([]*model.Conversation, error)
	Send(ctx context.Context, in model.SendMessageInput) (*model.Message, error)
	ListMessages(ctx context.Context, in model.ListMessagesInput) (*model.MessagePage, error)
	MessagesAfter(ctx context.Context, conversationID uuid.UUID, afterSeq int64, limit int) ([]*model.Message, error)
	MarkRead(ctx context.Context, conversationID uuid.UUID, readerID string, readerRole model.Role) (int64, error)
	UnreadCountFor(ctx context.Context, userID string, role model.Role) (int, error)
}

type ConversationHandler struct {
	conversations Conversations
	stream        *StreamHandler
}

func NewConversationHandler(conversations Conversations, stream *StreamHandler) *ConversationHandler {
	return &ConversationHandler{conversations: conversations, stream: stream}
}

func (h *ConversationHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/unread", h.Unread)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/messages", h.Messages)
	r.Post("/{id}/messages", h.Send)
	r.Post("/{id}/read", h.MarkRead)
	if h.stream != nil {
		r.Get("/{id}/stream", h.stream.Stream)
	}
}

// sendFailure ответ на неудачную отправку: текст возвращается клиенту, чтобы его не потерять
type sendFailure struct {
	Error   string `json:"error"`
	Content string `json:"content"`
	Retry   bool   `json:"retry"`
}

func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	userID := actor.UserID
	role := actor.Role
	// администратор смотрит переписки конкретного участника
	if actor.IsAdmin() {
		userID = r.URL.Query().Get("user_id")
		role = model.Role(r.URL.Query().Get("role"))
	}

	conversations, err := h.conversations.ListConversations(r.Context(), userID, role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": conversations})
}

func (h *ConversationHandler) Unread(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())

	count, err := h.conversations.UnreadCountFor(r.Context(), actor.UserID, actor.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread": count})
}

func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	conversation, err := h.conversations.Authorize(r.Context(), id, actorFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conversation)
}

func (h *ConversationHandler) Messages(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := parseIntQuery(r, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	before, err := parseIntQuery(r, "before")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if _, err := h.conversations.Authorize(r.Context(), id, actorFrom(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}

	page, err := h.conversations.ListMessages(r.Context(), model.ListMessagesInput{
		ConversationID: id,
		Limit:          int(limit),
		BeforeSeq:      before,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *ConversationHandler) Send(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body struct {
		Content string `json:"content"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	actor := actorFrom(r.Context())
	message, err := h.conversations.Send(r.Context(), model.SendMessageInput{
		ConversationID: id,
		SenderID:       actor.UserID,
		SenderName:     actor.DisplayName,
		SenderRole:     actor.Role,
		Content:        body.Content,
	})
	if err != nil {
		status := mapErr(err)
		if status < http.StatusInternalServerError {
			writeError(w, r, err)
			return
		}
		loggerFrom(r.Context()).Error("message not delivered", zap.Error(err))
		writeJSON(w, status, sendFailure{
			Error:   "message not delivered, retry",
			Content: body.Content,
			Retry:   true,
		})
		return
	}
	writeJSON(w, http.StatusCreated, message)
}

func (h *ConversationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	actor := actorFrom(r.Context())
	marked, err := h.conversations.MarkRead(r.Context(), id, actor.UserID, actor.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"marked": marked})
}

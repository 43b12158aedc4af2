package callbacks

import (
	"context"
	"strings"

	"github.com/Freeeeeet/engagement_service/internal/controller/callbacks/callbacktypes"
	"github.com/Freeeeeet/engagement_service/internal/controller/callbacks/common"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// ========================
// Callback Data Patterns
// ========================

const (
	ApproveRequest = "approve_request:" // approve_request:<uuid>
	RejectRequest  = "reject_request:"  // reject_request:<uuid>
	RequestDetails = "request_details:" // request_details:<uuid>
	Noop           = "noop"
)

// Handler обертка для callbacktypes.Handler с методами
type Handler struct {
	*callbacktypes.Handler
}

// NewHandler создаёт новый обработчик callbacks с зависимостями
func NewHandler(deps *callbacktypes.Handler) *Handler {
	return &Handler{Handler: deps}
}

// HandleCallbackQuery - главный обработчик callback queries
func (h *Handler) HandleCallbackQuery(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}

	Route(ctx, update.CallbackQuery, h.Handler)
}

// Route распределяет callback query по соответствующим обработчикам
func Route(ctx context.Context, callback *models.CallbackQuery, h *callbacktypes.Handler) {
	data := callback.Data

	h.Logger.Info("Routing callback",
		zap.String("data", data),
		zap.Int64("user_id", callback.From.ID),
		zap.String("user_name", callback.From.FirstName))

	if msg := common.GetMessageFromCallback(callback); msg == nil || msg.Chat.ID != h.AdminChatID {
		common.AnswerCallbackAlert(ctx, h, callback.ID, "❌ Недостаточно прав")
		return
	}

	switch {
	case strings.HasPrefix(data, ApproveRequest):
		HandleApproveRequest(ctx, callback, h)
	case strings.HasPrefix(data, RejectRequest):
		HandleRejectRequest(ctx, callback, h)
	case strings.HasPrefix(data, RequestDetails):
		HandleRequestDetails(ctx, callback, h)
	case data == Noop:
		common.AnswerCallback(ctx, h, callback.ID, "")
	default:
		h.Logger.Warn("Unknown callback", zap.String("data", data))
		common.AnswerCallback(ctx, h, callback.ID, "❓ Неизвестное действие")
	}
}

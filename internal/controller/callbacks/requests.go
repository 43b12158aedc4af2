package callbacks

import (
	"context"
	"errors"
	"fmt"

	"github.com/Freeeeeet/engagement_service/internal/controller/callbacks/callbacktypes"
	"github.com/Freeeeeet/engagement_service/internal/controller/callbacks/common"
	"github.com/Freeeeeet/engagement_service/internal/controller/callbacks/common/formatting"
	"github.com/Freeeeeet/engagement_service/internal/controller/callbacks/common/keyboard"
	"github.com/Freeeeeet/engagement_service/internal/controller/state"
	"github.com/Freeeeeet/engagement_service/internal/errdefs"
	"github.com/Freeeeeet/engagement_service/internal/model"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestKeyboard кнопки решения по заявке
func RequestKeyboard(requestID uuid.UUID) *models.InlineKeyboardMarkup {
	id := requestID.String()
	return keyboard.NewBuilder().
		Row(
			keyboard.Button("✅ Одобрить", ApproveRequest+id),
			keyboard.Button("🚫 Отклонить", RejectRequest+id),
		).
		Row(keyboard.Button("🔄 Обновить", RequestDetails+id)).
		Build()
}

// markupFor показывает кнопки только пока заявка ждёт решения
func markupFor(request *model.EngagementRequest) models.ReplyMarkup {
	if request.IsPending() {
		return RequestKeyboard(request.ID)
	}
	return keyboard.Empty()
}

// HandleApproveRequest одобряет заявку
func HandleApproveRequest(ctx context.Context, callback *models.CallbackQuery, h *callbacktypes.Handler) {
	msg := common.GetMessageFromCallback(callback)
	requestID, err := common.ParseIDFromCallback(callback.Data)
	if err != nil {
		common.AnswerCallbackAlert(ctx, h, callback.ID, common.ErrorMessage(err))
		return
	}

	actor := common.ActorFromTelegram(callback.From)
	result, err := h.Decider.Approve(ctx, requestID, actor, "")
	if err != nil {
		h.Logger.Error("Failed to approve request",
			zap.String("request_id", requestID.String()),
			zap.String("actor", actor.UserID),
			zap.Error(err))
		common.AnswerCallbackAlert(ctx, h, callback.ID, common.ErrorMessage(err))
		if errors.Is(err, errdefs.ErrAlreadyProcessed) || errors.Is(err, errdefs.ErrPreconditionFailed) {
			refreshRequest(ctx, h, msg, requestID, "")
		}
		return
	}

	if result.AlreadyProcessed {
		common.AnswerCallbackAlert(ctx, h, callback.ID, common.ErrorMessage(errdefs.ErrAlreadyProcessed))
	} else {
		common.AnswerCallback(ctx, h, callback.ID, "✅ Заявка одобрена")
	}

	footer := fmt.Sprintf("\n\n✅ Одобрил: %s\n🤝 Сопровождение: %s", actor.DisplayName, result.EngagementID)
	refreshRequest(ctx, h, msg, requestID, footer)
}

// HandleRejectRequest запрашивает у администратора причину отклонения
func HandleRejectRequest(ctx context.Context, callback *models.CallbackQuery, h *callbacktypes.Handler) {
	msg := common.GetMessageFromCallback(callback)
	requestID, err := common.ParseIDFromCallback(callback.Data)
	if err != nil {
		common.AnswerCallbackAlert(ctx, h, callback.ID, common.ErrorMessage(err))
		return
	}

	request, err := h.Requests.GetRequest(ctx, requestID)
	if err != nil {
		common.AnswerCallbackAlert(ctx, h, callback.ID, common.ErrorMessage(err))
		return
	}
	if !request.IsPending() {
		common.AnswerCallbackAlert(ctx, h, callback.ID, common.ErrorMessage(errdefs.ErrAlreadyProcessed))
		common.EditMessage(ctx, h, msg, formatting.FormatRequest(request), markupFor(request))
		return
	}

	telegramID := callback.From.ID
	h.StateManager.SetState(telegramID, state.StateEnteringRejectionReason)
	h.StateManager.SetData(telegramID, state.DataRequestID, requestID)
	h.StateManager.SetData(telegramID, state.DataMessageID, msg.ID)

	common.AnswerCallback(ctx, h, callback.ID, "")
	common.SendText(ctx, h, msg.Chat.ID,
		"✍️ Напишите причину отклонения заявки одним сообщением.\n\nДля отмены используйте /cancel")
}

// HandleRequestDetails перечитывает заявку и обновляет сообщение
func HandleRequestDetails(ctx context.Context, callback *models.CallbackQuery, h *callbacktypes.Handler) {
	msg := common.GetMessageFromCallback(callback)
	requestID, err := common.ParseIDFromCallback(callback.Data)
	if err != nil {
		common.AnswerCallbackAlert(ctx, h, callback.ID, common.ErrorMessage(err))
		return
	}

	common.AnswerCallback(ctx, h, callback.ID, "")
	refreshRequest(ctx, h, msg, requestID, "")
}

func refreshRequest(ctx context.Context, h *callbacktypes.Handler, msg *models.Message, requestID uuid.UUID, footer string) {
	request, err := h.Requests.GetRequest(ctx, requestID)
	if err != nil {
		h.Logger.Error("Failed to reload request", zap.String("request_id", requestID.String()), zap.Error(err))
		return
	}
	common.EditMessage(ctx, h, msg, formatting.FormatRequest(request)+footer, markupFor(request))
}

package handlers

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/Freeeeeet/engagement_service/internal/controller/callbacks/common"
	"github.com/Freeeeeet/engagement_service/internal/controller/callbacks/common/formatting"
	"github.com/Freeeeeet/engagement_service/internal/controller/callbacks/common/keyboard"
	"github.com/Freeeeeet/engagement_service/internal/controller/state"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RejectionReasonMaxLength ограничение на длину причины отклонения
const RejectionReasonMaxLength = 500

// HandleTextMessage обрабатывает текст в зависимости от состояния диалога
func (h *Handlers) HandleTextMessage(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	// команды обрабатываются отдельно
	if strings.HasPrefix(update.Message.Text, "/") {
		return
	}

	switch h.stateManager.GetState(update.Message.From.ID) {
	case state.StateEnteringRejectionReason:
		h.handleRejectionReason(ctx, update)
	default:
		// Обычные сообщения в чате администраторов игнорируем
	}
}

// handleRejectionReason отклоняет заявку с введённой причиной
func (h *Handlers) handleRejectionReason(ctx context.Context, update *models.Update) {
	telegramID := update.Message.From.ID
	chatID := update.Message.Chat.ID
	reason := strings.TrimSpace(update.Message.Text)

	if reason == "" {
		h.sendError(ctx, chatID, "❌ Причина не может быть пустой. Напишите причину или /cancel")
		return
	}
	if utf8.RuneCountInString(reason) > RejectionReasonMaxLength {
		h.sendError(ctx, chatID, "❌ Слишком длинная причина. Сократите её и отправьте ещё раз")
		return
	}

	rawID, _ := h.stateManager.GetData(telegramID, state.DataRequestID)
	requestID, ok := rawID.(uuid.UUID)
	if !ok {
		h.logger.Warn("Rejection dialog without request id", zap.Int64("telegram_id", telegramID))
		h.stateManager.ClearState(telegramID)
		h.sendError(ctx, chatID, "❌ Не удалось определить заявку. Нажмите «Отклонить» ещё раз")
		return
	}

	actor := common.ActorFromTelegram(*update.Message.From)
	request, err := h.decider.Reject(ctx, requestID, actor, reason, "")
	if err != nil {
		h.logger.Error("Failed to reject request",
			zap.String("request_id", requestID.String()),
			zap.String("actor", actor.UserID),
			zap.Error(err))
		h.stateManager.ClearState(telegramID)
		h.sendError(ctx, chatID, common.ErrorMessage(err))
		return
	}

	// Убираем кнопки с исходного сообщения заявки
	if rawMsgID, ok := h.stateManager.GetData(telegramID, state.DataMessageID); ok {
		if messageID, ok := rawMsgID.(int); ok {
			_, err := h.sender.EditMessageText(ctx, &bot.EditMessageTextParams{
				ChatID:      chatID,
				MessageID:   messageID,
				Text:        formatting.FormatRequest(request) + "\n\n🚫 Отклонил: " + actor.DisplayName,
				ReplyMarkup: keyboard.Empty(),
			})
			if err != nil {
				h.logger.Warn("Failed to edit request message", zap.Int("message_id", messageID), zap.Error(err))
			}
		}
	}

	h.stateManager.ClearState(telegramID)
	h.sendMessage(ctx, chatID, "🚫 Заявка отклонена", nil)
}

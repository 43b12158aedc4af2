package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// requireAdminChat проверяет, что сообщение пришло из чата администраторов
func (h *Handlers) requireAdminChat(ctx context.Context, update *models.Update) bool {
	if update.Message == nil || update.Message.From == nil {
		return false
	}

	if update.Message.Chat.ID != h.adminChatID {
		h.logger.Warn("Message from foreign chat ignored",
			zap.Int64("chat_id", update.Message.Chat.ID),
			zap.Int64("telegram_id", update.Message.From.ID))
		h.sendError(ctx, update.Message.Chat.ID, "❌ Бот работает только в чате администраторов.")
		return false
	}

	return true
}

// sendError отправляет сообщение об ошибке и логирует если не удалось
func (h *Handlers) sendError(ctx context.Context, chatID int64, text string) {
	_, err := h.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		h.logger.Error("Failed to send error message",
			zap.Int64("chat_id", chatID),
			zap.String("text", text),
			zap.Error(err),
		)
	}
}

// sendMessage отправляет сообщение и логирует если не удалось
func (h *Handlers) sendMessage(ctx context.Context, chatID int64, text string, markup models.ReplyMarkup) {
	_, err := h.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ReplyMarkup: markup,
	})
	if err != nil {
		h.logger.Error("Failed to send message",
			zap.Int64("chat_id", chatID),
			zap.Error(err),
		)
	}
}

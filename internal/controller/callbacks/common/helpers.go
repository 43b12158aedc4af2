package common

import (
	"context"
	"fmt"
	"strings"

	"github.com/Freeeeeet/engagement_service/internal/controller/callbacks/callbacktypes"
	"github.com/Freeeeeet/engagement_service/internal/model"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Helper functions для всех callback handlers

// AnswerCallback отвечает на callback query (без alert)
func AnswerCallback(ctx context.Context, h *callbacktypes.Handler, callbackID string, text string) {
	answer(ctx, h, callbackID, text, false)
}

// AnswerCallbackAlert отвечает на callback query с alert (всплывающее окно)
func AnswerCallbackAlert(ctx context.Context, h *callbacktypes.Handler, callbackID string, text string) {
	answer(ctx, h, callbackID, text, true)
}

func answer(ctx context.Context, h *callbacktypes.Handler, callbackID, text string, alert bool) {
	_, err := h.Sender.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
		ShowAlert:       alert,
	})
	if err != nil {
		h.Logger.Warn("Failed to answer callback", zap.String("callback_id", callbackID), zap.Error(err))
	}
}

// GetMessageFromCallback извлекает сообщение из callback query
func GetMessageFromCallback(callback *models.CallbackQuery) *models.Message {
	if callback.Message.Message != nil {
		return callback.Message.Message
	}
	return nil
}

// ParseIDFromCallback извлекает ID из callback data
// Например: "approve_request:<uuid>" -> uuid
func ParseIDFromCallback(data string) (uuid.UUID, error) {
	parts := strings.SplitN(data, ":", 2)
	if len(parts) != 2 {
		return uuid.Nil, ErrInvalidFormat
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	return id, nil
}

// ActorFromTelegram администратор, нажавший кнопку или написавший команду
func ActorFromTelegram(user models.User) model.Actor {
	return model.Actor{
		UserID:      fmt.Sprintf("telegram:%d", user.ID),
		DisplayName: strings.TrimSpace(user.FirstName + " " + user.LastName),
		Role:        model.RoleSuperAdmin,
	}
}

// EditMessage заменяет текст сообщения с кнопками
func EditMessage(ctx context.Context, h *callbacktypes.Handler, msg *models.Message, text string, markup models.ReplyMarkup) {
	_, err := h.Sender.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:      msg.Chat.ID,
		MessageID:   msg.ID,
		Text:        text,
		ReplyMarkup: markup,
	})
	if err != nil {
		h.Logger.Warn("Failed to edit message", zap.Int("message_id", msg.ID), zap.Error(err))
	}
}

// SendText отправляет простое сообщение в чат
func SendText(ctx context.Context, h *callbacktypes.Handler, chatID int64, text string) {
	_, err := h.Sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		h.Logger.Error("Failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

package handlers

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/engagement_service/internal/controller/callbacks"
	"github.com/Freeeeeet/engagement_service/internal/controller/callbacks/common"
	"github.com/Freeeeeet/engagement_service/internal/controller/callbacks/common/formatting"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// Максимум заявок в ответе на /pending, остальные только посчитаем
const pendingListLimit = 10

// HandleStart обрабатывает команду /start
func (h *Handlers) HandleStart(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if !h.requireAdminChat(ctx, update) {
		return
	}

	welcomeText := fmt.Sprintf(
		"👋 Привет, %s!\n\n"+
			"Сюда приходят новые заявки студентов на сопровождение.\n"+
			"Под каждой заявкой есть кнопки «Одобрить» и «Отклонить».\n\n"+
			"/pending - Заявки, ожидающие решения\n"+
			"/help - Справка",
		update.Message.From.FirstName,
	)
	h.sendMessage(ctx, update.Message.Chat.ID, welcomeText, nil)
}

// HandleHelp обрабатывает команду /help
func (h *Handlers) HandleHelp(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if !h.requireAdminChat(ctx, update) {
		return
	}

	helpText := "📚 Справка по командам:\n\n" +
		"/pending - Заявки, ожидающие решения\n" +
		"/cancel - Отменить ввод причины отклонения\n" +
		"/help - Показать эту справку\n\n" +
		"При отклонении бот попросит написать причину, она будет видна студенту."
	h.sendMessage(ctx, update.Message.Chat.ID, helpText, nil)
}

// HandlePending показывает заявки, ожидающие решения
func (h *Handlers) HandlePending(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if !h.requireAdminChat(ctx, update) {
		return
	}
	chatID := update.Message.Chat.ID

	requests, err := h.requests.ListPendingRequests(ctx, "")
	if err != nil {
		h.logger.Error("Failed to list pending requests", zap.Error(err))
		h.sendError(ctx, chatID, common.ErrorMessage(err))
		return
	}

	if len(requests) == 0 {
		h.sendMessage(ctx, chatID, "🎉 Нет заявок, ожидающих решения", nil)
		return
	}

	shown := requests
	if len(shown) > pendingListLimit {
		shown = shown[:pendingListLimit]
	}
	for _, request := range shown {
		h.sendMessage(ctx, chatID, formatting.FormatRequest(request), callbacks.RequestKeyboard(request.ID))
	}
	if rest := len(requests) - len(shown); rest > 0 {
		h.sendMessage(ctx, chatID, fmt.Sprintf("…и ещё %d. Обработайте показанные и повторите /pending", rest), nil)
	}
}

// HandleCancel отменяет текущий диалог
func (h *Handlers) HandleCancel(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	h.stateManager.ClearState(update.Message.From.ID)
	h.sendMessage(ctx, update.Message.Chat.ID, "❌ Действие отменено", nil)
}

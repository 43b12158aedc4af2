package controller

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/engagement_service/internal/controller/callbacks"
	"github.com/Freeeeeet/engagement_service/internal/controller/callbacks/callbacktypes"
	"github.com/Freeeeeet/engagement_service/internal/controller/callbacks/common/formatting"
	"github.com/Freeeeeet/engagement_service/internal/model"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// Notifier сообщает администраторам о заявках. Получатель доменных событий.
type Notifier struct {
	sender      callbacktypes.Sender
	adminChatID int64
	logger      *zap.Logger
}

func NewNotifier(sender callbacktypes.Sender, adminChatID int64, logger *zap.Logger) *Notifier {
	return &Notifier{
		sender:      sender,
		adminChatID: adminChatID,
		logger:      logger,
	}
}

func (n *Notifier) Name() string {
	return "telegram"
}

func (n *Notifier) Handle(ctx context.Context, event model.Event) error {
	if event.Request == nil {
		// Сообщения переписки администраторам не дублируем
		return nil
	}

	var (
		text   string
		markup models.ReplyMarkup
	)
	request := event.Request

	switch event.Type {
	case model.EventRequestSubmitted:
		text = "🆕 Новая заявка\n\n" + formatting.FormatRequest(request)
		markup = callbacks.RequestKeyboard(request.ID)
	case model.EventRequestApproved:
		text = fmt.Sprintf("✅ Заявка одобрена: %s → %s (%s)",
			request.StudentProfile.Name, request.TeacherName, request.Subject)
		if event.Engagement != nil {
			text += fmt.Sprintf("\n💳 Первое списание: %s", formatting.FormatDate(event.Engagement.NextBillingDate))
		}
	case model.EventRequestRejected:
		text = fmt.Sprintf("🚫 Заявка отклонена: %s → %s\n💬 %s",
			request.StudentProfile.Name, request.TeacherName, request.RejectionReason)
	case model.EventRequestCancelled:
		text = fmt.Sprintf("❌ Заявка отменена: %s → %s (%s)",
			request.StudentProfile.Name, request.TeacherName, request.Subject)
	default:
		return nil
	}

	_, err := n.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      n.adminChatID,
		Text:        text,
		ReplyMarkup: markup,
	})
	if err != nil {
		return fmt.Errorf("send %s notification: %w", event.Type, err)
	}

	n.logger.Debug("Admin notified",
		zap.String("event_type", string(event.Type)),
		zap.String("request_id", request.ID.String()))
	return nil
}

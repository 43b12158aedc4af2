package callbacktypes

import (
	"context"

	"github.com/Freeeeeet/engagement_service/internal/controller/state"
	"github.com/Freeeeeet/engagement_service/internal/model"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sender методы Telegram API, которые использует бот. Реализуется *bot.Bot.
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

// Decider принимает решения по заявкам
type Decider interface {
	Approve(ctx context.Context, requestID uuid.UUID, actor model.Actor, notes string) (*model.ApprovalResult, error)
	Reject(ctx context.Context, requestID uuid.UUID, actor model.Actor, reason, notes string) (*model.EngagementRequest, error)
}

// Requests читает заявки
type Requests interface {
	GetRequest(ctx context.Context, id uuid.UUID) (*model.EngagementRequest, error)
	ListPendingRequests(ctx context.Context, teacherID string) ([]*model.EngagementRequest, error)
}

// StateManager интерфейс для управления состоянием диалогов
type StateManager interface {
	ClearState(telegramID int64)
	GetState(telegramID int64) state.UserState
	SetState(telegramID int64, state state.UserState)
	SetData(telegramID int64, key string, value any)
	GetData(telegramID int64, key string) (any, bool)
}

// Handler содержит общие зависимости для всех callback handlers
type Handler struct {
	Sender       Sender
	Decider      Decider
	Requests     Requests
	StateManager StateManager
	// AdminChatID чат администраторов; callback из других чатов игнорируются
	AdminChatID int64
	Logger      *zap.Logger
}

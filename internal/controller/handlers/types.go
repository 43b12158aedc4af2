package handlers

import (
	"github.com/Freeeeeet/engagement_service/internal/controller/callbacks/callbacktypes"
	"github.com/Freeeeeet/engagement_service/internal/controller/state"
	"go.uber.org/zap"
)

// Handlers содержит все зависимости для обработки команд
type Handlers struct {
	sender       callbacktypes.Sender
	decider      callbacktypes.Decider
	requests     callbacktypes.Requests
	stateManager *state.Manager
	adminChatID  int64
	logger       *zap.Logger
}

// NewHandlers создаёт новый обработчик команд
func NewHandlers(
	sender callbacktypes.Sender,
	decider callbacktypes.Decider,
	requests callbacktypes.Requests,
	stateManager *state.Manager,
	adminChatID int64,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		sender:       sender,
		decider:      decider,
		requests:     requests,
		stateManager: stateManager,
		adminChatID:  adminChatID,
		logger:       logger,
	}
}

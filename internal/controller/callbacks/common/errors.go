package common

import (
	"errors"

	"github.com/Freeeeeet/engagement_service/internal/errdefs"
)

// Общие ошибки для обработчиков
var (
	ErrNoMessage     = errors.New("no message in callback")
	ErrInvalidFormat = errors.New("invalid callback format")
)

// ErrorMessage возвращает пользовательское сообщение для ошибки
func ErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrNoMessage):
		return "❌ Ошибка обработки сообщения"
	case errors.Is(err, ErrInvalidFormat):
		return "❌ Неверный формат данных"
	case errors.Is(err, errdefs.ErrAlreadyProcessed):
		return "⚠️ Заявка уже обработана другим администратором"
	case errors.Is(err, errdefs.ErrNotFound):
		return "❌ Заявка не найдена"
	case errors.Is(err, errdefs.ErrInvalidArgument):
		return "❌ Некорректные данные"
	case errors.Is(err, errdefs.ErrPreconditionFailed):
		return "❌ Действие недоступно для заявки в текущем статусе"
	case errors.Is(err, errdefs.ErrPermissionDenied):
		return "❌ Недостаточно прав"
	case errors.Is(err, errdefs.ErrUnavailable):
		return "⏳ Сервис временно недоступен, попробуйте ещё раз"
	default:
		return "❌ Произошла ошибка"
	}
}

package formatting

import "github.com/Freeeeeet/engagement_service/internal/model"

// StatusDisplay представляет отображение статуса
type StatusDisplay struct {
	Emoji string
	Text  string
}

// GetRequestStatusDisplay возвращает emoji и текст для статуса заявки
func GetRequestStatusDisplay(status model.RequestStatus) StatusDisplay {
	displays := map[model.RequestStatus]StatusDisplay{
		model.RequestStatusPending:   {"⏳", "Ожидает решения"},
		model.RequestStatusApproved:  {"✅", "Одобрена"},
		model.RequestStatusRejected:  {"🚫", "Отклонена"},
		model.RequestStatusCancelled: {"❌", "Отменена"},
	}

	if display, ok := displays[status]; ok {
		return display
	}

	return StatusDisplay{"❓", "Неизвестно"}
}

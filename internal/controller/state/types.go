package state

// UserState представляет текущее состояние пользователя в диалоге
type UserState string

const (
	StateNone UserState = "" // Нет активного состояния

	// Администратор вводит причину отклонения заявки
	StateEnteringRejectionReason UserState = "entering_rejection_reason"
)

// Ключи временных данных диалога
const (
	DataRequestID = "request_id"
	DataMessageID = "message_id"
)

// UserData хранит временные данные пользователя во время диалога
type UserData struct {
	State UserState
	Data  map[string]any // Временные данные для текущего диалога
}

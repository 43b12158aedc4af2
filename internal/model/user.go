package model

// Role роль пользователя, которую сообщает провайдер идентификации
type Role string

const (
	RoleStudent    Role = "student"
	RoleTeacher    Role = "teacher"
	RoleSuperAdmin Role = "super_admin"
)

// Valid проверяет, что роль из известного набора
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleSuperAdmin:
		return true
	}
	return false
}

// Actor вызывающий пользователь со слов провайдера идентификации
type Actor struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
}

// IsAdmin проверяет, является ли пользователь администратором платформы
func (a Actor) IsAdmin() bool {
	return a.Role == RoleSuperAdmin
}

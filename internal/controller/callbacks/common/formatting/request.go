package formatting

import (
	"fmt"
	"strings"

	"github.com/Freeeeeet/engagement_service/internal/model"
)

// FormatRequest форматирует заявку для сообщения администраторам
func FormatRequest(r *model.EngagementRequest) string {
	display := GetRequestStatusDisplay(r.Status)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s Заявка %s\n\n", display.Emoji, r.ID)
	fmt.Fprintf(&sb, "👤 Студент: %s", orDash(r.StudentProfile.Name))
	if r.StudentProfile.Email != "" {
		fmt.Fprintf(&sb, " (%s)", r.StudentProfile.Email)
	}
	sb.WriteString("\n")
	if r.StudentProfile.Level != "" || r.StudentProfile.School != "" {
		fmt.Fprintf(&sb, "🎒 Уровень: %s, школа: %s\n", orDash(r.StudentProfile.Level), orDash(r.StudentProfile.School))
	}
	fmt.Fprintf(&sb, "🎓 Учитель: %s\n", orDash(r.TeacherName))
	fmt.Fprintf(&sb, "📚 Предмет: %s\n", r.Subject)

	if terms, ok := r.Plan.Terms(); ok {
		fmt.Fprintf(&sb, "💳 Тариф: %s, %d занятий в месяц, %s\n",
			r.Plan, terms.SessionsPerMonth, FormatPriceShort(terms.MonthlyAmount))
	}
	if r.Objectives != "" {
		fmt.Fprintf(&sb, "🎯 Цели: %s\n", r.Objectives)
	}
	if len(r.Availability) > 0 {
		fmt.Fprintf(&sb, "🕒 Удобное время: %s\n", strings.Join(r.Availability, ", "))
	}
	fmt.Fprintf(&sb, "📅 Создана: %s\n", FormatDateTime(r.CreatedAt))
	fmt.Fprintf(&sb, "📊 Статус: %s", display.Text)
	if r.RejectionReason != "" {
		fmt.Fprintf(&sb, "\n💬 Причина: %s", r.RejectionReason)
	}

	return sb.String()
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "—"
	}
	return s
}

package changes

import "fmt"

var statusLabels = map[int]string{
	1: "🆕 Новая",
	2: "🔄 В работе (назначена)",
	3: "📅 В работе (запланирована)",
	4: "⏳ Ожидание",
	5: "✅ Решена",
	6: "❌ Закрыта",
}

// Urgency, impact and priority share GLPI's five-step scale.
var scaleLabels = map[int]string{
	1: "🟢 Очень низкая",
	2: "🟡 Низкая",
	3: "🟠 Средняя",
	4: "🔴 Высокая",
	5: "⚡ Очень высокая",
}

var typeLabels = map[int]string{
	1: "Инцидент",
	2: "Запрос",
}

// StatusLabel renders a GLPI ticket status code.
func StatusLabel(code int) string { return lookup(statusLabels, code) }

// UrgencyLabel renders a GLPI urgency code (1–5).
func UrgencyLabel(code int) string { return lookup(scaleLabels, code) }

// ImpactLabel renders a GLPI impact code (1–5).
func ImpactLabel(code int) string { return lookup(scaleLabels, code) }

// PriorityLabel renders a GLPI priority code (1–5).
func PriorityLabel(code int) string { return lookup(scaleLabels, code) }

// TypeLabel renders a GLPI ticket type code.
func TypeLabel(code int) string { return lookup(typeLabels, code) }

func lookup(table map[int]string, code int) string {
	if s, ok := table[code]; ok {
		return s
	}
	return fmt.Sprintf("❓ unknown code %d", code)
}

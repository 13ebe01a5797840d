package conversation

import (
	"fmt"
	"strings"

	"github.com/glpibot/glpibot/internal/changes"
	"github.com/glpibot/glpibot/internal/glpi"
)

const (
	listLimit         = 10
	listMaxRunes      = 4000
	listContentBudget = 200
)

// FormatTicketList renders up to ten tickets as one plain-text message.
func FormatTicketList(tickets []glpi.Ticket) string {
	if len(tickets) > listLimit {
		tickets = tickets[:listLimit]
	}
	parts := make([]string, len(tickets))
	for i, t := range tickets {
		parts[i] = formatTicket(t)
	}
	msg := msgListHeader + strings.Join(parts, "\n\n")

	if r := []rune(msg); len(r) > listMaxRunes {
		msg = string(r[:listMaxRunes])
	}
	return msg
}

func formatTicket(t glpi.Ticket) string {
	content := glpi.CleanContent(t.Content)
	if content == "" {
		content = "Нет описания"
	}
	name := t.Name
	if name == "" {
		name = "Без названия"
	}
	date := t.Date
	if date == "" {
		date = "N/A"
	}
	return fmt.Sprintf("🔹 #%d\n📌 Тема: %s\n📝 Описание: %s\n🔄 Статус: %s\n📅 Дата создания: %s\n⚠️ Приоритет: %s\n🔔 Тип: %s\n────────────────────",
		int(t.ID),
		name,
		changes.Truncate(content, listContentBudget),
		changes.StatusLabel(int(t.Status)),
		date,
		changes.PriorityLabel(int(t.Priority)),
		changes.TypeLabel(int(t.Type)),
	)
}

package conversation

import "github.com/glpibot/glpibot/internal/connector"

// Button captions. Incoming text is matched against these case-insensitively.
const (
	BtnCreateTicket = "Создать заявку"
	BtnMyTickets    = "Мои заявки"
	BtnCancel       = "Отменить заявку ❌"
	BtnIncident     = "Инцидент"
	BtnRequest      = "Запрос"
)

var urgencyButtons = []string{
	"1 - Очень низкая",
	"2 - Низкая",
	"3 - Средняя",
	"4 - Высокая",
	"5 - Очень высокая",
}

func mainMenu() *connector.Keyboard {
	return &connector.Keyboard{Rows: [][]string{{BtnCreateTicket, BtnMyTickets}}}
}

func cancelKeyboard() *connector.Keyboard {
	return &connector.Keyboard{Rows: [][]string{{BtnCancel}}}
}

func urgencyKeyboard() *connector.Keyboard {
	rows := make([][]string, 0, len(urgencyButtons)+1)
	for _, b := range urgencyButtons {
		rows = append(rows, []string{b})
	}
	rows = append(rows, []string{BtnCancel})
	return &connector.Keyboard{Rows: rows}
}

func typeKeyboard() *connector.Keyboard {
	return &connector.Keyboard{Rows: [][]string{{BtnIncident, BtnRequest}, {BtnCancel}}}
}

// Replies.
const (
	msgAskLogin        = "Введите ваш логин для GLPI:"
	msgAskPassword     = "Введите ваш пароль:"
	msgLoggedIn        = "✅ Вы успешно авторизованы как %s!"
	msgChooseAction    = "Выберите действие"
	msgAuthFailed      = "❌ Ошибка авторизации. Проверьте логин и пароль"
	msgNotAuthorized   = "❌ Вы не авторизованы в GLPI. Используйте /start"
	msgCancelled       = "Действие отменено"
	msgAskTitle        = "Введите название заявки:"
	msgAskDescription  = "Опишите проблему подробно:"
	msgAskUrgency      = "Выберите срочность (1-5):"
	msgBadUrgency      = "Пожалуйста, выберите срочность от 1 до 5"
	msgAskType         = "Выберите тип заявки:"
	msgBadType         = "Пожалуйста, выберите тип из предложенных вариантов"
	msgTicketCreated   = "✅ Заявка успешно создана!"
	msgTicketFailed    = "❌ Ошибка при создании заявки"
	msgSessionLost     = "❌ Ошибка авторизации в GLPI"
	msgFetching        = "Получаю список заявок..."
	msgListNoSession   = "❌ Вы не авторизованы в GLPI"
	msgNoTickets       = "🚫 Нет доступных заявок"
	msgListHeader      = "📋 Ваши последние заявки:\n\n"
	msgListFailed      = "⚠️ Произошла ошибка при получении заявок"
	msgLoggedOut       = "Вы вышли из GLPI. Используйте /start, чтобы войти снова"
	msgNotLoggedIn     = "Вы не авторизованы. Используйте /start"
	msgUnknownIdle     = "Используйте /start для входа или кнопки меню"
	msgUnknownLoggedIn = "Выберите действие в меню"
)

const msgHelp = `Доступные команды:
/start - войти в GLPI
/cancel - отменить текущее действие
/logout - выйти из GLPI
/help - эта справка

После входа используйте кнопки «Создать заявку» и «Мои заявки».`

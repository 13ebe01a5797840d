package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/glpibot/glpibot/internal/connector"
	"github.com/glpibot/glpibot/internal/glpi"
	"github.com/glpibot/glpibot/internal/helpdesk"
	"github.com/glpibot/glpibot/internal/session"
)

// Helpdesk is the backend-facing side of the dialog.
type Helpdesk interface {
	Authenticate(ctx context.Context, chatID int64, login, password string) (session.Session, error)
	Logout(ctx context.Context, sess session.Session) error
	SubmitTicket(ctx context.Context, sess session.Session, d helpdesk.Draft) (int, error)
	VisibleTickets(ctx context.Context, sess session.Session) ([]glpi.Ticket, error)
}

// Machine drives the login and ticket creation dialogs of every chat user.
type Machine struct {
	helpdesk Helpdesk
	sessions *session.Store
	states   *StateStore
	logger   *slog.Logger
}

// NewMachine creates a dialog machine over shared session and state stores.
func NewMachine(hd Helpdesk, sessions *session.Store, states *StateStore, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{helpdesk: hd, sessions: sessions, states: states, logger: logger}
}

// HandleInbound adapts Handle to connector.InboundHandler.
func (m *Machine) HandleInbound(ctx context.Context, msg connector.InboundMessage) []connector.OutboundMessage {
	return m.Handle(ctx, msg.ChatID, msg.Content)
}

// Handle processes one text message and returns the replies. Commands and
// cancel win over any active step; otherwise an active step consumes the text.
func (m *Machine) Handle(ctx context.Context, chatID int64, text string) []connector.OutboundMessage {
	text = strings.TrimSpace(text)
	lower := strings.ToLower(text)

	switch {
	case isCommand(lower, "/start"):
		return m.start(chatID)
	case isCancel(lower):
		return m.cancel(chatID)
	case isCommand(lower, "/help"):
		return []connector.OutboundMessage{reply(chatID, msgHelp, nil)}
	case isCommand(lower, "/logout"):
		return m.logout(ctx, chatID)
	}

	st := m.states.Get(chatID)
	switch st.Step {
	case StepAwaitingLogin:
		return m.onLogin(chatID, st, text)
	case StepAwaitingPassword:
		return m.onPassword(ctx, chatID, st, text)
	case StepAwaitingTitle:
		return m.onTitle(chatID, st, text)
	case StepAwaitingDescription:
		return m.onDescription(chatID, st, text)
	case StepAwaitingUrgency:
		return m.onUrgency(chatID, st, text)
	case StepAwaitingType:
		return m.onType(ctx, chatID, st, text)
	}

	switch lower {
	case strings.ToLower(BtnCreateTicket):
		return m.beginTicket(chatID)
	case strings.ToLower(BtnMyTickets):
		return m.listTickets(ctx, chatID)
	}

	if _, ok := m.sessions.Get(chatID); ok {
		return []connector.OutboundMessage{reply(chatID, msgUnknownLoggedIn, mainMenu())}
	}
	return []connector.OutboundMessage{reply(chatID, msgUnknownIdle, nil)}
}

func (m *Machine) start(chatID int64) []connector.OutboundMessage {
	m.states.Set(chatID, State{Step: StepAwaitingLogin})
	return []connector.OutboundMessage{reply(chatID, msgAskLogin, connector.RemoveKeyboard())}
}

func (m *Machine) cancel(chatID int64) []connector.OutboundMessage {
	m.states.Clear(chatID)
	kb := connector.RemoveKeyboard()
	if _, ok := m.sessions.Get(chatID); ok {
		kb = mainMenu()
	}
	return []connector.OutboundMessage{reply(chatID, msgCancelled, kb)}
}

func (m *Machine) logout(ctx context.Context, chatID int64) []connector.OutboundMessage {
	m.states.Clear(chatID)
	sess, ok := m.sessions.Delete(chatID)
	if !ok {
		return []connector.OutboundMessage{reply(chatID, msgNotLoggedIn, connector.RemoveKeyboard())}
	}
	if err := m.helpdesk.Logout(ctx, sess); err != nil {
		m.logger.Warn("kill session failed", "chat_id", chatID, "error", err)
	}
	m.logger.Info("user logged out", "chat_id", chatID)
	return []connector.OutboundMessage{reply(chatID, msgLoggedOut, connector.RemoveKeyboard())}
}

func (m *Machine) onLogin(chatID int64, st State, text string) []connector.OutboundMessage {
	if text == "" {
		return []connector.OutboundMessage{reply(chatID, msgAskLogin, nil)}
	}
	st.Form.Login = text
	st.Step = StepAwaitingPassword
	m.states.Set(chatID, st)
	return []connector.OutboundMessage{reply(chatID, msgAskPassword, nil)}
}

func (m *Machine) onPassword(ctx context.Context, chatID int64, st State, password string) []connector.OutboundMessage {
	m.states.Clear(chatID)

	sess, err := m.helpdesk.Authenticate(ctx, chatID, st.Form.Login, password)
	if err != nil {
		return []connector.OutboundMessage{reply(chatID, msgAuthFailed, connector.RemoveKeyboard())}
	}

	if prev, ok := m.sessions.Get(chatID); ok && prev.Token != sess.Token {
		if err := m.helpdesk.Logout(ctx, prev); err != nil {
			m.logger.Debug("kill previous session failed", "chat_id", chatID, "error", err)
		}
	}
	m.sessions.Put(sess)

	return []connector.OutboundMessage{
		reply(chatID, fmt.Sprintf(msgLoggedIn, sess.Profile), nil),
		reply(chatID, msgChooseAction, mainMenu()),
	}
}

func (m *Machine) beginTicket(chatID int64) []connector.OutboundMessage {
	if _, ok := m.sessions.Get(chatID); !ok {
		return []connector.OutboundMessage{reply(chatID, msgNotAuthorized, nil)}
	}
	m.states.Set(chatID, State{Step: StepAwaitingTitle})
	return []connector.OutboundMessage{reply(chatID, msgAskTitle, cancelKeyboard())}
}

func (m *Machine) onTitle(chatID int64, st State, text string) []connector.OutboundMessage {
	if text == "" {
		return []connector.OutboundMessage{reply(chatID, msgAskTitle, nil)}
	}
	st.Form.Title = text
	st.Step = StepAwaitingDescription
	m.states.Set(chatID, st)
	return []connector.OutboundMessage{reply(chatID, msgAskDescription, nil)}
}

func (m *Machine) onDescription(chatID int64, st State, text string) []connector.OutboundMessage {
	if text == "" {
		return []connector.OutboundMessage{reply(chatID, msgAskDescription, nil)}
	}
	st.Form.Description = text
	st.Step = StepAwaitingUrgency
	m.states.Set(chatID, st)
	return []connector.OutboundMessage{reply(chatID, msgAskUrgency, urgencyKeyboard())}
}

func (m *Machine) onUrgency(chatID int64, st State, text string) []connector.OutboundMessage {
	urgency, ok := ParseUrgency(text)
	if !ok {
		return []connector.OutboundMessage{reply(chatID, msgBadUrgency, urgencyKeyboard())}
	}
	st.Form.Urgency = urgency
	st.Step = StepAwaitingType
	m.states.Set(chatID, st)
	return []connector.OutboundMessage{reply(chatID, msgAskType, typeKeyboard())}
}

func (m *Machine) onType(ctx context.Context, chatID int64, st State, text string) []connector.OutboundMessage {
	typ, ok := ParseType(text)
	if !ok {
		return []connector.OutboundMessage{reply(chatID, msgBadType, typeKeyboard())}
	}
	st.Form.Type = typ
	m.states.Clear(chatID)

	sess, ok := m.sessions.Get(chatID)
	if !ok || sess.Token == "" {
		return []connector.OutboundMessage{reply(chatID, msgSessionLost, connector.RemoveKeyboard())}
	}

	_, err := m.helpdesk.SubmitTicket(ctx, sess, helpdesk.Draft{
		Title:       st.Form.Title,
		Description: st.Form.Description,
		Urgency:     st.Form.Urgency,
		Type:        st.Form.Type,
	})
	if err != nil {
		m.logger.Error("ticket creation failed", "chat_id", chatID, "error", err)
		return []connector.OutboundMessage{reply(chatID, msgTicketFailed, mainMenu())}
	}
	return []connector.OutboundMessage{reply(chatID, msgTicketCreated, mainMenu())}
}

func (m *Machine) listTickets(ctx context.Context, chatID int64) []connector.OutboundMessage {
	sess, ok := m.sessions.Get(chatID)
	if !ok || sess.Token == "" {
		return []connector.OutboundMessage{reply(chatID, msgListNoSession, nil)}
	}

	out := []connector.OutboundMessage{reply(chatID, msgFetching, nil)}
	tickets, err := m.helpdesk.VisibleTickets(ctx, sess)
	switch {
	case err != nil:
		m.logger.Error("list tickets failed", "chat_id", chatID, "error", err)
		out = append(out, reply(chatID, msgListFailed, mainMenu()))
	case len(tickets) == 0:
		out = append(out, reply(chatID, msgNoTickets, mainMenu()))
	default:
		out = append(out, reply(chatID, FormatTicketList(tickets), mainMenu()))
	}
	return out
}

// ParseUrgency accepts input whose leading token is an integer in [1,5],
// such as "3" or the button caption "3 - Средняя".
func ParseUrgency(text string) (int, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimRight(fields[0], "-.)"))
	if err != nil || n < 1 || n > 5 {
		return 0, false
	}
	return n, true
}

// ParseType maps a type caption to its GLPI code: 1 incident, 2 request.
func ParseType(text string) (int, bool) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case strings.ToLower(BtnIncident):
		return 1, true
	case strings.ToLower(BtnRequest):
		return 2, true
	}
	return 0, false
}

func isCommand(lower, cmd string) bool {
	return lower == cmd || strings.HasPrefix(lower, cmd+" ") || strings.HasPrefix(lower, cmd+"@")
}

func isCancel(lower string) bool {
	return lower == strings.ToLower(BtnCancel) || lower == "отмена" || isCommand(lower, "/cancel")
}

func reply(chatID int64, text string, kb *connector.Keyboard) connector.OutboundMessage {
	return connector.OutboundMessage{ChatID: chatID, Text: text, Keyboard: kb}
}

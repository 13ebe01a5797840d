package helpdesk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/glpibot/glpibot/internal/glpi"
	"github.com/glpibot/glpibot/internal/session"
)

var (
	// ErrAuthFailed is returned when the backend rejects the credentials.
	ErrAuthFailed = errors.New("helpdesk: authentication failed")
	// ErrNoRecipient is returned for tickets without a chat id stamp.
	ErrNoRecipient = errors.New("helpdesk: ticket has no chat recipient")
)

// DefaultProfile is assumed when the active profile cannot be read.
const DefaultProfile = "Normal"

// Backend is the subset of the GLPI client the service needs.
type Backend interface {
	InitSession(ctx context.Context, login, password string) (string, error)
	GetFullSession(ctx context.Context, token string) (*glpi.FullSession, error)
	KillSession(ctx context.Context, token string) error
	ListTickets(ctx context.Context, token string) ([]glpi.Ticket, error)
	GetTicket(ctx context.Context, token string, id int) (*glpi.Ticket, error)
	ListFollowups(ctx context.Context, token string, ticketID int) ([]glpi.Comment, error)
	GetUser(ctx context.Context, token string, id int) (*glpi.User, error)
	CreateTicket(ctx context.Context, token string, in glpi.TicketInput) (int, error)
}

// Classifier tags free text with a category label.
type Classifier interface {
	Classify(ctx context.Context, text string) (string, float64)
}

// Draft is a ticket collected from the chat dialog.
type Draft struct {
	Title       string
	Description string
	Urgency     int // 1..5
	Type        int // 1 incident, 2 request
}

// Service implements helpdesk operations on behalf of chat users.
type Service struct {
	backend    Backend
	classifier Classifier
	logger     *slog.Logger
}

// New creates a service. classifier may be nil.
func New(backend Backend, classifier Classifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{backend: backend, classifier: classifier, logger: logger}
}

// Authenticate logs chatID in with backend credentials. The returned session
// is not stored; the caller decides what to do with it.
func (s *Service) Authenticate(ctx context.Context, chatID int64, login, password string) (session.Session, error) {
	token, err := s.backend.InitSession(ctx, login, password)
	if err != nil {
		s.logger.Info("login rejected", "chat_id", chatID, "error", err)
		return session.Session{}, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	sess := session.Session{ChatID: chatID, Token: token, Profile: DefaultProfile}
	full, err := s.backend.GetFullSession(ctx, token)
	if err != nil {
		s.logger.Warn("full session unavailable, assuming default profile", "chat_id", chatID, "error", err)
	} else {
		if full.Profile != "" {
			sess.Profile = full.Profile
		}
		sess.UserID = full.UserID
	}
	sess.Role = session.RoleFromProfile(sess.Profile)

	s.logger.Info("user logged in", "chat_id", chatID, "profile", sess.Profile, "role", sess.Role.String())
	return sess, nil
}

// Logout invalidates the backend session token.
func (s *Service) Logout(ctx context.Context, sess session.Session) error {
	if sess.Token == "" {
		return nil
	}
	return s.backend.KillSession(ctx, sess.Token)
}

// VisibleTickets returns the tickets sess may see, newest first.
func (s *Service) VisibleTickets(ctx context.Context, sess session.Session) ([]glpi.Ticket, error) {
	all, err := s.backend.ListTickets(ctx, sess.Token)
	if err != nil {
		return nil, err
	}
	if sess.Role.Elevated() {
		return all, nil
	}
	var out []glpi.Ticket
	for _, t := range all {
		if Visible(sess, t) {
			out = append(out, t)
		}
	}
	return out, nil
}

// Visible reports whether a regular user may see t: they are its recipient
// or the ticket body carries their chat id stamp. Elevated roles see all.
func Visible(sess session.Session, t glpi.Ticket) bool {
	if sess.Role.Elevated() {
		return true
	}
	if sess.UserID != 0 && int(t.RecipientID) == sess.UserID {
		return true
	}
	return strings.Contains(glpi.CleanContent(t.Content), chatStamp(sess.ChatID))
}

// Ticket fetches a ticket with its full body.
func (s *Service) Ticket(ctx context.Context, sess session.Session, id int) (*glpi.Ticket, error) {
	return s.backend.GetTicket(ctx, sess.Token, id)
}

// Comments fetches the comments of a ticket in server order.
func (s *Service) Comments(ctx context.Context, sess session.Session, ticketID int) ([]glpi.Comment, error) {
	return s.backend.ListFollowups(ctx, sess.Token, ticketID)
}

// AuthorName renders the author of a comment. User id 0 is anonymous;
// a failed lookup falls back to the numeric id.
func (s *Service) AuthorName(ctx context.Context, sess session.Session, userID int) string {
	if userID == 0 {
		return "Anonymous"
	}
	u, err := s.backend.GetUser(ctx, sess.Token, userID)
	if err != nil {
		s.logger.Debug("user lookup failed", "user_id", userID, "error", err)
		return "User " + strconv.Itoa(userID)
	}
	if name := u.DisplayName(); name != "" {
		return name
	}
	return "User " + strconv.Itoa(userID)
}

// SubmitTicket classifies and creates a ticket on behalf of sess.
func (s *Service) SubmitTicket(ctx context.Context, sess session.Session, d Draft) (int, error) {
	category, score := "Другое", 0.0
	if s.classifier != nil {
		category, score = s.classifier.Classify(ctx, strings.TrimSpace(d.Title+": "+d.Description))
		s.logger.Debug("ticket classified", "chat_id", sess.ChatID, "category", category, "score", score)
	}

	id, err := s.backend.CreateTicket(ctx, sess.Token, glpi.TicketInput{
		Name:           d.Title,
		Content:        StampContent(sess.ChatID, category, score, d.Description),
		Urgency:        d.Urgency,
		Type:           d.Type,
		ITILCategoryID: 1,
	})
	if err != nil {
		return 0, fmt.Errorf("helpdesk: submit ticket: %w", err)
	}
	s.logger.Info("ticket created", "chat_id", sess.ChatID, "ticket", id, "category", category)
	return id, nil
}

// StampContent builds the ticket body that links a ticket back to its chat
// and records the guessed category with its similarity score.
func StampContent(chatID int64, category string, score float64, description string) string {
	return fmt.Sprintf("Заявка от пользователя Telegram %s\n\nКатегория (определено автоматически): %s (%.2f)\n\nОписание проблемы:\n%s",
		chatStamp(chatID), category, score, description)
}

var reChatStamp = regexp.MustCompile(`\(ID:\s*(\d+)\)`)

// RecipientChatID extracts the chat id stamped into the ticket body.
func RecipientChatID(t glpi.Ticket) (int64, error) {
	m := reChatStamp.FindStringSubmatch(glpi.CleanContent(t.Content))
	if m == nil {
		return 0, ErrNoRecipient
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, ErrNoRecipient
	}
	return id, nil
}

func chatStamp(chatID int64) string {
	return "(ID: " + strconv.FormatInt(chatID, 10) + ")"
}

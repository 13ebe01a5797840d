package notifier

import (
	"context"
	"log/slog"
	"time"

	"github.com/glpibot/glpibot/internal/changes"
	"github.com/glpibot/glpibot/internal/connector"
	"github.com/glpibot/glpibot/internal/glpi"
	"github.com/glpibot/glpibot/internal/journal"
	"github.com/glpibot/glpibot/internal/session"
)

// AuthorResolver renders the display name of a backend user.
type AuthorResolver interface {
	AuthorName(ctx context.Context, sess session.Session, userID int) string
}

// Mirror receives a copy of every delivered notification.
type Mirror interface {
	Post(ctx context.Context, html string) error
}

// Journal records delivery attempts.
type Journal interface {
	Record(e journal.Entry) error
}

// Event is everything that changed on one ticket during one poll cycle.
type Event struct {
	Cycle    string
	TicketID int
	Title    string
	ChatID   int64
	Changes  changes.ChangeSet
	Comments []glpi.Comment // new comments in fetch order
}

// Result describes what Notify did.
type Result struct {
	Kind journal.Kind // "" when there was nothing to send
	Sent bool
}

// Notifier turns change events into chat messages.
type Notifier struct {
	sender  connector.Sender
	authors AuthorResolver
	mirror  Mirror
	journal Journal
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithMirror copies every delivered notification to m.
func WithMirror(m Mirror) Option {
	return func(n *Notifier) { n.mirror = m }
}

// WithJournal records every delivery attempt in j.
func WithJournal(j Journal) Option {
	return func(n *Notifier) { n.journal = j }
}

// WithClock sets the time source used for the "updated at" stamp.
func WithClock(now func() time.Time) Option {
	return func(n *Notifier) { n.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(n *Notifier) { n.logger = l }
}

// New creates a notifier sending through sender.
func New(sender connector.Sender, authors AuthorResolver, opts ...Option) *Notifier {
	n := &Notifier{
		sender:  sender,
		authors: authors,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify sends at most one message for ev. The shape follows from which of
// changes and comments is non-empty. Delivery errors are logged and
// journaled, never returned.
func (n *Notifier) Notify(ctx context.Context, sess session.Session, ev Event) Result {
	var kind journal.Kind
	var text string

	switch {
	case len(ev.Changes) > 0 && len(ev.Comments) > 0:
		kind = journal.KindCombined
		text = FormatCombined(ev.TicketID, ev.Title, ev.Changes, n.authored(ctx, sess, ev.Comments, maxCommentsCombined))
	case len(ev.Changes) > 0:
		kind = journal.KindChanges
		text = FormatChanges(ev.TicketID, ev.Title, ev.Changes, n.now())
	case len(ev.Comments) > 0:
		kind = journal.KindComments
		text = FormatComments(ev.TicketID, ev.Title, n.authored(ctx, sess, ev.Comments, maxCommentsOnly))
	default:
		return Result{}
	}

	log := n.logger.With("ticket", ev.TicketID, "chat_id", ev.ChatID, "kind", string(kind), "cycle", ev.Cycle)

	err := n.sender.Send(ctx, connector.OutboundMessage{
		ChatID:         ev.ChatID,
		Text:           text,
		HTML:           true,
		DisablePreview: true,
	})
	entry := journal.Entry{
		Cycle:    ev.Cycle,
		TicketID: ev.TicketID,
		ChatID:   ev.ChatID,
		Kind:     kind,
		Status:   journal.StatusSent,
		SentAt:   n.now(),
	}
	if err != nil {
		log.Error("notification delivery failed", "error", err)
		entry.Status = journal.StatusFailed
		entry.Error = err.Error()
	} else {
		log.Info("notification sent", "changes", len(ev.Changes), "comments", len(ev.Comments))
	}

	if n.journal != nil {
		if jerr := n.journal.Record(entry); jerr != nil {
			log.Warn("journal record failed", "error", jerr)
		}
	}
	if err == nil && n.mirror != nil {
		if merr := n.mirror.Post(ctx, text); merr != nil {
			log.Warn("mirror post failed", "error", merr)
		}
	}

	return Result{Kind: kind, Sent: err == nil}
}

// authored resolves authors of the last max comments only, so skipped
// comments cost no lookups.
func (n *Notifier) authored(ctx context.Context, sess session.Session, comments []glpi.Comment, max int) []AuthoredComment {
	if len(comments) > max {
		comments = comments[len(comments)-max:]
	}
	out := make([]AuthoredComment, len(comments))
	for i, c := range comments {
		out[i] = AuthoredComment{
			Author: n.authors.AuthorName(ctx, sess, int(c.UserID)),
			Date:   c.Date,
			Body:   c.Content,
		}
	}
	return out
}

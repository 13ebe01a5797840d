package notifier

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glpibot/glpibot/internal/changes"
	"github.com/glpibot/glpibot/internal/connector"
	"github.com/glpibot/glpibot/internal/glpi"
	"github.com/glpibot/glpibot/internal/journal"
	"github.com/glpibot/glpibot/internal/session"
)

type mockSender struct {
	mu   sync.Mutex
	sent []connector.OutboundMessage
	err  error
}

func (s *mockSender) Send(_ context.Context, msg connector.OutboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

// mockAuthors names user N "Author N" and records lookups.
type mockAuthors struct{ lookups []int }

func (a *mockAuthors) AuthorName(_ context.Context, _ session.Session, id int) string {
	a.lookups = append(a.lookups, id)
	if id == 0 {
		return "Anonymous"
	}
	return "Author " + strconv.Itoa(id)
}

type mockJournal struct{ entries []journal.Entry }

func (j *mockJournal) Record(e journal.Entry) error {
	j.entries = append(j.entries, e)
	return nil
}

type mockMirror struct{ posts []string }

func (m *mockMirror) Post(_ context.Context, html string) error {
	m.posts = append(m.posts, html)
	return nil
}

var fixedNow = time.Date(2026, 10, 19, 14, 30, 0, 0, time.UTC)

func newTestNotifier(sender *mockSender) (*Notifier, *mockAuthors, *mockJournal, *mockMirror) {
	a, j, m := &mockAuthors{}, &mockJournal{}, &mockMirror{}
	n := New(sender, a, WithJournal(j), WithMirror(m), WithClock(func() time.Time { return fixedNow }))
	return n, a, j, m
}

func comment(id, user int, body string) glpi.Comment {
	return glpi.Comment{ID: glpi.Int(id), UserID: glpi.Int(user), Content: body, Date: "2026-10-19 14:00:00"}
}

func statusChange() changes.ChangeSet {
	return changes.ChangeSet{{Field: changes.FieldStatus, Label: "Status", Before: "🆕 Новая", After: "✅ Решена"}}
}

func TestNotify_Nothing(t *testing.T) {
	s := &mockSender{}
	n, _, j, _ := newTestNotifier(s)
	res := n.Notify(context.Background(), session.Session{}, Event{TicketID: 1, ChatID: 5})
	if res.Kind != "" || res.Sent || len(s.sent) != 0 || len(j.entries) != 0 {
		t.Errorf("expected no notification, got %+v", res)
	}
}

func TestNotify_ChangesOnly(t *testing.T) {
	s := &mockSender{}
	n, _, j, m := newTestNotifier(s)

	res := n.Notify(context.Background(), session.Session{}, Event{
		Cycle: "c1", TicketID: 12, Title: "Printer <2>", ChatID: 555, Changes: statusChange(),
	})
	if res.Kind != journal.KindChanges || !res.Sent {
		t.Fatalf("result = %+v", res)
	}
	if len(s.sent) != 1 {
		t.Fatalf("sent %d messages", len(s.sent))
	}
	msg := s.sent[0]
	if msg.ChatID != 555 || !msg.HTML || !msg.DisablePreview {
		t.Errorf("unexpected options: %+v", msg)
	}
	for _, want := range []string{
		"🔔 <b>Ticket #12 updated</b>",
		"📌 Printer &lt;2&gt;",
		"<b>Status</b>\nwas: 🆕 Новая\nnow: ✅ Решена",
		"🕒 Updated at 2026-10-19 14:30:00",
	} {
		if !strings.Contains(msg.Text, want) {
			t.Errorf("missing %q in:\n%s", want, msg.Text)
		}
	}

	if len(j.entries) != 1 || j.entries[0].Status != journal.StatusSent || j.entries[0].Cycle != "c1" {
		t.Errorf("journal = %+v", j.entries)
	}
	if len(m.posts) != 1 || m.posts[0] != msg.Text {
		t.Errorf("mirror = %v", m.posts)
	}
}

func TestNotify_CommentsOnly_LastThree(t *testing.T) {
	s := &mockSender{}
	n, a, _, _ := newTestNotifier(s)

	res := n.Notify(context.Background(), session.Session{}, Event{
		TicketID: 3, Title: "VPN", ChatID: 1,
		Comments: []glpi.Comment{
			comment(1, 10, "first"),
			comment(2, 11, "second"),
			comment(3, 0, "third"),
			comment(4, 12, "<p>fourth &amp; last</p>"),
		},
	})
	if res.Kind != journal.KindComments {
		t.Fatalf("kind = %q", res.Kind)
	}
	text := s.sent[0].Text
	if !strings.HasPrefix(text, "💬 <b>New comments on ticket #3</b>") {
		t.Errorf("unexpected header:\n%s", text)
	}
	if strings.Contains(text, "first") {
		t.Error("only the last three comments should be shown")
	}
	for _, want := range []string{"👤 <b>Author 11</b> · 2026-10-19 14:00:00", "👤 <b>Anonymous</b>", "fourth &amp; last"} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in:\n%s", want, text)
		}
	}
	if strings.Contains(text, "🕒") {
		t.Error("comment notifications carry no updated-at stamp")
	}
	if len(a.lookups) != 3 {
		t.Errorf("expected 3 author lookups, got %v", a.lookups)
	}
}

func TestNotify_Combined_LastTwo(t *testing.T) {
	s := &mockSender{}
	n, _, _, _ := newTestNotifier(s)

	res := n.Notify(context.Background(), session.Session{}, Event{
		TicketID: 12, Title: "Printer", ChatID: 555,
		Changes:  statusChange(),
		Comments: []glpi.Comment{comment(75, 1, "one"), comment(76, 2, "two"), comment(77, 3, "three")},
	})
	if res.Kind != journal.KindCombined || !res.Sent {
		t.Fatalf("result = %+v", res)
	}
	text := s.sent[0].Text
	for _, want := range []string{"was: 🆕 Новая", "now: ✅ Решена", "💬 <b>New comments:</b>", "two", "three"} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in:\n%s", want, text)
		}
	}
	if strings.Contains(text, "one") {
		t.Error("only the last two comments should be shown")
	}
	if strings.Index(text, "now: ✅ Решена") > strings.Index(text, "New comments") {
		t.Error("change blocks must precede comments")
	}
}

func TestNotify_DeliveryFailure(t *testing.T) {
	s := &mockSender{err: errors.New("chat not found")}
	n, _, j, m := newTestNotifier(s)

	res := n.Notify(context.Background(), session.Session{}, Event{TicketID: 1, ChatID: 9, Changes: statusChange()})
	if res.Sent || res.Kind != journal.KindChanges {
		t.Errorf("result = %+v", res)
	}
	if len(j.entries) != 1 || j.entries[0].Status != journal.StatusFailed || j.entries[0].Error != "chat not found" {
		t.Errorf("journal = %+v", j.entries)
	}
	if len(m.posts) != 0 {
		t.Error("failed deliveries must not be mirrored")
	}
}

func TestFormatComments_Truncation(t *testing.T) {
	body := strings.Repeat("я", 250)
	text := FormatComments(1, "", []AuthoredComment{{Author: "A", Body: body}})
	if !strings.Contains(text, strings.Repeat("я", CommentBudget)+"...") {
		t.Error("comment body should be cut to 200 characters")
	}
	if strings.Contains(text, strings.Repeat("я", CommentBudget+1)) {
		t.Error("comment body too long")
	}
	if !strings.Contains(text, "📌 "+changes.NotSpecified) {
		t.Errorf("missing title placeholder:\n%s", text)
	}
}

func TestEscapeHTML(t *testing.T) {
	if got := EscapeHTML(`a < b & c > "d"`); got != `a &lt; b &amp; c &gt; "d"` {
		t.Errorf("got %q", got)
	}
}

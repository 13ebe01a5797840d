package notifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/glpibot/glpibot/internal/changes"
	"github.com/glpibot/glpibot/internal/glpi"
)

const (
	// CommentBudget is how many runes of a comment body are shown.
	CommentBudget = 200

	maxCommentsOnly     = 3
	maxCommentsCombined = 2

	timeLayout = "2006-01-02 15:04:05"
)

// AuthoredComment is a comment with its author already resolved.
type AuthoredComment struct {
	Author string
	Date   string
	Body   string // raw backend content
}

// FormatComments renders the comments-only notification.
func FormatComments(ticketID int, title string, comments []AuthoredComment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "💬 <b>New comments on ticket #%d</b>\n", ticketID)
	writeTitle(&b, title)
	for _, c := range lastN(comments, maxCommentsOnly) {
		b.WriteString("\n")
		writeComment(&b, c)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatChanges renders the changes-only notification, stamped with now.
func FormatChanges(ticketID int, title string, cs changes.ChangeSet, now time.Time) string {
	var b strings.Builder
	writeChangeHeader(&b, ticketID, title)
	writeChanges(&b, cs)
	fmt.Fprintf(&b, "\n🕒 Updated at %s", now.Format(timeLayout))
	return b.String()
}

// FormatCombined renders changes followed by the newest comments.
func FormatCombined(ticketID int, title string, cs changes.ChangeSet, comments []AuthoredComment) string {
	var b strings.Builder
	writeChangeHeader(&b, ticketID, title)
	writeChanges(&b, cs)
	b.WriteString("\n💬 <b>New comments:</b>\n")
	for _, c := range lastN(comments, maxCommentsCombined) {
		b.WriteString("\n")
		writeComment(&b, c)
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeChangeHeader(b *strings.Builder, ticketID int, title string) {
	fmt.Fprintf(b, "🔔 <b>Ticket #%d updated</b>\n", ticketID)
	writeTitle(b, title)
}

func writeTitle(b *strings.Builder, title string) {
	if title == "" {
		title = changes.NotSpecified
	}
	fmt.Fprintf(b, "📌 %s\n", EscapeHTML(title))
}

func writeChanges(b *strings.Builder, cs changes.ChangeSet) {
	for _, c := range cs {
		fmt.Fprintf(b, "\n<b>%s</b>\nwas: %s\nnow: %s\n", EscapeHTML(c.Label), EscapeHTML(c.Before), EscapeHTML(c.After))
	}
}

func writeComment(b *strings.Builder, c AuthoredComment) {
	fmt.Fprintf(b, "👤 <b>%s</b>", EscapeHTML(c.Author))
	if c.Date != "" {
		fmt.Fprintf(b, " · %s", EscapeHTML(c.Date))
	}
	body := changes.Truncate(glpi.CleanContent(c.Body), CommentBudget)
	fmt.Fprintf(b, "\n%s\n", EscapeHTML(body))
}

func lastN(comments []AuthoredComment, n int) []AuthoredComment {
	if len(comments) > n {
		return comments[len(comments)-n:]
	}
	return comments
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// EscapeHTML escapes the three characters Telegram HTML requires.
func EscapeHTML(s string) string { return htmlEscaper.Replace(s) }

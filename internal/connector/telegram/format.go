package telegram

import (
	"html"
	"regexp"
	"strings"
)

var (
	reBreak = regexp.MustCompile(`(?i)<br\s*/?>`)
	reTag   = regexp.MustCompile(`<[^>]*>`)
)

// StripHTML turns a Telegram HTML message into plain text, keeping its line
// structure.
func StripHTML(s string) string {
	s = reBreak.ReplaceAllString(s, "\n")
	s = reTag.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	return strings.TrimSpace(s)
}

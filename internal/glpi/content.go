package glpi

import (
	"html"
	"regexp"
	"strings"
)

var reTag = regexp.MustCompile(`<[^>]+>`)

// CleanContent turns a GLPI rich-text body into a single line of plain text:
// entities are decoded, tags dropped and whitespace collapsed.
func CleanContent(s string) string {
	if s == "" {
		return ""
	}
	s = html.UnescapeString(s)
	s = reTag.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

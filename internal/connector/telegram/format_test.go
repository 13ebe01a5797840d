package telegram

import "testing"

func TestStripHTML(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"🔔 <b>Ticket #12 updated</b>\n📌 Printer &lt;2&gt;", "🔔 Ticket #12 updated\n📌 Printer <2>"},
		{"a<br/>b<BR>c", "a\nb\nc"},
		{"<i>x</i> &amp; <code>y</code>\n", "x & y"},
	}
	for _, tt := range tests {
		if got := StripHTML(tt.in); got != tt.want {
			t.Errorf("StripHTML(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

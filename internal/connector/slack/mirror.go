package slackconn

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/slack-go/slack"
)

// Config holds Slack mirror configuration.
type Config struct {
	BotToken string // xoxb-... Bot User OAuth Token
	Channel  string // channel id or name notifications are copied to
	APIURL   string // optional API base URL, mainly for tests
}

// Mirror copies outgoing notifications to one Slack channel for the
// helpdesk team. It only posts; it never reads from Slack.
type Mirror struct {
	api     *slack.Client
	channel string
	logger  *slog.Logger
}

// New creates a Slack mirror.
func New(cfg Config, logger *slog.Logger) (*Mirror, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("slack: bot_token is required")
	}
	if cfg.Channel == "" {
		return nil, fmt.Errorf("slack: channel is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var opts []slack.Option
	if cfg.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(strings.TrimSuffix(cfg.APIURL, "/")+"/"))
	}

	return &Mirror{
		api:     slack.New(cfg.BotToken, opts...),
		channel: cfg.Channel,
		logger:  logger,
	}, nil
}

// Check verifies the token with auth.test.
func (m *Mirror) Check(ctx context.Context) error {
	resp, err := m.api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack: auth test: %w", err)
	}
	m.logger.Info("slack mirror authorized", "user", resp.User, "team", resp.Team, "channel", m.channel)
	return nil
}

// Post sends a Telegram-HTML formatted text to the mirror channel.
func (m *Mirror) Post(ctx context.Context, html string) error {
	text := HTMLToMrkdwn(html)
	if strings.TrimSpace(text) == "" {
		return nil
	}
	_, _, err := m.api.PostMessageContext(ctx, m.channel, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

var (
	reBoldTag   = regexp.MustCompile(`(?s)<b>(.*?)</b>`)
	reItalicTag = regexp.MustCompile(`(?s)<i>(.*?)</i>`)
	reCodeTag   = regexp.MustCompile(`(?s)<code>(.*?)</code>`)
	reAnyTag    = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)
)

// HTMLToMrkdwn converts the Telegram HTML subset to Slack mrkdwn. The
// entities &amp; &lt; &gt; mean the same in both and are kept as-is.
func HTMLToMrkdwn(s string) string {
	s = reBoldTag.ReplaceAllString(s, "*$1*")
	s = reItalicTag.ReplaceAllString(s, "_${1}_")
	s = reCodeTag.ReplaceAllString(s, "`$1`")
	return reAnyTag.ReplaceAllString(s, "")
}

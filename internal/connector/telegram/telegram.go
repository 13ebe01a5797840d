package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/glpibot/glpibot/internal/connector"
)

// Config holds Telegram connector configuration.
type Config struct {
	Token     string  // Bot token from @BotFather
	AllowFrom []int64 // Allowed Telegram user IDs (empty = allow all)
	APIURL    string  // Bot API endpoint format; empty uses api.telegram.org
}

// botAPI is the part of tgbotapi.BotAPI the connector uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Connector implements the connector.Connector interface for Telegram.
type Connector struct {
	bot      botAPI
	username string
	config   Config
	handler  connector.InboundHandler
	logger   *slog.Logger
	cancel   context.CancelFunc
}

// New creates a new Telegram connector and authorizes the bot token.
func New(cfg Config, handler connector.InboundHandler, logger *slog.Logger) (*Connector, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram: bot token is required")
	}
	endpoint := cfg.APIURL
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(cfg.Token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("telegram: init bot: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("telegram bot authorized", "username", bot.Self.UserName)

	c := newConnector(bot, cfg, handler, logger)
	c.username = bot.Self.UserName
	return c, nil
}

func newConnector(bot botAPI, cfg Config, handler connector.InboundHandler, logger *slog.Logger) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{
		bot:     bot,
		config:  cfg,
		handler: handler,
		logger:  logger,
	}
}

func (c *Connector) Name() string { return "telegram" }

// Start begins long-polling for updates. Blocks until context is cancelled.
func (c *Connector) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := c.bot.GetUpdatesChan(u)

	c.logger.Info("telegram connector started", "bot", c.username)

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				c.logger.Info("telegram update channel closed")
				return nil
			}
			if update.Message == nil {
				continue
			}
			c.handleUpdate(ctx, update.Message)

		case <-ctx.Done():
			c.bot.StopReceivingUpdates()
			c.logger.Info("telegram connector stopped")
			return ctx.Err()
		}
	}
}

// Stop gracefully shuts down the connector.
func (c *Connector) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

// Send delivers a message to a Telegram chat. An HTML message rejected by
// Telegram is retried once as plain text.
func (c *Connector) Send(_ context.Context, msg connector.OutboundMessage) error {
	if strings.TrimSpace(msg.Text) == "" {
		c.logger.Warn("skipping empty message", "chat_id", msg.ChatID)
		return nil
	}

	tgMsg := tgbotapi.NewMessage(msg.ChatID, msg.Text)
	tgMsg.DisableWebPagePreview = msg.DisablePreview
	if markup := replyMarkup(msg.Keyboard); markup != nil {
		tgMsg.ReplyMarkup = markup
	}
	if msg.HTML {
		tgMsg.ParseMode = tgbotapi.ModeHTML
	}

	_, err := c.bot.Send(tgMsg)
	if err != nil && msg.HTML {
		c.logger.Warn("HTML send failed, falling back to plain text",
			"chat_id", msg.ChatID,
			"error", err,
		)
		tgMsg.Text = StripHTML(msg.Text)
		tgMsg.ParseMode = ""
		_, err = c.bot.Send(tgMsg)
	}
	if err != nil {
		return fmt.Errorf("telegram: send to %d: %w", msg.ChatID, err)
	}
	return nil
}

func replyMarkup(kb *connector.Keyboard) any {
	switch {
	case kb == nil:
		return nil
	case kb.Remove:
		return tgbotapi.NewRemoveKeyboard(true)
	}
	rows := make([][]tgbotapi.KeyboardButton, 0, len(kb.Rows))
	for _, r := range kb.Rows {
		buttons := make([]tgbotapi.KeyboardButton, len(r))
		for i, label := range r {
			buttons[i] = tgbotapi.NewKeyboardButton(label)
		}
		rows = append(rows, buttons)
	}
	markup := tgbotapi.NewReplyKeyboard(rows...)
	markup.ResizeKeyboard = true
	return markup
}

func (c *Connector) handleUpdate(ctx context.Context, msg *tgbotapi.Message) {
	// Dialog state and sessions are keyed by chat, so only one-to-one chats
	// are served.
	if msg.Chat == nil || !msg.Chat.IsPrivate() {
		if msg.Chat != nil {
			c.logger.Debug("ignoring non-private chat", "chat_id", msg.Chat.ID, "chat_type", msg.Chat.Type)
		}
		return
	}
	chatID := msg.Chat.ID
	var userID int64
	if msg.From != nil {
		userID = msg.From.ID
	}

	// Access control
	if len(c.config.AllowFrom) > 0 && !contains(c.config.AllowFrom, userID) {
		c.logger.Warn("unauthorized user", "user_id", userID)
		return
	}

	// Commands are forwarded verbatim; the dialog interprets them.
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	inbound := connector.InboundMessage{
		Channel:  c.Name(),
		SenderID: userID,
		ChatID:   chatID,
		Content:  text,
	}

	for _, out := range c.handler(ctx, inbound) {
		if err := c.Send(ctx, out); err != nil {
			c.logger.Error("reply failed", "chat_id", out.ChatID, "error", err)
		}
	}
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

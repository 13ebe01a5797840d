package telegram

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/glpibot/glpibot/internal/connector"
)

// Verify Connector implements connector.Connector at compile time.
var _ connector.Connector = (*Connector)(nil)

type fakeBot struct {
	sent    []tgbotapi.MessageConfig
	failFor string // ParseMode that makes Send fail
	updates chan tgbotapi.Update
	stopped bool
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg := c.(tgbotapi.MessageConfig)
	if b.failFor != "" && msg.ParseMode == b.failFor {
		return tgbotapi.Message{}, errors.New("Bad Request: can't parse entities")
	}
	b.sent = append(b.sent, msg)
	return tgbotapi.Message{}, nil
}

func (b *fakeBot) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return b.updates
}

func (b *fakeBot) StopReceivingUpdates() { b.stopped = true }

func TestContains(t *testing.T) {
	ids := []int64{100, 200, 300}

	if !contains(ids, 200) {
		t.Error("expected 200 to be found")
	}
	if contains(ids, 999) {
		t.Error("expected 999 to not be found")
	}
	if contains(nil, 100) {
		t.Error("expected nil slice to return false")
	}
}

func TestSendHTMLWithKeyboard(t *testing.T) {
	bot := &fakeBot{}
	c := newConnector(bot, Config{}, nil, nil)

	err := c.Send(context.Background(), connector.OutboundMessage{
		ChatID:         42,
		Text:           "<b>hi</b>",
		HTML:           true,
		DisablePreview: true,
		Keyboard:       &connector.Keyboard{Rows: [][]string{{"A", "B"}, {"C"}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(bot.sent) != 1 {
		t.Fatalf("sent %d messages", len(bot.sent))
	}
	msg := bot.sent[0]
	if msg.ChatID != 42 || msg.ParseMode != tgbotapi.ModeHTML || !msg.DisableWebPagePreview {
		t.Errorf("unexpected message: %+v", msg)
	}
	kb, ok := msg.ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	if !ok {
		t.Fatalf("reply markup = %T", msg.ReplyMarkup)
	}
	if !kb.ResizeKeyboard || len(kb.Keyboard) != 2 || len(kb.Keyboard[0]) != 2 || kb.Keyboard[1][0].Text != "C" {
		t.Errorf("unexpected keyboard: %+v", kb)
	}
}

func TestSendRemoveKeyboard(t *testing.T) {
	bot := &fakeBot{}
	c := newConnector(bot, Config{}, nil, nil)

	if err := c.Send(context.Background(), connector.OutboundMessage{ChatID: 1, Text: "bye", Keyboard: connector.RemoveKeyboard()}); err != nil {
		t.Fatal(err)
	}
	if _, ok := bot.sent[0].ReplyMarkup.(tgbotapi.ReplyKeyboardRemove); !ok {
		t.Errorf("reply markup = %T", bot.sent[0].ReplyMarkup)
	}
	if bot.sent[0].ParseMode != "" {
		t.Error("plain messages must not set a parse mode")
	}
}

func TestSendPlainTextFallback(t *testing.T) {
	bot := &fakeBot{failFor: tgbotapi.ModeHTML}
	c := newConnector(bot, Config{}, nil, nil)

	err := c.Send(context.Background(), connector.OutboundMessage{ChatID: 1, Text: "<b>Ticket</b> &amp; more", HTML: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(bot.sent) != 1 || bot.sent[0].Text != "Ticket & more" || bot.sent[0].ParseMode != "" {
		t.Errorf("unexpected fallback: %+v", bot.sent)
	}
}

func TestSendSkipsEmpty(t *testing.T) {
	bot := &fakeBot{}
	c := newConnector(bot, Config{}, nil, nil)
	if err := c.Send(context.Background(), connector.OutboundMessage{ChatID: 1, Text: "  "}); err != nil {
		t.Fatal(err)
	}
	if len(bot.sent) != 0 {
		t.Error("empty message should not be sent")
	}
}

func TestStartDispatchesToHandler(t *testing.T) {
	bot := &fakeBot{updates: make(chan tgbotapi.Update, 3)}
	var got []connector.InboundMessage
	handler := func(_ context.Context, in connector.InboundMessage) []connector.OutboundMessage {
		got = append(got, in)
		return []connector.OutboundMessage{{ChatID: in.ChatID, Text: "echo: " + in.Content}}
	}
	c := newConnector(bot, Config{AllowFrom: []int64{7}}, handler, nil)

	bot.updates <- tgbotapi.Update{Message: &tgbotapi.Message{From: &tgbotapi.User{ID: 7}, Chat: &tgbotapi.Chat{ID: 70, Type: "private"}, Text: "/start"}}
	bot.updates <- tgbotapi.Update{Message: &tgbotapi.Message{From: &tgbotapi.User{ID: 8}, Chat: &tgbotapi.Chat{ID: 80, Type: "private"}, Text: "intruder"}}
	bot.updates <- tgbotapi.Update{}
	close(bot.updates)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if len(got) != 1 || got[0].Content != "/start" || got[0].ChatID != 70 || got[0].SenderID != 7 {
		t.Fatalf("handler got %+v", got)
	}
	if len(bot.sent) != 1 || bot.sent[0].Text != "echo: /start" || bot.sent[0].ChatID != 70 {
		t.Errorf("replies = %+v", bot.sent)
	}
}

func TestStartIgnoresGroupChats(t *testing.T) {
	bot := &fakeBot{updates: make(chan tgbotapi.Update, 4)}
	var got []connector.InboundMessage
	handler := func(_ context.Context, in connector.InboundMessage) []connector.OutboundMessage {
		got = append(got, in)
		return []connector.OutboundMessage{{ChatID: in.ChatID, Text: "ok"}}
	}
	c := newConnector(bot, Config{}, handler, nil)

	// Two members of the same group must never share one dialog.
	bot.updates <- tgbotapi.Update{Message: &tgbotapi.Message{From: &tgbotapi.User{ID: 1}, Chat: &tgbotapi.Chat{ID: -100, Type: "group"}, Text: "/start"}}
	bot.updates <- tgbotapi.Update{Message: &tgbotapi.Message{From: &tgbotapi.User{ID: 2}, Chat: &tgbotapi.Chat{ID: -100, Type: "supergroup"}, Text: "secret"}}
	bot.updates <- tgbotapi.Update{Message: &tgbotapi.Message{From: &tgbotapi.User{ID: 3}, Chat: &tgbotapi.Chat{ID: -200, Type: "channel"}, Text: "/start"}}
	bot.updates <- tgbotapi.Update{Message: &tgbotapi.Message{From: &tgbotapi.User{ID: 1}, Chat: &tgbotapi.Chat{ID: 1, Type: "private"}, Text: "/start"}}
	close(bot.updates)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if len(got) != 1 || got[0].ChatID != 1 {
		t.Fatalf("handler got %+v", got)
	}
	if len(bot.sent) != 1 || bot.sent[0].ChatID != 1 {
		t.Errorf("replies = %+v", bot.sent)
	}
}

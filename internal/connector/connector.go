package connector

import "context"

// Connector is the interface for chat platforms the bot talks through.
type Connector interface {
	// Name returns the connector type (e.g., "telegram").
	Name() string
	// Start begins listening for inbound messages. Blocks until context is cancelled.
	Start(ctx context.Context) error
	// Stop gracefully shuts down the connector.
	Stop() error
	// Send delivers an outbound message to the platform.
	Send(ctx context.Context, msg OutboundMessage) error
}

// Sender is the send-only half of a Connector.
type Sender interface {
	Send(ctx context.Context, msg OutboundMessage) error
}

// OutboundMessage is a reply or notification sent to a chat.
type OutboundMessage struct {
	ChatID         int64
	Text           string
	HTML           bool      // Text uses the Telegram HTML subset
	DisablePreview bool      // suppress link previews
	Keyboard       *Keyboard // nil leaves the current keyboard untouched
}

// Keyboard is a reply keyboard shown under the input field.
type Keyboard struct {
	Rows   [][]string
	Remove bool // hide any keyboard instead of showing Rows
}

// RemoveKeyboard hides the reply keyboard.
func RemoveKeyboard() *Keyboard { return &Keyboard{Remove: true} }

// InboundMessage is a text message received from a chat.
type InboundMessage struct {
	Channel  string // connector name (e.g., "telegram")
	SenderID int64
	ChatID   int64
	Content  string
}

// InboundHandler processes a message and returns the replies to send back.
type InboundHandler func(ctx context.Context, msg InboundMessage) []OutboundMessage

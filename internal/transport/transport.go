package transport

import (
	"context"
	"io"
)

type Button struct {
	Text           string
	RequestContact bool
}

type ReplyOptions struct {
	// Keyboard replaces the reply keyboard, one slice per row.
	Keyboard       [][]Button
	RemoveKeyboard bool
	ReplyTo        int
}

// Transport delivers messages to a chat. Calls are fire-and-forget: an error
// only says the delivery failed.
type Transport interface {
	SendText(ctx context.Context, chatID int64, text string, opts *ReplyOptions) (messageID int, err error)
	SendDocument(ctx context.Context, chatID int64, name string, r io.Reader) error
	SendTyping(ctx context.Context, chatID int64) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

type Contact struct {
	Phone  string
	UserID int64
}

// Update is an inbound private message reduced to what the bot reads.
type Update struct {
	ID        int
	MessageID int
	ChatID    int64
	SenderID  int64
	Username  string
	FirstName string
	LastName  string

	Text        string
	Contact     *Contact
	PhotoFileID string
}

package transport

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"gopkg.in/telebot.v4"
)

// MessageEndpoints are the telebot endpoints a private message can arrive on.
// Anything without text, a contact or a photo still has to reach the dialogue
// so the current stage can re-prompt. OnMedia catches the media kinds that
// have no handler of their own.
var MessageEndpoints = []string{
	telebot.OnText,
	telebot.OnContact,
	telebot.OnPhoto,
	telebot.OnDocument,
	telebot.OnSticker,
	telebot.OnVoice,
	telebot.OnVideo,
	telebot.OnLocation,
	telebot.OnVenue,
	telebot.OnDice,
	telebot.OnPoll,
	telebot.OnGame,
	telebot.OnMedia,
}

// Telebot sends through the Bot API. telebot has no context support, so ctx
// is checked before each request to the API.
type Telebot struct {
	bot telebot.API
}

var _ Transport = (*Telebot)(nil)

func NewTelebot(bot telebot.API) *Telebot {
	return &Telebot{bot: bot}
}

func (t *Telebot) SendText(ctx context.Context, chatID int64, text string, opts *ReplyOptions) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	sendOpts := &telebot.SendOptions{ParseMode: telebot.ModeHTML}
	if opts != nil {
		sendOpts.ReplyMarkup = markup(opts)
		if opts.ReplyTo != 0 {
			sendOpts.ReplyTo = &telebot.Message{ID: opts.ReplyTo, Chat: &telebot.Chat{ID: chatID}}
		}
	}

	msg, err := t.bot.Send(telebot.ChatID(chatID), text, sendOpts)
	if err != nil {
		return 0, fmt.Errorf("sending text to %d: %w", chatID, err)
	}
	return msg.ID, nil
}

func (t *Telebot) SendDocument(ctx context.Context, chatID int64, name string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := t.bot.Notify(telebot.ChatID(chatID), telebot.UploadingDocument); err != nil {
		return fmt.Errorf("notifying upload to %d: %w", chatID, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	doc := &telebot.Document{File: telebot.FromReader(r), FileName: name}
	if _, err := t.bot.Send(telebot.ChatID(chatID), doc); err != nil {
		return fmt.Errorf("sending document to %d: %w", chatID, err)
	}
	return nil
}

func (t *Telebot) SendTyping(ctx context.Context, chatID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.bot.Notify(telebot.ChatID(chatID), telebot.Typing); err != nil {
		return fmt.Errorf("notifying typing to %d: %w", chatID, err)
	}
	return nil
}

func (t *Telebot) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := telebot.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chatID}
	if err := t.bot.Delete(msg); err != nil {
		return fmt.Errorf("deleting message %d in %d: %w", messageID, chatID, err)
	}
	return nil
}

func markup(opts *ReplyOptions) *telebot.ReplyMarkup {
	if opts.RemoveKeyboard {
		return &telebot.ReplyMarkup{RemoveKeyboard: true}
	}
	if len(opts.Keyboard) == 0 {
		return nil
	}

	m := &telebot.ReplyMarkup{ResizeKeyboard: true}
	rows := make([]telebot.Row, 0, len(opts.Keyboard))
	for _, buttons := range opts.Keyboard {
		row := make(telebot.Row, 0, len(buttons))
		for _, b := range buttons {
			if b.RequestContact {
				row = append(row, m.Contact(b.Text))
			} else {
				row = append(row, m.Text(b.Text))
			}
		}
		rows = append(rows, row)
	}
	m.Reply(rows...)
	return m
}

// FromTelebot converts a private-chat message update. ok is false for
// anything else: groups, channels, edits, callbacks.
func FromTelebot(tc telebot.Context) (Update, bool) {
	msg := tc.Message()
	if msg == nil || tc.Chat() == nil || tc.Sender() == nil {
		return Update{}, false
	}
	if tc.Chat().Type != telebot.ChatPrivate {
		return Update{}, false
	}

	u := Update{
		ID:        tc.Update().ID,
		MessageID: msg.ID,
		ChatID:    tc.Chat().ID,
		SenderID:  tc.Sender().ID,
		Username:  tc.Sender().Username,
		FirstName: tc.Sender().FirstName,
		LastName:  tc.Sender().LastName,
		Text:      msg.Text,
	}
	if msg.Contact != nil {
		u.Contact = &Contact{Phone: msg.Contact.PhoneNumber, UserID: msg.Contact.UserID}
	}
	if msg.Photo != nil {
		u.PhotoFileID = msg.Photo.FileID
	}
	return u, true
}

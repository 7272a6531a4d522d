package transport

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/telebot.v4"
)

// recordingAPI implements only the calls the transport makes.
type recordingAPI struct {
	telebot.API
	calls    []string
	onNotify func()
}

func (r *recordingAPI) Notify(_ telebot.Recipient, action telebot.ChatAction, _ ...int) error {
	r.calls = append(r.calls, "notify:"+string(action))
	if r.onNotify != nil {
		r.onNotify()
	}
	return nil
}

func (r *recordingAPI) Send(_ telebot.Recipient, what interface{}, _ ...interface{}) (*telebot.Message, error) {
	switch what.(type) {
	case *telebot.Document:
		r.calls = append(r.calls, "send:document")
	default:
		r.calls = append(r.calls, "send:text")
	}
	return &telebot.Message{ID: len(r.calls)}, nil
}

func TestSendDocument(t *testing.T) {
	api := &recordingAPI{}
	tr := NewTelebot(api)

	require.NoError(t, tr.SendDocument(context.Background(), 7, "promos.xlsx", strings.NewReader("data")))
	assert.Equal(t, []string{"notify:" + string(telebot.UploadingDocument), "send:document"}, api.calls)
}

func TestSendDocument_StopsWhenCancelledAfterNotify(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api := &recordingAPI{onNotify: cancel}
	tr := NewTelebot(api)

	err := tr.SendDocument(ctx, 7, "promos.xlsx", strings.NewReader("data"))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"notify:" + string(telebot.UploadingDocument)}, api.calls)
}

func TestSendText_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	api := &recordingAPI{}
	_, err := NewTelebot(api).SendText(ctx, 7, "hello", nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, api.calls)
}

func privateMessage(m *telebot.Message) telebot.Update {
	m.ID = 55
	m.Chat = &telebot.Chat{ID: 42, Type: telebot.ChatPrivate}
	m.Sender = &telebot.User{ID: 42, FirstName: "Dilnoza", Username: "dilnoza"}
	return telebot.Update{ID: 900, Message: m}
}

func TestFromTelebot_NonTextMessages(t *testing.T) {
	for name, msg := range map[string]*telebot.Message{
		"dice":       {Dice: &telebot.Dice{Type: telebot.Cube.Type, Value: 4}},
		"venue":      {Venue: &telebot.Venue{Title: "Chorsu"}},
		"poll":       {Poll: &telebot.Poll{Question: "?"}},
		"audio":      {Audio: &telebot.Audio{}},
		"video note": {VideoNote: &telebot.VideoNote{}},
	} {
		u, ok := FromTelebot(telebot.NewContext(nil, privateMessage(msg)))
		require.True(t, ok, name)
		assert.Equal(t, 900, u.ID, name)
		assert.Equal(t, int64(42), u.SenderID, name)
		assert.Empty(t, u.Text, name)
		assert.Nil(t, u.Contact, name)
		assert.Empty(t, u.PhotoFileID, name)
	}
}

func TestFromTelebot_Contact(t *testing.T) {
	upd := privateMessage(&telebot.Message{Contact: &telebot.Contact{PhoneNumber: "+998901234567", UserID: 42}})

	u, ok := FromTelebot(telebot.NewContext(nil, upd))
	require.True(t, ok)
	require.NotNil(t, u.Contact)
	assert.Equal(t, "+998901234567", u.Contact.Phone)
	assert.Equal(t, int64(42), u.Contact.UserID)
}

func TestFromTelebot_RejectsGroups(t *testing.T) {
	upd := privateMessage(&telebot.Message{Text: "/start"})
	upd.Message.Chat.Type = telebot.ChatGroup

	_, ok := FromTelebot(telebot.NewContext(nil, upd))
	assert.False(t, ok)

	_, ok = FromTelebot(telebot.NewContext(nil, telebot.Update{ID: 1}))
	assert.False(t, ok)
}

func TestMessageEndpoints(t *testing.T) {
	for _, endpoint := range []string{
		telebot.OnText,
		telebot.OnContact,
		telebot.OnPhoto,
		telebot.OnMedia,
		telebot.OnVenue,
		telebot.OnPoll,
		telebot.OnDice,
	} {
		assert.Contains(t, MessageEndpoints, endpoint)
	}
}

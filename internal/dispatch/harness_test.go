package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/C4T-BuT-S4D/promobot/internal/access"
	"github.com/C4T-BuT-S4D/promobot/internal/config"
	"github.com/C4T-BuT-S4D/promobot/internal/conversation"
	"github.com/C4T-BuT-S4D/promobot/internal/export"
	"github.com/C4T-BuT-S4D/promobot/internal/ledger"
	"github.com/C4T-BuT-S4D/promobot/internal/reconcile"
	"github.com/C4T-BuT-S4D/promobot/internal/storage"
	"github.com/C4T-BuT-S4D/promobot/internal/storage/storagetest"
	"github.com/C4T-BuT-S4D/promobot/internal/transport"
	"github.com/stretchr/testify/require"
)

const adminID int64 = 1000

type sentText struct {
	ChatID int64
	Text   string
	Opts   *transport.ReplyOptions
}

type sentDocument struct {
	ChatID int64
	Name   string
	Size   int
}

type fakeTransport struct {
	mu      sync.Mutex
	nextID  int
	texts   []sentText
	docs    []sentDocument
	typing  int
	deleted []int
	failFor map[int64]bool
}

var _ transport.Transport = (*fakeTransport)(nil)

func newFakeTransport() *fakeTransport {
	return &fakeTransport{failFor: make(map[int64]bool)}
}

func (f *fakeTransport) SendText(_ context.Context, chatID int64, text string, opts *transport.ReplyOptions) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[chatID] {
		return 0, errors.New("bot was blocked by the user")
	}
	f.nextID++
	f.texts = append(f.texts, sentText{ChatID: chatID, Text: text, Opts: opts})
	return f.nextID, nil
}

func (f *fakeTransport) SendDocument(_ context.Context, chatID int64, name string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = append(f.docs, sentDocument{ChatID: chatID, Name: name, Size: len(data)})
	return nil
}

func (f *fakeTransport) SendTyping(context.Context, int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing++
	return nil
}

func (f *fakeTransport) DeleteMessage(_ context.Context, _ int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

// calls counts every outgoing interaction.
func (f *fakeTransport) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.texts) + len(f.docs) + f.typing + len(f.deleted)
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = nil
	f.docs = nil
	f.typing = 0
	f.deleted = nil
}

func (f *fakeTransport) textsTo(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []string
	for _, t := range f.texts {
		if t.ChatID == chatID {
			res = append(res, t.Text)
		}
	}
	return res
}

func (f *fakeTransport) lastText(chatID int64) string {
	texts := f.textsTo(chatID)
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

type harness struct {
	t      *testing.T
	d      *Dispatcher
	store  *storage.Storage
	states conversation.Store
	ledger *ledger.Ledger
	tr     *fakeTransport
	now    time.Time
}

type harnessOption func(h *harness, cfg *config.Config)

func withStates(states conversation.Store) harnessOption {
	return func(h *harness, _ *config.Config) { h.states = states }
}

func withConfig(f func(cfg *config.Config)) harnessOption {
	return func(_ *harness, cfg *config.Config) { f(cfg) }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	store := storagetest.New(t)
	cfg := &config.Config{
		AdminIDs:         []int64{adminID},
		AdminUsername:    "promo_support",
		BotHandleTimeout: 5 * time.Second,
		JobTimeout:       5 * time.Second,
	}

	h := &harness{
		t:      t,
		store:  store,
		states: conversation.NewMemoryStore(),
		tr:     newFakeTransport(),
		now:    time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC),
	}
	for _, opt := range opts {
		opt(h, cfg)
	}
	h.ledger = ledger.New(store, regexp.MustCompile(`^[A-Z0-9-]{4,32}$`), time.UTC, ledger.WithClock(func() time.Time {
		return h.now
	}))

	window, err := reconcile.ParseWindow("2025-01-01", "2025-12-31", time.UTC)
	require.NoError(t, err)

	h.d = New(cfg, Deps{
		Guard:  access.NewGuard(store, cfg),
		States: h.states,
		Users:  store,
		Ledger: h.ledger,
		Engine: reconcile.NewEngine(store, reconcile.WithRandomLabel(func() string {
			return "oldone"
		})),
		Window:    window,
		Exporter:  export.NewXLSX(time.UTC),
		Transport: h.tr,
	})
	return h
}

func (h *harness) handle(upd transport.Update) {
	h.t.Helper()
	h.d.Handle(context.Background(), upd)
}

func (h *harness) text(from int64, text string) {
	h.t.Helper()
	h.handle(textUpdate(from, text))
}

func (h *harness) stage(userID int64) conversation.Stage {
	h.t.Helper()
	st, err := h.states.Get(context.Background(), userID)
	require.NoError(h.t, err)
	if st.IsIdle() {
		return conversation.StageIdle
	}
	return st.Stage
}

// register walks a user through the whole sign-up dialogue.
func (h *harness) register(userID int64, phone string) {
	h.t.Helper()
	h.text(userID, "/register")
	h.text(userID, fmt.Sprintf("User %d", userID))
	h.handle(contactUpdate(userID, phone, userID))
	h.text(userID, "Tashkent")
	h.handle(photoUpdate(userID))
	require.Equal(h.t, conversation.StageIdle, h.stage(userID))
}

func (h *harness) redeem(userID int64, code string) {
	h.t.Helper()
	h.text(userID, "/promo")
	h.text(userID, code)
}

var updateSeq int

func baseUpdate(from int64) transport.Update {
	updateSeq++
	return transport.Update{
		ID:        updateSeq,
		MessageID: updateSeq,
		ChatID:    from,
		SenderID:  from,
		FirstName: "Test",
	}
}

func textUpdate(from int64, text string) transport.Update {
	u := baseUpdate(from)
	u.Text = text
	return u
}

func contactUpdate(from int64, phone string, owner int64) transport.Update {
	u := baseUpdate(from)
	u.Contact = &transport.Contact{Phone: phone, UserID: owner}
	return u
}

func photoUpdate(from int64) transport.Update {
	u := baseUpdate(from)
	u.PhotoFileID = fmt.Sprintf("photo-%d", from)
	return u
}

func otherUpdate(from int64) transport.Update {
	return baseUpdate(from)
}

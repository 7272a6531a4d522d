package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/C4T-BuT-S4D/promobot/internal/access"
	"github.com/C4T-BuT-S4D/promobot/internal/config"
	"github.com/C4T-BuT-S4D/promobot/internal/conversation"
	"github.com/C4T-BuT-S4D/promobot/internal/export"
	"github.com/C4T-BuT-S4D/promobot/internal/ledger"
	"github.com/C4T-BuT-S4D/promobot/internal/models"
	"github.com/C4T-BuT-S4D/promobot/internal/reconcile"
	"github.com/C4T-BuT-S4D/promobot/internal/texts"
	"github.com/C4T-BuT-S4D/promobot/internal/transport"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v4"
)

type UserStore interface {
	SaveUser(ctx context.Context, user *models.User) error
	ListUsers(ctx context.Context) ([]*models.User, error)
	ListBlockedPhones(ctx context.Context) ([]string, error)
	BlockPhone(ctx context.Context, phone string, blockedBy int64) error
}

// UpdateTracker remembers the last received update id.
type UpdateTracker interface {
	UpdateLastUpdate(ctx context.Context, updateID int) error
}

type Exporter interface {
	Build(promos []*models.PromoCode, month time.Month, year int) (*export.Artifact, error)
}

// Deps is everything the dispatcher talks to, built once in main.
type Deps struct {
	Guard     *access.Guard
	States    conversation.Store
	Users     UserStore
	Ledger    *ledger.Ledger
	Engine    *reconcile.Engine
	Window    reconcile.Window
	Exporter  Exporter
	Transport transport.Transport
	Updates   UpdateTracker
}

const stateTimeout = 5 * time.Second

type handlerFunc func(uc *UpdateContext, args []string) error

type Dispatcher struct {
	config *config.Config
	deps   Deps

	seq           *Sequencer
	userCommands  map[string]handlerFunc
	adminCommands map[string]handlerFunc
}

func New(cfg *config.Config, deps Deps) *Dispatcher {
	d := &Dispatcher{
		config: cfg,
		deps:   deps,
		seq:    NewSequencer(),
	}

	d.userCommands = map[string]handlerFunc{
		"/start":               d.handleStart,
		"/register":            d.handleRegister,
		texts.ButtonSignUp:     d.handleRegister,
		"/promo":               d.handleEnterPromo,
		texts.ButtonEnterPromo: d.handleEnterPromo,
		"/mypromos":            d.handleMyPromos,
		"/help":                d.handleHelp,
		"/order":               d.handleOrder,
	}
	d.adminCommands = map[string]handlerFunc{
		"/export":  d.handleExport,
		"/block":   d.handleBlock,
		"/deldata": d.handleEraseAll,
		"/send":    d.handleBroadcast,
		"/set0":    d.handleReconcile,
		"/stats":   d.handleStats,
	}
	return d
}

// HandleAnyUpdate is the telebot entrypoint. It only queues the update, the
// bot must run with Synchronous so queueing happens in arrival order.
func (d *Dispatcher) HandleAnyUpdate(c telebot.Context) error {
	if d.deps.Updates != nil {
		ctx, cancel := context.WithTimeout(context.Background(), d.config.BotHandleTimeout)
		defer cancel()
		if err := d.deps.Updates.UpdateLastUpdate(ctx, c.Update().ID); err != nil {
			logrus.Errorf("failed to update last update: %v", err)
		}
	}

	upd, ok := transport.FromTelebot(c)
	if !ok {
		logrus.Debugf("ignoring update %d outside private chats", c.Update().ID)
		return nil
	}
	d.Enqueue(upd)
	return nil
}

// Enqueue schedules upd after all earlier updates of the same sender.
func (d *Dispatcher) Enqueue(upd transport.Update) {
	d.seq.Submit(upd.SenderID, func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.config.BotHandleTimeout)
		defer cancel()
		d.Handle(ctx, upd)
	})
}

// Wait blocks until queued updates are handled.
func (d *Dispatcher) Wait() {
	d.seq.Wait()
}

// Handle processes one update synchronously. The caller must not run two
// Handle calls for the same sender at once.
func (d *Dispatcher) Handle(ctx context.Context, upd transport.Update) {
	uc := NewUpdateContext(ctx, &upd)
	uc.L().Debugf("received update kind=%s text=%q", uc.InputKind(), upd.Text)

	decision, err := d.deps.Guard.Authorize(uc, upd.SenderID, access.RoleAny)
	if err != nil {
		d.fail(uc, fmt.Errorf("authorizing: %w", err))
		return
	}
	if decision.Silent() {
		uc.L().Infof("dropping update of %s user %v", decision.Reason, decision.User)
		if err := d.deps.States.Clear(uc, upd.SenderID); err != nil {
			uc.L().Errorf("failed to clear state of blocked user: %v", err)
		}
		return
	}
	uc.user = decision.User

	cmd, args := parseCommand(upd.Text)

	// Admin commands go first so a stuck dialogue never locks an admin out.
	if h, ok := d.adminCommands[cmd]; ok {
		admin, err := d.deps.Guard.Authorize(uc, upd.SenderID, access.RoleAdmin)
		if err != nil {
			d.fail(uc, fmt.Errorf("authorizing admin: %w", err))
			return
		}
		if admin.Silent() {
			uc.L().Infof("ignoring admin command %s from non-admin", cmd)
			return
		}
		uc.L().Infof("admin command %s %v", cmd, args)
		if err := h(uc, args); err != nil {
			d.fail(uc, fmt.Errorf("admin command %s: %w", cmd, err))
		}
		return
	}

	state, err := d.deps.States.Get(uc, upd.SenderID)
	if err != nil {
		d.fail(uc, fmt.Errorf("getting state: %w", err))
		return
	}

	if !state.IsIdle() {
		if cmd == "/cancel" {
			d.cancel(uc)
			return
		}
		d.step(uc, state)
		return
	}

	h, ok := d.userCommands[cmd]
	if !ok {
		uc.L().Debugf("ignoring idle input %q", upd.Text)
		return
	}
	if err := h(uc, args); err != nil {
		d.handleError(uc, fmt.Errorf("command %s: %w", cmd, err))
	}
}

// parseCommand recognizes "/cmd@bot args..." and the keyboard buttons.
func parseCommand(text string) (string, []string) {
	text = strings.TrimSpace(text)
	if text == texts.ButtonSignUp || text == texts.ButtonEnterPromo {
		return text, nil
	}
	if !strings.HasPrefix(text, "/") {
		return "", nil
	}

	fields := strings.Fields(text)
	cmd, _, _ := strings.Cut(fields[0], "@")
	return strings.ToLower(cmd), fields[1:]
}

func (d *Dispatcher) cancel(uc *UpdateContext) {
	if err := d.deps.States.Clear(uc, uc.SenderID()); err != nil {
		d.fail(uc, fmt.Errorf("clearing state: %w", err))
		return
	}
	d.send(uc, texts.Cancelled, &transport.ReplyOptions{RemoveKeyboard: true})
}

func (d *Dispatcher) handleError(uc *UpdateContext, err error) {
	switch classify(err) {
	case KindAuthorizationDenied:
		uc.L().Infof("dropped: %v", err)
		if err := d.deps.States.Clear(uc, uc.SenderID()); err != nil {
			uc.L().Errorf("failed to clear state: %v", err)
		}
	case KindNotRegistered:
		if err := d.deps.States.Clear(uc, uc.SenderID()); err != nil {
			uc.L().Errorf("failed to clear state: %v", err)
		}
		d.promptRegistration(uc)
	default:
		d.fail(uc, err)
	}
}

// detached returns uc without the update deadline, bounded by stateTimeout.
func (d *Dispatcher) detached(uc *UpdateContext) (*UpdateContext, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(uc), stateTimeout)
	return uc.WithContext(ctx), cancel
}

// fail is the storage-failure path: log, reset to idle, generic notice.
func (d *Dispatcher) fail(uc *UpdateContext, err error) {
	uc.L().Errorf("failed to handle update: %v", err)
	uc, cancel := d.detached(uc)
	defer cancel()
	if err := d.deps.States.Clear(uc, uc.SenderID()); err != nil {
		uc.L().Errorf("failed to reset state: %v", err)
	}
	d.send(uc, texts.GenericError, nil)
}

// send delivers best-effort: failures are logged and swallowed. Returns the
// message id, 0 if not delivered.
func (d *Dispatcher) send(uc *UpdateContext, text string, opts *transport.ReplyOptions) int {
	id, err := d.deps.Transport.SendText(uc, uc.ChatID(), text, opts)
	if err != nil {
		uc.L().Warnf("failed to send message: %v", err)
		return 0
	}
	return id
}

func (d *Dispatcher) deleteMessage(uc *UpdateContext, messageID int) {
	if messageID == 0 {
		return
	}
	if err := d.deps.Transport.DeleteMessage(uc, uc.ChatID(), messageID); err != nil {
		uc.L().Warnf("failed to delete message %d: %v", messageID, err)
	}
}

// typing shows the typing indicator for the configured delay.
func (d *Dispatcher) typing(uc *UpdateContext) {
	if err := d.deps.Transport.SendTyping(uc, uc.ChatID()); err != nil {
		uc.L().Warnf("failed to send typing: %v", err)
	}
	if d.config.TypingDelay <= 0 {
		return
	}

	t := time.NewTimer(d.config.TypingDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-uc.Done():
	}
}

func (d *Dispatcher) setStage(uc *UpdateContext, stage conversation.Stage) error {
	if err := d.deps.States.Set(uc, uc.SenderID(), conversation.State{Stage: stage}); err != nil {
		return fmt.Errorf("setting stage %s: %w", stage, err)
	}
	return nil
}

func signUpKeyboard() *transport.ReplyOptions {
	return &transport.ReplyOptions{Keyboard: [][]transport.Button{{{Text: texts.ButtonSignUp}}}}
}

func promoKeyboard() *transport.ReplyOptions {
	return &transport.ReplyOptions{Keyboard: [][]transport.Button{{{Text: texts.ButtonEnterPromo}}}}
}

func phoneKeyboard() *transport.ReplyOptions {
	return &transport.ReplyOptions{Keyboard: [][]transport.Button{{{Text: texts.ButtonSendPhone, RequestContact: true}}}}
}

func removeKeyboard() *transport.ReplyOptions {
	return &transport.ReplyOptions{RemoveKeyboard: true}
}

package dispatch

import (
	"errors"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/C4T-BuT-S4D/promobot/internal/conversation"
	"github.com/C4T-BuT-S4D/promobot/internal/ledger"
	"github.com/C4T-BuT-S4D/promobot/internal/models"
	"github.com/C4T-BuT-S4D/promobot/internal/texts"
	"github.com/C4T-BuT-S4D/promobot/internal/transport"
)

const (
	maxNameLen    = 64
	maxAddressLen = 256
)

// stepFunc consumes the input of a stage. It returns the field to buffer for
// the next stage, if any, and performs the side effect of final stages.
type stepFunc func(d *Dispatcher, uc *UpdateContext, st conversation.State) (key, value string, err error)

type transition struct {
	accepts conversation.InputKind
	next    conversation.Stage
	apply   stepFunc
	// prompt asks for this stage's input, retry re-asks after wrong input.
	prompt func() (string, *transport.ReplyOptions)
	retry  string
}

// flow is the conversation state machine: for each non-idle stage, the only
// input kind it accepts and where it goes afterwards.
var flow = map[conversation.Stage]transition{
	conversation.StageAwaitingName: {
		accepts: conversation.InputText,
		next:    conversation.StageAwaitingPhone,
		apply:   (*Dispatcher).collectName,
		prompt:  staticPrompt(texts.EnterName, nil),
	},
	conversation.StageAwaitingPhone: {
		accepts: conversation.InputContact,
		next:    conversation.StageAwaitingAddress,
		apply:   (*Dispatcher).collectPhone,
		prompt:  staticPrompt(texts.EnterPhone, phoneKeyboard),
	},
	conversation.StageAwaitingAddress: {
		accepts: conversation.InputText,
		next:    conversation.StageAwaitingPromoPhoto,
		apply:   (*Dispatcher).collectAddress,
		prompt:  staticPrompt(texts.EnterAddress, removeKeyboard),
	},
	conversation.StageAwaitingPromoPhoto: {
		accepts: conversation.InputPhoto,
		next:    conversation.StageIdle,
		apply:   (*Dispatcher).completeRegistration,
		prompt:  staticPrompt(texts.EnterPromoPhoto, nil),
		retry:   texts.EnterPhoto,
	},
	conversation.StageAwaitingPromoCode: {
		accepts: conversation.InputText,
		next:    conversation.StageIdle,
		apply:   (*Dispatcher).redeemPromo,
		prompt:  staticPrompt(texts.EnterPromoCode, nil),
	},
	conversation.StageAwaitingBlockPhone: {
		accepts: conversation.InputText,
		next:    conversation.StageIdle,
		apply:   (*Dispatcher).blockPhone,
		prompt:  staticPrompt(texts.AskBlockPhone, nil),
	},
	conversation.StageAwaitingBroadcastMessage: {
		accepts: conversation.InputText,
		next:    conversation.StageIdle,
		apply:   (*Dispatcher).broadcast,
		prompt:  staticPrompt(texts.AskBroadcast, nil),
	},
}

func staticPrompt(text string, opts func() *transport.ReplyOptions) func() (string, *transport.ReplyOptions) {
	return func() (string, *transport.ReplyOptions) {
		if opts == nil {
			return text, nil
		}
		return text, opts()
	}
}

// step feeds the update into the active dialogue.
func (d *Dispatcher) step(uc *UpdateContext, st conversation.State) {
	tr, ok := flow[st.Stage]
	if !ok {
		d.fail(uc, fmt.Errorf("no transition for stage %q", st.Stage))
		return
	}

	if kind := uc.InputKind(); kind != tr.accepts {
		uc.L().Debugf("stage %s expects %s, got %s", st.Stage, tr.accepts, kind)
		d.reprompt(uc, tr, "")
		return
	}

	key, value, err := tr.apply(d, uc, st)
	if err != nil {
		switch classify(err) {
		case KindValidation:
			uc.L().Debugf("invalid input at %s: %v", st.Stage, err)
			d.reprompt(uc, tr, notice(err, ""))
		case KindDuplicateRedemption:
			d.send(uc, texts.PromoUsed, nil)
		default:
			d.handleError(uc, fmt.Errorf("stage %s: %w", st.Stage, err))
		}
		return
	}

	// apply may outlive the update deadline (broadcast runs as a job), the
	// state must still move on.
	uc, cancel := d.detached(uc)
	defer cancel()

	if tr.next == conversation.StageIdle {
		if err := d.deps.States.Clear(uc, uc.SenderID()); err != nil {
			uc.L().Errorf("failed to clear finished dialogue: %v", err)
		}
		return
	}

	if err := d.deps.States.Set(uc, uc.SenderID(), st.Advance(tr.next, key, value)); err != nil {
		d.fail(uc, fmt.Errorf("advancing to %s: %w", tr.next, err))
		return
	}
	text, opts := flow[tr.next].prompt()
	d.send(uc, text, opts)
}

func (d *Dispatcher) reprompt(uc *UpdateContext, tr transition, text string) {
	prompt, opts := tr.prompt()
	switch {
	case text != "":
	case tr.retry != "":
		text = tr.retry
	default:
		text = prompt
	}
	d.send(uc, text, opts)
}

func (d *Dispatcher) collectName(uc *UpdateContext, _ conversation.State) (string, string, error) {
	name := strings.TrimSpace(uc.Update().Text)
	if name == "" || strings.HasPrefix(name, "/") || utf8.RuneCountInString(name) > maxNameLen {
		return "", "", invalid(texts.EnterName)
	}
	return conversation.FieldName, name, nil
}

func (d *Dispatcher) collectPhone(uc *UpdateContext, _ conversation.State) (string, string, error) {
	contact := uc.Update().Contact
	if contact.UserID != 0 && contact.UserID != uc.SenderID() {
		return "", "", invalid(texts.EnterPhone)
	}

	phone, err := models.NormalizePhone(contact.Phone)
	if err != nil {
		return "", "", invalid(texts.EnterPhone)
	}

	blocked, err := d.deps.Guard.IsPhoneBlocked(uc, phone)
	if err != nil {
		return "", "", err
	}
	if blocked {
		return "", "", fmt.Errorf("registering blocked phone %s: %w", phone, errSilentDrop)
	}
	return conversation.FieldPhone, phone, nil
}

func (d *Dispatcher) collectAddress(uc *UpdateContext, _ conversation.State) (string, string, error) {
	address := strings.TrimSpace(uc.Update().Text)
	if address == "" || utf8.RuneCountInString(address) > maxAddressLen {
		return "", "", invalid(texts.EnterAddress)
	}
	return conversation.FieldAddress, address, nil
}

func (d *Dispatcher) completeRegistration(uc *UpdateContext, st conversation.State) (string, string, error) {
	user := &models.User{
		TelegramID:  uc.SenderID(),
		ChatID:      uc.ChatID(),
		Name:        st.Fields[conversation.FieldName],
		Phone:       st.Fields[conversation.FieldPhone],
		Address:     st.Fields[conversation.FieldAddress],
		PhotoFileID: uc.Update().PhotoFileID,
	}
	if err := d.deps.Users.SaveUser(uc, user); err != nil {
		return "", "", fmt.Errorf("saving user: %w", err)
	}
	uc.user = user
	uc.L().Infof("registered %v", user)

	d.send(uc, fmt.Sprintf(
		texts.Registered,
		html.EscapeString(user.Name),
		html.EscapeString(user.Phone),
		html.EscapeString(user.Address),
	), removeKeyboard())
	d.typing(uc)
	d.send(uc, texts.ForEnterPromo, promoKeyboard())
	return "", "", nil
}

func (d *Dispatcher) redeemPromo(uc *UpdateContext, _ conversation.State) (string, string, error) {
	user, err := d.registered(uc)
	if err != nil {
		return "", "", err
	}

	special, err := d.deps.Ledger.Redeem(uc, user.ID, uc.Update().Text)
	if errors.Is(err, ledger.ErrInvalidFormat) {
		return "", "", invalid(texts.InvalidPromoCode)
	}
	if err != nil {
		return "", "", err
	}
	uc.L().Infof("user %s redeemed a promo, special code %s", user.ID, special)

	d.send(uc, texts.PromoSaved, nil)
	d.send(uc, fmt.Sprintf(texts.SpecialCode, html.EscapeString(special)), promoKeyboard())
	return "", "", nil
}

func (d *Dispatcher) blockPhone(uc *UpdateContext, _ conversation.State) (string, string, error) {
	phone, err := models.NormalizePhone(uc.Update().Text)
	if err != nil {
		return "", "", invalid(texts.BadPhone)
	}

	if err := d.deps.Users.BlockPhone(uc, phone, uc.SenderID()); err != nil {
		return "", "", err
	}
	uc.L().Infof("blocked phone %s", phone)

	d.send(uc, fmt.Sprintf(texts.PhoneBlocked, phone), nil)
	return "", "", nil
}

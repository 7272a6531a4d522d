package dispatch

import (
	"fmt"
	"html"
	"strings"

	"github.com/C4T-BuT-S4D/promobot/internal/access"
	"github.com/C4T-BuT-S4D/promobot/internal/conversation"
	"github.com/C4T-BuT-S4D/promobot/internal/models"
	"github.com/C4T-BuT-S4D/promobot/internal/texts"
)

func (d *Dispatcher) handleStart(uc *UpdateContext, _ []string) error {
	d.typing(uc)

	user := uc.User()
	if user == nil {
		d.promptRegistration(uc)
		return nil
	}

	d.send(uc, fmt.Sprintf(texts.Welcome, user.TelegramID, html.EscapeString(user.Name)), removeKeyboard())
	d.typing(uc)
	d.send(uc, texts.ForEnterPromo, promoKeyboard())
	return nil
}

func (d *Dispatcher) promptRegistration(uc *UpdateContext) {
	opts := signUpKeyboard()
	opts.ReplyTo = uc.Update().MessageID
	d.send(uc, texts.Start, opts)
}

func (d *Dispatcher) handleRegister(uc *UpdateContext, _ []string) error {
	if user := uc.User(); user != nil {
		d.send(uc, fmt.Sprintf(texts.AlreadySigned, html.EscapeString(user.Name)), promoKeyboard())
		return nil
	}

	if err := d.setStage(uc, conversation.StageAwaitingName); err != nil {
		return err
	}
	d.typing(uc)
	d.send(uc, texts.EnterName, removeKeyboard())
	return nil
}

// registered resolves the sender as a registered, non-blocked user.
func (d *Dispatcher) registered(uc *UpdateContext) (*models.User, error) {
	decision, err := d.deps.Guard.Authorize(uc, uc.SenderID(), access.RoleRegistered)
	if err != nil {
		return nil, err
	}
	switch {
	case decision.Reason == access.DenyNotRegistered:
		return nil, errNotRegistered
	case !decision.Allowed():
		return nil, fmt.Errorf("access %s: %w", decision.Reason, errSilentDrop)
	}
	uc.user = decision.User
	return decision.User, nil
}

func (d *Dispatcher) handleEnterPromo(uc *UpdateContext, _ []string) error {
	if _, err := d.registered(uc); err != nil {
		return err
	}

	if err := d.setStage(uc, conversation.StageAwaitingPromoCode); err != nil {
		return err
	}
	d.send(uc, texts.EnterPromoCode, removeKeyboard())
	return nil
}

func (d *Dispatcher) handleMyPromos(uc *UpdateContext, _ []string) error {
	user, err := d.registered(uc)
	if err != nil {
		return err
	}

	promos, err := d.deps.Ledger.ListForUser(uc, user.ID)
	if err != nil {
		return err
	}
	if len(promos) == 0 {
		d.send(uc, texts.NoPromos, nil)
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, texts.UserPromosCount, len(promos))
	for _, p := range promos {
		fmt.Fprintf(&b, texts.PromoLine, html.EscapeString(p.SpecialCode), html.EscapeString(p.Code))
	}
	d.send(uc, b.String(), nil)
	return nil
}

func (d *Dispatcher) handleHelp(uc *UpdateContext, _ []string) error {
	d.typing(uc)
	d.send(uc, fmt.Sprintf(texts.Help, d.config.AdminUsername), nil)
	return nil
}

func (d *Dispatcher) handleOrder(uc *UpdateContext, _ []string) error {
	d.typing(uc)
	d.send(uc, fmt.Sprintf(texts.Order, d.config.AdminUsername), nil)
	return nil
}

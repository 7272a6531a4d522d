package dispatch

import (
	"context"

	"github.com/C4T-BuT-S4D/promobot/internal/conversation"
	"github.com/C4T-BuT-S4D/promobot/internal/models"
	"github.com/C4T-BuT-S4D/promobot/internal/transport"
	"github.com/sirupsen/logrus"
)

type UpdateContext struct {
	context.Context
	upd  *transport.Update
	log  *logrus.Entry
	user *models.User
}

func NewUpdateContext(c context.Context, upd *transport.Update) *UpdateContext {
	fields := logrus.Fields{
		"update_id":         upd.ID,
		"chat_id":           upd.ChatID,
		"sender_id":         upd.SenderID,
		"sender_username":   upd.Username,
		"sender_first_name": upd.FirstName,
	}

	return &UpdateContext{
		Context: c,
		upd:     upd,
		log:     logrus.WithFields(fields),
	}
}

// WithContext returns a copy of uc bound to ctx.
func (uc *UpdateContext) WithContext(ctx context.Context) *UpdateContext {
	c := *uc
	c.Context = ctx
	return &c
}

func (uc *UpdateContext) L() *logrus.Entry {
	return uc.log
}

func (uc *UpdateContext) Update() *transport.Update {
	return uc.upd
}

func (uc *UpdateContext) ChatID() int64 {
	return uc.upd.ChatID
}

func (uc *UpdateContext) SenderID() int64 {
	return uc.upd.SenderID
}

// User is the registered sender, nil if not registered.
func (uc *UpdateContext) User() *models.User {
	return uc.user
}

func (uc *UpdateContext) InputKind() conversation.InputKind {
	switch {
	case uc.upd.Contact != nil:
		return conversation.InputContact
	case uc.upd.PhotoFileID != "":
		return conversation.InputPhoto
	case uc.upd.Text != "":
		return conversation.InputText
	default:
		return conversation.InputOther
	}
}

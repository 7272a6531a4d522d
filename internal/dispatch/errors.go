package dispatch

import (
	"errors"

	"github.com/C4T-BuT-S4D/promobot/internal/ledger"
	"github.com/C4T-BuT-S4D/promobot/internal/models"
)

// Kind classifies everything that can go wrong while handling an update.
type Kind int

const (
	// KindAuthorizationDenied drops the update without a reply.
	KindAuthorizationDenied Kind = iota
	// KindNotRegistered answers with the registration prompt.
	KindNotRegistered
	// KindDuplicateRedemption tells the user the code is taken.
	KindDuplicateRedemption
	// KindValidation re-prompts without advancing the dialogue.
	KindValidation
	// KindStorage resets the dialogue and answers with a generic notice.
	KindStorage
)

var (
	errSilentDrop    = errors.New("silently dropped")
	errNotRegistered = errors.New("user is not registered")
)

// validationError carries the notice shown to the user.
type validationError struct {
	notice string
}

func (e *validationError) Error() string {
	return "validation failed: " + e.notice
}

func invalid(notice string) error {
	return &validationError{notice: notice}
}

func classify(err error) Kind {
	var verr *validationError
	switch {
	case errors.Is(err, errSilentDrop):
		return KindAuthorizationDenied
	case errors.Is(err, errNotRegistered):
		return KindNotRegistered
	case errors.Is(err, ledger.ErrAlreadyUsed):
		return KindDuplicateRedemption
	case errors.As(err, &verr),
		errors.Is(err, ledger.ErrInvalidFormat),
		errors.Is(err, models.ErrInvalidPhone):
		return KindValidation
	default:
		return KindStorage
	}
}

// notice returns the text to show for a validation error, or fallback.
func notice(err error, fallback string) string {
	var verr *validationError
	if errors.As(err, &verr) {
		return verr.notice
	}
	return fallback
}

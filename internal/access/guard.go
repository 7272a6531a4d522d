package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/C4T-BuT-S4D/promobot/internal/models"
	"github.com/C4T-BuT-S4D/promobot/internal/storage"
)

type Role string

const (
	RoleAny        Role = "any"
	RoleRegistered Role = "registered"
	RoleAdmin      Role = "admin"
)

type DenyReason string

const (
	DenyNone          DenyReason = ""
	DenyNotAdmin      DenyReason = "not_admin"
	DenyBlocked       DenyReason = "blocked"
	DenyNotRegistered DenyReason = "not_registered"
)

// Decision is the outcome of an authorization check. User is set whenever
// the sender is registered, even on deny.
type Decision struct {
	Reason DenyReason
	User   *models.User
}

func (d Decision) Allowed() bool {
	return d.Reason == DenyNone
}

// Silent reports whether a denial must produce no output at all.
func (d Decision) Silent() bool {
	return d.Reason == DenyBlocked || d.Reason == DenyNotAdmin
}

type Directory interface {
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	IsPhoneBlocked(ctx context.Context, phone string) (bool, error)
}

type AdminSet interface {
	IsAdmin(telegramID int64) bool
}

type Guard struct {
	dir    Directory
	admins AdminSet
}

func NewGuard(dir Directory, admins AdminSet) *Guard {
	return &Guard{dir: dir, admins: admins}
}

// Authorize checks telegramID against role. A registered user whose phone is
// blocked is denied for every role, admins excepted.
func (g *Guard) Authorize(ctx context.Context, telegramID int64, role Role) (Decision, error) {
	if role == RoleAdmin {
		if !g.admins.IsAdmin(telegramID) {
			return Decision{Reason: DenyNotAdmin}, nil
		}
		return Decision{}, nil
	}

	user, err := g.dir.GetUserByTelegramID(ctx, telegramID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		if role == RoleRegistered {
			return Decision{Reason: DenyNotRegistered}, nil
		}
		return Decision{}, nil
	case err != nil:
		return Decision{}, fmt.Errorf("resolving user %d: %w", telegramID, err)
	}

	if !g.admins.IsAdmin(telegramID) {
		blocked, err := g.dir.IsPhoneBlocked(ctx, user.Phone)
		if err != nil {
			return Decision{}, fmt.Errorf("checking block of %d: %w", telegramID, err)
		}
		if blocked {
			return Decision{Reason: DenyBlocked, User: user}, nil
		}
	}

	return Decision{User: user}, nil
}

// IsPhoneBlocked is used by the registration flow before a user exists.
func (g *Guard) IsPhoneBlocked(ctx context.Context, phone string) (bool, error) {
	blocked, err := g.dir.IsPhoneBlocked(ctx, phone)
	if err != nil {
		return false, fmt.Errorf("checking phone: %w", err)
	}
	return blocked, nil
}

package ledger

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/C4T-BuT-S4D/promobot/internal/models"
)

var (
	ErrAlreadyUsed   = errors.New("promo code already used")
	ErrInvalidFormat = errors.New("invalid promo code format")
)

type Store interface {
	RedeemPromo(ctx context.Context, promo *models.PromoCode) (bool, error)
	ListPromosForUser(ctx context.Context, userID string) ([]*models.PromoCode, error)
	ListPromosBetween(ctx context.Context, from, to time.Time) ([]*models.PromoCode, error)
	EraseAll(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (*models.PromoStats, error)
}

// MonthFilter selects redemptions of a calendar month.
type MonthFilter struct {
	Month time.Month
	Year  int
}

func (f MonthFilter) String() string {
	return fmt.Sprintf("%d_%d", int(f.Month), f.Year)
}

func (f MonthFilter) Validate() error {
	if f.Month < time.January || f.Month > time.December {
		return fmt.Errorf("month %d out of range", f.Month)
	}
	if f.Year < 2000 || f.Year > 9999 {
		return fmt.Errorf("year %d out of range", f.Year)
	}
	return nil
}

type Ledger struct {
	store   Store
	pattern *regexp.Regexp
	loc     *time.Location
	now     func() time.Time
}

type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func New(store Store, pattern *regexp.Regexp, loc *time.Location, opts ...Option) *Ledger {
	l := &Ledger{
		store:   store,
		pattern: pattern,
		loc:     loc,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Normalize returns the canonical form of a submitted code.
func (l *Ledger) Normalize(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !l.pattern.MatchString(code) {
		return "", ErrInvalidFormat
	}
	return code, nil
}

// Redeem claims code for the user and returns the special code assigned to
// the redemption. Of concurrent attempts on one code exactly one wins, the
// rest get ErrAlreadyUsed.
func (l *Ledger) Redeem(ctx context.Context, userID, code string) (string, error) {
	code, err := l.Normalize(code)
	if err != nil {
		return "", err
	}

	promo := &models.PromoCode{
		Code:   code,
		UserID: userID,
		Date:   l.now(),
	}
	ok, err := l.store.RedeemPromo(ctx, promo)
	if err != nil {
		return "", fmt.Errorf("redeeming %q: %w", code, err)
	}
	if !ok {
		return "", ErrAlreadyUsed
	}
	return promo.SpecialCode, nil
}

func (l *Ledger) ListForUser(ctx context.Context, userID string) ([]*models.PromoCode, error) {
	promos, err := l.store.ListPromosForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing promos of %s: %w", userID, err)
	}
	return promos, nil
}

// CurrentMonth is the filter ListAll falls back to.
func (l *Ledger) CurrentMonth() MonthFilter {
	now := l.now().In(l.loc)
	return MonthFilter{Month: now.Month(), Year: now.Year()}
}

// ListAll returns the redemptions of the given month in redemption order,
// the current month if filter is nil.
func (l *Ledger) ListAll(ctx context.Context, filter *MonthFilter) ([]*models.PromoCode, error) {
	f := l.CurrentMonth()
	if filter != nil {
		f = *filter
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}

	from := time.Date(f.Year, f.Month, 1, 0, 0, 0, 0, l.loc)
	promos, err := l.store.ListPromosBetween(ctx, from, from.AddDate(0, 1, 0))
	if err != nil {
		return nil, fmt.Errorf("listing promos for %s: %w", f, err)
	}
	return promos, nil
}

func (l *Ledger) EraseAll(ctx context.Context) (int64, error) {
	removed, err := l.store.EraseAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("erasing data: %w", err)
	}
	return removed, nil
}

func (l *Ledger) Stats(ctx context.Context) (*models.PromoStats, error) {
	stats, err := l.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("collecting stats: %w", err)
	}
	return stats, nil
}

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/C4T-BuT-S4D/promobot/internal/models"
	"github.com/C4T-BuT-S4D/promobot/internal/storage"
	"github.com/sirupsen/logrus"
)

const (
	labelWidth       = 6
	randomLabelChars = "abcdefghijklmnopqrstuvwxyz"
)

var ErrAlreadyRunning = errors.New("reconciliation already running")

type Store interface {
	ListPromosBetween(ctx context.Context, from, to time.Time) ([]*models.PromoCode, error)
	ListPromosBefore(ctx context.Context, before time.Time) ([]*models.PromoCode, error)
	SetSpecialCode(ctx context.Context, promoID uint, specialCode string) error
	LatestPromo(ctx context.Context) (*models.PromoCode, error)
}

// Window is the half-open interval [From, To) of redemption dates that get
// sequential labels.
type Window struct {
	From time.Time
	To   time.Time
}

// ParseWindow builds a window from two YYYY-MM-DD dates, both days inclusive.
func ParseWindow(from, to string, loc *time.Location) (Window, error) {
	start, err := time.ParseInLocation(time.DateOnly, from, loc)
	if err != nil {
		return Window{}, fmt.Errorf("parsing window start: %w", err)
	}
	end, err := time.ParseInLocation(time.DateOnly, to, loc)
	if err != nil {
		return Window{}, fmt.Errorf("parsing window end: %w", err)
	}
	if end.Before(start) {
		return Window{}, fmt.Errorf("window end %s before start %s", to, from)
	}
	return Window{From: start, To: end.AddDate(0, 0, 1)}, nil
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.From.Format(time.DateOnly), w.To.Format(time.DateOnly))
}

type Summary struct {
	Window     Window
	Sequential int
	Random     int
	// Latest is the redemption date of the newest promo overall, zero if the
	// ledger is empty.
	Latest time.Time
}

type Engine struct {
	store  Store
	lock   Locker
	random func() string
	log    *logrus.Entry
}

type Option func(*Engine)

func WithLocker(l Locker) Option {
	return func(e *Engine) { e.lock = l }
}

func WithRandomLabel(f func() string) Option {
	return func(e *Engine) { e.random = f }
}

func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		lock:   NewMutexLocker(),
		random: RandomLabel,
		log:    logrus.WithField("component", "reconcile"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run relabels every promo. Promos older than the window get a random label,
// promos inside it get sequential labels by redemption date, newer ones are
// left alone. Each label is written by its own single-row update, so an
// interrupted run leaves every record either old-labelled or new-labelled.
// Sequential labels may shift between runs if promos are added in between.
func (e *Engine) Run(ctx context.Context, w Window) (*Summary, error) {
	release, err := e.lock.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	summary := &Summary{Window: w}

	old, err := e.store.ListPromosBefore(ctx, w.From)
	if err != nil {
		return nil, fmt.Errorf("listing old promos: %w", err)
	}
	e.log.Infof("relabelling %d promos older than %s", len(old), w)
	for _, promo := range old {
		if err := e.store.SetSpecialCode(ctx, promo.ID, e.random()); err != nil {
			return summary, fmt.Errorf("labelling old promo %d: %w", promo.ID, err)
		}
		summary.Random++
	}

	current, err := e.store.ListPromosBetween(ctx, w.From, w.To)
	if err != nil {
		return summary, fmt.Errorf("listing promos in %s: %w", w, err)
	}
	e.log.Infof("numbering %d promos in %s", len(current), w)
	for i, promo := range current {
		if err := e.store.SetSpecialCode(ctx, promo.ID, SequentialLabel(i+1)); err != nil {
			return summary, fmt.Errorf("numbering promo %d: %w", promo.ID, err)
		}
		summary.Sequential++
	}

	latest, err := e.store.LatestPromo(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return summary, fmt.Errorf("getting latest promo: %w", err)
	default:
		summary.Latest = latest.Date
	}

	return summary, nil
}

func SequentialLabel(n int) string {
	return fmt.Sprintf("%0*d", labelWidth, n)
}

// RandomLabel draws labelWidth lowercase letters. Collisions are possible and
// not checked.
func RandomLabel() string {
	b := make([]byte, labelWidth)
	for i := range b {
		b[i] = randomLabelChars[rand.IntN(len(randomLabelChars))]
	}
	return string(b)
}

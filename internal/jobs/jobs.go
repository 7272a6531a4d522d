// Package jobs is the boundary for long-running admin jobs: whatever the job
// returns or panics with ends up as a *Error with a short detail, logged
// once here.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

type Kind string

const (
	KindBusy     Kind = "busy"
	KindStorage  Kind = "storage"
	KindDelivery Kind = "delivery"
	KindInternal Kind = "internal"
)

const maxDetailLen = 200

type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Fail builds an error of a given kind, for jobs that know what went wrong.
func Fail(kind Kind, err error) *Error {
	return &Error{Kind: kind, Detail: shorten(err.Error()), Err: err}
}

// Run executes fn. Errors not already classified by fn are reported as
// storage failures, panics as internal ones.
func Run[T any](ctx context.Context, log *logrus.Entry, name string, fn func(ctx context.Context) (T, error)) (result T, jobErr *Error) {
	log = log.WithField("job", name)
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			jobErr = &Error{Kind: KindInternal, Detail: shorten(fmt.Sprint(r)), Err: fmt.Errorf("panic: %v", r)}
		}
		if jobErr != nil {
			log.Errorf("job failed after %s: %v", time.Since(started), jobErr.Err)
			return
		}
		log.Infof("job finished in %s", time.Since(started))
	}()

	log.Info("job started")
	res, err := fn(ctx)
	if err == nil {
		return res, nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return res, classified
	}
	return res, Fail(KindStorage, err)
}

func shorten(s string) string {
	if len(s) <= maxDetailLen {
		return s
	}
	cut := maxDetailLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}

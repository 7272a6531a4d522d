package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"time"

	"github.com/C4T-BuT-S4D/promobot/internal/conversation"
	"github.com/C4T-BuT-S4D/promobot/internal/export"
	"github.com/C4T-BuT-S4D/promobot/internal/jobs"
	"github.com/C4T-BuT-S4D/promobot/internal/ledger"
	"github.com/C4T-BuT-S4D/promobot/internal/reconcile"
	"github.com/C4T-BuT-S4D/promobot/internal/texts"
)

// jobContext detaches uc from the per-update timeout, jobs get their own.
func (d *Dispatcher) jobContext(uc *UpdateContext) (*UpdateContext, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(uc), d.config.JobTimeout)
	return uc.WithContext(ctx), cancel
}

func (d *Dispatcher) reportJobError(uc *UpdateContext, jobErr *jobs.Error) {
	if jobErr.Kind == jobs.KindBusy {
		d.send(uc, texts.JobBusy, nil)
		return
	}
	d.send(uc, fmt.Sprintf(texts.JobError, html.EscapeString(jobErr.Detail)), nil)
}

func parseMonthFilter(args []string) (*ledger.MonthFilter, error) {
	switch len(args) {
	case 0:
		return nil, nil
	case 2:
	default:
		return nil, invalid(texts.ExportUsage)
	}

	month, err := strconv.Atoi(args[0])
	if err != nil {
		return nil, invalid(texts.ExportUsage)
	}
	year, err := strconv.Atoi(args[1])
	if err != nil {
		return nil, invalid(texts.ExportUsage)
	}

	f := &ledger.MonthFilter{Month: time.Month(month), Year: year}
	if err := f.Validate(); err != nil {
		return nil, invalid(texts.ExportUsage)
	}
	return f, nil
}

func (d *Dispatcher) handleExport(uc *UpdateContext, args []string) error {
	filter, err := parseMonthFilter(args)
	if err != nil {
		d.send(uc, notice(err, texts.ExportUsage), nil)
		return nil
	}

	uc, cancel := d.jobContext(uc)
	defer cancel()

	art, jobErr := jobs.Run(uc, uc.L(), "export", func(ctx context.Context) (*export.Artifact, error) {
		promos, err := d.deps.Ledger.ListAll(ctx, filter)
		if err != nil {
			return nil, err
		}
		if len(promos) == 0 {
			return nil, nil
		}

		f := d.deps.Ledger.CurrentMonth()
		if filter != nil {
			f = *filter
		}

		hourglass := d.send(uc, texts.Hourglass, nil)
		d.typing(uc)
		preparing := d.send(uc, texts.GettingReady, nil)
		defer d.deleteMessage(uc, hourglass)
		defer d.deleteMessage(uc, preparing)

		art, err := d.deps.Exporter.Build(promos, f.Month, f.Year)
		if err != nil {
			return nil, jobs.Fail(jobs.KindInternal, err)
		}
		if err := d.deps.Transport.SendDocument(ctx, uc.ChatID(), art.Name, bytes.NewReader(art.Data)); err != nil {
			return nil, jobs.Fail(jobs.KindDelivery, err)
		}
		return art, nil
	})
	switch {
	case jobErr != nil:
		d.reportJobError(uc, jobErr)
	case art == nil:
		d.typing(uc)
		d.send(uc, texts.NoData, nil)
	default:
		uc.L().Infof("exported %s", art.Name)
	}
	return nil
}

func (d *Dispatcher) handleBlock(uc *UpdateContext, _ []string) error {
	if err := d.setStage(uc, conversation.StageAwaitingBlockPhone); err != nil {
		return err
	}
	d.typing(uc)
	d.send(uc, texts.AskBlockPhone, nil)
	return nil
}

func (d *Dispatcher) handleEraseAll(uc *UpdateContext, _ []string) error {
	uc, cancel := d.jobContext(uc)
	defer cancel()

	d.typing(uc)
	removed, jobErr := jobs.Run(uc, uc.L(), "erase_all", d.deps.Ledger.EraseAll)
	if jobErr != nil {
		d.reportJobError(uc, jobErr)
		return nil
	}
	d.send(uc, fmt.Sprintf(texts.ErasedCount, removed), nil)
	return nil
}

func (d *Dispatcher) handleBroadcast(uc *UpdateContext, _ []string) error {
	if err := d.setStage(uc, conversation.StageAwaitingBroadcastMessage); err != nil {
		return err
	}
	d.typing(uc)
	d.send(uc, texts.AskBroadcast, nil)
	return nil
}

type broadcastResult struct {
	delivered int
	total     int
}

// broadcast sends the admin's message to every registered user who isn't
// blocked. Undelivered messages are logged and skipped.
func (d *Dispatcher) broadcast(uc *UpdateContext, _ conversation.State) (string, string, error) {
	message := html.EscapeString(uc.Update().Text)

	uc, cancel := d.jobContext(uc)
	defer cancel()

	res, jobErr := jobs.Run(uc, uc.L(), "broadcast", func(ctx context.Context) (broadcastResult, error) {
		users, err := d.deps.Users.ListUsers(ctx)
		if err != nil {
			return broadcastResult{}, err
		}
		blockedList, err := d.deps.Users.ListBlockedPhones(ctx)
		if err != nil {
			return broadcastResult{}, err
		}
		blocked := make(map[string]struct{}, len(blockedList))
		for _, p := range blockedList {
			blocked[p] = struct{}{}
		}

		var (
			res      broadcastResult
			failures error
		)
		for _, u := range users {
			if _, ok := blocked[u.Phone]; ok || u.ChatID == 0 {
				continue
			}
			res.total++

			if _, err := d.deps.Transport.SendText(ctx, u.ChatID, message, nil); err != nil {
				failures = errors.Join(failures, fmt.Errorf("user %d: %w", u.TelegramID, err))
			} else {
				res.delivered++
			}

			if err := sleepCtx(ctx, d.config.BroadcastInterval); err != nil {
				return res, jobs.Fail(jobs.KindDelivery, err)
			}
		}
		if failures != nil {
			uc.L().Warnf("broadcast partially failed: %v", failures)
		}
		return res, nil
	})
	if jobErr != nil {
		d.reportJobError(uc, jobErr)
		return "", "", nil
	}

	d.send(uc, fmt.Sprintf(texts.BroadcastDone, res.delivered, res.total), nil)
	return "", "", nil
}

func (d *Dispatcher) handleReconcile(uc *UpdateContext, _ []string) error {
	d.typing(uc)
	d.send(uc, texts.ReconcileStarted, nil)

	uc, cancel := d.jobContext(uc)
	defer cancel()

	summary, jobErr := jobs.Run(uc, uc.L(), "reconcile", func(ctx context.Context) (*reconcile.Summary, error) {
		summary, err := d.deps.Engine.Run(ctx, d.deps.Window)
		if errors.Is(err, reconcile.ErrAlreadyRunning) {
			return nil, jobs.Fail(jobs.KindBusy, err)
		}
		return summary, err
	})
	if jobErr != nil {
		d.reportJobError(uc, jobErr)
		return nil
	}

	d.typing(uc)
	if summary.Latest.IsZero() {
		d.send(uc, texts.ReconcileEmpty, nil)
		return nil
	}
	d.send(uc, fmt.Sprintf(
		texts.ReconcileDone,
		summary.Random,
		summary.Window,
		summary.Sequential,
		summary.Latest.In(d.deps.Window.From.Location()).Format(time.DateTime),
	), nil)
	return nil
}

func (d *Dispatcher) handleStats(uc *UpdateContext, _ []string) error {
	stats, err := d.deps.Ledger.Stats(uc)
	if err != nil {
		return err
	}
	d.send(uc, fmt.Sprintf(texts.UsersCount, stats.Users, stats.Promos), nil)
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Package billing computes and mutates per-user monthly payment schedules.
// Every operation runs inside a single store transaction: either all of its
// writes land or none do.
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/punithbm/attendance-bot/internal/domain"
	"github.com/punithbm/attendance-bot/internal/store"
)

const (
	defaultDueLimit = 5
)

var (
	ErrBadInput = errors.New("invalid input")
	ErrNoRecord = errors.New("no schedule record for that month")
)

// Engine is the billing schedule engine.
type Engine struct {
	store        store.Store
	log          *zap.Logger
	cooldownDays int
	dueLimit     int
	now          func() time.Time
}

// New builds an Engine. cooldownDays is the follow-up cooldown window;
// dueLimit caps the due list (<=0 falls back to the default of 5).
func New(st store.Store, log *zap.Logger, cooldownDays, dueLimit int) *Engine {
	if dueLimit <= 0 {
		dueLimit = defaultDueLimit
	}
	return &Engine{
		store:        st,
		log:          log,
		cooldownDays: cooldownDays,
		dueLimit:     dueLimit,
		now:          func() time.Time { return time.Now() },
	}
}

// AddUser registers a new active member and returns their id.
func (e *Engine) AddUser(ctx context.Context, name, mobile, batchID string) (int64, error) {
	if name == "" || mobile == "" {
		return 0, fmt.Errorf("%w: name and mobile are required", ErrBadInput)
	}
	id, err := e.store.CreateUser(ctx, &domain.User{
		Name:    name,
		Mobile:  mobile,
		BatchID: batchID,
		Status:  domain.UserActive,
	})
	if err != nil {
		e.log.Error("add user failed", zap.String("name", name), zap.Error(err))
		return 0, err
	}
	e.log.Info("user added", zap.Int64("userID", id), zap.String("name", name))
	return id, nil
}

// GenerateSchedule splits totalPaise evenly across `months` slots starting at
// the current month and upserts one Due record per slot. Re-running targets
// exactly the same (month, year) slots: existing records are overwritten with
// the new amount, dates and batch, and forced back to Due even if Paid.
func (e *Engine) GenerateSchedule(ctx context.Context, userID, totalPaise int64, months int, batchID string) error {
	if months < 1 {
		return fmt.Errorf("%w: months must be >= 1, got %d", ErrBadInput, months)
	}
	if totalPaise < 0 {
		return fmt.Errorf("%w: amount must be >= 0", ErrBadInput)
	}

	amounts := domain.SplitAmount(totalPaise, months)
	today := domain.DateOnly(e.now())

	err := e.store.InTx(ctx, func(tx store.Tx) error {
		for i := 0; i < months; i++ {
			start := domain.AddMonths(today, i)
			existing, err := tx.GetRecord(ctx, userID, start.Month(), start.Year())
			if err != nil {
				return err
			}

			status := domain.StatusDue
			if existing != nil {
				if status, err = domain.NextStatus(existing.Status, domain.TransitionRegenerate); err != nil {
					return err
				}
			}

			rec := &domain.ScheduleRecord{
				UserID:      userID,
				Month:       start.Month(),
				Year:        start.Year(),
				AmountPaise: amounts[i],
				PeriodStart: start,
				PeriodEnd:   domain.LastOfMonth(start),
				Status:      status,
				BatchID:     batchID,
			}
			if err := tx.UpsertRecord(ctx, rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		e.log.Error("generate schedule failed",
			zap.Int64("userID", userID), zap.Int("months", months), zap.Error(err))
		return err
	}

	e.log.Info("schedule generated",
		zap.Int64("userID", userID), zap.Int("months", months),
		zap.String("total", domain.FormatPaise(totalPaise)))
	return nil
}

// DueUsers lists users with unresolved due months, oldest debt first, one row
// per user, excluding anyone contacted within the cooldown window.
func (e *Engine) DueUsers(ctx context.Context) ([]store.DueRow, error) {
	return e.store.DueUsers(ctx, e.now(), e.cooldownDays, e.dueLimit)
}

// PaidUsers lists users who have settled the current month.
func (e *Engine) PaidUsers(ctx context.Context) ([]store.PaidRow, error) {
	return e.store.PaidUsers(ctx, e.now())
}

// MarkPaid settles the current year's record for the given month.
func (e *Engine) MarkPaid(ctx context.Context, userID int64, month time.Month) error {
	return e.mark(ctx, userID, month, domain.TransitionPay)
}

// MarkIgnored writes off the current year's record for the given month:
// status Paid, amount zeroed. Not a real payment.
func (e *Engine) MarkIgnored(ctx context.Context, userID int64, month time.Month) error {
	return e.mark(ctx, userID, month, domain.TransitionIgnore)
}

func (e *Engine) mark(ctx context.Context, userID int64, month time.Month, via domain.Transition) error {
	year := e.now().Year()
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		rec, err := tx.GetRecord(ctx, userID, month, year)
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("%w: user %d, %s %d", ErrNoRecord, userID, month, year)
		}
		next, err := domain.NextStatus(rec.Status, via)
		if err != nil {
			return err
		}
		rec.Status = next
		if via == domain.TransitionIgnore {
			rec.AmountPaise = 0
		}
		return tx.UpsertRecord(ctx, rec)
	})
	if err != nil {
		e.log.Error("mark status failed",
			zap.Int64("userID", userID), zap.String("month", month.String()),
			zap.String("via", string(via)), zap.Error(err))
		return err
	}
	return nil
}

// MarkFollowUp stamps today's date into the record's follow-up field, keeping
// the payment status untouched. The user drops out of the due list until the
// cooldown window elapses.
func (e *Engine) MarkFollowUp(ctx context.Context, userID int64, month time.Month) error {
	now := e.now()
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		return tx.SetFollowUp(ctx, userID, month, now.Year(), domain.DateOnly(now))
	})
	if err != nil {
		e.log.Error("follow-up stamp failed",
			zap.Int64("userID", userID), zap.String("month", month.String()), zap.Error(err))
		return err
	}
	return nil
}

// ApplyPack settles packLen consecutive months in one transaction. The anchor
// is the user's earliest Due month; the caller's hint only applies when no
// overdue month exists. Months already Paid are skipped, Due months are
// settled with the new amount and batch, and absent months are created Paid.
func (e *Engine) ApplyPack(ctx context.Context, userID int64, hintMonth time.Month, packLen int, perMonthPaise int64, batchID string) error {
	if packLen != 3 && packLen != 6 {
		return fmt.Errorf("%w: pack length must be 3 or 6, got %d", ErrBadInput, packLen)
	}
	if perMonthPaise < 0 {
		return fmt.Errorf("%w: amount must be >= 0", ErrBadInput)
	}

	now := e.now()
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		anchor, err := e.packAnchor(ctx, tx, userID, hintMonth, now)
		if err != nil {
			return err
		}

		for i := 0; i < packLen; i++ {
			start := domain.AddMonths(anchor, i)
			rec, err := tx.GetRecord(ctx, userID, start.Month(), start.Year())
			if err != nil {
				return err
			}

			switch {
			case rec == nil:
				rec = &domain.ScheduleRecord{
					UserID:      userID,
					Month:       start.Month(),
					Year:        start.Year(),
					AmountPaise: perMonthPaise,
					PeriodStart: start,
					PeriodEnd:   domain.LastOfMonth(start),
					Status:      domain.StatusPaid,
					BatchID:     batchID,
				}
			case rec.Status == domain.StatusPaid:
				// Already reconciled; never clobber a full payment.
				continue
			default:
				next, err := domain.NextStatus(rec.Status, domain.TransitionPack)
				if err != nil {
					return err
				}
				rec.Status = next
				rec.AmountPaise = perMonthPaise
				rec.BatchID = batchID
			}
			if err := tx.UpsertRecord(ctx, rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		e.log.Error("pack payment failed",
			zap.Int64("userID", userID), zap.Int("packLen", packLen), zap.Error(err))
		return err
	}

	e.log.Info("pack payment applied",
		zap.Int64("userID", userID), zap.Int("packLen", packLen),
		zap.String("perMonth", domain.FormatPaise(perMonthPaise)))
	return nil
}

// packAnchor resolves the month a pack starts at. Overdue months are cleared
// first, so the earliest Due record wins over the caller's hint.
func (e *Engine) packAnchor(ctx context.Context, tx store.Tx, userID int64, hintMonth time.Month, now time.Time) (time.Time, error) {
	earliest, err := tx.EarliestDue(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}
	if earliest != nil {
		return earliest.PeriodStart, nil
	}
	hinted, err := tx.GetRecord(ctx, userID, hintMonth, now.Year())
	if err != nil {
		return time.Time{}, err
	}
	if hinted != nil {
		return hinted.PeriodStart, nil
	}
	return domain.FirstOfMonth(hintMonth, now.Year(), now.Location()), nil
}

// Deactivate closes out a member: the current year's record for `month` is
// zeroed and set Paid, every record starting after that month's end is
// deleted, and the user is flagged inactive. Terminal for billing purposes.
func (e *Engine) Deactivate(ctx context.Context, userID int64, month time.Month) error {
	now := e.now()
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		cutoff := domain.LastOfMonth(domain.FirstOfMonth(month, now.Year(), now.Location()))

		rec, err := tx.GetRecord(ctx, userID, month, now.Year())
		if err != nil {
			return err
		}
		if rec != nil {
			rec.AmountPaise = 0
			rec.Status = domain.StatusPaid
			if err := tx.UpsertRecord(ctx, rec); err != nil {
				return err
			}
			cutoff = rec.PeriodEnd
		}

		if err := tx.DeleteStartingAfter(ctx, userID, cutoff); err != nil {
			return err
		}
		return tx.SetUserStatus(ctx, userID, domain.UserInactive)
	})
	if err != nil {
		e.log.Error("deactivate failed", zap.Int64("userID", userID), zap.Error(err))
		return err
	}

	e.log.Info("user deactivated", zap.Int64("userID", userID))
	return nil
}

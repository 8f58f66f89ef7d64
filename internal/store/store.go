package store

import (
	"context"
	"time"

	"github.com/punithbm/attendance-bot/internal/domain"
)

// DueRow is one user in the due list, keyed by their oldest unresolved month.
type DueRow struct {
	UserID    int64
	Name      string
	Mobile    string
	Month     time.Month
	Year      int
	StartDate time.Time
}

// PaidRow is one user who has settled the current month.
type PaidRow struct {
	UserID      int64
	Name        string
	Mobile      string
	AmountPaise int64
}

// Tx is the set of schedule mutations available inside one transaction.
// Every billing engine operation runs entirely within one Tx; on error the
// whole transaction rolls back and no partial writes survive.
type Tx interface {
	// GetRecord returns the record for (userID, month, year), or (nil, nil)
	// when no such record exists.
	GetRecord(ctx context.Context, userID int64, month time.Month, year int) (*domain.ScheduleRecord, error)
	// EarliestDue returns the user's oldest Due record, or (nil, nil).
	EarliestDue(ctx context.Context, userID int64) (*domain.ScheduleRecord, error)
	// UpsertRecord inserts or fully overwrites the (userID, month, year) slot.
	UpsertRecord(ctx context.Context, rec *domain.ScheduleRecord) error
	// SetFollowUp stamps the follow-up date on an existing record.
	SetFollowUp(ctx context.Context, userID int64, month time.Month, year int, day time.Time) error
	// DeleteStartingAfter removes the user's records whose period starts
	// strictly after cutoff.
	DeleteStartingAfter(ctx context.Context, userID int64, cutoff time.Time) error
	// SetUserStatus flips the user's active/inactive flag.
	SetUserStatus(ctx context.Context, userID int64, status string) error
}

// Store is the persistence boundary of the billing engine.
type Store interface {
	// InTx runs fn inside a single transaction, committing on nil and
	// rolling back on error.
	InTx(ctx context.Context, fn func(Tx) error) error
	// DueUsers returns up to limit users holding at least one Due record not
	// contacted within the cooldown window, one row per user, ordered by
	// oldest due date ascending.
	DueUsers(ctx context.Context, now time.Time, cooldownDays, limit int) ([]DueRow, error)
	// PaidUsers returns users with a Paid record for the month containing now.
	PaidUsers(ctx context.Context, now time.Time) ([]PaidRow, error)
	// CreateUser inserts a member row and returns its id.
	CreateUser(ctx context.Context, u *domain.User) (int64, error)
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	Close() error
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Registers the "sqlite" driver (pure Go).
	_ "modernc.org/sqlite"

	"github.com/punithbm/attendance-bot/internal/domain"
)

// SQLiteStore implements Store on an embedded SQLite database.
type SQLiteStore struct{ db *sql.DB }

// OpenSQLite opens (or creates) the database at path, applies PRAGMAs,
// runs embedded migrations, and returns the store.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Single-writer engine; keep the pool at one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database resources.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// InTx runs fn inside a transaction, committing on nil and rolling back on error.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(&sqliteTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// CreateUser inserts a member row and returns its id.
func (s *SQLiteStore) CreateUser(ctx context.Context, u *domain.User) (int64, error) {
	if u == nil {
		return 0, errors.New("nil user")
	}
	status := u.Status
	if status == "" {
		status = domain.UserActive
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (name, mobile, batch_id, status, last_date_attended)
		VALUES (?, ?, ?, ?, ?)`,
		u.Name, u.Mobile, u.BatchID, status, toNullDate(u.LastAttended),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetUser returns a member by id.
func (s *SQLiteStore) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, mobile, batch_id, status, last_date_attended
		FROM users
		WHERE id = ?`,
		id,
	)

	var (
		u      domain.User
		lastNS sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Mobile, &u.BatchID, &u.Status, &lastNS); err != nil {
		return nil, err
	}
	last, err := fromNullDate(lastNS)
	if err != nil {
		return nil, err
	}
	u.LastAttended = last
	return &u, nil
}

// DueUsers returns up to limit users with an unresolved Due month, one row per
// user keyed by the oldest due record, longest-overdue first. Records whose
// follow-up date falls within the cooldown window are excluded before grouping.
func (s *SQLiteStore) DueUsers(ctx context.Context, now time.Time, cooldownDays, limit int) ([]DueRow, error) {
	cutoff := now.AddDate(0, 0, -cooldownDays)

	// With MIN() in the select list, SQLite resolves the bare ps.month and
	// ps.year from the same row that produced the minimum start_date.
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.name, u.mobile, ps.month, ps.year, MIN(ps.start_date)
		FROM users u
		JOIN payment_schedule ps
		  ON ps.user_id = u.id AND ps.payment_status = 'Due'
		WHERE ps.follow_up IS NULL OR ps.follow_up < ?
		GROUP BY u.id, u.name, u.mobile
		ORDER BY MIN(ps.start_date) ASC
		LIMIT ?`,
		toDateString(cutoff), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []DueRow
	for rows.Next() {
		var (
			r        DueRow
			monthInt int
			startStr string
		)
		if err := rows.Scan(&r.UserID, &r.Name, &r.Mobile, &monthInt, &r.Year, &startStr); err != nil {
			return nil, err
		}
		r.Month = time.Month(monthInt)
		if r.StartDate, err = parseDate(startStr); err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

// PaidUsers returns users holding a Paid record for the month containing now.
func (s *SQLiteStore) PaidUsers(ctx context.Context, now time.Time) ([]PaidRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.name, u.mobile, ps.amount
		FROM users u
		JOIN payment_schedule ps ON ps.user_id = u.id
		WHERE ps.month = ? AND ps.year = ? AND ps.payment_status = 'Paid'
		ORDER BY u.name ASC`,
		int(now.Month()), now.Year(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []PaidRow
	for rows.Next() {
		var r PaidRow
		if err := rows.Scan(&r.UserID, &r.Name, &r.Mobile, &r.AmountPaise); err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

// sqliteTx implements Tx over an open *sql.Tx.
type sqliteTx struct{ tx *sql.Tx }

const recordColumns = `user_id, month, year, amount, start_date, end_date, payment_status, follow_up, batch_id`

func scanRecord(row *sql.Row) (*domain.ScheduleRecord, error) {
	var (
		rec      domain.ScheduleRecord
		monthInt int
		startStr string
		endStr   string
		status   string
		fuNS     sql.NullString
	)
	err := row.Scan(&rec.UserID, &monthInt, &rec.Year, &rec.AmountPaise,
		&startStr, &endStr, &status, &fuNS, &rec.BatchID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.Month = time.Month(monthInt)
	rec.Status = domain.PaymentStatus(status)
	if rec.PeriodStart, err = parseDate(startStr); err != nil {
		return nil, err
	}
	if rec.PeriodEnd, err = parseDate(endStr); err != nil {
		return nil, err
	}
	if rec.FollowUp, err = fromNullDate(fuNS); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (t *sqliteTx) GetRecord(ctx context.Context, userID int64, month time.Month, year int) (*domain.ScheduleRecord, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM payment_schedule
		WHERE user_id = ? AND month = ? AND year = ?`,
		userID, int(month), year,
	)
	return scanRecord(row)
}

func (t *sqliteTx) EarliestDue(ctx context.Context, userID int64) (*domain.ScheduleRecord, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM payment_schedule
		WHERE user_id = ? AND payment_status = 'Due'
		ORDER BY start_date ASC
		LIMIT 1`,
		userID,
	)
	return scanRecord(row)
}

func (t *sqliteTx) UpsertRecord(ctx context.Context, rec *domain.ScheduleRecord) error {
	if rec == nil {
		return errors.New("nil record")
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO payment_schedule (
			user_id, month, year, amount, start_date, end_date,
			payment_status, follow_up, batch_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, month, year) DO UPDATE SET
			amount         = excluded.amount,
			start_date     = excluded.start_date,
			end_date       = excluded.end_date,
			payment_status = excluded.payment_status,
			follow_up      = excluded.follow_up,
			batch_id       = excluded.batch_id`,
		rec.UserID, int(rec.Month), rec.Year, rec.AmountPaise,
		toDateString(rec.PeriodStart), toDateString(rec.PeriodEnd),
		string(rec.Status), toNullDate(rec.FollowUp), rec.BatchID,
	)
	return err
}

func (t *sqliteTx) SetFollowUp(ctx context.Context, userID int64, month time.Month, year int, day time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE payment_schedule
		SET follow_up = ?
		WHERE user_id = ? AND month = ? AND year = ?`,
		toDateString(day), userID, int(month), year,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (t *sqliteTx) DeleteStartingAfter(ctx context.Context, userID int64, cutoff time.Time) error {
	_, err := t.tx.ExecContext(ctx, `
		DELETE FROM payment_schedule
		WHERE user_id = ? AND start_date > ?`,
		userID, toDateString(cutoff),
	)
	return err
}

func (t *sqliteTx) SetUserStatus(ctx context.Context, userID int64, status string) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE users
		SET status = ?
		WHERE id = ?`,
		status, userID,
	)
	return err
}

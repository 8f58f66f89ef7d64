package billing

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/punithbm/attendance-bot/internal/domain"
	"github.com/punithbm/attendance-bot/internal/store"
)

// memStore is an in-memory store.Store with commit/rollback semantics:
// a transaction works on a copy and replaces the live map only on success.
type memStore struct {
	records map[slotKey]*domain.ScheduleRecord
	users   map[int64]*domain.User

	failUpsertAt int // 1-based upsert call that fails; 0 disables
	upsertCalls  int
}

type slotKey struct {
	user  int64
	month time.Month
	year  int
}

func newMemStore() *memStore {
	return &memStore{
		records: make(map[slotKey]*domain.ScheduleRecord),
		users:   make(map[int64]*domain.User),
	}
}

func (m *memStore) addUser(id int64, name string) {
	m.users[id] = &domain.User{ID: id, Name: name, Mobile: "9999900000", Status: domain.UserActive}
}

func (m *memStore) put(rec domain.ScheduleRecord) {
	m.records[slotKey{rec.UserID, rec.Month, rec.Year}] = &rec
}

func (m *memStore) get(user int64, month time.Month, year int) *domain.ScheduleRecord {
	return m.records[slotKey{user, month, year}]
}

func (m *memStore) InTx(_ context.Context, fn func(store.Tx) error) error {
	staged := make(map[slotKey]*domain.ScheduleRecord, len(m.records))
	for k, v := range m.records {
		cp := *v
		staged[k] = &cp
	}
	users := make(map[int64]*domain.User, len(m.users))
	for k, v := range m.users {
		cp := *v
		users[k] = &cp
	}

	tx := &memTx{s: m, records: staged, users: users}
	if err := fn(tx); err != nil {
		return err
	}
	m.records = staged
	m.users = users
	return nil
}

func (m *memStore) DueUsers(_ context.Context, now time.Time, cooldownDays, limit int) ([]store.DueRow, error) {
	cutoff := now.AddDate(0, 0, -cooldownDays)
	oldest := make(map[int64]*domain.ScheduleRecord)
	for _, rec := range m.records {
		if rec.Status != domain.StatusDue {
			continue
		}
		if rec.FollowUp != nil && !rec.FollowUp.Before(cutoff) {
			continue
		}
		if cur, ok := oldest[rec.UserID]; !ok || rec.PeriodStart.Before(cur.PeriodStart) {
			oldest[rec.UserID] = rec
		}
	}

	var rows []store.DueRow
	for uid, rec := range oldest {
		u := m.users[uid]
		rows = append(rows, store.DueRow{
			UserID:    uid,
			Name:      u.Name,
			Mobile:    u.Mobile,
			Month:     rec.Month,
			Year:      rec.Year,
			StartDate: rec.PeriodStart,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].StartDate.Before(rows[j].StartDate) })
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (m *memStore) PaidUsers(_ context.Context, now time.Time) ([]store.PaidRow, error) {
	var rows []store.PaidRow
	for _, rec := range m.records {
		if rec.Status == domain.StatusPaid && rec.Month == now.Month() && rec.Year == now.Year() {
			u := m.users[rec.UserID]
			rows = append(rows, store.PaidRow{UserID: rec.UserID, Name: u.Name, Mobile: u.Mobile, AmountPaise: rec.AmountPaise})
		}
	}
	return rows, nil
}

func (m *memStore) CreateUser(_ context.Context, u *domain.User) (int64, error) {
	id := int64(len(m.users) + 1)
	cp := *u
	cp.ID = id
	m.users[id] = &cp
	return id, nil
}

func (m *memStore) GetUser(_ context.Context, id int64) (*domain.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, errors.New("user not found")
	}
	return u, nil
}

func (m *memStore) Close() error { return nil }

type memTx struct {
	s       *memStore
	records map[slotKey]*domain.ScheduleRecord
	users   map[int64]*domain.User
}

func (t *memTx) GetRecord(_ context.Context, userID int64, month time.Month, year int) (*domain.ScheduleRecord, error) {
	rec, ok := t.records[slotKey{userID, month, year}]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (t *memTx) EarliestDue(_ context.Context, userID int64) (*domain.ScheduleRecord, error) {
	var best *domain.ScheduleRecord
	for _, rec := range t.records {
		if rec.UserID != userID || rec.Status != domain.StatusDue {
			continue
		}
		if best == nil || rec.PeriodStart.Before(best.PeriodStart) {
			best = rec
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (t *memTx) UpsertRecord(_ context.Context, rec *domain.ScheduleRecord) error {
	t.s.upsertCalls++
	if t.s.failUpsertAt > 0 && t.s.upsertCalls == t.s.failUpsertAt {
		return errors.New("injected upsert failure")
	}
	cp := *rec
	t.records[slotKey{rec.UserID, rec.Month, rec.Year}] = &cp
	return nil
}

func (t *memTx) SetFollowUp(_ context.Context, userID int64, month time.Month, year int, day time.Time) error {
	rec, ok := t.records[slotKey{userID, month, year}]
	if !ok {
		return errors.New("no record")
	}
	d := day
	rec.FollowUp = &d
	return nil
}

func (t *memTx) DeleteStartingAfter(_ context.Context, userID int64, cutoff time.Time) error {
	for k, rec := range t.records {
		if rec.UserID == userID && rec.PeriodStart.After(cutoff) {
			delete(t.records, k)
		}
	}
	return nil
}

func (t *memTx) SetUserStatus(_ context.Context, userID int64, status string) error {
	u, ok := t.users[userID]
	if !ok {
		return errors.New("user not found")
	}
	u.Status = status
	return nil
}

// ---

func newTestEngine(t *testing.T, st *memStore, now time.Time) *Engine {
	t.Helper()
	e := New(st, zap.NewNop(), 4, 5)
	e.now = func() time.Time { return now }
	return e
}

func dueRecord(user int64, month time.Month, year int, amount int64) domain.ScheduleRecord {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return domain.ScheduleRecord{
		UserID:      user,
		Month:       month,
		Year:        year,
		AmountPaise: amount,
		PeriodStart: start,
		PeriodEnd:   domain.LastOfMonth(start),
		Status:      domain.StatusDue,
	}
}

var testNow = time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)

func TestGenerateSchedule_CreatesDueRecords(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	st.addUser(1, "Asha")
	e := newTestEngine(t, st, testNow)

	require.NoError(t, e.GenerateSchedule(ctx, 1, 300000, 3, "83527645001"))

	for i, month := range []time.Month{time.January, time.February, time.March} {
		rec := st.get(1, month, 2025)
		require.NotNil(t, rec, "missing record for %s", month)
		assert.Equal(t, domain.StatusDue, rec.Status)
		assert.Equal(t, int64(100000), rec.AmountPaise)
		assert.Equal(t, "83527645001", rec.BatchID)
		assert.Equal(t, month, rec.PeriodStart.Month(), "period start inside slot %d", i)
		assert.Equal(t, month, rec.PeriodEnd.Month())
		assert.Equal(t, 2025, rec.PeriodStart.Year())
	}
	assert.Len(t, st.records, 3)
}

func TestGenerateSchedule_RemainderGoesToFirstMonth(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	st.addUser(1, "Asha")
	e := newTestEngine(t, st, testNow)

	require.NoError(t, e.GenerateSchedule(ctx, 1, 100000, 3, "b"))

	assert.Equal(t, int64(33334), st.get(1, time.January, 2025).AmountPaise)
	assert.Equal(t, int64(33333), st.get(1, time.February, 2025).AmountPaise)
	assert.Equal(t, int64(33333), st.get(1, time.March, 2025).AmountPaise)
}

func TestGenerateSchedule_RerunOverwritesSameSlots(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	st.addUser(1, "Asha")
	e := newTestEngine(t, st, testNow)

	require.NoError(t, e.GenerateSchedule(ctx, 1, 300000, 3, "b1"))
	require.NoError(t, e.MarkPaid(ctx, 1, time.January))

	// Regeneration overwrites the same three slots and downgrades Paid back to Due.
	require.NoError(t, e.GenerateSchedule(ctx, 1, 600000, 3, "b2"))

	assert.Len(t, st.records, 3, "no duplicate slots")
	jan := st.get(1, time.January, 2025)
	assert.Equal(t, domain.StatusDue, jan.Status)
	assert.Equal(t, int64(200000), jan.AmountPaise)
	assert.Equal(t, "b2", jan.BatchID)
}

func TestGenerateSchedule_ValidatesInput(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, newMemStore(), testNow)

	assert.ErrorIs(t, e.GenerateSchedule(ctx, 1, 1000, 0, "b"), ErrBadInput)
	assert.ErrorIs(t, e.GenerateSchedule(ctx, 1, -1, 3, "b"), ErrBadInput)
}

func TestGenerateSchedule_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	st.addUser(1, "Asha")
	st.failUpsertAt = 2
	e := newTestEngine(t, st, testNow)

	err := e.GenerateSchedule(ctx, 1, 300000, 3, "b")
	require.Error(t, err)
	assert.Empty(t, st.records, "failed batch must leave no partial writes")
}

func TestMarkPaid(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	st.addUser(1, "Asha")
	st.put(dueRecord(1, time.January, 2025, 100000))
	e := newTestEngine(t, st, testNow)

	require.NoError(t, e.MarkPaid(ctx, 1, time.January))

	rec := st.get(1, time.January, 2025)
	assert.Equal(t, domain.StatusPaid, rec.Status)
	assert.Equal(t, int64(100000), rec.AmountPaise, "paying keeps the amount")
}

func TestMarkPaid_RejectsPaidMonth(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	st.addUser(1, "Asha")
	rec := dueRecord(1, time.January, 2025, 100000)
	rec.Status = domain.StatusPaid
	st.put(rec)
	e := newTestEngine(t, st, testNow)

	assert.ErrorIs(t, e.MarkPaid(ctx, 1, time.January), domain.ErrBadTransition)
}

func TestMarkPaid_NoRecord(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	st.addUser(1, "Asha")
	e := newTestEngine(t, st, testNow)

	assert.ErrorIs(t, e.MarkPaid(ctx, 1, time.July), ErrNoRecord)
}

func TestMarkIgnored_ZeroesAmount(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	st.addUser(1, "Asha")
	st.put(dueRecord(1, time.January, 2025, 100000))
	e := newTestEngine(t, st, testNow)

	require.NoError(t, e.MarkIgnored(ctx, 1, time.January))

	rec := st.get(1, time.January, 2025)
	assert.Equal(t, domain.StatusPaid, rec.Status)
	assert.Zero(t, rec.AmountPaise, "ignore is a write-off")
}

func TestMarkFollowUp_SuppressesDueListing(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	st.addUser(1, "Asha")
	st.put(dueRecord(1, time.January, 2025, 100000))
	e := newTestEngine(t, st, testNow)

	rows, err := e.DueUsers(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	require.NoError(t, e.MarkFollowUp(ctx, 1, time.January))

	rec := st.get(1, time.January, 2025)
	assert.Equal(t, domain.StatusDue, rec.Status, "follow-up leaves status alone")
	require.NotNil(t, rec.FollowUp)
	assert.Equal(t, testNow.Day(), rec.FollowUp.Day())

	rows, err = e.DueUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows, "contacted user drops out until the cooldown elapses")
}

func TestDueUsers_OnePerUserOrderedOldestFirst(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	st.addUser(1, "Veteran")
	st.addUser(2, "Newcomer")
	st.put(dueRecord(1, time.November, 2024, 100000))
	st.put(dueRecord(1, time.December, 2024, 100000))
	st.put(dueRecord(2, time.January, 2025, 100000))
	e := newTestEngine(t, st, testNow)

	rows, err := e.DueUsers(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2, "a user never appears twice")
	assert.Equal(t, int64(1), rows[0].UserID)
	assert.Equal(t, time.November, rows[0].Month)
	assert.Equal(t, int64(2), rows[1].UserID)
}

func TestApplyPack_AnchorsAtEarliestDueAndSkipsPaid(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	st.addUser(1, "Asha")
	st.put(dueRecord(1, time.February, 2025, 100000))
	mar := dueRecord(1, time.March, 2025, 90000)
	mar.Status = domain.StatusPaid
	st.put(mar)
	e := newTestEngine(t, st, testNow)

	// Hint says June, but February is still due; the pack must anchor there.
	require.NoError(t, e.ApplyPack(ctx, 1, time.June, 3, 120000, "b9"))

	feb := st.get(1, time.February, 2025)
	assert.Equal(t, domain.StatusPaid, feb.Status)
	assert.Equal(t, int64(120000), feb.AmountPaise)
	assert.Equal(t, "b9", feb.BatchID)

	marAfter := st.get(1, time.March, 2025)
	assert.Equal(t, int64(90000), marAfter.AmountPaise, "already-paid month untouched")
	assert.Empty(t, marAfter.BatchID)

	apr := st.get(1, time.April, 2025)
	require.NotNil(t, apr, "absent month created")
	assert.Equal(t, domain.StatusPaid, apr.Status)
	assert.Equal(t, int64(120000), apr.AmountPaise)

	assert.Nil(t, st.get(1, time.May, 2025), "pack of 3 touches exactly 3 slots")
}

func TestApplyPack_NoDueFallsBackToHint(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	st.addUser(1, "Asha")
	e := newTestEngine(t, st, testNow)

	require.NoError(t, e.ApplyPack(ctx, 1, time.June, 3, 100000, "b"))

	for _, month := range []time.Month{time.June, time.July, time.August} {
		rec := st.get(1, month, 2025)
		require.NotNil(t, rec, "missing %s", month)
		assert.Equal(t, domain.StatusPaid, rec.Status)
		assert.Equal(t, 1, rec.PeriodStart.Day())
	}
	assert.Len(t, st.records, 3)
}

func TestApplyPack_ValidatesLength(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, newMemStore(), testNow)

	assert.ErrorIs(t, e.ApplyPack(ctx, 1, time.June, 4, 100000, "b"), ErrBadInput)
}

func TestDeactivate(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	st.addUser(1, "Asha")
	dec := dueRecord(1, time.December, 2024, 100000)
	dec.Status = domain.StatusPaid
	st.put(dec)
	st.put(dueRecord(1, time.January, 2025, 100000))
	st.put(dueRecord(1, time.February, 2025, 100000))
	st.put(dueRecord(1, time.March, 2025, 100000))
	e := newTestEngine(t, st, testNow)

	require.NoError(t, e.Deactivate(ctx, 1, time.January))

	jan := st.get(1, time.January, 2025)
	assert.Equal(t, domain.StatusPaid, jan.Status)
	assert.Zero(t, jan.AmountPaise, "current month zeroed and closed")

	assert.Nil(t, st.get(1, time.February, 2025), "future months removed")
	assert.Nil(t, st.get(1, time.March, 2025))
	assert.NotNil(t, st.get(1, time.December, 2024), "history kept")

	u, err := st.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.UserInactive, u.Status)
}

func TestDeactivate_NoCurrentRecord(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	st.addUser(1, "Asha")
	st.put(dueRecord(1, time.March, 2025, 100000))
	e := newTestEngine(t, st, testNow)

	require.NoError(t, e.Deactivate(ctx, 1, time.January))

	assert.Nil(t, st.get(1, time.March, 2025), "future obligation voided")
	u, err := st.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.UserInactive, u.Status)
}

func TestPaidUsers_CurrentMonth(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	st.addUser(1, "Asha")
	st.addUser(2, "Binu")
	jan := dueRecord(1, time.January, 2025, 150000)
	jan.Status = domain.StatusPaid
	st.put(jan)
	st.put(dueRecord(2, time.January, 2025, 150000))
	e := newTestEngine(t, st, testNow)

	rows, err := e.PaidUsers(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0].UserID)
}

func TestAddUser(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	e := newTestEngine(t, st, testNow)

	id, err := e.AddUser(ctx, "Asha", "9999900000", "83527645001")
	require.NoError(t, err)

	u, err := st.GetUser(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Asha", u.Name)
	assert.Equal(t, "9999900000", u.Mobile)
	assert.Equal(t, domain.UserActive, u.Status)
}

func TestAddUser_RejectsMissingFields(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, newMemStore(), testNow)

	_, err := e.AddUser(ctx, "", "9999900000", "b")
	assert.ErrorIs(t, err, ErrBadInput)

	_, err = e.AddUser(ctx, "Asha", "", "b")
	assert.ErrorIs(t, err, ErrBadInput)
}

package domain

import "time"

// User status values stored in users.status.
const (
	UserActive   = "active"
	UserInactive = "inactive"
)

// User is a studio member with a monthly fee obligation.
type User struct {
	ID           int64
	Name         string
	Mobile       string
	BatchID      string
	Status       string
	LastAttended *time.Time // date-only, nil until first attendance is recorded
}

// ScheduleRecord is one month of a user's payment schedule.
// At most one record exists per (UserID, Month, Year).
type ScheduleRecord struct {
	UserID      int64
	Month       time.Month
	Year        int
	AmountPaise int64
	PeriodStart time.Time // date-only, inside (Month, Year)
	PeriodEnd   time.Time // date-only, last day of (Month, Year)
	Status      PaymentStatus
	BatchID     string
	FollowUp    *time.Time // date-only, nil until the user has been contacted
}

// MonthLabel returns the record's month name, e.g. "November".
func (r *ScheduleRecord) MonthLabel() string {
	return r.Month.String()
}

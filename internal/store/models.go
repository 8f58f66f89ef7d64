package store

import (
	"database/sql"
	"time"
)

// Dates are stored as ISO "YYYY-MM-DD" strings; lexicographic order equals
// chronological order, so date comparisons in SQL stay correct.
const dateLayout = "2006-01-02"

func toDateString(t time.Time) string {
	return t.Format(dateLayout)
}

func toNullDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(dateLayout), Valid: true}
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

func fromNullDate(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseDate(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

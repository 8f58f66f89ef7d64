package domain

import (
	"fmt"
	"time"
)

// DateOnly drops the clock from t, keeping its location.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// AddMonths shifts t forward by n calendar months, clamping the day into the
// target month (Jan 31 + 1 month = Feb 28/29, never Mar 2). Plain AddDate
// overflows short months, which would file a record under the wrong month.
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m, 1, 0, 0, 0, 0, t.Location()).AddDate(0, n, 0)
	if last := DaysIn(first.Month(), first.Year()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, t.Location())
}

// LastOfMonth returns the final day of t's month.
func LastOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), DaysIn(t.Month(), t.Year()), 0, 0, 0, 0, t.Location())
}

// FirstOfMonth returns the first day of the given month and year in loc.
func FirstOfMonth(month time.Month, year int, loc *time.Location) time.Time {
	return time.Date(year, month, 1, 0, 0, 0, 0, loc)
}

// DaysIn returns the number of days in the given month.
func DaysIn(month time.Month, year int) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// SplitAmount divides totalPaise evenly across n months. Division truncates;
// the remainder is folded into the first month so the slices always sum back
// to the input.
func SplitAmount(totalPaise int64, n int) []int64 {
	per := totalPaise / int64(n)
	out := make([]int64, n)
	for i := range out {
		out[i] = per
	}
	out[0] += totalPaise - per*int64(n)
	return out
}

// FormatPaise renders an integer paise amount as rupees, e.g. 150000 -> "1500.00".
func FormatPaise(paise int64) string {
	sign := ""
	if paise < 0 {
		sign = "-"
		paise = -paise
	}
	return fmt.Sprintf("%s%d.%02d", sign, paise/100, paise%100)
}

// ParseMonth resolves a month given either as a number ("11") or an English
// name ("November", case-insensitive).
func ParseMonth(s string) (time.Month, error) {
	if t, err := time.Parse("1", s); err == nil {
		return t.Month(), nil
	}
	if t, err := time.Parse("January", capitalize(s)); err == nil {
		return t.Month(), nil
	}
	return 0, fmt.Errorf("unrecognized month %q", s)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	for i := 1; i < len(b); i++ {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}

package domain

import (
	"errors"
	"fmt"
)

// PaymentStatus is the billing state of one (user, month, year) record.
type PaymentStatus string

const (
	StatusDue  PaymentStatus = "Due"
	StatusPaid PaymentStatus = "Paid"
)

// Transition names an operation that may change a record's status.
type Transition string

const (
	TransitionPay        Transition = "pay"        // mark-paid
	TransitionIgnore     Transition = "ignore"     // write-off: Paid with amount zeroed
	TransitionPack       Transition = "pack"       // pack payment settling the month
	TransitionRegenerate Transition = "regenerate" // schedule regeneration, resets to Due
)

var ErrBadTransition = errors.New("payment status transition not allowed")

// transitions is the exhaustive table of allowed status changes.
// Anything absent from this table is rejected.
var transitions = map[Transition]map[PaymentStatus]PaymentStatus{
	TransitionPay:    {StatusDue: StatusPaid},
	TransitionIgnore: {StatusDue: StatusPaid},
	TransitionPack:   {StatusDue: StatusPaid},
	TransitionRegenerate: {
		StatusDue:  StatusDue,
		StatusPaid: StatusDue, // only regeneration may downgrade a paid month
	},
}

// NextStatus returns the status a record moves to when `via` is applied,
// or ErrBadTransition if the table does not list the change.
func NextStatus(from PaymentStatus, via Transition) (PaymentStatus, error) {
	to, ok := transitions[via][from]
	if !ok {
		return from, fmt.Errorf("%w: %s via %s", ErrBadTransition, from, via)
	}
	return to, nil
}

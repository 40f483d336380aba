package trade

import "fmt"

// Status represents the position of a trade in its lifecycle.
type Status string

const (
	// StatusCreated is the initial state: seller matched, no payment link yet.
	StatusCreated Status = "created"
	// StatusAwaitingPayment means a payment link was issued to the buyer.
	StatusAwaitingPayment Status = "awaiting_payment"
	// StatusPaid means the gateway confirmed the buyer's payment into escrow.
	StatusPaid Status = "paid"
	// StatusReleased is terminal: the held fiat was authorized for payout to the seller.
	StatusReleased Status = "released"
	// StatusFailedPaymentInit is terminal: the payment link could not be issued.
	StatusFailedPaymentInit Status = "failed_payment_init"
	// StatusRefunded is terminal: an operator returned the held fiat to the buyer.
	StatusRefunded Status = "refunded"
)

// Statuses lists every known status in lifecycle order.
var Statuses = []Status{
	StatusCreated,
	StatusAwaitingPayment,
	StatusPaid,
	StatusReleased,
	StatusFailedPaymentInit,
	StatusRefunded,
}

// ParseStatus converts a persisted or user supplied value into a Status.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown trade status %q", s)
}

// IsTerminal reports whether no further transition can leave the status.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusReleased, StatusFailedPaymentInit, StatusRefunded:
		return true
	}
	return false
}

// IsOpen reports whether a trade in this status still holds its seller.
func (s Status) IsOpen() bool {
	switch s {
	case StatusCreated, StatusAwaitingPayment, StatusPaid:
		return true
	}
	return false
}

// IsPaidOrLater reports whether a payment has already been recorded.
func (s Status) IsPaidOrLater() bool {
	switch s {
	case StatusPaid, StatusReleased, StatusRefunded:
		return true
	}
	return false
}

func (s Status) String() string { return string(s) }

// Event is a lifecycle event that drives a status transition.
type Event string

const (
	EventPaymentLinkIssued Event = "payment_link_issued"
	EventPaymentInitFailed Event = "payment_init_failed"
	EventPaymentConfirmed  Event = "payment_confirmed"
	EventReleaseAuthorized Event = "release_authorized"
	EventRefundAuthorized  Event = "refund_authorized"
)

type transition struct {
	from []Status
	to   Status
}

// transitions is the complete lifecycle table. Duplicate payment
// confirmations are handled by Apply, not by the table.
var transitions = map[Event]transition{
	EventPaymentLinkIssued: {from: []Status{StatusCreated}, to: StatusAwaitingPayment},
	EventPaymentInitFailed: {from: []Status{StatusCreated, StatusAwaitingPayment}, to: StatusFailedPaymentInit},
	EventPaymentConfirmed:  {from: []Status{StatusCreated, StatusAwaitingPayment}, to: StatusPaid},
	EventReleaseAuthorized: {from: []Status{StatusPaid}, to: StatusReleased},
	EventRefundAuthorized:  {from: []Status{StatusPaid}, to: StatusRefunded},
}

// AllowedFrom returns the source statuses from which the event may fire.
// The result is the expected set for a compare-and-update.
func AllowedFrom(e Event) []Status {
	t, ok := transitions[e]
	if !ok {
		return nil
	}
	out := make([]Status, len(t.from))
	copy(out, t.from)
	return out
}

// Target returns the status an event leads to.
func Target(e Event) (Status, bool) {
	t, ok := transitions[e]
	return t.to, ok
}

// Apply computes the status reached by firing e from current.
//
// A payment confirmation on a trade that is already paid, released or
// refunded returns the current status with changed=false and no error.
// Every other transition not in the table fails with ErrInvalidTransition.
func Apply(current Status, e Event) (next Status, changed bool, err error) {
	if e == EventPaymentConfirmed && current.IsPaidOrLater() {
		return current, false, nil
	}
	t, ok := transitions[e]
	if !ok {
		return current, false, fmt.Errorf("%w: unknown event %q", ErrInvalidTransition, e)
	}
	for _, from := range t.from {
		if from == current {
			return t.to, true, nil
		}
	}
	return current, false, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, e, current)
}

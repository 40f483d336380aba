package trade

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Escrow error taxonomy. Every sentinel can be matched with errors.Is, also
// when it is carried inside an *Error.
var (
	// ErrInvalidAmount is returned when a buy request is below the configured minimum.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrNoSellerAvailable is returned when no seller profile can be matched.
	ErrNoSellerAvailable = errors.New("no seller available")
	// ErrPaymentInitFailed is returned when the gateway could not issue a payment link.
	ErrPaymentInitFailed = errors.New("payment initialization failed")
	// ErrAuthenticationFailed is returned when a notification signature does not verify.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrUnknownReference is returned when a notification names a reference with no trade.
	ErrUnknownReference = errors.New("unknown payment reference")
	// ErrInvalidTransition is returned when an event is not allowed from the current status.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrUnauthorized is returned when the requester may not act on the trade.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotReady is returned when a release or refund is attempted on a trade that is not paid.
	ErrNotReady = errors.New("trade not ready")

	// ErrTradeNotFound is returned when a trade id does not exist.
	ErrTradeNotFound = errors.New("trade not found")
	// ErrSellerNotFound is returned when a seller profile does not exist.
	ErrSellerNotFound = errors.New("seller not found")
	// ErrSellerExists is returned when registering a seller id twice.
	ErrSellerExists = errors.New("seller already registered")
	// ErrSellerBusy is returned when a seller re-opens availability while holding an open trade.
	ErrSellerBusy = errors.New("seller has an open trade")
)

// Kind is the machine readable name of an escrow error.
type Kind string

const (
	KindInvalidAmount        Kind = "invalid_amount"
	KindNoSellerAvailable    Kind = "no_seller_available"
	KindPaymentInitFailed    Kind = "payment_init_failed"
	KindAuthenticationFailed Kind = "authentication_failed"
	KindUnknownReference     Kind = "unknown_reference"
	KindInvalidTransition    Kind = "invalid_transition"
	KindUnauthorized         Kind = "unauthorized"
	KindNotReady             Kind = "not_ready"
	KindNotFound             Kind = "not_found"
	KindConflict             Kind = "conflict"
	KindInternal             Kind = "internal"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrInvalidAmount, KindInvalidAmount},
	{ErrNoSellerAvailable, KindNoSellerAvailable},
	{ErrPaymentInitFailed, KindPaymentInitFailed},
	{ErrAuthenticationFailed, KindAuthenticationFailed},
	{ErrUnknownReference, KindUnknownReference},
	{ErrInvalidTransition, KindInvalidTransition},
	{ErrUnauthorized, KindUnauthorized},
	{ErrNotReady, KindNotReady},
	{ErrTradeNotFound, KindNotFound},
	{ErrSellerNotFound, KindNotFound},
	{ErrSellerExists, KindConflict},
	{ErrSellerBusy, KindConflict},
}

// Error carries an escrow error together with the trade it concerns so a
// caller can render a message and an operator can triage it.
type Error struct {
	Kind    Kind
	TradeID uuid.UUID
	Reason  string
	Err     error
}

// NewError wraps sentinel with the trade id and an optional reason.
func NewError(sentinel error, tradeID uuid.UUID, reason string) *Error {
	return &Error{
		Kind:    KindOf(sentinel),
		TradeID: tradeID,
		Reason:  reason,
		Err:     sentinel,
	}
}

func (e *Error) Error() string {
	msg := e.Err.Error()
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.TradeID != uuid.Nil {
		msg = fmt.Sprintf("trade %s: %s", e.TradeID, msg)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf classifies err. Unknown errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var te *Error
	if errors.As(err, &te) && te.Kind != "" {
		return te.Kind
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// ReasonOf returns the reason attached to an *Error, if any.
func ReasonOf(err error) string {
	var te *Error
	if errors.As(err, &te) {
		return te.Reason
	}
	return ""
}

package payment

import (
	"errors"

	"github.com/google/uuid"
)

// ErrMalformedEvent is returned by ParseEvent for payloads that cannot be decoded.
var ErrMalformedEvent = errors.New("malformed payment event")

// EventKind classifies a gateway notification.
type EventKind string

const (
	// EventChargeSucceeded is the only kind that confirms a payment.
	EventChargeSucceeded EventKind = "charge.success"
	// EventChargeFailed is reported but never changes a trade.
	EventChargeFailed EventKind = "charge.failed"
	// EventOther covers every kind the escrow does not act on.
	EventOther EventKind = "other"
)

// Event holds the only fields the escrow reads from a notification.
type Event struct {
	Kind EventKind
	// RawKind is the provider's own event name, kept for logs.
	RawKind   string
	Reference string
	// Amount paid in the minor currency unit.
	Amount int64
	// ProviderEventID identifies the notification at the provider.
	ProviderEventID string
}

// InitiatePaymentParams holds the parameters for the InitiatePayment method.
type InitiatePaymentParams struct {
	TradeID     uuid.UUID
	BuyerID     string
	Amount      int64
	Currency    string
	Reference   string
	CallbackURL string
}

// InitiatePaymentResponse carries the link handed to the buyer.
type InitiatePaymentResponse struct {
	PayURL string
	// ProviderID is the provider's id for the charge (e.g. checkout session id).
	ProviderID string
}

// PayoutStatus represents the state of a payout at the provider.
type PayoutStatus string

const (
	PayoutPending   PayoutStatus = "pending"
	PayoutCompleted PayoutStatus = "completed"
	PayoutFailed    PayoutStatus = "failed"
)

// InitiatePayoutParams holds the parameters for paying a seller.
type InitiatePayoutParams struct {
	TradeID   uuid.UUID
	SellerID  string
	Reference string
	Amount    int64
	Currency  string
	// Destination is the seller's payout address as captured at match time.
	Destination string
	Description string
}

// InitiatePayoutResponse represents the response from initiating a payout.
type InitiatePayoutResponse struct {
	PayoutID string
	Status   PayoutStatus
	Amount   int64
}

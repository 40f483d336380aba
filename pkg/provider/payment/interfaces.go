package payment

import (
	"context"
)

// Gateway is the payment provider used to collect the buyer's fiat into
// escrow and to authenticate its asynchronous notifications.
type Gateway interface {
	// InitiatePayment requests a payment link keyed by the trade's reference.
	InitiatePayment(
		ctx context.Context,
		params *InitiatePaymentParams,
	) (*InitiatePaymentResponse, error)

	// VerifySignature reports whether signature authenticates payload. The
	// payload must be the exact bytes received on the wire.
	VerifySignature(payload []byte, signature string) bool

	// ParseEvent decodes an already verified notification.
	ParseEvent(payload []byte) (*Event, error)

	// SignatureHeader names the HTTP header carrying the signature.
	SignatureHeader() string

	// Name identifies the provider in logs.
	Name() string
}

// Payouts transfers released fiat to a seller.
type Payouts interface {
	InitiatePayout(
		ctx context.Context,
		params *InitiatePayoutParams,
	) (*InitiatePayoutResponse, error)
}

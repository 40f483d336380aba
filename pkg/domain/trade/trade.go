// Package trade holds the escrow domain: the trade entity and its state
// machine, seller profiles, payment references and the release fee.
//
// Invariants:
//   - Amount is a positive integer in the minor currency unit and never changes.
//   - PaymentReference is unique across all trades and never reused.
//   - Status only moves forward through the table in status.go.
//   - CreatedAt, PaidAt, ReleasedAt and RefundedAt are set once and never decrease.
package trade

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ReferencePrefix marks payment references issued by the escrow.
const ReferencePrefix = "esc-"

// Trade is one escrow transaction between a buyer and a matched seller.
type Trade struct {
	ID                  uuid.UUID
	BuyerID             string
	SellerID            string
	BuyerWallet         string
	Amount              int64
	PaymentReference    string
	SellerPayoutAddress string
	Status              Status
	PayURL              string
	AmountPaid          int64
	Flagged             bool
	FlagReason          string
	Fee                 int64
	Payout              int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
	PaidAt              *time.Time
	ReleasedAt          *time.Time
	RefundedAt          *time.Time
	ArchivedAt          *time.Time
}

// Seller is a seller's availability record. ClaimedTradeID names the open
// trade holding the seller; it is set together with Available=false and
// cleared when that trade closes.
type Seller struct {
	SellerID       string
	PayoutAddress  string
	Available      bool
	ClaimedTradeID *uuid.UUID
	CreatedAt      time.Time
}

// New opens a trade in StatusCreated for a matched seller. The payout address
// is copied so later profile changes do not alter the trade.
func New(buyerID string, seller *Seller, amount int64, buyerWallet string, now time.Time) *Trade {
	return &Trade{
		ID:                  uuid.New(),
		BuyerID:             buyerID,
		SellerID:            seller.SellerID,
		BuyerWallet:         buyerWallet,
		Amount:              amount,
		PaymentReference:    NewReference(),
		SellerPayoutAddress: seller.PayoutAddress,
		Status:              StatusCreated,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// NewReference returns a URL-safe payment reference built from a random
// UUIDv4 so it cannot be guessed from earlier references.
func NewReference() string {
	return ReferencePrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// IsParty reports whether userID is the buyer or the seller of the trade.
func (t *Trade) IsParty(userID string) bool {
	return userID != "" && (userID == t.BuyerID || userID == t.SellerID)
}

// Patch lists the fields a compare-and-update may write. Nil fields are left
// untouched.
type Patch struct {
	Status     *Status
	PayURL     *string
	AmountPaid *int64
	Flagged    *bool
	FlagReason *string
	Fee        *int64
	Payout     *int64
	PaidAt     *time.Time
	ReleasedAt *time.Time
	RefundedAt *time.Time
	ArchivedAt *time.Time
}

// ApplyTo writes the patch onto t. Stores use it to keep an in-memory copy
// consistent with what they persisted.
func (p Patch) ApplyTo(t *Trade, now time.Time) {
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.PayURL != nil {
		t.PayURL = *p.PayURL
	}
	if p.AmountPaid != nil {
		t.AmountPaid = *p.AmountPaid
	}
	if p.Flagged != nil {
		t.Flagged = *p.Flagged
	}
	if p.FlagReason != nil {
		t.FlagReason = *p.FlagReason
	}
	if p.Fee != nil {
		t.Fee = *p.Fee
	}
	if p.Payout != nil {
		t.Payout = *p.Payout
	}
	if p.PaidAt != nil {
		t.PaidAt = p.PaidAt
	}
	if p.ReleasedAt != nil {
		t.ReleasedAt = p.ReleasedAt
	}
	if p.RefundedAt != nil {
		t.RefundedAt = p.RefundedAt
	}
	if p.ArchivedAt != nil {
		t.ArchivedAt = p.ArchivedAt
	}
	t.UpdatedAt = now
}

// Ptr returns a pointer to v. It keeps Patch literals short.
func Ptr[T any](v T) *T {
	return &v
}

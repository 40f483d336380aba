// Package repository defines the Ledger Store contract used by the escrow
// services. Every mutation is a single conditional update so concurrent
// handlers can never both win the same transition.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/amirasaad/escrow/pkg/domain/trade"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique key (trade id, payment reference,
	// seller id) already exists.
	ErrDuplicate = errors.New("duplicate record")
)

// TradeFilter narrows ListTrades. Zero values match everything.
type TradeFilter struct {
	Statuses []trade.Status
	Flagged  *bool
	BuyerID  string
	SellerID string
	// UpdatedBefore matches trades last touched strictly before the instant.
	UpdatedBefore time.Time
	// Archived selects archived (true) or live (false) trades when set.
	Archived *bool
	Limit    int
}

// TradeRepository stores trades.
type TradeRepository interface {
	// CreateTrade inserts a new trade. A reused id or payment reference
	// fails with ErrDuplicate.
	CreateTrade(ctx context.Context, t *trade.Trade) error

	// Get returns the trade with the given id or ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*trade.Trade, error)

	// GetByReference returns the trade owning the payment reference or ErrNotFound.
	GetByReference(ctx context.Context, reference string) (*trade.Trade, error)

	// ListTrades returns trades matching the filter, oldest first.
	ListTrades(ctx context.Context, filter TradeFilter) ([]*trade.Trade, error)

	// CompareAndUpdate applies patch only if the trade's current status is in
	// expected. It reports whether the update was applied. A patch that sets
	// ArchivedAt additionally requires the trade to be unarchived. A patch
	// that moves the trade to a terminal status clears the seller claim held
	// by the trade in the same atomic step; availability is left unchanged.
	CompareAndUpdate(ctx context.Context, id uuid.UUID, expected []trade.Status, patch trade.Patch) (bool, error)

	// CountOpenTradesBySeller counts the trades of a seller in created,
	// awaiting_payment or paid.
	CountOpenTradesBySeller(ctx context.Context, sellerID string) (int64, error)
}

// SellerRepository stores seller profiles.
type SellerRepository interface {
	// CreateSeller registers a profile. A known seller id fails with ErrDuplicate.
	CreateSeller(ctx context.Context, s *trade.Seller) error

	// GetSeller returns the profile or ErrNotFound.
	GetSeller(ctx context.Context, sellerID string) (*trade.Seller, error)

	// ListAvailableSellers returns available sellers in registration order.
	ListAvailableSellers(ctx context.Context) ([]*trade.Seller, error)

	// ClaimSeller flips an available, unclaimed seller to unavailable and
	// records tradeID as its claim in one conditional update. It reports
	// whether this call won the seller.
	ClaimSeller(ctx context.Context, sellerID string, tradeID uuid.UUID) (bool, error)

	// ReleaseSellerClaim clears the claim of tradeID and makes the seller
	// available again. It applies only while tradeID still holds the claim.
	ReleaseSellerClaim(ctx context.Context, sellerID string, tradeID uuid.UUID) (bool, error)

	// SetSellerAvailability sets available=value only if it currently equals
	// expected and the seller holds no claim, reporting whether the update
	// was applied.
	SetSellerAvailability(ctx context.Context, sellerID string, expected, value bool) (bool, error)

	// UpdateSellerPayoutAddress replaces the payout address used for future matches.
	UpdateSellerPayoutAddress(ctx context.Context, sellerID, address string) error
}

// Store is the full Ledger Store.
type Store interface {
	TradeRepository
	SellerRepository
}

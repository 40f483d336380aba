// Package events defines the domain events emitted by the escrow core.
// Events are plain structs so every bus implementation can serialize them.
package events

import (
	"time"

	"github.com/amirasaad/escrow/pkg/domain/trade"
	"github.com/google/uuid"
)

// Event is implemented by every domain event.
type Event interface {
	Type() string
	EventID() uuid.UUID
}

// Event type names.
const (
	TypeTradeOpened              = "TradeOpened"
	TypePaymentInitFailed        = "PaymentInitFailed"
	TypeTradePaid                = "TradePaid"
	TypeTradeFlagged             = "TradeFlagged"
	TypeTradeReleased            = "TradeReleased"
	TypeTradeRefunded            = "TradeRefunded"
	TypeUnknownReferenceReported = "UnknownReferenceReported"
	TypePaymentOnClosedTrade     = "PaymentOnClosedTrade"
)

// Base carries the fields shared by all events.
type Base struct {
	ID         uuid.UUID `json:"id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func newBase(now time.Time) Base {
	return Base{ID: uuid.New(), OccurredAt: now}
}

// EventID returns the unique id of the event, used as idempotency key.
func (b Base) EventID() uuid.UUID { return b.ID }

// Parties identifies the trade and both counterparties.
type Parties struct {
	TradeID          uuid.UUID `json:"trade_id"`
	PaymentReference string    `json:"payment_reference"`
	BuyerID          string    `json:"buyer_id"`
	SellerID         string    `json:"seller_id"`
}

func partiesOf(t *trade.Trade) Parties {
	return Parties{
		TradeID:          t.ID,
		PaymentReference: t.PaymentReference,
		BuyerID:          t.BuyerID,
		SellerID:         t.SellerID,
	}
}

// TradeOpened is emitted once a payment link has been issued.
type TradeOpened struct {
	Base
	Parties
	Amount int64  `json:"amount"`
	PayURL string `json:"pay_url"`
}

// PaymentInitFailed is emitted when the gateway refused to issue a link and
// the seller was released back to the pool.
type PaymentInitFailed struct {
	Base
	Parties
	Reason string `json:"reason"`
}

// TradePaid is emitted on the single fresh transition into paid.
type TradePaid struct {
	Base
	Parties
	Amount      int64  `json:"amount"`
	AmountPaid  int64  `json:"amount_paid"`
	BuyerWallet string `json:"buyer_wallet"`
	Flagged     bool   `json:"flagged"`
}

// TradeFlagged is emitted when a trade needs manual operator review.
type TradeFlagged struct {
	Base
	Parties
	Reason string `json:"reason"`
}

// TradeReleased carries the payout instruction for the funds-transfer
// collaborator.
type TradeReleased struct {
	Base
	Parties
	Amount        int64  `json:"amount"`
	Fee           int64  `json:"fee"`
	Payout        int64  `json:"payout"`
	PayoutAddress string `json:"payout_address"`
	ReleasedBy    string `json:"released_by"`
}

// TradeRefunded is emitted when an operator refunds a paid trade.
type TradeRefunded struct {
	Base
	Parties
	Amount     int64  `json:"amount"`
	RefundedBy string `json:"refunded_by"`
}

// UnknownReferenceReported records a verified notification that matched no
// trade, for operator review.
type UnknownReferenceReported struct {
	Base
	PaymentReference string `json:"payment_reference"`
	Amount           int64  `json:"amount"`
	ProviderEventID  string `json:"provider_event_id"`
}

// PaymentOnClosedTrade records a payment that arrived for a trade whose
// payment initialization had already failed.
type PaymentOnClosedTrade struct {
	Base
	Parties
	Status     trade.Status `json:"status"`
	AmountPaid int64        `json:"amount_paid"`
}

func (TradeOpened) Type() string              { return TypeTradeOpened }
func (PaymentInitFailed) Type() string        { return TypePaymentInitFailed }
func (TradePaid) Type() string                { return TypeTradePaid }
func (TradeFlagged) Type() string             { return TypeTradeFlagged }
func (TradeReleased) Type() string            { return TypeTradeReleased }
func (TradeRefunded) Type() string            { return TypeTradeRefunded }
func (UnknownReferenceReported) Type() string { return TypeUnknownReferenceReported }
func (PaymentOnClosedTrade) Type() string     { return TypePaymentOnClosedTrade }

// Types maps every event type to a constructor, used to decode events read
// back from a durable bus.
var Types = map[string]func() Event{
	TypeTradeOpened:              func() Event { return &TradeOpened{} },
	TypePaymentInitFailed:        func() Event { return &PaymentInitFailed{} },
	TypeTradePaid:                func() Event { return &TradePaid{} },
	TypeTradeFlagged:             func() Event { return &TradeFlagged{} },
	TypeTradeReleased:            func() Event { return &TradeReleased{} },
	TypeTradeRefunded:            func() Event { return &TradeRefunded{} },
	TypeUnknownReferenceReported: func() Event { return &UnknownReferenceReported{} },
	TypePaymentOnClosedTrade:     func() Event { return &PaymentOnClosedTrade{} },
}

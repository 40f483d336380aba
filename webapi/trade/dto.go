package trade

import (
	"time"

	"github.com/amirasaad/escrow/pkg/domain/trade"
	"github.com/google/uuid"
)

// CreateTradeRequest is the buyer's request to open a trade.
type CreateTradeRequest struct {
	// Amount in the minor currency unit.
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Wallet string `json:"wallet" validate:"required,max=256"`
}

// DTO is the public view of a trade.
type DTO struct {
	ID               uuid.UUID  `json:"id"`
	BuyerID          string     `json:"buyer_id"`
	SellerID         string     `json:"seller_id"`
	BuyerWallet      string     `json:"buyer_wallet"`
	Amount           int64      `json:"amount"`
	PaymentReference string     `json:"payment_reference"`
	Status           string     `json:"status"`
	PayURL           string     `json:"pay_url,omitempty"`
	AmountPaid       int64      `json:"amount_paid,omitempty"`
	Flagged          bool       `json:"flagged"`
	FlagReason       string     `json:"flag_reason,omitempty"`
	Fee              int64      `json:"fee,omitempty"`
	Payout           int64      `json:"payout,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	PaidAt           *time.Time `json:"paid_at,omitempty"`
	ReleasedAt       *time.Time `json:"released_at,omitempty"`
	RefundedAt       *time.Time `json:"refunded_at,omitempty"`
}

// ReleaseResponse reports the settlement of a released trade.
type ReleaseResponse struct {
	TradeID uuid.UUID `json:"trade_id"`
	Fee     int64     `json:"fee"`
	Payout  int64     `json:"payout"`
	Status  string    `json:"status"`
}

func toDTO(t *trade.Trade) *DTO {
	return &DTO{
		ID:               t.ID,
		BuyerID:          t.BuyerID,
		SellerID:         t.SellerID,
		BuyerWallet:      t.BuyerWallet,
		Amount:           t.Amount,
		PaymentReference: t.PaymentReference,
		Status:           t.Status.String(),
		PayURL:           t.PayURL,
		AmountPaid:       t.AmountPaid,
		Flagged:          t.Flagged,
		FlagReason:       t.FlagReason,
		Fee:              t.Fee,
		Payout:           t.Payout,
		CreatedAt:        t.CreatedAt,
		PaidAt:           t.PaidAt,
		ReleasedAt:       t.ReleasedAt,
		RefundedAt:       t.RefundedAt,
	}
}

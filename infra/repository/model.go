package repository

import (
	"time"

	"github.com/amirasaad/escrow/pkg/domain/trade"
	"github.com/google/uuid"
)

// Trade is the persisted form of trade.Trade.
type Trade struct {
	ID                  uuid.UUID `gorm:"type:uuid;primaryKey"`
	BuyerID             string    `gorm:"size:128;not null;index"`
	SellerID            string    `gorm:"size:128;index"`
	BuyerWallet         string    `gorm:"size:256"`
	Amount              int64     `gorm:"not null"`
	PaymentReference    string    `gorm:"size:64;not null;uniqueIndex"`
	SellerPayoutAddress string    `gorm:"size:256"`
	Status              string    `gorm:"size:32;not null;index"`
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

// TableName specifies the table name for the Trade model.
func (Trade) TableName() string {
	return "trades"
}

// Seller is the persisted seller profile. Seq is assigned by the database
// and orders sellers by registration.
type Seller struct {
	SellerID       string     `gorm:"primaryKey;size:128"`
	Seq            int64      `gorm:"->"`
	PayoutAddress  string     `gorm:"size:256;not null"`
	Available      bool       `gorm:"not null;index"`
	ClaimedTradeID *uuid.UUID `gorm:"type:uuid"`
	CreatedAt      time.Time
}

// TableName specifies the table name for the Seller model.
func (Seller) TableName() string {
	return "sellers"
}

func tradeToModel(t *trade.Trade) Trade {
	return Trade{
		ID:                  t.ID,
		BuyerID:             t.BuyerID,
		SellerID:            t.SellerID,
		BuyerWallet:         t.BuyerWallet,
		Amount:              t.Amount,
		PaymentReference:    t.PaymentReference,
		SellerPayoutAddress: t.SellerPayoutAddress,
		Status:              string(t.Status),
		PayURL:              t.PayURL,
		AmountPaid:          t.AmountPaid,
		Flagged:             t.Flagged,
		FlagReason:          t.FlagReason,
		Fee:                 t.Fee,
		Payout:              t.Payout,
		CreatedAt:           t.CreatedAt,
		UpdatedAt:           t.UpdatedAt,
		PaidAt:              t.PaidAt,
		ReleasedAt:          t.ReleasedAt,
		RefundedAt:          t.RefundedAt,
		ArchivedAt:          t.ArchivedAt,
	}
}

func (m *Trade) toDomain() (*trade.Trade, error) {
	status, err := trade.ParseStatus(m.Status)
	if err != nil {
		return nil, err
	}
	return &trade.Trade{
		ID:                  m.ID,
		BuyerID:             m.BuyerID,
		SellerID:            m.SellerID,
		BuyerWallet:         m.BuyerWallet,
		Amount:              m.Amount,
		PaymentReference:    m.PaymentReference,
		SellerPayoutAddress: m.SellerPayoutAddress,
		Status:              status,
		PayURL:              m.PayURL,
		AmountPaid:          m.AmountPaid,
		Flagged:             m.Flagged,
		FlagReason:          m.FlagReason,
		Fee:                 m.Fee,
		Payout:              m.Payout,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
		PaidAt:              m.PaidAt,
		ReleasedAt:          m.ReleasedAt,
		RefundedAt:          m.RefundedAt,
		ArchivedAt:          m.ArchivedAt,
	}, nil
}

func sellerToModel(s *trade.Seller) Seller {
	return Seller{
		SellerID:       s.SellerID,
		PayoutAddress:  s.PayoutAddress,
		Available:      s.Available,
		ClaimedTradeID: s.ClaimedTradeID,
		CreatedAt:      s.CreatedAt,
	}
}

func (m *Seller) toDomain() *trade.Seller {
	return &trade.Seller{
		SellerID:       m.SellerID,
		PayoutAddress:  m.PayoutAddress,
		Available:      m.Available,
		ClaimedTradeID: m.ClaimedTradeID,
		CreatedAt:      m.CreatedAt,
	}
}

// patchColumns maps a trade patch onto the columns it writes.
func patchColumns(p trade.Patch, now time.Time) map[string]any {
	cols := map[string]any{"updated_at": now}
	if p.Status != nil {
		cols["status"] = string(*p.Status)
	}
	if p.PayURL != nil {
		cols["pay_url"] = *p.PayURL
	}
	if p.AmountPaid != nil {
		cols["amount_paid"] = *p.AmountPaid
	}
	if p.Flagged != nil {
		cols["flagged"] = *p.Flagged
	}
	if p.FlagReason != nil {
		cols["flag_reason"] = *p.FlagReason
	}
	if p.Fee != nil {
		cols["fee"] = *p.Fee
	}
	if p.Payout != nil {
		cols["payout"] = *p.Payout
	}
	if p.PaidAt != nil {
		cols["paid_at"] = *p.PaidAt
	}
	if p.ReleasedAt != nil {
		cols["released_at"] = *p.ReleasedAt
	}
	if p.RefundedAt != nil {
		cols["refunded_at"] = *p.RefundedAt
	}
	if p.ArchivedAt != nil {
		cols["archived_at"] = *p.ArchivedAt
	}
	return cols
}

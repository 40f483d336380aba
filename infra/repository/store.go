// Package repository is the PostgreSQL Ledger Store built on GORM. Every
// state change is one conditional UPDATE whose affected row count decides
// the winner between concurrent callers.
package repository

import (
	"context"
	"time"

	"github.com/amirasaad/escrow/pkg/domain/trade"
	"github.com/amirasaad/escrow/pkg/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var openStatuses = []string{
	string(trade.StatusCreated),
	string(trade.StatusAwaitingPayment),
	string(trade.StatusPaid),
}

// Store implements repository.Store on a *gorm.DB.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// New creates a store using the provided *gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// CreateTrade implements repository.TradeRepository.
func (s *Store) CreateTrade(ctx context.Context, t *trade.Trade) error {
	row := tradeToModel(t)
	return WrapError(func() error {
		return s.db.WithContext(ctx).Create(&row).Error
	})
}

func (s *Store) first(ctx context.Context, query string, arg any) (*trade.Trade, error) {
	var row Trade
	err := WrapError(func() error {
		return s.db.WithContext(ctx).Where(query, arg).First(&row).Error
	})
	if err != nil {
		return nil, err
	}
	return row.toDomain()
}

// Get implements repository.TradeRepository.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*trade.Trade, error) {
	return s.first(ctx, "id = ?", id)
}

// GetByReference implements repository.TradeRepository.
func (s *Store) GetByReference(ctx context.Context, reference string) (*trade.Trade, error) {
	return s.first(ctx, "payment_reference = ?", reference)
}

// ListTrades implements repository.TradeRepository.
func (s *Store) ListTrades(ctx context.Context, f repository.TradeFilter) ([]*trade.Trade, error) {
	q := s.db.WithContext(ctx).Model(&Trade{})
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		q = q.Where("status IN ?", statuses)
	}
	if f.Flagged != nil {
		q = q.Where("flagged = ?", *f.Flagged)
	}
	if f.BuyerID != "" {
		q = q.Where("buyer_id = ?", f.BuyerID)
	}
	if f.SellerID != "" {
		q = q.Where("seller_id = ?", f.SellerID)
	}
	if !f.UpdatedBefore.IsZero() {
		q = q.Where("updated_at < ?", f.UpdatedBefore)
	}
	if f.Archived != nil {
		if *f.Archived {
			q = q.Where("archived_at IS NOT NULL")
		} else {
			q = q.Where("archived_at IS NULL")
		}
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var rows []Trade
	if err := WrapError(func() error {
		return q.Order("created_at ASC").Order("id ASC").Find(&rows).Error
	}); err != nil {
		return nil, err
	}
	out := make([]*trade.Trade, 0, len(rows))
	for i := range rows {
		t, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// CompareAndUpdate implements repository.TradeRepository.
func (s *Store) CompareAndUpdate(
	ctx context.Context,
	id uuid.UUID,
	expected []trade.Status,
	patch trade.Patch,
) (bool, error) {
	if len(expected) == 0 {
		return false, nil
	}
	statuses := make([]string, len(expected))
	for i, st := range expected {
		statuses[i] = string(st)
	}
	if patch.Status == nil || !patch.Status.IsTerminal() {
		return s.compareAndUpdate(s.db.WithContext(ctx), id, statuses, patch)
	}

	var applied bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.compareAndUpdate(tx, id, statuses, patch)
		if err != nil || !ok {
			return err
		}
		applied = true
		return MapGormError(tx.Model(&Seller{}).
			Where("claimed_trade_id = ?", id).
			Update("claimed_trade_id", gorm.Expr("NULL")).Error)
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (s *Store) compareAndUpdate(db *gorm.DB, id uuid.UUID, statuses []string, patch trade.Patch) (bool, error) {
	q := db.Model(&Trade{}).Where("id = ? AND status IN ?", id, statuses)
	if patch.ArchivedAt != nil {
		q = q.Where("archived_at IS NULL")
	}
	res := q.Updates(patchColumns(patch, s.now().UTC()))
	if err := MapGormError(res.Error); err != nil {
		return false, err
	}
	return res.RowsAffected == 1, nil
}

// CountOpenTradesBySeller implements repository.TradeRepository.
func (s *Store) CountOpenTradesBySeller(ctx context.Context, sellerID string) (int64, error) {
	var n int64
	err := WrapError(func() error {
		return s.db.WithContext(ctx).Model(&Trade{}).
			Where("seller_id = ? AND status IN ?", sellerID, openStatuses).
			Count(&n).Error
	})
	return n, err
}

// CreateSeller implements repository.SellerRepository.
func (s *Store) CreateSeller(ctx context.Context, seller *trade.Seller) error {
	row := sellerToModel(seller)
	return WrapError(func() error {
		return s.db.WithContext(ctx).Create(&row).Error
	})
}

// GetSeller implements repository.SellerRepository.
func (s *Store) GetSeller(ctx context.Context, sellerID string) (*trade.Seller, error) {
	var row Seller
	if err := WrapError(func() error {
		return s.db.WithContext(ctx).Where("seller_id = ?", sellerID).First(&row).Error
	}); err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

// ListAvailableSellers implements repository.SellerRepository.
func (s *Store) ListAvailableSellers(ctx context.Context) ([]*trade.Seller, error) {
	var rows []Seller
	if err := WrapError(func() error {
		return s.db.WithContext(ctx).Where("available = ?", true).Order("seq ASC").Find(&rows).Error
	}); err != nil {
		return nil, err
	}
	out := make([]*trade.Seller, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

// ClaimSeller implements repository.SellerRepository.
func (s *Store) ClaimSeller(ctx context.Context, sellerID string, tradeID uuid.UUID) (bool, error) {
	res := s.db.WithContext(ctx).Model(&Seller{}).
		Where("seller_id = ? AND available = ? AND claimed_trade_id IS NULL", sellerID, true).
		Updates(map[string]any{"available": false, "claimed_trade_id": tradeID})
	if err := MapGormError(res.Error); err != nil {
		return false, err
	}
	return res.RowsAffected == 1, nil
}

// ReleaseSellerClaim implements repository.SellerRepository.
func (s *Store) ReleaseSellerClaim(ctx context.Context, sellerID string, tradeID uuid.UUID) (bool, error) {
	res := s.db.WithContext(ctx).Model(&Seller{}).
		Where("seller_id = ? AND claimed_trade_id = ?", sellerID, tradeID).
		Updates(map[string]any{"available": true, "claimed_trade_id": gorm.Expr("NULL")})
	if err := MapGormError(res.Error); err != nil {
		return false, err
	}
	return res.RowsAffected == 1, nil
}

// SetSellerAvailability implements repository.SellerRepository.
func (s *Store) SetSellerAvailability(ctx context.Context, sellerID string, expected, value bool) (bool, error) {
	res := s.db.WithContext(ctx).Model(&Seller{}).
		Where("seller_id = ? AND available = ? AND claimed_trade_id IS NULL", sellerID, expected).
		Update("available", value)
	if err := MapGormError(res.Error); err != nil {
		return false, err
	}
	return res.RowsAffected == 1, nil
}

// UpdateSellerPayoutAddress implements repository.SellerRepository.
func (s *Store) UpdateSellerPayoutAddress(ctx context.Context, sellerID, address string) error {
	res := s.db.WithContext(ctx).Model(&Seller{}).
		Where("seller_id = ?", sellerID).
		Update("payout_address", address)
	if err := MapGormError(res.Error); err != nil {
		return err
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

var _ repository.Store = (*Store)(nil)

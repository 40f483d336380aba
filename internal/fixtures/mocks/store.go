package mocks

import (
	"context"

	"github.com/amirasaad/escrow/pkg/domain/trade"
	"github.com/amirasaad/escrow/pkg/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// Store is a testify mock of repository.Store, used to inject store failures.
type Store struct {
	mock.Mock
}

func (m *Store) CreateTrade(ctx context.Context, t *trade.Trade) error {
	return m.Called(ctx, t).Error(0)
}

func (m *Store) Get(ctx context.Context, id uuid.UUID) (*trade.Trade, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*trade.Trade), args.Error(1)
}

func (m *Store) GetByReference(ctx context.Context, reference string) (*trade.Trade, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*trade.Trade), args.Error(1)
}

func (m *Store) ListTrades(ctx context.Context, filter repository.TradeFilter) ([]*trade.Trade, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*trade.Trade), args.Error(1)
}

func (m *Store) CompareAndUpdate(
	ctx context.Context,
	id uuid.UUID,
	expected []trade.Status,
	patch trade.Patch,
) (bool, error) {
	args := m.Called(ctx, id, expected, patch)
	return args.Bool(0), args.Error(1)
}

func (m *Store) CountOpenTradesBySeller(ctx context.Context, sellerID string) (int64, error) {
	args := m.Called(ctx, sellerID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *Store) CreateSeller(ctx context.Context, s *trade.Seller) error {
	return m.Called(ctx, s).Error(0)
}

func (m *Store) GetSeller(ctx context.Context, sellerID string) (*trade.Seller, error) {
	args := m.Called(ctx, sellerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*trade.Seller), args.Error(1)
}

func (m *Store) ListAvailableSellers(ctx context.Context) ([]*trade.Seller, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*trade.Seller), args.Error(1)
}

func (m *Store) ClaimSeller(ctx context.Context, sellerID string, tradeID uuid.UUID) (bool, error) {
	args := m.Called(ctx, sellerID, tradeID)
	return args.Bool(0), args.Error(1)
}

func (m *Store) ReleaseSellerClaim(ctx context.Context, sellerID string, tradeID uuid.UUID) (bool, error) {
	args := m.Called(ctx, sellerID, tradeID)
	return args.Bool(0), args.Error(1)
}

func (m *Store) SetSellerAvailability(ctx context.Context, sellerID string, expected, value bool) (bool, error) {
	args := m.Called(ctx, sellerID, expected, value)
	return args.Bool(0), args.Error(1)
}

func (m *Store) UpdateSellerPayoutAddress(ctx context.Context, sellerID, address string) error {
	return m.Called(ctx, sellerID, address).Error(0)
}

var _ repository.Store = (*Store)(nil)

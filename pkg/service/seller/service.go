// Package seller manages seller profiles and their availability.
package seller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/amirasaad/escrow/pkg/domain/trade"
	"github.com/amirasaad/escrow/pkg/repository"
	"github.com/google/uuid"
)

// Service registers sellers and toggles their availability.
type Service struct {
	sellers repository.SellerRepository
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// New creates a seller service.
func New(sellers repository.SellerRepository, timeout time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		sellers: sellers,
		timeout: timeout,
		now:     time.Now,
		logger:  logger.With("service", "seller"),
	}
}

func (s *Service) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Register creates an available seller profile.
func (s *Service) Register(ctx context.Context, sellerID, payoutAddress string) (*trade.Seller, error) {
	payoutAddress = strings.TrimSpace(payoutAddress)
	if sellerID == "" || payoutAddress == "" {
		return nil, fmt.Errorf("seller id and payout address are required")
	}
	seller := &trade.Seller{
		SellerID:      sellerID,
		PayoutAddress: payoutAddress,
		Available:     true,
		CreatedAt:     s.now().UTC(),
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	if err := s.sellers.CreateSeller(ctx, seller); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, trade.NewError(trade.ErrSellerExists, uuid.Nil, sellerID)
		}
		return nil, fmt.Errorf("register seller %s: %w", sellerID, err)
	}
	s.logger.Info("seller registered", "seller_id", sellerID)
	return seller, nil
}

// Get returns a seller profile.
func (s *Service) Get(ctx context.Context, sellerID string) (*trade.Seller, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	seller, err := s.sellers.GetSeller(ctx, sellerID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, trade.NewError(trade.ErrSellerNotFound, uuid.Nil, sellerID)
	}
	if err != nil {
		return nil, fmt.Errorf("get seller %s: %w", sellerID, err)
	}
	return seller, nil
}

// Reopen makes a seller available again. It is one conditional update that
// the seller's claim blocks, so it is refused with ErrSellerBusy while the
// seller still holds an open trade.
func (s *Service) Reopen(ctx context.Context, sellerID string) error {
	seller, err := s.Get(ctx, sellerID)
	if err != nil {
		return err
	}
	if seller.Available {
		return nil
	}

	cctx, cancel := s.bound(ctx)
	reopened, err := s.sellers.SetSellerAvailability(cctx, sellerID, false, true)
	cancel()
	if err != nil {
		return fmt.Errorf("reopen seller %s: %w", sellerID, err)
	}
	if reopened {
		s.logger.Info("seller availability reopened", "seller_id", sellerID)
		return nil
	}

	current, err := s.Get(ctx, sellerID)
	if err != nil {
		return err
	}
	if current.ClaimedTradeID != nil {
		return trade.NewError(trade.ErrSellerBusy, *current.ClaimedTradeID, "seller still holds an open trade")
	}
	return nil
}

// Pause takes an available seller out of matching.
func (s *Service) Pause(ctx context.Context, sellerID string) error {
	if _, err := s.Get(ctx, sellerID); err != nil {
		return err
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	if _, err := s.sellers.SetSellerAvailability(ctx, sellerID, true, false); err != nil {
		return fmt.Errorf("pause seller %s: %w", sellerID, err)
	}
	s.logger.Info("seller availability paused", "seller_id", sellerID)
	return nil
}

// SetAvailability reopens or pauses a seller.
func (s *Service) SetAvailability(ctx context.Context, sellerID string, available bool) error {
	if available {
		return s.Reopen(ctx, sellerID)
	}
	return s.Pause(ctx, sellerID)
}

// UpdatePayoutAddress changes where future payouts go. Trades already
// matched keep the address copied at match time.
func (s *Service) UpdatePayoutAddress(ctx context.Context, sellerID, address string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return fmt.Errorf("payout address is required")
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	err := s.sellers.UpdateSellerPayoutAddress(ctx, sellerID, address)
	if errors.Is(err, repository.ErrNotFound) {
		return trade.NewError(trade.ErrSellerNotFound, uuid.Nil, sellerID)
	}
	if err != nil {
		return fmt.Errorf("update payout address for %s: %w", sellerID, err)
	}
	return nil
}

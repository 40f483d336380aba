// Package memory is an in-process Ledger Store used by tests and by the
// server when no database is configured.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/amirasaad/escrow/pkg/domain/trade"
	"github.com/amirasaad/escrow/pkg/repository"
	"github.com/google/uuid"
)

type sellerRow struct {
	seller trade.Seller
	seq    int64
}

// Store keeps trades and sellers in maps guarded by one mutex, which makes
// every compare-and-update atomic.
type Store struct {
	mu          sync.RWMutex
	trades      map[uuid.UUID]*trade.Trade
	byReference map[string]uuid.UUID
	order       []uuid.UUID
	sellers     map[string]*sellerRow
	seq         int64
	now         func() time.Time

	mutations   map[uuid.UUID]int
	transitions map[uuid.UUID]map[trade.Status]int
}

// New creates an empty store.
func New() *Store {
	return &Store{
		trades:      make(map[uuid.UUID]*trade.Trade),
		byReference: make(map[string]uuid.UUID),
		sellers:     make(map[string]*sellerRow),
		now:         time.Now,
		mutations:   make(map[uuid.UUID]int),
		transitions: make(map[uuid.UUID]map[trade.Status]int),
	}
}

func clone(t *trade.Trade) *trade.Trade {
	c := *t
	return &c
}

// CreateTrade implements repository.TradeRepository.
func (s *Store) CreateTrade(ctx context.Context, t *trade.Trade) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trades[t.ID]; ok {
		return repository.ErrDuplicate
	}
	if _, ok := s.byReference[t.PaymentReference]; ok {
		return repository.ErrDuplicate
	}
	s.trades[t.ID] = clone(t)
	s.byReference[t.PaymentReference] = t.ID
	s.order = append(s.order, t.ID)
	return nil
}

// Get implements repository.TradeRepository.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*trade.Trade, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trades[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(t), nil
}

// GetByReference implements repository.TradeRepository.
func (s *Store) GetByReference(ctx context.Context, reference string) (*trade.Trade, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byReference[reference]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(s.trades[id]), nil
}

// ListTrades implements repository.TradeRepository.
func (s *Store) ListTrades(ctx context.Context, f repository.TradeFilter) ([]*trade.Trade, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*trade.Trade
	for _, id := range s.order {
		t := s.trades[id]
		if !matches(t, f) {
			continue
		}
		out = append(out, clone(t))
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func matches(t *trade.Trade, f repository.TradeFilter) bool {
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, t.Status) {
		return false
	}
	if f.Flagged != nil && t.Flagged != *f.Flagged {
		return false
	}
	if f.BuyerID != "" && t.BuyerID != f.BuyerID {
		return false
	}
	if f.SellerID != "" && t.SellerID != f.SellerID {
		return false
	}
	if !f.UpdatedBefore.IsZero() && !t.UpdatedAt.Before(f.UpdatedBefore) {
		return false
	}
	if f.Archived != nil && (t.ArchivedAt != nil) != *f.Archived {
		return false
	}
	return true
}

// CompareAndUpdate implements repository.TradeRepository.
func (s *Store) CompareAndUpdate(
	ctx context.Context,
	id uuid.UUID,
	expected []trade.Status,
	patch trade.Patch,
) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trades[id]
	if !ok {
		return false, nil
	}
	if !slices.Contains(expected, t.Status) {
		return false, nil
	}
	if patch.ArchivedAt != nil && t.ArchivedAt != nil {
		return false, nil
	}
	patch.ApplyTo(t, s.now())
	if patch.Status != nil && patch.Status.IsTerminal() {
		if row, ok := s.sellers[t.SellerID]; ok && row.seller.ClaimedTradeID != nil && *row.seller.ClaimedTradeID == id {
			row.seller.ClaimedTradeID = nil
		}
	}
	s.mutations[id]++
	if patch.Status != nil {
		if s.transitions[id] == nil {
			s.transitions[id] = make(map[trade.Status]int)
		}
		s.transitions[id][*patch.Status]++
	}
	return true, nil
}

// CountOpenTradesBySeller implements repository.TradeRepository.
func (s *Store) CountOpenTradesBySeller(ctx context.Context, sellerID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, t := range s.trades {
		if t.SellerID == sellerID && t.Status.IsOpen() {
			n++
		}
	}
	return n, nil
}

// CreateSeller implements repository.SellerRepository.
func (s *Store) CreateSeller(ctx context.Context, seller *trade.Seller) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sellers[seller.SellerID]; ok {
		return repository.ErrDuplicate
	}
	s.seq++
	s.sellers[seller.SellerID] = &sellerRow{seller: *seller, seq: s.seq}
	return nil
}

// GetSeller implements repository.SellerRepository.
func (s *Store) GetSeller(ctx context.Context, sellerID string) (*trade.Seller, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.sellers[sellerID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	seller := row.seller
	return &seller, nil
}

// ListAvailableSellers implements repository.SellerRepository.
func (s *Store) ListAvailableSellers(ctx context.Context) ([]*trade.Seller, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	rows := make([]*sellerRow, 0, len(s.sellers))
	for _, row := range s.sellers {
		if row.seller.Available {
			r := *row
			rows = append(rows, &r)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(rows, func(a, b *sellerRow) int { return int(a.seq - b.seq) })
	out := make([]*trade.Seller, len(rows))
	for i, row := range rows {
		seller := row.seller
		out[i] = &seller
	}
	return out, nil
}

// ClaimSeller implements repository.SellerRepository.
func (s *Store) ClaimSeller(ctx context.Context, sellerID string, tradeID uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.sellers[sellerID]
	if !ok || !row.seller.Available || row.seller.ClaimedTradeID != nil {
		return false, nil
	}
	row.seller.Available = false
	row.seller.ClaimedTradeID = &tradeID
	return true, nil
}

// ReleaseSellerClaim implements repository.SellerRepository.
func (s *Store) ReleaseSellerClaim(ctx context.Context, sellerID string, tradeID uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.sellers[sellerID]
	if !ok || row.seller.ClaimedTradeID == nil || *row.seller.ClaimedTradeID != tradeID {
		return false, nil
	}
	row.seller.ClaimedTradeID = nil
	row.seller.Available = true
	return true, nil
}

// SetSellerAvailability implements repository.SellerRepository.
func (s *Store) SetSellerAvailability(ctx context.Context, sellerID string, expected, value bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.sellers[sellerID]
	if !ok || row.seller.Available != expected || row.seller.ClaimedTradeID != nil {
		return false, nil
	}
	row.seller.Available = value
	return true, nil
}

// UpdateSellerPayoutAddress implements repository.SellerRepository.
func (s *Store) UpdateSellerPayoutAddress(ctx context.Context, sellerID, address string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.sellers[sellerID]
	if !ok {
		return repository.ErrNotFound
	}
	row.seller.PayoutAddress = address
	return nil
}

// Mutations returns how many compare-and-updates were applied to a trade.
func (s *Store) Mutations(id uuid.UUID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mutations[id]
}

// Transitions returns how many applied updates moved a trade into status.
func (s *Store) Transitions(id uuid.UUID, status trade.Status) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transitions[id][status]
}

// TradeCount returns the number of stored trades.
func (s *Store) TradeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.trades)
}

var _ repository.Store = (*Store)(nil)

package matching

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	infraeventbus "github.com/amirasaad/escrow/infra/eventbus"
	"github.com/amirasaad/escrow/infra/repository/memory"
	"github.com/amirasaad/escrow/internal/fixtures/mocks"
	"github.com/amirasaad/escrow/pkg/domain/events"
	"github.com/amirasaad/escrow/pkg/domain/trade"
	"github.com/amirasaad/escrow/pkg/provider/payment"
	sellersvc "github.com/amirasaad/escrow/pkg/service/seller"
	tradesvc "github.com/amirasaad/escrow/pkg/service/trade"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testConfig = Config{
	MinAmount:      100,
	Currency:       "NGN",
	CallbackURL:    "https://escrow.test/callback",
	StoreTimeout:   time.Second,
	GatewayTimeout: time.Second,
}

type fixture struct {
	store   *memory.Store
	gateway *mocks.Gateway
	bus     *infraeventbus.MemoryEventBus
	engine  *Engine
}

func newFixture(t *testing.T, sellers ...string) *fixture {
	t.Helper()
	store := memory.New()
	for _, id := range sellers {
		require.NoError(t, store.CreateSeller(context.Background(), &trade.Seller{
			SellerID: id, PayoutAddress: "bank|" + id, Available: true, CreatedAt: time.Now(),
		}))
	}
	gateway := &mocks.Gateway{}
	bus := infraeventbus.NewWithMemory(nil, infraeventbus.WithRecording())
	registry := tradesvc.NewRegistry(store, time.Second, nil)
	return &fixture{
		store:   store,
		gateway: gateway,
		bus:     bus,
		engine:  New(store, registry, gateway, bus, testConfig, nil),
	}
}

func (f *fixture) payLinks() {
	f.gateway.On("InitiatePayment", mock.Anything, mock.Anything).
		Return(func(ctx context.Context, p *payment.InitiatePaymentParams) *payment.InitiatePaymentResponse {
			return &payment.InitiatePaymentResponse{PayURL: "https://pay.test/" + p.Reference}
		}, nil)
}

func TestRequestTrade_OpensTrade(t *testing.T) {
	f := newFixture(t, "seller-1")
	f.payLinks()

	tr, err := f.engine.RequestTrade(context.Background(), RequestParams{
		BuyerID: "buyer-1", AmountMinor: 50000, BuyerWallet: "0xabc",
	})
	require.NoError(t, err)

	assert.Equal(t, trade.StatusAwaitingPayment, tr.Status)
	assert.Equal(t, "seller-1", tr.SellerID)
	assert.Equal(t, "bank|seller-1", tr.SellerPayoutAddress)
	assert.Equal(t, "https://pay.test/"+tr.PaymentReference, tr.PayURL)

	stored, err := f.store.Get(context.Background(), tr.ID)
	require.NoError(t, err)
	assert.Equal(t, trade.StatusAwaitingPayment, stored.Status)

	seller, err := f.store.GetSeller(context.Background(), "seller-1")
	require.NoError(t, err)
	assert.False(t, seller.Available)

	f.gateway.AssertCalled(t, "InitiatePayment", mock.Anything, mock.MatchedBy(func(p *payment.InitiatePaymentParams) bool {
		return p.Reference == tr.PaymentReference && p.Amount == 50000 && p.CallbackURL == testConfig.CallbackURL
	}))
	assert.Len(t, f.bus.PublishedOfType(events.TypeTradeOpened), 1)
}

func TestRequestTrade_InvalidAmount(t *testing.T) {
	f := newFixture(t, "seller-1")
	_, err := f.engine.RequestTrade(context.Background(), RequestParams{BuyerID: "b", AmountMinor: 99})
	assert.ErrorIs(t, err, trade.ErrInvalidAmount)
	assert.Equal(t, 0, f.store.TradeCount())
	f.gateway.AssertNotCalled(t, "InitiatePayment", mock.Anything, mock.Anything)
}

func TestRequestTrade_NoSellerAvailable(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.RequestTrade(context.Background(), RequestParams{BuyerID: "b", AmountMinor: 50000})
	assert.ErrorIs(t, err, trade.ErrNoSellerAvailable)
	assert.Equal(t, trade.KindNoSellerAvailable, trade.KindOf(err))
	assert.Equal(t, 0, f.store.TradeCount())
}

func TestRequestTrade_EarliestSellerFirst(t *testing.T) {
	f := newFixture(t, "early", "late")
	f.payLinks()

	first, err := f.engine.RequestTrade(context.Background(), RequestParams{BuyerID: "b1", AmountMinor: 1000})
	require.NoError(t, err)
	second, err := f.engine.RequestTrade(context.Background(), RequestParams{BuyerID: "b2", AmountMinor: 1000})
	require.NoError(t, err)
	_, err = f.engine.RequestTrade(context.Background(), RequestParams{BuyerID: "b3", AmountMinor: 1000})

	assert.Equal(t, "early", first.SellerID)
	assert.Equal(t, "late", second.SellerID)
	assert.ErrorIs(t, err, trade.ErrNoSellerAvailable)
}

func TestRequestTrade_PaymentInitFailureCompensates(t *testing.T) {
	f := newFixture(t, "seller-1")
	f.gateway.On("InitiatePayment", mock.Anything, mock.Anything).Return(nil, errors.New("gateway down"))

	tr, err := f.engine.RequestTrade(context.Background(), RequestParams{BuyerID: "b", AmountMinor: 50000})
	require.Error(t, err)
	assert.Nil(t, tr)
	assert.ErrorIs(t, err, trade.ErrPaymentInitFailed)

	var te *trade.Error
	require.ErrorAs(t, err, &te)
	stored, getErr := f.store.Get(context.Background(), te.TradeID)
	require.NoError(t, getErr)
	assert.Equal(t, trade.StatusFailedPaymentInit, stored.Status)

	seller, getErr := f.store.GetSeller(context.Background(), "seller-1")
	require.NoError(t, getErr)
	assert.True(t, seller.Available, "seller must not stay locked out")
	assert.Nil(t, seller.ClaimedTradeID)
	assert.Len(t, f.bus.PublishedOfType(events.TypePaymentInitFailed), 1)
}

func TestRequestTrade_EmptyPayLinkIsFailure(t *testing.T) {
	f := newFixture(t, "seller-1")
	f.gateway.On("InitiatePayment", mock.Anything, mock.Anything).Return(&payment.InitiatePaymentResponse{}, nil)

	_, err := f.engine.RequestTrade(context.Background(), RequestParams{BuyerID: "b", AmountMinor: 50000})
	assert.ErrorIs(t, err, trade.ErrPaymentInitFailed)
}

func TestRequestTrade_CreateFailureRestoresSeller(t *testing.T) {
	sellers := memory.New()
	require.NoError(t, sellers.CreateSeller(context.Background(), &trade.Seller{SellerID: "seller-1", Available: true}))
	trades := &mocks.Store{}
	trades.On("CreateTrade", mock.Anything, mock.Anything).Return(errors.New("db down"))

	engine := New(sellers, tradesvc.NewRegistry(trades, time.Second, nil), &mocks.Gateway{}, nil, testConfig, nil)
	_, err := engine.RequestTrade(context.Background(), RequestParams{BuyerID: "b", AmountMinor: 50000})
	require.Error(t, err)

	seller, err := sellers.GetSeller(context.Background(), "seller-1")
	require.NoError(t, err)
	assert.True(t, seller.Available)
	assert.Nil(t, seller.ClaimedTradeID)
}

// reopeningStore has the seller try to reopen between the claim and the
// trade insert.
type reopeningStore struct {
	*memory.Store
	sellers *sellersvc.Service
	reopen  []error
}

func (s *reopeningStore) CreateTrade(ctx context.Context, t *trade.Trade) error {
	s.reopen = append(s.reopen, s.sellers.Reopen(ctx, t.SellerID))
	return s.Store.CreateTrade(ctx, t)
}

func TestRequestTrade_ReopenBeforeInsertIsRefused(t *testing.T) {
	ctx := context.Background()
	base := memory.New()
	require.NoError(t, base.CreateSeller(ctx, &trade.Seller{SellerID: "s1", PayoutAddress: "bank|s1", Available: true}))
	store := &reopeningStore{Store: base, sellers: sellersvc.New(base, time.Second, nil)}
	gateway := &mocks.Gateway{}
	gateway.On("InitiatePayment", mock.Anything, mock.Anything).
		Return(&payment.InitiatePaymentResponse{PayURL: "https://pay.test/x"}, nil)
	engine := New(store, tradesvc.NewRegistry(store, time.Second, nil), gateway, nil, testConfig, nil)

	first, err := engine.RequestTrade(ctx, RequestParams{BuyerID: "b1", AmountMinor: 1000})
	require.NoError(t, err)
	assert.Equal(t, "s1", first.SellerID)
	require.Len(t, store.reopen, 1)
	assert.ErrorIs(t, store.reopen[0], trade.ErrSellerBusy)

	_, err = engine.RequestTrade(ctx, RequestParams{BuyerID: "b2", AmountMinor: 1000})
	assert.ErrorIs(t, err, trade.ErrNoSellerAvailable)

	open, err := base.CountOpenTradesBySeller(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), open)
}

// linkFailStore fails only the update that records the payment link.
type linkFailStore struct {
	*memory.Store
}

func (s *linkFailStore) CompareAndUpdate(
	ctx context.Context,
	id uuid.UUID,
	expected []trade.Status,
	patch trade.Patch,
) (bool, error) {
	if patch.Status != nil && *patch.Status == trade.StatusAwaitingPayment {
		return false, errors.New("db blip")
	}
	return s.Store.CompareAndUpdate(ctx, id, expected, patch)
}

func TestRequestTrade_UnrecordedLinkStillReachesBuyer(t *testing.T) {
	ctx := context.Background()
	store := &linkFailStore{Store: memory.New()}
	require.NoError(t, store.CreateSeller(ctx, &trade.Seller{SellerID: "s1", PayoutAddress: "bank|s1", Available: true}))
	gateway := &mocks.Gateway{}
	gateway.On("InitiatePayment", mock.Anything, mock.Anything).
		Return(&payment.InitiatePaymentResponse{PayURL: "https://pay.test/x"}, nil)
	bus := infraeventbus.NewWithMemory(nil, infraeventbus.WithRecording())
	registry := tradesvc.NewRegistry(store, time.Second, nil)
	engine := New(store, registry, gateway, bus, testConfig, nil)

	tr, err := engine.RequestTrade(ctx, RequestParams{BuyerID: "b1", AmountMinor: 1000})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.test/x", tr.PayURL)
	assert.Equal(t, trade.StatusCreated, tr.Status)
	assert.Len(t, bus.PublishedOfType(events.TypeTradeOpened), 1)

	seller, err := store.GetSeller(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, seller.ClaimedTradeID)
	assert.Equal(t, tr.ID, *seller.ClaimedTradeID)

	applied, err := registry.ConfirmPayment(ctx, tr.ID, tradesvc.Confirmation{AmountPaid: tr.Amount})
	require.NoError(t, err)
	assert.True(t, applied, "a created trade can still be paid")
}

func TestRequestTrade_ConcurrentRequestsNeverShareSeller(t *testing.T) {
	const sellers, buyers = 8, 24
	ids := make([]string, sellers)
	for i := range ids {
		ids[i] = fmt.Sprintf("seller-%02d", i)
	}
	f := newFixture(t, ids...)
	f.payLinks()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		matched = map[string]int{}
		noMatch int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tr, err := f.engine.RequestTrade(context.Background(), RequestParams{
				BuyerID: fmt.Sprintf("buyer-%d", i), AmountMinor: 1000,
			})
			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, trade.ErrNoSellerAvailable) {
				noMatch++
				return
			}
			if !assert.NoError(t, err) {
				return
			}
			matched[tr.SellerID]++
		}(i)
	}
	wg.Wait()

	assert.Len(t, matched, sellers)
	for id, n := range matched {
		assert.Equal(t, 1, n, "seller %s matched more than once", id)
	}
	assert.Equal(t, buyers-sellers, noMatch)
	assert.Equal(t, sellers, f.store.TradeCount())
}

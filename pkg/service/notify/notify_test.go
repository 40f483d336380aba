package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	infraeventbus "github.com/amirasaad/escrow/infra/eventbus"
	"github.com/amirasaad/escrow/internal/fixtures/mocks"
	"github.com/amirasaad/escrow/pkg/domain/events"
	"github.com/amirasaad/escrow/pkg/domain/trade"
	"github.com/amirasaad/escrow/pkg/eventbus"
	"github.com/amirasaad/escrow/pkg/provider/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func paidTrade() *trade.Trade {
	tr := trade.New("buyer-1", &trade.Seller{SellerID: "seller-1", PayoutAddress: "bank|001"}, 5000000, "0xwallet", time.Now())
	tr.Status = trade.StatusPaid
	tr.AmountPaid = 5000000
	return tr
}

func contains(sub string) any {
	return mock.MatchedBy(func(msg string) bool { return strings.Contains(msg, sub) })
}

func TestNotifier_TradePaidFansOutToBothParties(t *testing.T) {
	presenter := &mocks.Presenter{}
	presenter.On("Notify", mock.Anything, "buyer-1", contains("NGN 50,000.00")).Return(nil).Once()
	presenter.On("Notify", mock.Anything, "seller-1", contains("0xwallet")).Return(nil).Once()

	bus := infraeventbus.NewWithMemory(nil)
	New(presenter, nil, Config{Currency: "NGN"}, nil).Register(bus, nil)

	evt := events.NewTradePaid(paidTrade(), time.Now())
	require.NoError(t, bus.Emit(context.Background(), evt))
	require.NoError(t, bus.Emit(context.Background(), evt))

	presenter.AssertExpectations(t)
	presenter.AssertNumberOfCalls(t, "Notify", 2)
}

func TestNotifier_ReleaseDispatchesPayout(t *testing.T) {
	presenter := (&mocks.Presenter{}).AllowAll()
	payouts := &mocks.Payouts{}
	payouts.On("InitiatePayout", mock.Anything, mock.MatchedBy(func(p *payment.InitiatePayoutParams) bool {
		return p.Amount == 4975000 && p.Destination == "bank|001" && p.SellerID == "seller-1" && p.Currency == "NGN"
	})).Return(&payment.InitiatePayoutResponse{PayoutID: "po_1", Status: payment.PayoutPending}, nil).Once()

	bus := infraeventbus.NewWithMemory(nil)
	New(presenter, payouts, Config{Currency: "NGN"}, nil).Register(bus, nil)

	tr := paidTrade()
	tr.Status = trade.StatusReleased
	tr.Fee, tr.Payout = 25000, 4975000
	evt := events.NewTradeReleased(tr, "seller-1", time.Now())
	require.NoError(t, bus.Emit(context.Background(), evt))
	require.NoError(t, bus.Emit(context.Background(), evt))

	payouts.AssertExpectations(t)
	presenter.AssertCalled(t, "Notify", mock.Anything, "seller-1", contains("NGN 49,750.00"))
	presenter.AssertCalled(t, "Notify", mock.Anything, "buyer-1", contains("Check your USDT"))
}

func TestNotifier_FailedPayoutIsRetriedOnRedelivery(t *testing.T) {
	payouts := &mocks.Payouts{}
	payouts.On("InitiatePayout", mock.Anything, mock.Anything).Return(nil, errors.New("provider down")).Once()
	payouts.On("InitiatePayout", mock.Anything, mock.Anything).Return(&payment.InitiatePayoutResponse{PayoutID: "po_2"}, nil).Once()

	n := New((&mocks.Presenter{}).AllowAll(), payouts, Config{}, nil)
	tracker := eventbus.NewIdempotencyTracker()
	handler := eventbus.WithIdempotency(n.dispatchPayout, tracker, eventbus.ByEventID, "payout-dispatcher", nil)

	tr := paidTrade()
	tr.Payout = 100
	evt := events.NewTradeReleased(tr, "seller-1", time.Now())
	assert.Error(t, handler(context.Background(), evt))
	assert.NoError(t, handler(context.Background(), evt))
	assert.NoError(t, handler(context.Background(), evt))
	payouts.AssertExpectations(t)
}

func TestNotifier_NoPayoutCapabilityIsNotAnError(t *testing.T) {
	n := New((&mocks.Presenter{}).AllowAll(), nil, Config{}, nil)
	evt := events.NewTradeReleased(paidTrade(), "seller-1", time.Now())
	assert.NoError(t, n.dispatchPayout(context.Background(), evt))
}

func TestNotifier_OperatorAlerts(t *testing.T) {
	presenter := &mocks.Presenter{}
	presenter.On("Notify", mock.Anything, "op-1", contains("esc-ghost")).Return(nil).Once()
	presenter.On("Notify", mock.Anything, "op-1", contains("failed_payment_init")).Return(nil).Once()

	bus := infraeventbus.NewWithMemory(nil)
	New(presenter, nil, Config{OperatorIDs: []string{"op-1"}}, nil).Register(bus, nil)

	require.NoError(t, bus.Emit(context.Background(), events.NewUnknownReferenceReported("esc-ghost", 100, "evt_1", time.Now())))
	closed := paidTrade()
	closed.Status = trade.StatusFailedPaymentInit
	require.NoError(t, bus.Emit(context.Background(), events.NewPaymentOnClosedTrade(closed, 100, time.Now())))

	presenter.AssertExpectations(t)
}

func TestNotifier_PaymentInitFailedTellsBuyer(t *testing.T) {
	presenter := &mocks.Presenter{}
	presenter.On("Notify", mock.Anything, "buyer-1", "Payment init failed. Try again.").Return(nil).Once()

	bus := infraeventbus.NewWithMemory(nil)
	New(presenter, nil, Config{}, nil).Register(bus, nil)
	require.NoError(t, bus.Emit(context.Background(), events.NewPaymentInitFailed(paidTrade(), "gateway down", time.Now())))
	presenter.AssertExpectations(t)
}

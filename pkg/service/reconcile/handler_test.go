package reconcile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	infraeventbus "github.com/amirasaad/escrow/infra/eventbus"
	"github.com/amirasaad/escrow/infra/repository/memory"
	"github.com/amirasaad/escrow/internal/fixtures/mocks"
	"github.com/amirasaad/escrow/pkg/domain/events"
	"github.com/amirasaad/escrow/pkg/domain/trade"
	"github.com/amirasaad/escrow/pkg/provider/payment"
	tradesvc "github.com/amirasaad/escrow/pkg/service/trade"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const goodSig = "good-signature"

type ReconcileSuite struct {
	suite.Suite
	store   *memory.Store
	gateway *mocks.Gateway
	bus     *infraeventbus.MemoryEventBus
	logs    *bytes.Buffer
	handler *Handler
	trade   *trade.Trade
}

func TestReconcileSuite(t *testing.T) {
	suite.Run(t, new(ReconcileSuite))
}

func (s *ReconcileSuite) SetupTest() {
	s.store = memory.New()
	s.gateway = &mocks.Gateway{}
	s.bus = infraeventbus.NewWithMemory(nil, infraeventbus.WithRecording())
	s.logs = &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(s.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	s.gateway.On("VerifySignature", mock.Anything, goodSig).Return(true)
	s.gateway.On("VerifySignature", mock.Anything, mock.Anything).Return(false)

	registry := tradesvc.NewRegistry(s.store, time.Second, logger)
	s.handler = New(registry, s.gateway, s.bus, Config{PaymentTolerance: 100, Attempts: 3}, logger)

	seller := &trade.Seller{SellerID: "seller-1", PayoutAddress: "bank|001"}
	s.trade = trade.New("buyer-1", seller, 50000, "0xabc", time.Now())
	s.trade.Status = trade.StatusAwaitingPayment
	s.Require().NoError(s.store.CreateTrade(context.Background(), s.trade))
}

func (s *ReconcileSuite) charge(payload string, evt *payment.Event) []byte {
	raw := []byte(payload)
	s.gateway.On("ParseEvent", raw).Return(evt, nil)
	return raw
}

func (s *ReconcileSuite) success(amount int64) []byte {
	return s.charge(fmt.Sprintf(`{"event":"charge.success","amount":%d}`, amount), &payment.Event{
		Kind: payment.EventChargeSucceeded, RawKind: "charge.success",
		Reference: s.trade.PaymentReference, Amount: amount,
	})
}

func (s *ReconcileSuite) TestPaymentThenDuplicate() {
	raw := s.success(50000)

	res, err := s.handler.HandleNotification(context.Background(), raw, goodSig)
	s.Require().NoError(err)
	s.Equal(OutcomeApplied, res.Outcome)
	s.True(res.Acked())

	got, err := s.store.Get(context.Background(), s.trade.ID)
	s.Require().NoError(err)
	s.Equal(trade.StatusPaid, got.Status)
	s.Equal(int64(50000), got.AmountPaid)
	s.NotNil(got.PaidAt)
	s.False(got.Flagged)

	res, err = s.handler.HandleNotification(context.Background(), raw, goodSig)
	s.Require().NoError(err)
	s.Equal(OutcomeDuplicate, res.Outcome)
	s.True(res.Acked())

	s.Equal(1, s.store.Transitions(s.trade.ID, trade.StatusPaid))
	s.Equal(1, s.store.Mutations(s.trade.ID))
	s.Len(s.bus.PublishedOfType(events.TypeTradePaid), 1)
}

func (s *ReconcileSuite) TestConcurrentDuplicatesApplyOnce() {
	raw := s.success(50000)
	const n = 32

	var wg sync.WaitGroup
	outcomes := make(chan Outcome, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.handler.HandleNotification(context.Background(), raw, goodSig)
			if err == nil {
				outcomes <- res.Outcome
			}
		}()
	}
	wg.Wait()
	close(outcomes)

	applied, total := 0, 0
	for o := range outcomes {
		total++
		if o == OutcomeApplied {
			applied++
		}
	}
	s.Equal(n, total)
	s.LessOrEqual(applied, n)
	s.GreaterOrEqual(applied, 1)
	s.Equal(1, s.store.Transitions(s.trade.ID, trade.StatusPaid), "paid exactly once")
	s.Len(s.bus.PublishedOfType(events.TypeTradePaid), 1)
}

func (s *ReconcileSuite) TestInvalidSignatureNeverTouchesStore() {
	store := &mocks.Store{}
	handler := New(tradesvc.NewRegistry(store, time.Second, nil), s.gateway, s.bus, Config{Attempts: 1}, nil)

	res, err := handler.HandleNotification(context.Background(), []byte(`{"event":"charge.success"}`), "forged")
	s.ErrorIs(err, trade.ErrAuthenticationFailed)
	s.Equal(OutcomeRejected, res.Outcome)
	s.False(res.Acked())
	store.AssertExpectations(s.T())
	s.gateway.AssertNotCalled(s.T(), "ParseEvent", mock.Anything)
	s.Empty(s.bus.Published())
}

func (s *ReconcileSuite) TestUnknownReference() {
	raw := s.charge(`{"event":"charge.success","ref":"ghost"}`, &payment.Event{
		Kind: payment.EventChargeSucceeded, Reference: "esc-ghost", Amount: 50000, ProviderEventID: "evt_1",
	})

	res, err := s.handler.HandleNotification(context.Background(), raw, goodSig)
	s.ErrorIs(err, trade.ErrUnknownReference)
	s.Equal(OutcomeRejected, res.Outcome)
	s.Equal(0, s.store.Mutations(s.trade.ID))
	s.Contains(s.logs.String(), "unknown reference")

	reported := s.bus.PublishedOfType(events.TypeUnknownReferenceReported)
	s.Require().Len(reported, 1)
	s.Equal("esc-ghost", reported[0].(*events.UnknownReferenceReported).PaymentReference)
}

func (s *ReconcileSuite) TestNonSuccessKindIsIgnored() {
	raw := s.charge(`{"event":"transfer.success"}`, &payment.Event{
		Kind: payment.EventOther, RawKind: "transfer.success", Reference: s.trade.PaymentReference,
	})
	res, err := s.handler.HandleNotification(context.Background(), raw, goodSig)
	s.NoError(err)
	s.Equal(OutcomeIgnored, res.Outcome)
	s.True(res.Acked())
	s.Equal(0, s.store.Mutations(s.trade.ID))
}

func (s *ReconcileSuite) TestUndecodablePayloadIsIgnored() {
	raw := []byte(`not json`)
	s.gateway.On("ParseEvent", raw).Return(nil, payment.ErrMalformedEvent)

	res, err := s.handler.HandleNotification(context.Background(), raw, goodSig)
	s.NoError(err)
	s.Equal(OutcomeIgnored, res.Outcome)
}

func (s *ReconcileSuite) TestMismatchedAmountIsFlagged() {
	raw := s.success(40000)

	res, err := s.handler.HandleNotification(context.Background(), raw, goodSig)
	s.Require().NoError(err)
	s.Equal(OutcomeApplied, res.Outcome)
	s.True(res.Flagged)

	got, err := s.store.Get(context.Background(), s.trade.ID)
	s.Require().NoError(err)
	s.Equal(trade.StatusPaid, got.Status)
	s.True(got.Flagged)
	s.NotEmpty(got.FlagReason)
	s.Len(s.bus.PublishedOfType(events.TypeTradeFlagged), 1)
}

func (s *ReconcileSuite) TestAmountWithinToleranceIsNotFlagged() {
	raw := s.success(49950)
	res, err := s.handler.HandleNotification(context.Background(), raw, goodSig)
	s.Require().NoError(err)
	s.False(res.Flagged)
}

func (s *ReconcileSuite) TestPaymentForFailedInitTrade() {
	ok, err := s.store.CompareAndUpdate(context.Background(), s.trade.ID,
		[]trade.Status{trade.StatusAwaitingPayment}, trade.Patch{Status: trade.Ptr(trade.StatusFailedPaymentInit)})
	s.Require().NoError(err)
	s.Require().True(ok)
	raw := s.success(50000)

	res, err := s.handler.HandleNotification(context.Background(), raw, goodSig)
	s.ErrorIs(err, trade.ErrInvalidTransition)
	s.Equal(OutcomeRejected, res.Outcome)
	s.Equal(trade.StatusFailedPaymentInit, res.Status)

	got, err := s.store.Get(context.Background(), s.trade.ID)
	s.Require().NoError(err)
	s.Equal(trade.StatusFailedPaymentInit, got.Status)
	s.Equal(1, s.store.Mutations(s.trade.ID))
	s.Len(s.bus.PublishedOfType(events.TypePaymentOnClosedTrade), 1)
}

func TestHandleNotification_StoreFailureIsRetryable(t *testing.T) {
	gateway := &mocks.Gateway{}
	gateway.On("VerifySignature", mock.Anything, mock.Anything).Return(true)
	gateway.On("ParseEvent", mock.Anything).Return(&payment.Event{Kind: payment.EventChargeSucceeded, Reference: "esc-1", Amount: 1}, nil)
	store := &mocks.Store{}
	store.On("GetByReference", mock.Anything, "esc-1").Return(nil, context.DeadlineExceeded)

	h := New(tradesvc.NewRegistry(store, time.Second, nil), gateway, nil, Config{Attempts: 3}, nil)
	res, err := h.HandleNotification(context.Background(), []byte("{}"), "sig")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.False(t, res.Acked())
}

func TestHandleNotification_LostUpdateIsReRead(t *testing.T) {
	gateway := &mocks.Gateway{}
	gateway.On("VerifySignature", mock.Anything, mock.Anything).Return(true)
	gateway.On("ParseEvent", mock.Anything).Return(&payment.Event{Kind: payment.EventChargeSucceeded, Reference: "esc-1", Amount: 500}, nil)

	awaiting := &trade.Trade{PaymentReference: "esc-1", Amount: 500, Status: trade.StatusAwaitingPayment}
	paid := *awaiting
	paid.Status = trade.StatusPaid

	store := &mocks.Store{}
	store.On("GetByReference", mock.Anything, "esc-1").Return(awaiting, nil).Once()
	store.On("CompareAndUpdate", mock.Anything, awaiting.ID, mock.Anything, mock.Anything).Return(false, nil).Once()
	store.On("GetByReference", mock.Anything, "esc-1").Return(&paid, nil).Once()

	h := New(tradesvc.NewRegistry(store, time.Second, nil), gateway, nil, Config{Attempts: 3}, nil)
	res, err := h.HandleNotification(context.Background(), []byte("{}"), "sig")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, res.Outcome)
	store.AssertExpectations(t)
}

func TestHandleNotification_GivesUpAfterAttempts(t *testing.T) {
	gateway := &mocks.Gateway{}
	gateway.On("VerifySignature", mock.Anything, mock.Anything).Return(true)
	gateway.On("ParseEvent", mock.Anything).Return(&payment.Event{Kind: payment.EventChargeSucceeded, Reference: "esc-1", Amount: 500}, nil)

	awaiting := &trade.Trade{PaymentReference: "esc-1", Amount: 500, Status: trade.StatusAwaitingPayment}
	store := &mocks.Store{}
	store.On("GetByReference", mock.Anything, "esc-1").Return(awaiting, nil).Times(2)
	store.On("CompareAndUpdate", mock.Anything, awaiting.ID, mock.Anything, mock.Anything).Return(false, nil).Times(2)

	h := New(tradesvc.NewRegistry(store, time.Second, nil), gateway, nil, Config{Attempts: 2}, nil)
	res, err := h.HandleNotification(context.Background(), []byte("{}"), "sig")
	assert.Error(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	store.AssertExpectations(t)
}

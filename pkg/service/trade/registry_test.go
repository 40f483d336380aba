package trade

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/amirasaad/escrow/infra/repository/memory"
	"github.com/amirasaad/escrow/internal/fixtures/mocks"
	"github.com/amirasaad/escrow/pkg/domain/trade"
	"github.com/amirasaad/escrow/pkg/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTrade(t *testing.T, store *memory.Store) *trade.Trade {
	t.Helper()
	seller := &trade.Seller{SellerID: "seller-1", PayoutAddress: "bank|001", Available: true}
	tr := trade.New("buyer-1", seller, 50000, "0xwallet", time.Now())
	require.NoError(t, store.CreateTrade(context.Background(), tr))
	return tr
}

func TestRegistry_CreateValidates(t *testing.T) {
	reg := NewRegistry(memory.New(), time.Second, nil)
	seller := &trade.Seller{SellerID: "s"}

	zero := trade.New("b", seller, 0, "", time.Now())
	assert.ErrorIs(t, reg.Create(context.Background(), zero), trade.ErrInvalidAmount)

	paid := trade.New("b", seller, 10, "", time.Now())
	paid.Status = trade.StatusPaid
	assert.ErrorIs(t, reg.Create(context.Background(), paid), trade.ErrInvalidTransition)

	ok := trade.New("b", seller, 10, "", time.Now())
	require.NoError(t, reg.Create(context.Background(), ok))
	assert.ErrorIs(t, reg.Create(context.Background(), ok), repository.ErrDuplicate)
}

func TestRegistry_LookupErrors(t *testing.T) {
	reg := NewRegistry(memory.New(), time.Second, nil)

	_, err := reg.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, trade.ErrTradeNotFound)
	assert.Equal(t, trade.KindNotFound, trade.KindOf(err))

	_, err = reg.GetByReference(context.Background(), "esc-nope")
	assert.ErrorIs(t, err, trade.ErrUnknownReference)
}

func TestRegistry_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	reg := NewRegistry(store, time.Second, nil).WithClock(func() time.Time { return fixed })
	tr := newTrade(t, store)

	require.NoError(t, reg.MarkAwaitingPayment(ctx, tr.ID, "https://pay/1"))
	err := reg.MarkAwaitingPayment(ctx, tr.ID, "https://pay/2")
	assert.ErrorIs(t, err, trade.ErrInvalidTransition)

	applied, err := reg.ConfirmPayment(ctx, tr.ID, Confirmation{AmountPaid: 50000})
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = reg.ConfirmPayment(ctx, tr.ID, Confirmation{AmountPaid: 50000})
	require.NoError(t, err)
	assert.False(t, applied)

	applied, err = reg.Release(ctx, tr.ID, trade.Settlement{Fee: 250, Payout: 49750})
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = reg.Refund(ctx, tr.ID)
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := reg.Get(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, trade.StatusReleased, got.Status)
	assert.Equal(t, "https://pay/1", got.PayURL)
	assert.Equal(t, int64(50000), got.AmountPaid)
	assert.Equal(t, int64(250), got.Fee)
	assert.Equal(t, int64(49750), got.Payout)
	require.NotNil(t, got.PaidAt)
	require.NotNil(t, got.ReleasedAt)
	assert.Equal(t, fixed, *got.PaidAt)
	assert.Equal(t, 1, store.Transitions(tr.ID, trade.StatusPaid))
}

func TestRegistry_ConfirmPaymentFlags(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	reg := NewRegistry(store, time.Second, nil)
	tr := newTrade(t, store)

	applied, err := reg.ConfirmPayment(ctx, tr.ID, Confirmation{AmountPaid: 40000, Flagged: true, FlagReason: "underpaid"})
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := reg.Get(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, trade.StatusPaid, got.Status)
	assert.True(t, got.Flagged)
	assert.Equal(t, "underpaid", got.FlagReason)
}

func TestRegistry_FailedInitIsTerminal(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	reg := NewRegistry(store, time.Second, nil)
	tr := newTrade(t, store)

	require.NoError(t, reg.MarkPaymentInitFailed(ctx, tr.ID))
	applied, err := reg.ConfirmPayment(ctx, tr.ID, Confirmation{AmountPaid: 50000})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.ErrorIs(t, reg.MarkPaymentInitFailed(ctx, tr.ID), trade.ErrInvalidTransition)
}

func TestRegistry_Archive(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	now := time.Now()
	reg := NewRegistry(store, time.Second, nil).WithClock(func() time.Time { return now })

	open := newTrade(t, store)
	closed := newTrade(t, store)
	require.NoError(t, reg.MarkPaymentInitFailed(ctx, closed.ID))

	n, err := reg.Archive(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "recent trades are kept live")

	now = now.Add(2 * time.Hour)
	n, err = reg.Archive(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = reg.Archive(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, err := reg.Get(ctx, open.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ArchivedAt)
	got, err = reg.Get(ctx, closed.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.ArchivedAt)
	assert.Equal(t, trade.StatusFailedPaymentInit, got.Status)
}

func TestRegistry_StoreCallsAreBounded(t *testing.T) {
	store := &mocks.Store{}
	store.On("Get", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded)

	reg := NewRegistry(store, 10*time.Millisecond, nil)
	start := time.Now()
	_, err := reg.Get(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), time.Second)
}

package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amirasaad/escrow/pkg/domain/trade"
	"github.com/amirasaad/escrow/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	pg, err := tcpostgres.Run(
		ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("escrow"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	require.NoError(t, err)
	require.NoError(t, MigrateUp(db))
	return db
}

func TestPostgresStore_Integration(t *testing.T) {
	db := setupPostgres(t)
	store := New(db)
	ctx := context.Background()

	for _, id := range []string{"seller-1", "seller-2"} {
		require.NoError(t, store.CreateSeller(ctx, &trade.Seller{
			SellerID: id, PayoutAddress: "Zenith | " + id, Available: true, CreatedAt: time.Now().UTC(),
		}))
	}
	err := store.CreateSeller(ctx, &trade.Seller{SellerID: "seller-1", PayoutAddress: "x", Available: true})
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	sellers, err := store.ListAvailableSellers(ctx)
	require.NoError(t, err)
	require.Len(t, sellers, 2)
	assert.Equal(t, "seller-1", sellers[0].SellerID)

	tr := trade.New("buyer-1", sellers[0], 5000000, "0xwallet", time.Now().UTC())
	claimed, err := store.ClaimSeller(ctx, "seller-1", tr.ID)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, store.CreateTrade(ctx, tr))
	dup := trade.New("buyer-2", sellers[1], 100, "", time.Now().UTC())
	dup.PaymentReference = tr.PaymentReference
	assert.ErrorIs(t, store.CreateTrade(ctx, dup), repository.ErrDuplicate)

	got, err := store.GetByReference(ctx, tr.PaymentReference)
	require.NoError(t, err)
	assert.Equal(t, tr.ID, got.ID)
	assert.Equal(t, trade.StatusCreated, got.Status)

	open, err := store.CountOpenTradesBySeller(ctx, "seller-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), open)

	// Concurrent confirmations: exactly one wins the paid transition.
	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			paidAt := time.Now().UTC()
			applied, err := store.CompareAndUpdate(ctx, tr.ID, trade.AllowedFrom(trade.EventPaymentConfirmed), trade.Patch{
				Status:     trade.Ptr(trade.StatusPaid),
				AmountPaid: trade.Ptr(tr.Amount),
				PaidAt:     &paidAt,
			})
			if assert.NoError(t, err) && applied {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())

	paid, err := store.Get(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, trade.StatusPaid, paid.Status)
	assert.Equal(t, tr.Amount, paid.AmountPaid)
	require.NotNil(t, paid.PaidAt)

	flagged := false
	list, err := store.ListTrades(ctx, repository.TradeFilter{
		Statuses: []trade.Status{trade.StatusPaid}, SellerID: "seller-1", Flagged: &flagged,
	})
	require.NoError(t, err)
	require.Len(t, list, 1)

	reopened, err := store.SetSellerAvailability(ctx, "seller-1", false, true)
	require.NoError(t, err)
	assert.False(t, reopened, "a claimed seller cannot be reopened")

	applied, err := store.CompareAndUpdate(ctx, tr.ID, trade.AllowedFrom(trade.EventReleaseAuthorized), trade.Patch{
		Status: trade.Ptr(trade.StatusReleased),
	})
	require.NoError(t, err)
	require.True(t, applied)
	seller, err := store.GetSeller(ctx, "seller-1")
	require.NoError(t, err)
	assert.Nil(t, seller.ClaimedTradeID)
	assert.False(t, seller.Available)

	reopened, err = store.SetSellerAvailability(ctx, "seller-1", false, true)
	require.NoError(t, err)
	assert.True(t, reopened)
	reopened, err = store.SetSellerAvailability(ctx, "seller-1", false, true)
	require.NoError(t, err)
	assert.False(t, reopened)

	require.NoError(t, store.UpdateSellerPayoutAddress(ctx, "seller-1", "GTB | 99"))
	assert.ErrorIs(t, store.UpdateSellerPayoutAddress(ctx, "ghost", "x"), repository.ErrNotFound)

	require.NoError(t, MigrateDown(db, 0))
}

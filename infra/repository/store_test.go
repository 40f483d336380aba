package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/amirasaad/escrow/pkg/domain/trade"
	"github.com/amirasaad/escrow/pkg/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	mockDb, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDb.Close() })

	dialector := postgres.New(postgres.Config{
		Conn:       mockDb,
		DriverName: "postgres",
	})
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	require.NoError(t, err)
	return New(db), mock
}

var tradeColumns = []string{
	"id", "buyer_id", "seller_id", "buyer_wallet", "amount", "payment_reference",
	"seller_payout_address", "status", "amount_paid", "flagged", "created_at", "updated_at",
}

func TestStore_CompareAndUpdate(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()
	paid := trade.StatusPaid
	patch := trade.Patch{Status: &paid, AmountPaid: trade.Ptr(int64(5000000))}
	expected := trade.AllowedFrom(trade.EventPaymentConfirmed)

	mock.ExpectExec(`UPDATE "trades" SET .+ WHERE id = .+ AND status IN .+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	applied, err := store.CompareAndUpdate(context.Background(), id, expected, patch)
	require.NoError(t, err)
	assert.True(t, applied)

	mock.ExpectExec(`UPDATE "trades" SET .+ WHERE id = .+ AND status IN .+`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	applied, err = store.CompareAndUpdate(context.Background(), id, expected, patch)
	require.NoError(t, err)
	assert.False(t, applied, "a lost race affects no rows")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CompareAndUpdate_ArchiveRequiresUnarchived(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectExec(`UPDATE "trades" SET .+ WHERE .+archived_at IS NULL`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	applied, err := store.CompareAndUpdate(context.Background(), uuid.New(),
		[]trade.Status{trade.StatusReleased}, trade.Patch{ArchivedAt: &now})
	require.NoError(t, err)
	assert.True(t, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CompareAndUpdate_EmptyExpectedNeverMatches(t *testing.T) {
	store, mock := newMockStore(t)
	applied, err := store.CompareAndUpdate(context.Background(), uuid.New(), nil, trade.Patch{})
	require.NoError(t, err)
	assert.False(t, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Get(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT \* FROM "trades" WHERE id = .+`).
		WillReturnRows(sqlmock.NewRows(tradeColumns).AddRow(
			id.String(), "buyer-1", "seller-1", "0xwallet", int64(5000000), "esc-abc",
			"Zenith | 123", "awaiting_payment", int64(0), false, now, now,
		))
	got, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, trade.StatusAwaitingPayment, got.Status)
	assert.Equal(t, int64(5000000), got.Amount)
	assert.Equal(t, "Zenith | 123", got.SellerPayoutAddress)

	mock.ExpectQuery(`SELECT \* FROM "trades" WHERE payment_reference = .+`).
		WillReturnRows(sqlmock.NewRows(tradeColumns))
	_, err = store.GetByReference(context.Background(), "esc-missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Get_UnknownStatusIsAnError(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	mock.ExpectQuery(`SELECT \* FROM "trades"`).
		WillReturnRows(sqlmock.NewRows(tradeColumns).AddRow(
			uuid.NewString(), "b", "s", "", int64(1), "esc-x", "", "pending_payment", int64(0), false, now, now,
		))
	_, err := store.Get(context.Background(), uuid.New())
	assert.Error(t, err)
}

func TestStore_CreateTrade_DuplicateReference(t *testing.T) {
	store, mock := newMockStore(t)
	tr := trade.New("buyer-1", &trade.Seller{SellerID: "seller-1", PayoutAddress: "x"}, 100, "", time.Now())

	mock.ExpectExec(`INSERT INTO "trades"`).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})
	err := store.CreateTrade(context.Background(), tr)
	assert.ErrorIs(t, err, repository.ErrDuplicate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SellerAvailability(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE "sellers" SET "available"=\$1 WHERE seller_id = \$2 AND available = \$3 AND claimed_trade_id IS NULL`).
		WithArgs(false, "seller-1", true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	claimed, err := store.SetSellerAvailability(context.Background(), "seller-1", true, false)
	require.NoError(t, err)
	assert.True(t, claimed)

	mock.ExpectExec(`UPDATE "sellers" SET "available"=\$1 WHERE seller_id = \$2 AND available = \$3 AND claimed_trade_id IS NULL`).
		WithArgs(false, "seller-1", true).
		WillReturnResult(sqlmock.NewResult(0, 0))
	claimed, err = store.SetSellerAvailability(context.Background(), "seller-1", true, false)
	require.NoError(t, err)
	assert.False(t, claimed)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ClaimSeller(t *testing.T) {
	store, mock := newMockStore(t)
	tradeID := uuid.New()

	mock.ExpectExec(`UPDATE "sellers" SET "available"=\$1,"claimed_trade_id"=\$2 WHERE seller_id = \$3 AND available = \$4 AND claimed_trade_id IS NULL`).
		WithArgs(false, sqlmock.AnyArg(), "seller-1", true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	claimed, err := store.ClaimSeller(context.Background(), "seller-1", tradeID)
	require.NoError(t, err)
	assert.True(t, claimed)

	mock.ExpectExec(`UPDATE "sellers" SET "available"=\$1,"claimed_trade_id"=NULL WHERE seller_id = \$2 AND claimed_trade_id = \$3`).
		WithArgs(true, "seller-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	released, err := store.ReleaseSellerClaim(context.Background(), "seller-1", tradeID)
	require.NoError(t, err)
	assert.False(t, released)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CompareAndUpdate_TerminalClearsSellerClaim(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()
	patch := trade.Patch{Status: trade.Ptr(trade.StatusReleased)}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "trades" SET .+ WHERE id = .+ AND status IN .+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "sellers" SET "claimed_trade_id"=NULL WHERE claimed_trade_id = \$1`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	applied, err := store.CompareAndUpdate(context.Background(), id, []trade.Status{trade.StatusPaid}, patch)
	require.NoError(t, err)
	assert.True(t, applied)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "trades" SET .+ WHERE id = .+ AND status IN .+`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	applied, err = store.CompareAndUpdate(context.Background(), id, []trade.Status{trade.StatusPaid}, patch)
	require.NoError(t, err)
	assert.False(t, applied, "a lost race leaves the claim alone")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListAvailableSellers(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	mock.ExpectQuery(`SELECT \* FROM "sellers" WHERE available = \$1 ORDER BY seq ASC`).
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows([]string{"seller_id", "seq", "payout_address", "available", "created_at"}).
			AddRow("seller-1", int64(1), "a", true, now).
			AddRow("seller-2", int64(2), "b", true, now))

	sellers, err := store.ListAvailableSellers(context.Background())
	require.NoError(t, err)
	require.Len(t, sellers, 2)
	assert.Equal(t, "seller-1", sellers[0].SellerID)
	assert.Equal(t, "seller-2", sellers[1].SellerID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpdateSellerPayoutAddress_NotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE "sellers" SET "payout_address"=\$1 WHERE seller_id = \$2`).
		WithArgs("GTB | 1", "ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := store.UpdateSellerPayoutAddress(context.Background(), "ghost", "GTB | 1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CountOpenTradesBySeller(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT count\(\*\) FROM "trades" WHERE seller_id = .+ AND status IN .+`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	n, err := store.CountOpenTradesBySeller(context.Background(), "seller-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMapGormError(t *testing.T) {
	assert.NoError(t, MapGormError(nil))
	assert.ErrorIs(t, MapGormError(gorm.ErrRecordNotFound), repository.ErrNotFound)
	assert.ErrorIs(t, MapGormError(gorm.ErrDuplicatedKey), repository.ErrDuplicate)
	other := assert.AnError
	assert.Equal(t, other, MapGormError(other))
}

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	walletDomain "github.com/khidma/service-settlement/internal/domain/wallet"
	"github.com/khidma/service-settlement/pkg/domain"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func TestPromoRepository_IncrementUsedCount(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGormPromoRepository(db)
	id := uuid.New()

	mock.ExpectExec(`UPDATE "promo_codes" SET .*used_count.* WHERE .*usage_limit IS NULL OR used_count < usage_limit`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.IncrementUsedCount(context.Background(), id))

	mock.ExpectExec(`UPDATE "promo_codes" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.IncrementUsedCount(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrPromoExhausted)
	assert.Equal(t, "usage_limit_reached", domain.ReasonOf(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPromoRepository_CountUsage(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGormPromoRepository(db)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "promo_code_usages" WHERE promo_code_id = \$1 AND user_id = \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	n, err := repo.CountUsage(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPromoRepository_ReleaseUsage(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGormPromoRepository(db)
	promoID, bookingID := uuid.New(), uuid.New()

	mock.ExpectExec(`DELETE FROM "promo_code_usages" WHERE promo_code_id = \$1 AND booking_id = \$2`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "promo_codes" SET .*used_count.* WHERE id = \$\d+ AND used_count > 0`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.ReleaseUsage(context.Background(), promoID, bookingID))

	// no usage row, counter untouched
	mock.ExpectExec(`DELETE FROM "promo_code_usages"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, repo.ReleaseUsage(context.Background(), promoID, bookingID))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_FindByID_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "bookings" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_ForUpdateLocksRow(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "bookings" WHERE id = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.FindByIDForUpdate(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_ExpireIfDue(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepository(db)
	now := time.Now()

	mock.ExpectExec(`UPDATE "bookings" SET .* WHERE id = \$\d+ AND status = \$\d+ AND payment_status = \$\d+ AND payment_deadline < \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	changed, err := repo.ExpireIfDue(context.Background(), uuid.New(), now)
	require.NoError(t, err)
	assert.True(t, changed)

	mock.ExpectExec(`UPDATE "bookings" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	changed, err = repo.ExpireIfDue(context.Background(), uuid.New(), now)
	require.NoError(t, err)
	assert.False(t, changed, "a paid or already cancelled booking is left alone")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_SerializationFailureIsConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepository(db)

	mock.ExpectExec(`UPDATE "bookings" SET`).
		WillReturnError(&pgconn.PgError{Code: "40001", Message: "could not serialize access"})

	_, err := repo.ExpireIfDue(context.Background(), uuid.New(), time.Now())
	assert.ErrorIs(t, err, domain.ErrPersistenceConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepository_Latest_Empty(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLedgerRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "wallet_transactions" WHERE owner_id = \$1 AND account = \$2 ORDER BY sequence DESC LIMIT \$3`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	tx, err := repo.Latest(context.Background(), uuid.New(), walletDomain.AccountWallet)
	require.NoError(t, err)
	assert.Nil(t, tx)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepository_LockAccount(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLedgerRepository(db)
	owner := uuid.New()

	mock.ExpectExec(`INSERT INTO "wallet_accounts" .* ON CONFLICT DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT \* FROM "wallet_accounts" WHERE owner_id = \$1 AND account = \$2 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"owner_id", "account", "created_at"}).
			AddRow(owner, "wallet", time.Now()))

	require.NoError(t, repo.LockAccount(context.Background(), owner, walletDomain.AccountWallet))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepository_Append_SequenceCollision(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLedgerRepository(db)

	mock.ExpectExec(`INSERT INTO "wallet_transactions"`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "uq_wallet_tx_sequence"})

	err := repo.Append(context.Background(), &walletDomain.Transaction{
		ID: uuid.New(), OwnerID: uuid.New(), Account: walletDomain.AccountWallet, Sequence: 4,
		Type: walletDomain.TypeDeposit, Amount: decimal.NewFromInt(5),
		BalanceBefore: decimal.Zero, BalanceAfter: decimal.NewFromInt(5),
		ReferenceType: walletDomain.RefDeposit, ReferenceID: "pi_1", CreatedAt: time.Now(),
	})
	assert.ErrorIs(t, err, domain.ErrPersistenceConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPayoutRepository_SumReserved(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPayoutRepository(db)

	mock.ExpectQuery(`SELECT COALESCE\(SUM\(amount\), 0\) AS total FROM "withdrawal_requests" WHERE provider_id = \$1 AND status IN \(\$2,\$3,\$4\)`).
		WillReturnRows(sqlmock.NewRows([]string{"total"}).AddRow("250.50"))

	sum, err := repo.SumReserved(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("250.50").Equal(sum))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPayoutRepository_FindProfile_Missing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPayoutRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "provider_profiles" WHERE provider_id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"provider_id"}))

	p, err := repo.FindProfile(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPageOffset(t *testing.T) {
	offset, limit := pageOffset(3, 10)
	assert.Equal(t, 20, offset)
	assert.Equal(t, 10, limit)

	offset, limit = pageOffset(0, 500)
	assert.Equal(t, 0, offset)
	assert.Equal(t, 20, limit)
}

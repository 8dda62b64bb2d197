package repository

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/gorm"

	"github.com/khidma/service-settlement/internal/domain/store"
	"github.com/khidma/service-settlement/pkg/database"
	"github.com/khidma/service-settlement/pkg/domain"
)

// GormUnitOfWork runs store.Repositories inside one GORM transaction.
type GormUnitOfWork struct {
	db *gorm.DB
}

// NewGormUnitOfWork creates a new GormUnitOfWork.
func NewGormUnitOfWork(db *gorm.DB) *GormUnitOfWork {
	return &GormUnitOfWork{db: db}
}

// Do runs fn in a READ COMMITTED transaction. Correctness relies on the
// explicit row locks and conditional updates taken by the repositories.
func (u *GormUnitOfWork) Do(ctx context.Context, fn func(r store.Repositories) error) error {
	err := u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(reposFor(tx))
	}, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil && database.IsRetryable(err) {
		return fmt.Errorf("%w: %v", domain.ErrPersistenceConflict, err)
	}
	return err
}

// Repos returns repositories bound to the pool rather than a transaction.
func (u *GormUnitOfWork) Repos() store.Repositories {
	return reposFor(u.db)
}

func reposFor(db *gorm.DB) store.Repositories {
	return store.Repositories{
		Promos:   NewGormPromoRepository(db),
		Bookings: NewBookingRepository(db),
		Ledger:   NewLedgerRepository(db),
		Payouts:  NewPayoutRepository(db),
	}
}

// Models lists the GORM models for development auto-migration.
func Models() []interface{} {
	return []interface{}{
		&PromoModel{},
		&PromoUsageModel{},
		&BookingModel{},
		&WalletAccountModel{},
		&WalletTransactionModel{},
		&ProviderProfileModel{},
		&WithdrawalModel{},
	}
}

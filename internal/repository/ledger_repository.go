package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	walletDomain "github.com/khidma/service-settlement/internal/domain/wallet"
	"github.com/khidma/service-settlement/pkg/database"
	"github.com/khidma/service-settlement/pkg/domain"
)

// WalletAccountModel anchors row locks for one (owner, account). It holds no balance.
type WalletAccountModel struct {
	OwnerID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	Account   string    `gorm:"type:varchar(16);primaryKey"`
	CreatedAt time.Time `gorm:"type:timestamptz;not null"`
}

// TableName sets the table name.
func (WalletAccountModel) TableName() string { return "wallet_accounts" }

// WalletTransactionModel is the GORM model for the append-only ledger.
type WalletTransactionModel struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	OwnerID       uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_wallet_tx_sequence,priority:1"`
	Account       string          `gorm:"type:varchar(16);not null;uniqueIndex:uq_wallet_tx_sequence,priority:2"`
	Sequence      int64           `gorm:"not null;uniqueIndex:uq_wallet_tx_sequence,priority:3"`
	Type          string          `gorm:"type:varchar(20);not null"`
	Amount        decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	BalanceBefore decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	BalanceAfter  decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	ReferenceType string          `gorm:"type:varchar(20);not null"`
	ReferenceID   string          `gorm:"type:varchar(255);not null;index"`
	CreatedAt     time.Time       `gorm:"type:timestamptz;not null"`
}

// TableName sets the table name.
func (WalletTransactionModel) TableName() string { return "wallet_transactions" }

// LedgerRepositoryImpl implements wallet.Repository using GORM.
type LedgerRepositoryImpl struct {
	db *gorm.DB
}

// NewLedgerRepository creates a new LedgerRepositoryImpl.
func NewLedgerRepository(db *gorm.DB) *LedgerRepositoryImpl {
	return &LedgerRepositoryImpl{db: db}
}

// LockAccount creates the anchor row when missing and locks it FOR UPDATE.
func (r *LedgerRepositoryImpl) LockAccount(ctx context.Context, ownerID uuid.UUID, account walletDomain.Account) error {
	anchor := WalletAccountModel{OwnerID: ownerID, Account: string(account), CreatedAt: time.Now().UTC()}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&anchor).Error; err != nil {
		return translate(err, "WalletAccount", ownerID.String())
	}

	var locked WalletAccountModel
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("owner_id = ? AND account = ?", ownerID, string(account)).
		First(&locked).Error
	return translate(err, "WalletAccount", ownerID.String())
}

// Latest returns the newest row of the account, or nil.
func (r *LedgerRepositoryImpl) Latest(ctx context.Context, ownerID uuid.UUID, account walletDomain.Account) (*walletDomain.Transaction, error) {
	var model WalletTransactionModel
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND account = ?", ownerID, string(account)).
		Order("sequence DESC").
		Limit(1).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err, "WalletTransaction", ownerID.String())
	}
	return toTransactionDomain(&model), nil
}

// Append inserts a ledger row. A sequence collision means another writer got
// there first.
func (r *LedgerRepositoryImpl) Append(ctx context.Context, tx *walletDomain.Transaction) error {
	model := toTransactionModel(tx)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if database.IsUniqueViolation(err, "uq_wallet_tx_sequence") {
			return domain.NewConflictError(fmt.Sprintf("ledger sequence %d already taken", tx.Sequence))
		}
		return translate(err, "WalletTransaction", tx.ID.String())
	}
	return nil
}

// List returns rows newest first.
func (r *LedgerRepositoryImpl) List(ctx context.Context, ownerID uuid.UUID, account walletDomain.Account, page, limit int) ([]*walletDomain.Transaction, int64, error) {
	q := r.db.WithContext(ctx).Model(&WalletTransactionModel{}).
		Where("owner_id = ? AND account = ?", ownerID, string(account))

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset, limit := pageOffset(page, limit)
	var models []WalletTransactionModel
	if err := q.Order("sequence DESC").Offset(offset).Limit(limit).Find(&models).Error; err != nil {
		return nil, 0, err
	}
	return toTransactionsDomain(models), total, nil
}

// ListAll returns every row in sequence order.
func (r *LedgerRepositoryImpl) ListAll(ctx context.Context, ownerID uuid.UUID, account walletDomain.Account) ([]*walletDomain.Transaction, error) {
	var models []WalletTransactionModel
	if err := r.db.WithContext(ctx).
		Where("owner_id = ? AND account = ?", ownerID, string(account)).
		Order("sequence ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	return toTransactionsDomain(models), nil
}

func toTransactionModel(tx *walletDomain.Transaction) WalletTransactionModel {
	return WalletTransactionModel{
		ID:            tx.ID,
		OwnerID:       tx.OwnerID,
		Account:       string(tx.Account),
		Sequence:      tx.Sequence,
		Type:          string(tx.Type),
		Amount:        tx.Amount,
		BalanceBefore: tx.BalanceBefore,
		BalanceAfter:  tx.BalanceAfter,
		ReferenceType: string(tx.ReferenceType),
		ReferenceID:   tx.ReferenceID,
		CreatedAt:     tx.CreatedAt,
	}
}

func toTransactionDomain(m *WalletTransactionModel) *walletDomain.Transaction {
	return &walletDomain.Transaction{
		ID:            m.ID,
		OwnerID:       m.OwnerID,
		Account:       walletDomain.Account(m.Account),
		Sequence:      m.Sequence,
		Type:          walletDomain.TransactionType(m.Type),
		Amount:        m.Amount,
		BalanceBefore: m.BalanceBefore,
		BalanceAfter:  m.BalanceAfter,
		ReferenceType: walletDomain.ReferenceType(m.ReferenceType),
		ReferenceID:   m.ReferenceID,
		CreatedAt:     m.CreatedAt,
	}
}

func toTransactionsDomain(models []WalletTransactionModel) []*walletDomain.Transaction {
	out := make([]*walletDomain.Transaction, len(models))
	for i := range models {
		out[i] = toTransactionDomain(&models[i])
	}
	return out
}

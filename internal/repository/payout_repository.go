package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	payoutDomain "github.com/khidma/service-settlement/internal/domain/payout"
	"github.com/khidma/service-settlement/pkg/domain"
)

// ProviderProfileModel is the GORM model for the provider_profiles table.
type ProviderProfileModel struct {
	ProviderID     uuid.UUID        `gorm:"type:uuid;primaryKey"`
	CommissionRate *decimal.Decimal `gorm:"type:numeric(5,2)"`
	BankName       string           `gorm:"type:varchar(120)"`
	AccountHolder  string           `gorm:"type:varchar(120)"`
	IBAN           string           `gorm:"type:varchar(34)"`
	AccountNumber  string           `gorm:"type:varchar(34)"`
	UpdatedAt      time.Time        `gorm:"type:timestamptz;not null"`
}

// TableName sets the table name.
func (ProviderProfileModel) TableName() string { return "provider_profiles" }

// WithdrawalModel is the GORM model for the withdrawal_requests table.
type WithdrawalModel struct {
	ID                   uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ProviderID           uuid.UUID       `gorm:"type:uuid;not null;index"`
	Amount               decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	CommissionAmount     decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	NetAmount            decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	Currency             string          `gorm:"type:varchar(3);not null"`
	Status               string          `gorm:"type:varchar(20);not null;index"`
	BankName             string          `gorm:"type:varchar(120);not null"`
	AccountHolder        string          `gorm:"type:varchar(120);not null"`
	IBAN                 string          `gorm:"type:varchar(34)"`
	AccountNumber        string          `gorm:"type:varchar(34)"`
	ReviewNote           string          `gorm:"type:text"`
	RejectionReason      string          `gorm:"type:text"`
	TransactionReference string          `gorm:"type:varchar(255)"`
	ReviewedBy           *uuid.UUID      `gorm:"type:uuid"`
	ApprovedAt           *time.Time      `gorm:"type:timestamptz"`
	ProcessedAt          *time.Time      `gorm:"type:timestamptz"`
	CompletedAt          *time.Time      `gorm:"type:timestamptz"`
	RejectedAt           *time.Time      `gorm:"type:timestamptz"`
	Version              int64           `gorm:"not null;default:1"`
	CreatedAt            time.Time       `gorm:"type:timestamptz;not null"`
	UpdatedAt            time.Time       `gorm:"type:timestamptz;not null"`
}

// TableName sets the table name.
func (WithdrawalModel) TableName() string { return "withdrawal_requests" }

// PayoutRepositoryImpl implements payout.Repository using GORM.
type PayoutRepositoryImpl struct {
	db *gorm.DB
}

// NewPayoutRepository creates a new PayoutRepositoryImpl.
func NewPayoutRepository(db *gorm.DB) *PayoutRepositoryImpl {
	return &PayoutRepositoryImpl{db: db}
}

// FindProfile returns the provider's profile, or nil when none exists.
func (r *PayoutRepositoryImpl) FindProfile(ctx context.Context, providerID uuid.UUID) (*payoutDomain.ProviderProfile, error) {
	var models []ProviderProfileModel
	if err := r.db.WithContext(ctx).Where("provider_id = ?", providerID).Limit(1).Find(&models).Error; err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	m := models[0]
	return &payoutDomain.ProviderProfile{
		ProviderID:     m.ProviderID,
		CommissionRate: m.CommissionRate,
		Bank: payoutDomain.BankDetails{
			BankName:      m.BankName,
			AccountHolder: m.AccountHolder,
			IBAN:          m.IBAN,
			AccountNumber: m.AccountNumber,
		},
		UpdatedAt: m.UpdatedAt,
	}, nil
}

// UpsertProfile inserts or replaces a provider profile.
func (r *PayoutRepositoryImpl) UpsertProfile(ctx context.Context, p *payoutDomain.ProviderProfile) error {
	model := ProviderProfileModel{
		ProviderID:     p.ProviderID,
		CommissionRate: p.CommissionRate,
		BankName:       p.Bank.BankName,
		AccountHolder:  p.Bank.AccountHolder,
		IBAN:           p.Bank.IBAN,
		AccountNumber:  p.Bank.AccountNumber,
		UpdatedAt:      p.UpdatedAt,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"commission_rate", "bank_name", "account_holder", "iban", "account_number", "updated_at"}),
		}).
		Create(&model).Error
}

// SaveRequest persists a new withdrawal request.
func (r *PayoutRepositoryImpl) SaveRequest(ctx context.Context, w *payoutDomain.WithdrawalRequest) error {
	model := toWithdrawalModel(w)
	return translate(r.db.WithContext(ctx).Create(&model).Error, "WithdrawalRequest", w.ID().String())
}

// FindRequest retrieves a withdrawal request by ID.
func (r *PayoutRepositoryImpl) FindRequest(ctx context.Context, id uuid.UUID) (*payoutDomain.WithdrawalRequest, error) {
	return r.findRequest(r.db.WithContext(ctx), id)
}

// FindRequestForUpdate retrieves a withdrawal request and locks its row.
func (r *PayoutRepositoryImpl) FindRequestForUpdate(ctx context.Context, id uuid.UUID) (*payoutDomain.WithdrawalRequest, error) {
	return r.findRequest(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *PayoutRepositoryImpl) findRequest(q *gorm.DB, id uuid.UUID) (*payoutDomain.WithdrawalRequest, error) {
	var model WithdrawalModel
	if err := q.Where("id = ?", id).First(&model).Error; err != nil {
		return nil, translate(err, "WithdrawalRequest", id.String())
	}
	return toWithdrawalDomain(&model), nil
}

// UpdateRequest persists a reviewed request with optimistic locking.
func (r *PayoutRepositoryImpl) UpdateRequest(ctx context.Context, w *payoutDomain.WithdrawalRequest) error {
	model := toWithdrawalModel(w)
	result := r.db.WithContext(ctx).
		Model(&WithdrawalModel{}).
		Where("id = ? AND version = ?", model.ID, w.Version()-1).
		Select("status", "review_note", "rejection_reason", "transaction_reference", "reviewed_by",
			"approved_at", "processed_at", "completed_at", "rejected_at", "version", "updated_at").
		Updates(&model)
	if result.Error != nil {
		return translate(result.Error, "WithdrawalRequest", w.ID().String())
	}
	if result.RowsAffected == 0 {
		return domain.NewConflictError("withdrawal request was modified by another transaction")
	}
	return nil
}

// SumReserved totals the amounts of requests that still hold payable balance.
func (r *PayoutRepositoryImpl) SumReserved(ctx context.Context, providerID uuid.UUID) (decimal.Decimal, error) {
	var row struct{ Total decimal.Decimal }
	err := r.db.WithContext(ctx).
		Model(&WithdrawalModel{}).
		Where("provider_id = ? AND status IN ?", providerID, reservingStatuses()).
		Select("COALESCE(SUM(amount), 0) AS total").
		Scan(&row).Error
	if err != nil {
		return decimal.Zero, err
	}
	return row.Total, nil
}

// List returns withdrawal requests, newest first.
func (r *PayoutRepositoryImpl) List(ctx context.Context, f payoutDomain.ListFilter) ([]*payoutDomain.WithdrawalRequest, int64, error) {
	q := r.db.WithContext(ctx).Model(&WithdrawalModel{})
	if f.ProviderID != nil {
		q = q.Where("provider_id = ?", *f.ProviderID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset, limit := pageOffset(f.Page, f.Limit)
	var models []WithdrawalModel
	if err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&models).Error; err != nil {
		return nil, 0, err
	}

	out := make([]*payoutDomain.WithdrawalRequest, len(models))
	for i := range models {
		out[i] = toWithdrawalDomain(&models[i])
	}
	return out, total, nil
}

func reservingStatuses() []string {
	out := make([]string, len(payoutDomain.ReservingStatuses))
	for i, s := range payoutDomain.ReservingStatuses {
		out[i] = string(s)
	}
	return out
}

func toWithdrawalModel(w *payoutDomain.WithdrawalRequest) WithdrawalModel {
	s := w.Snapshot()
	return WithdrawalModel{
		ID:                   s.ID,
		ProviderID:           s.ProviderID,
		Amount:               s.Amount,
		CommissionAmount:     s.CommissionAmount,
		NetAmount:            s.NetAmount,
		Currency:             s.Currency,
		Status:               string(s.Status),
		BankName:             s.Bank.BankName,
		AccountHolder:        s.Bank.AccountHolder,
		IBAN:                 s.Bank.IBAN,
		AccountNumber:        s.Bank.AccountNumber,
		ReviewNote:           s.ReviewNote,
		RejectionReason:      s.RejectionReason,
		TransactionReference: s.TransactionReference,
		ReviewedBy:           s.ReviewedBy,
		ApprovedAt:           s.ApprovedAt,
		ProcessedAt:          s.ProcessedAt,
		CompletedAt:          s.CompletedAt,
		RejectedAt:           s.RejectedAt,
		Version:              s.Version,
		CreatedAt:            s.CreatedAt,
		UpdatedAt:            s.UpdatedAt,
	}
}

func toWithdrawalDomain(m *WithdrawalModel) *payoutDomain.WithdrawalRequest {
	return payoutDomain.Reconstitute(payoutDomain.Snapshot{
		ID:               m.ID,
		ProviderID:       m.ProviderID,
		Amount:           m.Amount,
		CommissionAmount: m.CommissionAmount,
		NetAmount:        m.NetAmount,
		Currency:         m.Currency,
		Status:           payoutDomain.Status(m.Status),
		Bank: payoutDomain.BankDetails{
			BankName:      m.BankName,
			AccountHolder: m.AccountHolder,
			IBAN:          m.IBAN,
			AccountNumber: m.AccountNumber,
		},
		ReviewNote:           m.ReviewNote,
		RejectionReason:      m.RejectionReason,
		TransactionReference: m.TransactionReference,
		ReviewedBy:           m.ReviewedBy,
		ApprovedAt:           m.ApprovedAt,
		ProcessedAt:          m.ProcessedAt,
		CompletedAt:          m.CompletedAt,
		RejectedAt:           m.RejectedAt,
		Version:              m.Version,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	})
}

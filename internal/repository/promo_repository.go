package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	promoDomain "github.com/khidma/service-settlement/internal/domain/promo"
	"github.com/khidma/service-settlement/pkg/domain"
)

// PromoModel is the GORM model for the promo_codes table.
type PromoModel struct {
	ID                   uuid.UUID        `gorm:"type:uuid;primaryKey"`
	Code                 string           `gorm:"type:varchar(50);uniqueIndex;not null"`
	DiscountType         string           `gorm:"type:varchar(20);not null"`
	DiscountValue        decimal.Decimal  `gorm:"type:numeric(14,2);not null;default:0"`
	MaxDiscountAmount    *decimal.Decimal `gorm:"type:numeric(14,2)"`
	FreeServiceID        string           `gorm:"type:varchar(64)"`
	FreeServicePrice     decimal.Decimal  `gorm:"type:numeric(14,2);not null;default:0"`
	MinOrderValue        decimal.Decimal  `gorm:"type:numeric(14,2);not null;default:0"`
	ValidFrom            time.Time        `gorm:"type:timestamptz;not null"`
	ValidUntil           time.Time        `gorm:"type:timestamptz;not null"`
	UsageLimit           *int             `gorm:"type:integer"`
	UsageLimitPerUser    int              `gorm:"not null;default:1"`
	UsedCount            int              `gorm:"not null;default:0"`
	IsActive             bool             `gorm:"not null;default:true"`
	ApplicableServiceIDs pq.StringArray   `gorm:"type:text[];not null;default:'{}'"`
	OwnerID              *uuid.UUID       `gorm:"type:uuid;index"`
	CreatedBy            uuid.UUID        `gorm:"type:uuid;not null"`
	Version              int64            `gorm:"not null;default:1"`
	CreatedAt            time.Time        `gorm:"type:timestamptz;not null"`
	UpdatedAt            time.Time        `gorm:"type:timestamptz;not null"`
}

// TableName sets the table name.
func (PromoModel) TableName() string { return "promo_codes" }

// PromoUsageModel is the GORM model for the promo_code_usages table.
type PromoUsageModel struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey"`
	PromoCodeID    uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_promo_usage_booking;index:idx_promo_usage_user"`
	UserID         uuid.UUID       `gorm:"type:uuid;not null;index:idx_promo_usage_user"`
	BookingID      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_promo_usage_booking"`
	DiscountAmount decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	UsedAt         time.Time       `gorm:"type:timestamptz;not null"`
}

// TableName sets the table name.
func (PromoUsageModel) TableName() string { return "promo_code_usages" }

// GormPromoRepository implements promo.Repository using GORM.
type GormPromoRepository struct {
	db *gorm.DB
}

// NewGormPromoRepository creates a new GormPromoRepository.
func NewGormPromoRepository(db *gorm.DB) *GormPromoRepository {
	return &GormPromoRepository{db: db}
}

// Save persists a new promo code.
func (r *GormPromoRepository) Save(ctx context.Context, p *promoDomain.PromoCode) error {
	model := toPromoModel(p)
	return translate(r.db.WithContext(ctx).Create(&model).Error, "PromoCode", p.Code())
}

// Update persists changes with optimistic locking.
func (r *GormPromoRepository) Update(ctx context.Context, p *promoDomain.PromoCode) error {
	model := toPromoModel(p)
	result := r.db.WithContext(ctx).
		Model(&PromoModel{}).
		Where("id = ? AND version = ?", model.ID, p.Version()-1).
		Select("*").Omit("id", "code", "used_count", "created_by", "created_at").
		Updates(&model)
	if result.Error != nil {
		return translate(result.Error, "PromoCode", p.Code())
	}
	if result.RowsAffected == 0 {
		return domain.NewConflictError("promo code was modified by another transaction")
	}
	return nil
}

// FindByID returns a promo code by ID.
func (r *GormPromoRepository) FindByID(ctx context.Context, id uuid.UUID) (*promoDomain.PromoCode, error) {
	var model PromoModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		return nil, translate(err, "PromoCode", id.String())
	}
	return toPromoDomain(&model), nil
}

// FindByCode returns a promo code by its normalized code.
func (r *GormPromoRepository) FindByCode(ctx context.Context, code string) (*promoDomain.PromoCode, error) {
	return r.findByCode(ctx, r.db.WithContext(ctx), code)
}

// FindByCodeForUpdate returns a promo code and holds a row lock on it.
func (r *GormPromoRepository) FindByCodeForUpdate(ctx context.Context, code string) (*promoDomain.PromoCode, error) {
	return r.findByCode(ctx, r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), code)
}

func (r *GormPromoRepository) findByCode(_ context.Context, q *gorm.DB, code string) (*promoDomain.PromoCode, error) {
	code = promoDomain.NormalizeCode(code)
	var model PromoModel
	if err := q.Where("code = ?", code).First(&model).Error; err != nil {
		return nil, translate(err, "PromoCode", code)
	}
	return toPromoDomain(&model), nil
}

// List returns promo codes, newest first.
func (r *GormPromoRepository) List(ctx context.Context, f promoDomain.ListFilter) ([]*promoDomain.PromoCode, int64, error) {
	q := r.db.WithContext(ctx).Model(&PromoModel{})
	if f.OwnerID != nil {
		q = q.Where("owner_id = ?", *f.OwnerID)
	}
	if f.ActiveOnly {
		now := time.Now().UTC()
		q = q.Where("is_active = ? AND valid_from <= ? AND valid_until >= ?", true, now, now).
			Where("usage_limit IS NULL OR used_count < usage_limit")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset, limit := pageOffset(f.Page, f.Limit)
	var models []PromoModel
	if err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&models).Error; err != nil {
		return nil, 0, err
	}

	promos := make([]*promoDomain.PromoCode, len(models))
	for i := range models {
		promos[i] = toPromoDomain(&models[i])
	}
	return promos, total, nil
}

// IncrementUsedCount bumps used_count only while capacity remains.
func (r *GormPromoRepository) IncrementUsedCount(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&PromoModel{}).
		Where("id = ? AND (usage_limit IS NULL OR used_count < usage_limit)", id).
		Updates(map[string]interface{}{
			"used_count": gorm.Expr("used_count + 1"),
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return translate(result.Error, "PromoCode", id.String())
	}
	if result.RowsAffected == 0 {
		return promoDomain.ReasonUsageLimitReached.Err()
	}
	return nil
}

// CountUsage returns how many times userID redeemed promoID.
func (r *GormPromoRepository) CountUsage(ctx context.Context, promoID, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&PromoUsageModel{}).
		Where("promo_code_id = ? AND user_id = ?", promoID, userID).
		Count(&count).Error
	return count, err
}

// SaveUsage persists a promo usage record.
func (r *GormPromoRepository) SaveUsage(ctx context.Context, u *promoDomain.Usage) error {
	model := PromoUsageModel{
		ID:             u.ID,
		PromoCodeID:    u.PromoCodeID,
		UserID:         u.UserID,
		BookingID:      u.BookingID,
		DiscountAmount: u.DiscountAmount,
		UsedAt:         u.UsedAt,
	}
	return translate(r.db.WithContext(ctx).Create(&model).Error, "PromoCodeUsage", u.BookingID.String())
}

// ReleaseUsage deletes the usage row of bookingID and gives the redemption back
// to the code's global counter.
func (r *GormPromoRepository) ReleaseUsage(ctx context.Context, promoID, bookingID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("promo_code_id = ? AND booking_id = ?", promoID, bookingID).
		Delete(&PromoUsageModel{})
	if result.Error != nil {
		return translate(result.Error, "PromoCodeUsage", bookingID.String())
	}
	if result.RowsAffected == 0 {
		return nil
	}

	err := r.db.WithContext(ctx).
		Model(&PromoModel{}).
		Where("id = ? AND used_count > 0", promoID).
		Updates(map[string]interface{}{
			"used_count": gorm.Expr("used_count - 1"),
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now().UTC(),
		}).Error
	return translate(err, "PromoCode", promoID.String())
}

func toPromoModel(p *promoDomain.PromoCode) PromoModel {
	s := p.Snapshot()
	services := pq.StringArray(s.ApplicableServiceIDs)
	if services == nil {
		services = pq.StringArray{}
	}
	return PromoModel{
		ID:                   s.ID,
		Code:                 s.Code,
		DiscountType:         string(s.Discount.Type),
		DiscountValue:        s.Discount.Value,
		MaxDiscountAmount:    s.Discount.MaxDiscountAmount,
		FreeServiceID:        s.Discount.FreeServiceID,
		FreeServicePrice:     s.Discount.FreeServicePrice,
		MinOrderValue:        s.MinOrderValue,
		ValidFrom:            s.ValidFrom,
		ValidUntil:           s.ValidUntil,
		UsageLimit:           s.UsageLimit,
		UsageLimitPerUser:    s.UsageLimitPerUser,
		UsedCount:            s.UsedCount,
		IsActive:             s.IsActive,
		ApplicableServiceIDs: services,
		OwnerID:              s.OwnerID,
		CreatedBy:            s.CreatedBy,
		Version:              s.Version,
		CreatedAt:            s.CreatedAt,
		UpdatedAt:            s.UpdatedAt,
	}
}

func toPromoDomain(m *PromoModel) *promoDomain.PromoCode {
	return promoDomain.Reconstruct(promoDomain.Snapshot{
		ID:   m.ID,
		Code: strings.ToUpper(m.Code),
		Discount: promoDomain.Discount{
			Type:              promoDomain.DiscountType(m.DiscountType),
			Value:             m.DiscountValue,
			MaxDiscountAmount: m.MaxDiscountAmount,
			FreeServiceID:     m.FreeServiceID,
			FreeServicePrice:  m.FreeServicePrice,
		},
		MinOrderValue:        m.MinOrderValue,
		ValidFrom:            m.ValidFrom,
		ValidUntil:           m.ValidUntil,
		UsageLimit:           m.UsageLimit,
		UsageLimitPerUser:    m.UsageLimitPerUser,
		UsedCount:            m.UsedCount,
		IsActive:             m.IsActive,
		ApplicableServiceIDs: []string(m.ApplicableServiceIDs),
		OwnerID:              m.OwnerID,
		CreatedBy:            m.CreatedBy,
		Version:              m.Version,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	})
}

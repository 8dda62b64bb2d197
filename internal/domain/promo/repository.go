package promo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Usage records one redemption of a code by a user for a booking.
type Usage struct {
	ID             uuid.UUID
	PromoCodeID    uuid.UUID
	UserID         uuid.UUID
	BookingID      uuid.UUID
	DiscountAmount decimal.Decimal
	UsedAt         time.Time
}

// NewUsage creates a usage row for a redemption.
func NewUsage(promoID, userID, bookingID uuid.UUID, discount decimal.Decimal) *Usage {
	return &Usage{
		ID:             uuid.New(),
		PromoCodeID:    promoID,
		UserID:         userID,
		BookingID:      bookingID,
		DiscountAmount: discount,
		UsedAt:         time.Now().UTC(),
	}
}

// ListFilter narrows ListPromos. A nil OwnerID lists every code.
type ListFilter struct {
	OwnerID    *uuid.UUID
	ActiveOnly bool
	Page       int
	Limit      int
}

// Repository defines persistence operations for promo codes.
type Repository interface {
	Save(ctx context.Context, p *PromoCode) error
	// Update persists p with optimistic locking on its version.
	Update(ctx context.Context, p *PromoCode) error
	FindByID(ctx context.Context, id uuid.UUID) (*PromoCode, error)
	FindByCode(ctx context.Context, code string) (*PromoCode, error)
	// FindByCodeForUpdate locks the row until the enclosing transaction ends.
	FindByCodeForUpdate(ctx context.Context, code string) (*PromoCode, error)
	List(ctx context.Context, filter ListFilter) ([]*PromoCode, int64, error)

	// IncrementUsedCount bumps used_count only while it is below usage_limit.
	// It returns ErrPromoExhausted when no row qualified.
	IncrementUsedCount(ctx context.Context, id uuid.UUID) error
	CountUsage(ctx context.Context, promoID, userID uuid.UUID) (int64, error)
	SaveUsage(ctx context.Context, u *Usage) error
	// ReleaseUsage removes the redemption made for bookingID and decrements
	// used_count. Releasing a booking without a usage row is a no-op.
	ReleaseUsage(ctx context.Context, promoID, bookingID uuid.UUID) error
}

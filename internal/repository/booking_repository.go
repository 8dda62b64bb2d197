package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	bookingDomain "github.com/khidma/service-settlement/internal/domain/booking"
	"github.com/khidma/service-settlement/pkg/domain"
)

// BookingModel is the GORM persistence model for the bookings table.
type BookingModel struct {
	ID                 uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ClientID           uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProviderID         uuid.UUID       `gorm:"type:uuid;not null;index"`
	ServiceIDs         pq.StringArray  `gorm:"type:text[];not null"`
	Currency           string          `gorm:"type:varchar(3);not null"`
	Status             string          `gorm:"type:varchar(20);not null;default:'pending'"`
	PaymentStatus      string          `gorm:"type:varchar(20);not null;default:'unpaid'"`
	PaymentMethod      string          `gorm:"type:varchar(20)"`
	PaymentReference   string          `gorm:"type:varchar(255)"`
	Subtotal           decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	TaxAmount          decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	DiscountAmount     decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	TotalAmount        decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	CommissionAmount   decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0"`
	CommissionRate     decimal.Decimal `gorm:"type:numeric(5,2);not null;default:0"`
	PaymentDeadline    *time.Time      `gorm:"type:timestamptz;index"`
	PromoCodeID        *uuid.UUID      `gorm:"type:uuid"`
	ProviderAcceptedAt *time.Time      `gorm:"type:timestamptz"`
	CancelReason       string          `gorm:"type:text"`
	CancelledBy        *uuid.UUID      `gorm:"type:uuid"`
	ConfirmedAt        *time.Time      `gorm:"type:timestamptz"`
	CompletedAt        *time.Time      `gorm:"type:timestamptz"`
	CancelledAt        *time.Time      `gorm:"type:timestamptz"`
	Version            int64           `gorm:"not null;default:1"`
	CreatedAt          time.Time       `gorm:"type:timestamptz;not null"`
	UpdatedAt          time.Time       `gorm:"type:timestamptz;not null"`
}

// TableName specifies the table name for GORM.
func (BookingModel) TableName() string {
	return "bookings"
}

// BookingRepositoryImpl is the GORM-based implementation of booking.Repository.
type BookingRepositoryImpl struct {
	db *gorm.DB
}

// NewBookingRepository creates a new GORM-based booking repository.
func NewBookingRepository(db *gorm.DB) *BookingRepositoryImpl {
	return &BookingRepositoryImpl{db: db}
}

// Save persists a new booking.
func (r *BookingRepositoryImpl) Save(ctx context.Context, b *bookingDomain.Booking) error {
	return translate(r.db.WithContext(ctx).Create(toBookingModel(b)).Error, "Booking", b.ID().String())
}

// FindByID retrieves a booking by its unique ID.
func (r *BookingRepositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*bookingDomain.Booking, error) {
	return r.find(r.db.WithContext(ctx), id)
}

// FindByIDForUpdate retrieves a booking and locks its row.
func (r *BookingRepositoryImpl) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*bookingDomain.Booking, error) {
	return r.find(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *BookingRepositoryImpl) find(q *gorm.DB, id uuid.UUID) (*bookingDomain.Booking, error) {
	var model BookingModel
	if err := q.Where("id = ?", id).First(&model).Error; err != nil {
		return nil, translate(err, "Booking", id.String())
	}
	return toBookingDomain(&model), nil
}

// Update persists changes to an existing booking with optimistic locking.
func (r *BookingRepositoryImpl) Update(ctx context.Context, b *bookingDomain.Booking) error {
	return r.update(ctx, b, r.db.WithContext(ctx).Where("id = ? AND version = ?", b.ID(), b.Version()-1))
}

// ConfirmPayment persists a paid booking only if the stored row is still
// pending and unpaid.
func (r *BookingRepositoryImpl) ConfirmPayment(ctx context.Context, b *bookingDomain.Booking) error {
	return r.update(ctx, b, r.db.WithContext(ctx).
		Where("id = ? AND version = ?", b.ID(), b.Version()-1).
		Where("status = ? AND payment_status = ?", bookingDomain.StatusPending, bookingDomain.PaymentUnpaid))
}

func (r *BookingRepositoryImpl) update(_ context.Context, b *bookingDomain.Booking, q *gorm.DB) error {
	model := toBookingModel(b)
	result := q.Model(&BookingModel{}).
		Select("*").Omit("id", "client_id", "provider_id", "created_at").
		Updates(model)
	if result.Error != nil {
		return translate(result.Error, "Booking", b.ID().String())
	}
	if result.RowsAffected == 0 {
		return domain.NewConflictError("booking was modified by another transaction")
	}
	return nil
}

// ExpireIfDue cancels an overdue unpaid booking with a single conditional update.
func (r *BookingRepositoryImpl) ExpireIfDue(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	now = now.UTC()
	result := r.db.WithContext(ctx).
		Model(&BookingModel{}).
		Where("id = ? AND status = ? AND payment_status = ? AND payment_deadline < ?",
			id, bookingDomain.StatusPending, bookingDomain.PaymentUnpaid, now).
		Updates(map[string]interface{}{
			"status":           bookingDomain.StatusCancelled,
			"cancel_reason":    bookingDomain.ReasonPaymentTimeout,
			"cancelled_at":     now,
			"payment_deadline": nil,
			"version":          gorm.Expr("version + 1"),
			"updated_at":       now,
		})
	if result.Error != nil {
		return false, translate(result.Error, "Booking", id.String())
	}
	return result.RowsAffected == 1, nil
}

// FindExpiredIDs returns overdue pending bookings, oldest deadline first.
func (r *BookingRepositoryImpl) FindExpiredIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&BookingModel{}).
		Where("status = ? AND payment_status = ? AND payment_deadline < ?",
			bookingDomain.StatusPending, bookingDomain.PaymentUnpaid, now.UTC()).
		Order("payment_deadline ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// List retrieves bookings with pagination, newest first.
func (r *BookingRepositoryImpl) List(ctx context.Context, f bookingDomain.ListFilter) ([]*bookingDomain.Booking, int64, error) {
	q := r.db.WithContext(ctx).Model(&BookingModel{})
	if f.ClientID != nil {
		q = q.Where("client_id = ?", *f.ClientID)
	}
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
	var models []BookingModel
	if err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&models).Error; err != nil {
		return nil, 0, err
	}

	bookings := make([]*bookingDomain.Booking, len(models))
	for i := range models {
		bookings[i] = toBookingDomain(&models[i])
	}
	return bookings, total, nil
}

// toBookingDomain maps a BookingModel to the domain Booking aggregate.
func toBookingDomain(m *BookingModel) *bookingDomain.Booking {
	return bookingDomain.Reconstitute(bookingDomain.Snapshot{
		ID:                 m.ID,
		ClientID:           m.ClientID,
		ProviderID:         m.ProviderID,
		ServiceIDs:         []string(m.ServiceIDs),
		Currency:           m.Currency,
		Status:             bookingDomain.Status(m.Status),
		PaymentStatus:      bookingDomain.PaymentStatus(m.PaymentStatus),
		PaymentMethod:      bookingDomain.PaymentMethod(m.PaymentMethod),
		PaymentReference:   m.PaymentReference,
		Subtotal:           m.Subtotal,
		TaxAmount:          m.TaxAmount,
		DiscountAmount:     m.DiscountAmount,
		TotalAmount:        m.TotalAmount,
		CommissionAmount:   m.CommissionAmount,
		CommissionRate:     m.CommissionRate,
		PaymentDeadline:    m.PaymentDeadline,
		PromoCodeID:        m.PromoCodeID,
		ProviderAcceptedAt: m.ProviderAcceptedAt,
		CancelReason:       m.CancelReason,
		CancelledBy:        m.CancelledBy,
		ConfirmedAt:        m.ConfirmedAt,
		CompletedAt:        m.CompletedAt,
		CancelledAt:        m.CancelledAt,
		Version:            m.Version,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	})
}

// toBookingModel maps a domain Booking aggregate to a BookingModel for persistence.
func toBookingModel(b *bookingDomain.Booking) *BookingModel {
	s := b.Snapshot()
	return &BookingModel{
		ID:                 s.ID,
		ClientID:           s.ClientID,
		ProviderID:         s.ProviderID,
		ServiceIDs:         pq.StringArray(s.ServiceIDs),
		Currency:           s.Currency,
		Status:             string(s.Status),
		PaymentStatus:      string(s.PaymentStatus),
		PaymentMethod:      string(s.PaymentMethod),
		PaymentReference:   s.PaymentReference,
		Subtotal:           s.Subtotal,
		TaxAmount:          s.TaxAmount,
		DiscountAmount:     s.DiscountAmount,
		TotalAmount:        s.TotalAmount,
		CommissionAmount:   s.CommissionAmount,
		CommissionRate:     s.CommissionRate,
		PaymentDeadline:    s.PaymentDeadline,
		PromoCodeID:        s.PromoCodeID,
		ProviderAcceptedAt: s.ProviderAcceptedAt,
		CancelReason:       s.CancelReason,
		CancelledBy:        s.CancelledBy,
		ConfirmedAt:        s.ConfirmedAt,
		CompletedAt:        s.CompletedAt,
		CancelledAt:        s.CancelledAt,
		Version:            s.Version,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
}

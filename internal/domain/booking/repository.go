package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ListFilter narrows List. Zero values are ignored.
type ListFilter struct {
	ClientID   *uuid.UUID
	ProviderID *uuid.UUID
	Status     Status
	Page       int
	Limit      int
}

// Repository defines the persistence contract for Booking aggregates.
type Repository interface {
	Save(ctx context.Context, b *Booking) error
	FindByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	// FindByIDForUpdate locks the row until the enclosing transaction ends.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Booking, error)
	// Update persists b with optimistic locking on its previous version.
	Update(ctx context.Context, b *Booking) error
	// ConfirmPayment persists a freshly paid booking, conditional on the stored
	// row still being pending and unpaid.
	ConfirmPayment(ctx context.Context, b *Booking) error
	// ExpireIfDue cancels the booking only while it is pending, unpaid and past
	// its deadline. It reports whether a row changed.
	ExpireIfDue(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	// FindExpiredIDs returns up to limit overdue pending bookings.
	FindExpiredIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	List(ctx context.Context, filter ListFilter) ([]*Booking, int64, error)
}

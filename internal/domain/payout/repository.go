package payout

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ListFilter narrows List. A nil ProviderID lists every provider.
type ListFilter struct {
	ProviderID *uuid.UUID
	Status     Status
	Page       int
	Limit      int
}

// Repository persists withdrawal requests and provider profiles.
type Repository interface {
	FindProfile(ctx context.Context, providerID uuid.UUID) (*ProviderProfile, error)
	UpsertProfile(ctx context.Context, p *ProviderProfile) error

	SaveRequest(ctx context.Context, w *WithdrawalRequest) error
	FindRequest(ctx context.Context, id uuid.UUID) (*WithdrawalRequest, error)
	// FindRequestForUpdate locks the row until the enclosing transaction ends.
	FindRequestForUpdate(ctx context.Context, id uuid.UUID) (*WithdrawalRequest, error)
	// UpdateRequest persists w with optimistic locking on its previous version.
	UpdateRequest(ctx context.Context, w *WithdrawalRequest) error
	// SumReserved totals pending, approved and processing requests of a provider.
	SumReserved(ctx context.Context, providerID uuid.UUID) (decimal.Decimal, error)
	List(ctx context.Context, filter ListFilter) ([]*WithdrawalRequest, int64, error)
}

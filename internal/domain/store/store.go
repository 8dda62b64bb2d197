// Package store groups the repositories that take part in one atomic unit.
package store

import (
	"context"

	"github.com/khidma/service-settlement/internal/domain/booking"
	"github.com/khidma/service-settlement/internal/domain/payout"
	"github.com/khidma/service-settlement/internal/domain/promo"
	"github.com/khidma/service-settlement/internal/domain/wallet"
)

// Repositories is a set of repositories sharing one transaction (or none).
type Repositories struct {
	Promos   promo.Repository
	Bookings booking.Repository
	Ledger   wallet.Repository
	Payouts  payout.Repository
}

// UnitOfWork runs multi-aggregate mutations atomically.
type UnitOfWork interface {
	// Do runs fn in a single transaction, committing when fn returns nil.
	Do(ctx context.Context, fn func(r Repositories) error) error
	// Repos returns non-transactional repositories for reads.
	Repos() Repositories
}

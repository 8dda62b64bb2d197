package wallet

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists ledger rows. Implementations are bound to a database
// transaction; LockAccount holds until that transaction ends.
type Repository interface {
	// LockAccount creates the account anchor if missing and locks it.
	LockAccount(ctx context.Context, ownerID uuid.UUID, account Account) error
	// Latest returns the highest-sequence row, or nil for an empty account.
	Latest(ctx context.Context, ownerID uuid.UUID, account Account) (*Transaction, error)
	// Append inserts tx. A sequence collision is a persistence conflict.
	Append(ctx context.Context, tx *Transaction) error
	// List returns rows newest first.
	List(ctx context.Context, ownerID uuid.UUID, account Account, page, limit int) ([]*Transaction, int64, error)
	// ListAll returns every row in sequence order.
	ListAll(ctx context.Context, ownerID uuid.UUID, account Account) ([]*Transaction, error)
}

package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/khidma/service-settlement/pkg/database"
	"github.com/khidma/service-settlement/pkg/domain"
)

// translate maps driver errors onto the domain taxonomy. Serialization
// failures and deadlocks become persistence conflicts so the caller can retry
// the whole unit.
func translate(err error, entity, id string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domain.NewNotFoundError(entity, id)
	case database.IsRetryable(err):
		return fmt.Errorf("%w: %v", domain.ErrPersistenceConflict, err)
	case database.IsUniqueViolation(err, ""):
		return &domain.DomainError{Err: domain.ErrConflict, Message: fmt.Sprintf("%s %s already exists", entity, id)}
	default:
		return err
	}
}

func pageOffset(page, limit int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if page <= 0 {
		page = 1
	}
	return (page - 1) * limit, limit
}

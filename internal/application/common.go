package application

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/khidma/service-settlement/internal/adapter"
	"github.com/khidma/service-settlement/internal/domain/store"
	"github.com/khidma/service-settlement/internal/metrics"
	"github.com/khidma/service-settlement/pkg/auth"
	"github.com/khidma/service-settlement/pkg/domain"
)

// Actor is the authenticated caller of a use case.
type Actor struct {
	UserID uuid.UUID
	Role   auth.Role
}

// IsAdmin reports whether the actor has the admin role.
func (a Actor) IsAdmin() bool { return a.Role == auth.RoleAdmin }

// SystemActor is used for work triggered by events and schedulers.
var SystemActor = Actor{Role: auth.RoleAdmin}

// runUnit executes fn in one unit of work and retries the whole unit once when
// it fails with a persistence conflict.
func runUnit(ctx context.Context, uow store.UnitOfWork, logger *zap.Logger, op string, fn func(r store.Repositories) error) error {
	err := uow.Do(ctx, fn)
	if err == nil || !errors.Is(err, domain.ErrPersistenceConflict) {
		return err
	}

	logger.Warn("persistence conflict, retrying unit of work", zap.String("operation", op), zap.Error(err))
	metrics.PersistenceRetries.WithLabelValues(op).Inc()
	return uow.Do(ctx, fn)
}

// notifier wraps adapter.Notifier so delivery failures are logged and never
// reach the caller.
type notifier struct {
	inner  adapter.Notifier
	logger *zap.Logger
}

func (n notifier) send(ctx context.Context, userID uuid.UUID, event string, payload map[string]any) {
	if n.inner == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := n.inner.Notify(ctx, userID, event, payload); err != nil {
		n.logger.Warn("failed to publish notification",
			zap.String("event", event),
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
	}
}

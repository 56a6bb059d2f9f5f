package ports

import (
	"context"

	"github.com/99minutos/identity-api/internal/core/domain"
)

// AuditRepository persists audit events. Implementations must acquire their
// own storage resources and never join the caller's unit of work.
type AuditRepository interface {
	Insert(ctx context.Context, event *domain.AuditEvent) error
}

// AuditPublisher hands an event to the audit sink without waiting for it to
// be written. Publish must not block and never reports failure.
type AuditPublisher interface {
	Publish(userID string, eventType domain.EventType)
}

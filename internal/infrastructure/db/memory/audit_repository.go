package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/99minutos/identity-api/internal/core/domain"
	"github.com/99minutos/identity-api/internal/core/ports"
)

// AuditRepository keeps audit events in memory.
type AuditRepository struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

var _ ports.AuditRepository = (*AuditRepository)(nil)

func (r *AuditRepository) Insert(_ context.Context, event *domain.AuditEvent) error {
	e := *event
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.CreatedAt = time.Now().UTC()

	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

// Events returns a snapshot of everything written so far.
func (r *AuditRepository) Events() []domain.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AuditEvent, len(r.events))
	copy(out, r.events)
	return out
}

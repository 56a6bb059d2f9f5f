package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/identity-api/internal/core/domain"
	"github.com/99minutos/identity-api/internal/core/ports"
)

const defaultAuditWriteTimeout = 5 * time.Second

// AuditService writes audit events and contains every failure it meets.
type AuditService struct {
	repo    ports.AuditRepository
	timeout time.Duration
	log     zerolog.Logger
}

func NewAuditService(repo ports.AuditRepository, timeout time.Duration, log zerolog.Logger) *AuditService {
	if timeout <= 0 {
		timeout = defaultAuditWriteTimeout
	}
	return &AuditService{repo: repo, timeout: timeout, log: log}
}

// LogEvent persists one event and reports whether it was written. It runs on
// its own context, so a finished or cancelled request cannot abort the write,
// and it never returns or panics on failure.
func (s *AuditService) LogEvent(userID string, eventType domain.EventType) (ok bool) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			s.log.Error().
				Str("user_id", userID).
				Str("event_type", string(eventType)).
				Interface("panic", r).
				Msg("audit write panicked")
			ok = false
		}
	}()

	event := &domain.AuditEvent{UserID: userID, EventType: eventType}
	if err := s.repo.Insert(ctx, event); err != nil {
		s.log.Error().Err(fmt.Errorf("log event: %w", err)).
			Str("user_id", userID).
			Str("event_type", string(eventType)).
			Msg("audit write failed")
		return false
	}

	s.log.Debug().
		Str("user_id", userID).
		Str("event_type", string(eventType)).
		Msg("audit event written")
	return true
}

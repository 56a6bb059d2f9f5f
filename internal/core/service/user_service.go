package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/99minutos/identity-api/internal/core/domain"
	"github.com/99minutos/identity-api/internal/core/ports"
)

type userService struct {
	users ports.UserDirectory
	audit ports.AuditPublisher
	log   zerolog.Logger
}

// NewUserService returns a UserService implementation. Every operation
// re-checks that the actor is an admin.
func NewUserService(users ports.UserDirectory, audit ports.AuditPublisher, log zerolog.Logger) ports.UserService {
	return &userService{users: users, audit: audit, log: log}
}

func (s *userService) ListUsers(ctx context.Context) ([]*domain.User, error) {
	users, err := s.users.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	for _, u := range users {
		u.PasswordHash = ""
	}
	return users, nil
}

func (s *userService) ChangeRole(ctx context.Context, actor *domain.User, userID string, role domain.Role) (*domain.User, error) {
	if err := Authorize(actor, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, domain.ErrInvalidRole
	}
	if actor.ID == userID && role != actor.Role {
		return nil, domain.ErrSelfModification
	}

	return s.mutate(ctx, "change role", userID, domain.EventUserRoleChanged, func(u *domain.User) bool {
		if u.Role == role {
			return false
		}
		u.Role = role
		return true
	})
}

func (s *userService) SetActive(ctx context.Context, actor *domain.User, userID string, active bool) (*domain.User, error) {
	if err := Authorize(actor, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if actor.ID == userID && !active {
		return nil, domain.ErrSelfModification
	}

	return s.mutate(ctx, "set active", userID, domain.EventUserStatusChanged, func(u *domain.User) bool {
		if u.IsActive == active {
			return false
		}
		u.IsActive = active
		return true
	})
}

// mutate loads userID, applies change and persists it when change reports a
// difference. Unchanged records are returned without a write or audit event.
func (s *userService) mutate(ctx context.Context, op, userID string, event domain.EventType, change func(*domain.User) bool) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !change(user) {
		user.PasswordHash = ""
		return user, nil
	}

	updated, err := s.users.Update(ctx, user)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.audit.Publish(updated.ID, event)
	s.log.Info().
		Str("user_id", updated.ID).
		Str("role", string(updated.Role)).
		Bool("is_active", updated.IsActive).
		Msg("user updated")

	updated.PasswordHash = ""
	return updated, nil
}

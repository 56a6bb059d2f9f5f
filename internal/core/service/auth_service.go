package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/99minutos/identity-api/internal/core/domain"
	"github.com/99minutos/identity-api/internal/core/ports"
)

// Authorizer resolves the principal behind a bearer token and applies an
// access rule to it.
type Authorizer func(ctx context.Context, token string) (*domain.User, error)

// AuthService implements registration, login and principal resolution.
type AuthService struct {
	users    ports.UserDirectory
	hasher   ports.PasswordHasher
	tokens   ports.TokenCodec
	audit    ports.AuditPublisher
	throttle ports.LoginThrottle
	log      zerolog.Logger

	dummyOnce sync.Once
	dummyHash string
}

// AuthOption customises an AuthService.
type AuthOption func(*AuthService)

// WithLoginThrottle enables per-email limiting of failed logins.
func WithLoginThrottle(t ports.LoginThrottle) AuthOption {
	return func(s *AuthService) { s.throttle = t }
}

func NewAuthService(
	users ports.UserDirectory,
	hasher ports.PasswordHasher,
	tokens ports.TokenCodec,
	audit ports.AuditPublisher,
	log zerolog.Logger,
	opts ...AuthOption,
) *AuthService {
	s := &AuthService{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		audit:  audit,
		log:    log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ ports.AuthService = (*AuthService)(nil)

// Register creates an active account. The password hash is never returned.
func (s *AuthService) Register(ctx context.Context, email, password string, role domain.Role) (*domain.User, error) {
	email = domain.NormalizeEmail(email)
	if role == "" {
		role = domain.RoleUser
	}
	if !role.Valid() {
		return nil, domain.ErrInvalidRole
	}

	_, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, domain.ErrUserExists
	case !errors.Is(err, domain.ErrUserNotFound):
		return nil, fmt.Errorf("register: %w", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	created, err := s.users.Create(ctx, &domain.User{
		Email:    email,
		IsActive: true,
		Role:     role,
	}, hash)
	if err != nil {
		if errors.Is(err, domain.ErrUserExists) {
			return nil, domain.ErrUserExists
		}
		return nil, fmt.Errorf("register: %w", err)
	}

	s.audit.Publish(created.ID, domain.EventUserRegistered)
	s.log.Info().Str("user_id", created.ID).Str("role", string(created.Role)).Msg("user registered")

	created.PasswordHash = ""
	return created, nil
}

// Login verifies credentials and issues an access token. Unknown email,
// wrong password and inactive account all yield domain.ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *domain.User, error) {
	email = domain.NormalizeEmail(email)

	if s.throttle != nil {
		allowed, err := s.throttle.Allow(ctx, email)
		if err != nil {
			s.log.Warn().Err(err).Msg("login throttle unavailable, allowing attempt")
		} else if !allowed {
			return "", nil, domain.ErrTooManyAttempts
		}
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			// Unknown emails pay the same verification cost as known ones.
			s.hasher.Verify(password, s.timingHash())
			s.recordFailure(ctx, email)
			return "", nil, domain.ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("login: %w", err)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		s.recordFailure(ctx, email)
		return "", nil, domain.ErrInvalidCredentials
	}

	if !user.IsActive {
		s.log.Info().Str("user_id", user.ID).Msg("login rejected for inactive account")
		s.recordFailure(ctx, email)
		return "", nil, fmt.Errorf("%w: account inactive", domain.ErrInvalidCredentials)
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return "", nil, fmt.Errorf("login: %w", err)
	}

	if s.throttle != nil {
		if err := s.throttle.Reset(ctx, email); err != nil {
			s.log.Warn().Err(err).Msg("failed to reset login throttle")
		}
	}

	s.audit.Publish(user.ID, domain.EventUserLogin)

	user.PasswordHash = ""
	return token, user, nil
}

func (s *AuthService) timingHash() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash("timing-equalisation")
		if err != nil {
			s.log.Warn().Err(err).Msg("failed to prepare timing hash")
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

func (s *AuthService) recordFailure(ctx context.Context, email string) {
	if s.throttle == nil {
		return
	}
	if err := s.throttle.RecordFailure(ctx, email); err != nil {
		s.log.Warn().Err(err).Msg("failed to record login failure")
	}
}

// ResolveCurrentUser verifies token and loads its subject. A user deleted or
// deactivated after issuance yields domain.ErrUserNotFound.
func (s *AuthService) ResolveCurrentUser(ctx context.Context, token string) (*domain.User, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("resolve current user: %w", err)
	}
	if !user.IsActive {
		return nil, domain.ErrUserNotFound
	}

	user.PasswordHash = ""
	return user, nil
}

// RequireRole returns an Authorizer that resolves the principal and then
// admits it only if it holds one of roles.
func (s *AuthService) RequireRole(roles ...domain.Role) Authorizer {
	return func(ctx context.Context, token string) (*domain.User, error) {
		user, err := s.ResolveCurrentUser(ctx, token)
		if err != nil {
			return nil, err
		}
		if err := Authorize(user, roles...); err != nil {
			return nil, err
		}
		return user, nil
	}
}

// Authenticated returns an Authorizer that admits any active principal.
func (s *AuthService) Authenticated() Authorizer {
	return s.ResolveCurrentUser
}

// Authorize reports domain.ErrForbidden unless user holds one of roles.
func Authorize(user *domain.User, roles ...domain.Role) error {
	if user == nil || !user.HasAnyRole(roles...) {
		return domain.ErrForbidden
	}
	return nil
}

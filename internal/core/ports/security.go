package ports

import (
	"context"
	"time"

	"github.com/99minutos/identity-api/internal/core/domain"
)

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// Claims is the decoded payload of a verified access token.
type Claims struct {
	Subject   string
	Role      domain.Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenCodec issues and verifies stateless bearer tokens.
// Parse failures always wrap domain.ErrInvalidCredentials.
type TokenCodec interface {
	Issue(user *domain.User) (string, error)
	Parse(token string) (*Claims, error)
}

// LoginThrottle counts failed logins per email. Implementations must not
// depend on whether the email belongs to an account.
type LoginThrottle interface {
	Allow(ctx context.Context, email string) (bool, error)
	RecordFailure(ctx context.Context, email string) error
	Reset(ctx context.Context, email string) error
}

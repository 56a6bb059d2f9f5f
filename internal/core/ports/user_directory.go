package ports

import (
	"context"

	"github.com/99minutos/identity-api/internal/core/domain"
)

// UserDirectory is the persistence capability set for user records.
//
// Lookups return domain.ErrUserNotFound when no record matches. Create returns
// domain.ErrUserExists when the email is taken. Transient infrastructure
// failures wrap domain.ErrUnavailable.
type UserDirectory interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// Create persists user with passwordHash atomically and returns the stored
	// record, including server-generated fields.
	Create(ctx context.Context, user *domain.User, passwordHash string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) (*domain.User, error)
	ListAll(ctx context.Context) ([]*domain.User, error)
}

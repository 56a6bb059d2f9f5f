package ports

import (
	"context"

	"github.com/99minutos/identity-api/internal/core/domain"
)

type AuthService interface {
	Register(ctx context.Context, email, password string, role domain.Role) (*domain.User, error)
	Login(ctx context.Context, email, password string) (string, *domain.User, error)
	ResolveCurrentUser(ctx context.Context, token string) (*domain.User, error)
}

// UserService covers the administrative operations on user records.
type UserService interface {
	ListUsers(ctx context.Context) ([]*domain.User, error)
	ChangeRole(ctx context.Context, actor *domain.User, userID string, role domain.Role) (*domain.User, error)
	SetActive(ctx context.Context, actor *domain.User, userID string, active bool) (*domain.User, error)
}

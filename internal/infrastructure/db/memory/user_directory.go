// Package memory provides in-process implementations of the persistence
// ports. They back the STORAGE=memory mode and the service tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/99minutos/identity-api/internal/core/domain"
	"github.com/99minutos/identity-api/internal/core/ports"
)

// UserDirectory is a map keyed by id with a parallel email index.
type UserDirectory struct {
	mu      sync.RWMutex
	byID    map[string]*domain.User
	byEmail map[string]string
	now     func() time.Time
}

func NewUserDirectory() *UserDirectory {
	return &UserDirectory{
		byID:    make(map[string]*domain.User),
		byEmail: make(map[string]string),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

var _ ports.UserDirectory = (*UserDirectory)(nil)

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

func (d *UserDirectory) GetByID(_ context.Context, id string) (*domain.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (d *UserDirectory) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byEmail[domain.NormalizeEmail(email)]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(d.byID[id]), nil
}

// Create stores the record under a single write lock, so it is either fully
// visible or absent.
func (d *UserDirectory) Create(_ context.Context, user *domain.User, passwordHash string) (*domain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	email := domain.NormalizeEmail(user.Email)
	if _, taken := d.byEmail[email]; taken {
		return nil, domain.ErrUserExists
	}

	stored := cloneUser(user)
	stored.Email = email
	stored.PasswordHash = passwordHash
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if _, taken := d.byID[stored.ID]; taken {
		return nil, domain.ErrUserExists
	}
	now := d.now()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	d.byID[stored.ID] = stored
	d.byEmail[email] = stored.ID
	return cloneUser(stored), nil
}

// Update replaces the mutable fields of an existing record. The email and
// password hash are kept from the stored record.
func (d *UserDirectory) Update(_ context.Context, user *domain.User) (*domain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	stored, ok := d.byID[user.ID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	next := cloneUser(stored)
	next.Role = user.Role
	next.IsActive = user.IsActive
	next.UpdatedAt = d.now()

	d.byID[next.ID] = next
	return cloneUser(next), nil
}

// ListAll returns every user ordered by creation time.
func (d *UserDirectory) ListAll(_ context.Context) ([]*domain.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*domain.User, 0, len(d.byID))
	for _, u := range d.byID {
		out = append(out, cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

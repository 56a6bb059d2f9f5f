package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/99minutos/identity-api/internal/core/domain"
)

func TestUserDirectory_CreateAndLookup(t *testing.T) {
	dir := NewUserDirectory()
	ctx := context.Background()

	created, err := dir.Create(ctx, &domain.User{Email: " Alice@Example.com ", Role: domain.RoleUser, IsActive: true}, "hash")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated id")
	}
	if created.CreatedAt.IsZero() {
		t.Fatalf("expected creation timestamp")
	}
	if created.Email != "alice@example.com" {
		t.Fatalf("email = %q, want normalized", created.Email)
	}
	if created.PasswordHash != "hash" {
		t.Fatalf("expected password hash to be stored")
	}

	byEmail, err := dir.GetByEmail(ctx, "ALICE@example.com")
	if err != nil {
		t.Fatalf("GetByEmail returned error: %v", err)
	}
	if byEmail.ID != created.ID {
		t.Fatalf("GetByEmail returned %q, want %q", byEmail.ID, created.ID)
	}

	byID, err := dir.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	byID.Role = domain.RoleAdmin
	again, _ := dir.GetByID(ctx, created.ID)
	if again.Role != domain.RoleUser {
		t.Fatalf("mutating a returned user must not change the stored record")
	}
}

func TestUserDirectory_DuplicateEmail(t *testing.T) {
	dir := NewUserDirectory()
	ctx := context.Background()

	if _, err := dir.Create(ctx, &domain.User{Email: "a@x.com"}, "h"); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if _, err := dir.Create(ctx, &domain.User{Email: "A@X.com"}, "h"); !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
	users, _ := dir.ListAll(ctx)
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
}

func TestUserDirectory_NotFound(t *testing.T) {
	dir := NewUserDirectory()
	ctx := context.Background()

	if _, err := dir.GetByID(ctx, "missing"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := dir.GetByEmail(ctx, "missing@x.com"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := dir.Update(ctx, &domain.User{ID: "missing"}); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUserDirectory_UpdateKeepsCredentials(t *testing.T) {
	dir := NewUserDirectory()
	ctx := context.Background()

	created, _ := dir.Create(ctx, &domain.User{Email: "a@x.com", Role: domain.RoleUser, IsActive: true}, "hash")

	updated, err := dir.Update(ctx, &domain.User{ID: created.ID, Email: "other@x.com", Role: domain.RoleAdmin, IsActive: false})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if updated.Role != domain.RoleAdmin || updated.IsActive {
		t.Fatalf("unexpected update result: %+v", updated)
	}
	if updated.Email != "a@x.com" || updated.PasswordHash != "hash" {
		t.Fatalf("email and hash must be preserved: %+v", updated)
	}
}

func TestUserDirectory_ConcurrentCreateSameEmail(t *testing.T) {
	dir := NewUserDirectory()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := dir.Create(ctx, &domain.User{Email: "race@x.com"}, "h"); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if success != 1 {
		t.Fatalf("expected exactly one successful create, got %d", success)
	}
}

func TestAuditRepository_Insert(t *testing.T) {
	repo := NewAuditRepository()

	if err := repo.Insert(context.Background(), &domain.AuditEvent{UserID: "u-1", EventType: domain.EventUserLogin}); err != nil {
		t.Fatalf("Insert returned error: %v", err)
	}
	events := repo.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].ID == "" || events[0].CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp to be assigned: %+v", events[0])
	}
}

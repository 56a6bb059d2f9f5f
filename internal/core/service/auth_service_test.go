package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/identity-api/internal/core/domain"
	"github.com/99minutos/identity-api/internal/core/ports"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type stubDirectory struct {
	mu        sync.Mutex
	users     map[string]*domain.User
	nextID    int
	createErr error
	getErr    error
	creates   int
}

func newStubDirectory() *stubDirectory {
	return &stubDirectory{users: make(map[string]*domain.User)}
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}

func (d *stubDirectory) GetByID(_ context.Context, id string) (*domain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.getErr != nil {
		return nil, d.getErr
	}
	u, ok := d.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (d *stubDirectory) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.getErr != nil {
		return nil, d.getErr
	}
	for _, u := range d.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (d *stubDirectory) Create(_ context.Context, user *domain.User, hash string) (*domain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.creates++
	if d.createErr != nil {
		return nil, d.createErr
	}
	d.nextID++
	stored := cloneUser(user)
	stored.ID = fmt.Sprintf("u-%d", d.nextID)
	stored.PasswordHash = hash
	stored.CreatedAt = time.Now().UTC()
	d.users[stored.ID] = stored
	return cloneUser(stored), nil
}

func (d *stubDirectory) Update(_ context.Context, user *domain.User) (*domain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	stored, ok := d.users[user.ID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	stored.Role = user.Role
	stored.IsActive = user.IsActive
	return cloneUser(stored), nil
}

func (d *stubDirectory) ListAll(_ context.Context) ([]*domain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*domain.User, 0, len(d.users))
	for _, u := range d.users {
		out = append(out, cloneUser(u))
	}
	return out, nil
}

func (d *stubDirectory) put(u *domain.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = cloneUser(u)
}

// stubHasher prefixes the password; good enough to exercise the flows.
type stubHasher struct{}

func (stubHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }

func (stubHasher) Verify(password, hash string) bool { return hash == "hashed:"+password }

type stubCodec struct {
	parseErr error
}

func (stubCodec) Issue(user *domain.User) (string, error) {
	return "token:" + user.ID + ":" + string(user.Role), nil
}

func (c stubCodec) Parse(token string) (*ports.Claims, error) {
	if c.parseErr != nil {
		return nil, c.parseErr
	}
	parts := strings.Split(token, ":")
	if len(parts) != 3 || parts[0] != "token" {
		return nil, domain.ErrInvalidCredentials
	}
	return &ports.Claims{Subject: parts[1], Role: domain.Role(parts[2])}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.EventType
}

func (p *recordingPublisher) Publish(_ string, eventType domain.EventType) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
}

func (p *recordingPublisher) published() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.EventType(nil), p.events...)
}

type stubThrottle struct {
	allowed  bool
	allowErr error
	failures int
	resets   int
}

func (t *stubThrottle) Allow(context.Context, string) (bool, error) { return t.allowed, t.allowErr }

func (t *stubThrottle) RecordFailure(context.Context, string) error {
	t.failures++
	return nil
}

func (t *stubThrottle) Reset(context.Context, string) error {
	t.resets++
	return nil
}

func newTestAuthService(dir *stubDirectory, opts ...AuthOption) (*AuthService, *recordingPublisher) {
	pub := &recordingPublisher{}
	return NewAuthService(dir, stubHasher{}, stubCodec{}, pub, zerolog.Nop(), opts...), pub
}

// ---------------------------------------------------------------------------
// Register
// ---------------------------------------------------------------------------

func TestAuthService_Register_Success(t *testing.T) {
	dir := newStubDirectory()
	svc, pub := newTestAuthService(dir)

	user, err := svc.Register(context.Background(), "Alice@Example.com", "pass123", "")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if user.Email != "alice@example.com" {
		t.Fatalf("unexpected email: %s", user.Email)
	}
	if user.Role != domain.RoleUser {
		t.Fatalf("unexpected role: %s", user.Role)
	}
	if !user.IsActive {
		t.Fatalf("expected new user to be active")
	}
	if user.PasswordHash != "" {
		t.Fatalf("password hash must not be returned")
	}
	if stored := dir.users[user.ID]; stored.PasswordHash != "hashed:pass123" {
		t.Fatalf("unexpected stored hash: %q", stored.PasswordHash)
	}
	if got := pub.published(); len(got) != 1 || got[0] != domain.EventUserRegistered {
		t.Fatalf("unexpected audit events: %v", got)
	}
}

func TestAuthService_Register_Duplicate(t *testing.T) {
	dir := newStubDirectory()
	svc, pub := newTestAuthService(dir)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "a@x.com", "pw", domain.RoleUser); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	_, err := svc.Register(ctx, "A@X.com", "other", domain.RoleUser)
	if !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
	if dir.creates != 1 {
		t.Fatalf("directory must not be mutated on conflict, creates = %d", dir.creates)
	}
	if got := pub.published(); len(got) != 1 {
		t.Fatalf("expected one audit event, got %v", got)
	}
}

func TestAuthService_Register_ConflictFromStore(t *testing.T) {
	dir := newStubDirectory()
	dir.createErr = domain.ErrUserExists
	svc, _ := newTestAuthService(dir)

	if _, err := svc.Register(context.Background(), "a@x.com", "pw", domain.RoleUser); !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestAuthService_Register_InvalidRole(t *testing.T) {
	svc, _ := newTestAuthService(newStubDirectory())

	if _, err := svc.Register(context.Background(), "a@x.com", "pw", "ROOT"); !errors.Is(err, domain.ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestAuthService_Register_ServiceErrorPropagates(t *testing.T) {
	dir := newStubDirectory()
	dir.getErr = &domain.ServiceError{Op: "GetByEmail", Kind: domain.KindTimeout}
	svc, pub := newTestAuthService(dir)

	_, err := svc.Register(context.Background(), "a@x.com", "pw", domain.RoleUser)
	if !domain.IsTimeout(err) {
		t.Fatalf("expected timeout ServiceError, got %v", err)
	}
	if len(pub.published()) != 0 {
		t.Fatalf("no audit event expected on failure")
	}
}

// ---------------------------------------------------------------------------
// Login
// ---------------------------------------------------------------------------

func TestAuthService_Login_Success(t *testing.T) {
	dir := newStubDirectory()
	svc, pub := newTestAuthService(dir)
	ctx := context.Background()

	registered, _ := svc.Register(ctx, "a@x.com", "pw", domain.RoleAdmin)

	token, user, err := svc.Login(ctx, "A@x.com", "pw")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if token != "token:"+registered.ID+":ADMIN" {
		t.Fatalf("unexpected token: %s", token)
	}
	if user.ID != registered.ID || user.PasswordHash != "" {
		t.Fatalf("unexpected user: %+v", user)
	}
	got := pub.published()
	if len(got) != 2 || got[1] != domain.EventUserLogin {
		t.Fatalf("unexpected audit events: %v", got)
	}
}

func TestAuthService_Login_FailuresAreIndistinguishable(t *testing.T) {
	dir := newStubDirectory()
	svc, _ := newTestAuthService(dir)
	ctx := context.Background()

	_, _ = svc.Register(ctx, "a@x.com", "pw", domain.RoleUser)
	dir.put(&domain.User{ID: "u-inactive", Email: "off@x.com", PasswordHash: "hashed:pw", Role: domain.RoleUser})

	cases := map[string][2]string{
		"wrong password": {"a@x.com", "nope"},
		"unknown email":  {"ghost@x.com", "pw"},
		"inactive":       {"off@x.com", "pw"},
	}
	for name, c := range cases {
		token, user, err := svc.Login(ctx, c[0], c[1])
		if !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Fatalf("%s: expected ErrInvalidCredentials, got %v", name, err)
		}
		if token != "" || user != nil {
			t.Fatalf("%s: expected no token or user", name)
		}
	}
}

func TestAuthService_Login_ThrottleBlocks(t *testing.T) {
	throttle := &stubThrottle{allowed: false}
	svc, _ := newTestAuthService(newStubDirectory(), WithLoginThrottle(throttle))

	if _, _, err := svc.Login(context.Background(), "a@x.com", "pw"); !errors.Is(err, domain.ErrTooManyAttempts) {
		t.Fatalf("expected ErrTooManyAttempts, got %v", err)
	}
}

func TestAuthService_Login_ThrottleCounts(t *testing.T) {
	throttle := &stubThrottle{allowed: true}
	dir := newStubDirectory()
	svc, _ := newTestAuthService(dir, WithLoginThrottle(throttle))
	ctx := context.Background()

	_, _ = svc.Register(ctx, "a@x.com", "pw", domain.RoleUser)
	_, _, _ = svc.Login(ctx, "a@x.com", "bad")
	_, _, _ = svc.Login(ctx, "ghost@x.com", "bad")
	if throttle.failures != 2 {
		t.Fatalf("failures = %d, want 2", throttle.failures)
	}
	if _, _, err := svc.Login(ctx, "a@x.com", "pw"); err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if throttle.resets != 1 {
		t.Fatalf("resets = %d, want 1", throttle.resets)
	}
}

func TestAuthService_Login_ThrottleErrorIsNotFatal(t *testing.T) {
	throttle := &stubThrottle{allowErr: errors.New("redis down")}
	dir := newStubDirectory()
	svc, _ := newTestAuthService(dir, WithLoginThrottle(throttle))
	ctx := context.Background()

	_, _ = svc.Register(ctx, "a@x.com", "pw", domain.RoleUser)
	if _, _, err := svc.Login(ctx, "a@x.com", "pw"); err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
}

// ---------------------------------------------------------------------------
// ResolveCurrentUser / RequireRole
// ---------------------------------------------------------------------------

func TestAuthService_ResolveCurrentUser(t *testing.T) {
	dir := newStubDirectory()
	svc, _ := newTestAuthService(dir)
	ctx := context.Background()

	registered, _ := svc.Register(ctx, "a@x.com", "pw", domain.RoleUser)
	token, _, _ := svc.Login(ctx, "a@x.com", "pw")

	user, err := svc.ResolveCurrentUser(ctx, token)
	if err != nil {
		t.Fatalf("ResolveCurrentUser returned error: %v", err)
	}
	if user.ID != registered.ID || user.PasswordHash != "" {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestAuthService_ResolveCurrentUser_InvalidToken(t *testing.T) {
	svc, _ := newTestAuthService(newStubDirectory())

	if _, err := svc.ResolveCurrentUser(context.Background(), "garbage"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.ResolveCurrentUser(context.Background(), "token::USER"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for empty subject, got %v", err)
	}
}

func TestAuthService_ResolveCurrentUser_GoneOrInactive(t *testing.T) {
	dir := newStubDirectory()
	svc, _ := newTestAuthService(dir)
	ctx := context.Background()

	if _, err := svc.ResolveCurrentUser(ctx, "token:missing:USER"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound for missing user, got %v", err)
	}

	dir.put(&domain.User{ID: "u-off", Email: "off@x.com", Role: domain.RoleUser, IsActive: false})
	if _, err := svc.ResolveCurrentUser(ctx, "token:u-off:USER"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound for inactive user, got %v", err)
	}
}

func TestAuthService_RequireRole(t *testing.T) {
	dir := newStubDirectory()
	svc, _ := newTestAuthService(dir)
	ctx := context.Background()

	dir.put(&domain.User{ID: "u-user", Role: domain.RoleUser, IsActive: true})
	dir.put(&domain.User{ID: "u-admin", Role: domain.RoleAdmin, IsActive: true})

	requireAdmin := svc.RequireRole(domain.RoleAdmin)

	if _, err := requireAdmin(ctx, "token:u-user:USER"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	admin, err := requireAdmin(ctx, "token:u-admin:ADMIN")
	if err != nil {
		t.Fatalf("RequireRole returned error: %v", err)
	}
	if admin.ID != "u-admin" || admin.Role != domain.RoleAdmin {
		t.Fatalf("unexpected user: %+v", admin)
	}

	// Authentication failures surface before authorization.
	if _, err := requireAdmin(ctx, "garbage"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthService_RequireRole_UsesStoredRole(t *testing.T) {
	dir := newStubDirectory()
	svc, _ := newTestAuthService(dir)

	// Token still claims ADMIN but the account was demoted.
	dir.put(&domain.User{ID: "u-1", Role: domain.RoleUser, IsActive: true})
	if _, err := svc.RequireRole(domain.RoleAdmin)(context.Background(), "token:u-1:ADMIN"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestAuthorize(t *testing.T) {
	user := &domain.User{Role: domain.RoleUser}

	if err := Authorize(user, domain.RoleAdmin); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := Authorize(user, domain.RoleAdmin, domain.RoleUser); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if err := Authorize(nil, domain.RoleUser); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for nil user, got %v", err)
	}
}

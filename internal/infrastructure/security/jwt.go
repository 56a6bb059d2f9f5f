package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/99minutos/identity-api/internal/core/domain"
	"github.com/99minutos/identity-api/internal/core/ports"
)

var ErrUnsupportedAlgorithm = errors.New("unsupported signing algorithm")

type tokenClaims struct {
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// JWTCodec implements ports.TokenCodec with HMAC-signed JWTs. Tokens are
// verified from signature and expiry alone; there is no revocation.
type JWTCodec struct {
	secret []byte
	method jwt.SigningMethod
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTCodec builds a codec for one of HS256, HS384 or HS512.
func NewJWTCodec(secret, algorithm string, ttl time.Duration) (*JWTCodec, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("token ttl must be positive")
	}
	method, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}
	return &JWTCodec{
		secret: []byte(secret),
		method: method,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

func (c *JWTCodec) Issue(user *domain.User) (string, error) {
	now := c.now()
	claims := tokenClaims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies signature and expiry. Every failure wraps
// domain.ErrInvalidCredentials.
func (c *JWTCodec) Parse(token string) (*ports.Claims, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCredentials, err)
	}

	// The library applies no leeway here either, but the expiry is checked
	// again so the rule holds regardless of parser options.
	if claims.ExpiresAt == nil || !c.now().Before(claims.ExpiresAt.Time) {
		return nil, fmt.Errorf("%w: token expired", domain.ErrInvalidCredentials)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", domain.ErrInvalidCredentials)
	}
	if !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role", domain.ErrInvalidCredentials)
	}

	out := &ports.Claims{
		Subject:   claims.Subject,
		Role:      claims.Role,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}

package middleware

import (
	"errors"
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/identity-api/internal/api/metrics"
	"github.com/99minutos/identity-api/internal/core/domain"
	"github.com/99minutos/identity-api/internal/core/service"
)

const principalKey = "principal"

// Guard extracts the bearer token, runs authorize on it and stores the
// resulting principal on the request context. Failures are returned as
// domain errors for the HTTP error handler to map.
func Guard(authorize service.Authorizer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, err := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				return err
			}

			user, err := authorize(c.Request().Context(), token)
			if err != nil {
				if errors.Is(err, domain.ErrForbidden) {
					metrics.AuthorizationDeniedTotal.WithLabelValues(c.Path()).Inc()
				}
				return err
			}

			c.Set(principalKey, user)
			return next(c)
		}
	}
}

// Principal returns the user stored by Guard, or nil when the route is not
// guarded.
func Principal(c echo.Context) *domain.User {
	u, _ := c.Get(principalKey).(*domain.User)
	return u
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", fmt.Errorf("%w: missing authorization header", domain.ErrInvalidCredentials)
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", fmt.Errorf("%w: invalid authorization header", domain.ErrInvalidCredentials)
	}
	return strings.TrimSpace(parts[1]), nil
}

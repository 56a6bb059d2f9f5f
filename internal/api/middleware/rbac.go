package middleware

import (
	"fmt"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/identity-api/internal/api/metrics"
	"github.com/99minutos/identity-api/internal/core/domain"
	"github.com/99minutos/identity-api/internal/core/service"
)

// RBAC admits the request only if the principal stored by Guard holds one of
// allowedRoles. It must be mounted after Guard.
func RBAC(allowedRoles ...domain.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := Principal(c)
			if user == nil {
				return fmt.Errorf("%w: no principal on request", domain.ErrInvalidCredentials)
			}
			if err := service.Authorize(user, allowedRoles...); err != nil {
				metrics.AuthorizationDeniedTotal.WithLabelValues(c.Path()).Inc()
				return err
			}
			return next(c)
		}
	}
}

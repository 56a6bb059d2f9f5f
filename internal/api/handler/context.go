package handler

import (
	"fmt"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/identity-api/internal/api/middleware"
	"github.com/99minutos/identity-api/internal/core/domain"
)

// currentUser returns the principal injected by middleware.Guard. A missing
// principal means the route was mounted without a guard.
func currentUser(c echo.Context) (*domain.User, error) {
	u := middleware.Principal(c)
	if u == nil {
		return nil, fmt.Errorf("%w: missing principal", domain.ErrInvalidCredentials)
	}
	return u, nil
}

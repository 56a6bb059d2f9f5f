package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/identity-api/internal/core/domain"
	"github.com/99minutos/identity-api/internal/core/ports"
)

type AdminHandler struct {
	userService ports.UserService
}

func NewAdminHandler(userService ports.UserService) *AdminHandler {
	return &AdminHandler{userService: userService}
}

// ListUsers returns every account.
//
// @Summary      List users
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200   {object}  userListResponse
// @Failure      401   {object}  ErrorResponse
// @Failure      403   {object}  ErrorResponse
// @Router       /auth/users [get]
func (h *AdminHandler) ListUsers(c echo.Context) error {
	users, err := h.userService.ListUsers(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserListResponse(users))
}

// Dashboard is the admin landing endpoint.
//
// @Summary      Admin dashboard
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200   {object}  dashboardResponse
// @Failure      401   {object}  ErrorResponse
// @Failure      403   {object}  ErrorResponse
// @Router       /admin/dashboard [get]
func (h *AdminHandler) Dashboard(c echo.Context) error {
	return c.JSON(http.StatusOK, dashboardResponse{Message: "Welcome, admin"})
}

// ChangeRole sets the role of another account.
//
// @Summary      Change user role
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string             true  "User ID"
// @Param        body  body      changeRoleRequest  true  "New role"
// @Success      200   {object}  userResponse
// @Failure      400   {object}  ErrorResponse
// @Failure      403   {object}  ErrorResponse
// @Failure      404   {object}  ErrorResponse
// @Failure      422   {object}  ErrorResponse
// @Router       /admin/users/{id}/role [patch]
func (h *AdminHandler) ChangeRole(c echo.Context) error {
	actor, err := currentUser(c)
	if err != nil {
		return err
	}

	var req changeRoleRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		return err
	}

	user, err := h.userService.ChangeRole(c.Request().Context(), actor, c.Param("id"), role)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserResponse(user))
}

// SetStatus activates or deactivates another account.
//
// @Summary      Activate or deactivate user
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string            true  "User ID"
// @Param        body  body      setStatusRequest  true  "New status"
// @Success      200   {object}  userResponse
// @Failure      400   {object}  ErrorResponse
// @Failure      403   {object}  ErrorResponse
// @Failure      404   {object}  ErrorResponse
// @Failure      422   {object}  ErrorResponse
// @Router       /admin/users/{id}/status [patch]
func (h *AdminHandler) SetStatus(c echo.Context) error {
	actor, err := currentUser(c)
	if err != nil {
		return err
	}

	var req setStatusRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := h.userService.SetActive(c.Request().Context(), actor, c.Param("id"), *req.IsActive)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserResponse(user))
}

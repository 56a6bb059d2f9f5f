package handler

import (
	"time"

	"github.com/99minutos/identity-api/internal/core/domain"
)

// ErrorResponse is the canonical error envelope for all API errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type registerRequest struct {
	Email    string `json:"email"    validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type loginRequest struct {
	Email    string `json:"email"    validate:"required"`
	Password string `json:"password" validate:"required"`
}

type changeRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=USER ADMIN user admin"`
}

type setStatusRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"is_active"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type userListResponse struct {
	Users []userResponse `json:"users"`
}

type tokenResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	User        userResponse `json:"user"`
}

type dashboardResponse struct {
	Message string `json:"message"`
}

// toUserResponse maps a domain user to its public shape. The password hash
// has no field here.
func toUserResponse(u *domain.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		IsActive:  u.IsActive,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt,
	}
}

func toUserListResponse(users []*domain.User) userListResponse {
	out := userListResponse{Users: make([]userResponse, 0, len(users))}
	for _, u := range users {
		out.Users = append(out.Users, toUserResponse(u))
	}
	return out
}

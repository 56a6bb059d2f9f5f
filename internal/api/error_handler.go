package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/99minutos/identity-api/internal/api/handler"
	"github.com/99minutos/identity-api/internal/core/domain"
)

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps known domain errors to their appropriate HTTP status codes.
//   - Logs unexpected errors internally without leaking details to the client.
//   - Renders a consistent JSON envelope: {"error": "<message>", "code": "<code>"}.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := resolveError(err, log, c)
		if status == http.StatusUnauthorized {
			c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
		}
		_ = c.JSON(status, body)
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, handler.ErrorResponse) {
	// Echo's own errors (bind failures, 404 from router, etc.)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, handler.ErrorResponse{Error: fmt.Sprintf("%v", he.Message), Code: codeForStatus(he.Code)}
	}

	// Known domain errors → deterministic HTTP codes. Every authentication
	// failure renders the same body.
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, handler.ErrorResponse{Error: "invalid credentials", Code: "invalid_credentials"}
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, handler.ErrorResponse{Error: "insufficient permissions", Code: "forbidden"}
	case errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound, handler.ErrorResponse{Error: "user not found", Code: "not_found"}
	case errors.Is(err, domain.ErrUserExists):
		return http.StatusConflict, handler.ErrorResponse{Error: "user already exists", Code: "user_exists"}
	case errors.Is(err, domain.ErrInvalidRole):
		return http.StatusBadRequest, handler.ErrorResponse{Error: "invalid role", Code: "invalid_role"}
	case errors.Is(err, domain.ErrPasswordTooLong):
		return http.StatusBadRequest, handler.ErrorResponse{Error: err.Error(), Code: "invalid_password"}
	case errors.Is(err, domain.ErrSelfModification):
		return http.StatusUnprocessableEntity, handler.ErrorResponse{Error: "cannot change own role or status", Code: "self_modification"}
	case errors.Is(err, domain.ErrTooManyAttempts):
		return http.StatusTooManyRequests, handler.ErrorResponse{Error: "too many login attempts", Code: "too_many_attempts"}
	}

	var se *domain.ServiceError
	if errors.As(err, &se) {
		log.Error().
			Err(err).
			Str("method", c.Request().Method).
			Str("path", c.Path()).
			Str("kind", string(se.Kind)).
			Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
			Msg("service error")
		if se.Kind == domain.KindTimeout {
			return http.StatusGatewayTimeout, handler.ErrorResponse{Error: "upstream timeout", Code: "timeout"}
		}
		return http.StatusInternalServerError, handler.ErrorResponse{Error: "service error", Code: "service_error"}
	}

	// Unexpected error: log the real cause, return a generic message.
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
		Msg("unhandled error")

	return http.StatusInternalServerError, handler.ErrorResponse{Error: "internal server error", Code: "internal"}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusUnauthorized:
		return "invalid_credentials"
	case http.StatusRequestEntityTooLarge:
		return "payload_too_large"
	case http.StatusTooManyRequests:
		return "too_many_requests"
	}
	return "error"
}

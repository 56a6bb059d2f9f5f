package api

import (
	"net/http"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/99minutos/identity-api/docs"
	"github.com/99minutos/identity-api/internal/api/handler"
	"github.com/99minutos/identity-api/internal/api/middleware"
	"github.com/99minutos/identity-api/internal/core/domain"
	"github.com/99minutos/identity-api/internal/core/ports"
	"github.com/99minutos/identity-api/internal/core/service"
)

// Dependencies are the collaborators the router mounts.
type Dependencies struct {
	Auth   *service.AuthService
	Users  ports.UserService
	Checks map[string]handler.Check
	Log    zerolog.Logger

	// Metrics registry for HTTP request metrics. Nil uses the Prometheus
	// default registry.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer

	EnableSwagger bool
}

// NewRouter builds and returns the Echo instance with all routes registered.
// Each protected route names its own access rule.
func NewRouter(deps Dependencies) *echo.Echo {
	if deps.Registerer == nil {
		deps.Registerer = prometheus.DefaultRegisterer
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.BodyLimit("1M"))
	e.Use(echomiddleware.Secure())
	e.Use(requestLogger(deps.Log))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "http",
		Registerer: deps.Registerer,
	}))

	// --- Dependencies ---
	authHandler := handler.NewAuthHandler(deps.Auth)
	adminHandler := handler.NewAdminHandler(deps.Users)

	authenticated := middleware.Guard(deps.Auth.Authenticated())
	adminOnly := middleware.Guard(deps.Auth.RequireRole(domain.RoleAdmin))

	// --- Auth routes ---
	e.POST("/auth/register", authHandler.Register)
	e.POST("/auth/login", authHandler.Login)
	e.GET("/auth/me", authHandler.Me, authenticated)
	e.GET("/auth/users", adminHandler.ListUsers, authenticated, middleware.RBAC(domain.RoleAdmin))

	// --- Admin routes ---
	admin := e.Group("/admin", adminOnly)
	admin.GET("/dashboard", adminHandler.Dashboard)
	admin.PATCH("/users/:id/role", adminHandler.ChangeRole)
	admin.PATCH("/users/:id/status", adminHandler.SetStatus)

	// --- Health probes (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	healthDepsHandler := handler.NewHealthDependenciesHandler(deps.Checks)

	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"service": "identity-api", "status": "running"})
	})
	e.GET("/health", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness – are dependencies up?
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: deps.Gatherer}))

	if deps.EnableSwagger {
		e.GET("/swagger/*", echoSwagger.WrapHandler)
	}

	return e
}

// requestLogger feeds echo's request logger into zerolog.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			evt := log.Info()
			switch {
			case v.Status >= http.StatusInternalServerError:
				evt = log.Error().Err(v.Error)
			case v.Error != nil:
				evt = log.Warn().Err(v.Error)
			}
			evt.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}

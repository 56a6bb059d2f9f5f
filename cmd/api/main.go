package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	mongodriver "go.mongodb.org/mongo-driver/mongo"

	"github.com/99minutos/identity-api/internal/api"
	"github.com/99minutos/identity-api/internal/api/handler"
	"github.com/99minutos/identity-api/internal/core/domain"
	"github.com/99minutos/identity-api/internal/core/ports"
	"github.com/99minutos/identity-api/internal/core/service"
	"github.com/99minutos/identity-api/internal/infrastructure/db/memory"
	"github.com/99minutos/identity-api/internal/infrastructure/db/mongo"
	"github.com/99minutos/identity-api/internal/infrastructure/db/redis"
	"github.com/99minutos/identity-api/internal/infrastructure/queue"
	"github.com/99minutos/identity-api/internal/infrastructure/resilience"
	"github.com/99minutos/identity-api/internal/infrastructure/security"
	"github.com/99minutos/identity-api/internal/pkg/config"
	"github.com/99minutos/identity-api/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  !cfg.IsProduction(),
		Service: "identity-api",
		Env:     cfg.Env,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("identity-api stopped with error")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	checks := make(map[string]handler.Check)

	// --- Storage ---
	var (
		directory ports.UserDirectory
		auditRepo ports.AuditRepository
		mongoCli  *mongodriver.Client
	)
	switch cfg.Storage {
	case config.StorageMongo:
		client, db, err := mongo.Connect(ctx, mongo.Config{
			URI:         cfg.Mongo.URI,
			Database:    cfg.Mongo.Database,
			Timeout:     cfg.Mongo.Timeout,
			MaxPoolSize: cfg.Mongo.MaxPoolSize,
		})
		if err != nil {
			return err
		}
		mongoCli = client
		if err := mongo.EnsureIndexes(ctx, db); err != nil {
			return err
		}
		directory = mongo.NewUserDirectory(db)
		auditRepo = mongo.NewAuditRepository(db)
		checks["mongodb"] = func(ctx context.Context) error { return mongo.Ping(ctx, db) }
		log.Info().Str("database", cfg.Mongo.Database).Msg("connected to mongodb")
	default:
		directory = memory.NewUserDirectory()
		auditRepo = memory.NewAuditRepository()
		log.Warn().Msg("using in-memory storage; data is lost on restart")
	}

	// --- Redis (optional) ---
	var (
		redisCli *goredis.Client
		authOpts []service.AuthOption
	)
	if cfg.Redis.Addr != "" {
		client, err := redis.Connect(ctx, redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		redisCli = client
		authOpts = append(authOpts, service.WithLoginThrottle(
			redis.NewLoginThrottle(client, cfg.Throttle.MaxAttempts, cfg.Throttle.Window),
		))
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to redis; login throttle enabled")
	}

	// --- Security ---
	codec, err := security.NewJWTCodec(cfg.Auth.JWTSecret, cfg.Auth.JWTAlgorithm, cfg.Auth.TokenTTL())
	if err != nil {
		return err
	}
	hasher := security.NewBcryptHasher(cfg.Auth.BcryptCost)

	users := resilience.Wrap(directory, resilience.Policy{
		Timeout:        cfg.Directory.Timeout,
		MaxRetries:     cfg.Directory.MaxRetries,
		InitialBackoff: cfg.Directory.InitialBackoff,
		MaxBackoff:     cfg.Directory.MaxBackoff,
		RetryWrites:    cfg.Directory.RetryWrites,
	}, logger.Component("directory"))

	// --- Audit sink ---
	auditLog := logger.Component("audit")
	dispatcher := queue.NewAuditDispatcher(
		cfg.Audit.Workers,
		cfg.Audit.QueueSize,
		service.NewAuditService(auditRepo, cfg.Audit.WriteTimeout, auditLog),
		auditLog,
	)
	dispatcher.Start(context.Background())

	// --- Services ---
	authService := service.NewAuthService(users, hasher, codec, dispatcher, logger.Component("auth"), authOpts...)
	userService := service.NewUserService(users, dispatcher, logger.Component("users"))

	if err := bootstrapAdmin(ctx, authService, cfg.Admin, log); err != nil {
		return err
	}

	e := api.NewRouter(api.Dependencies{
		Auth:          authService,
		Users:         userService,
		Checks:        checks,
		Log:           logger.Component("http"),
		EnableSwagger: !cfg.IsProduction(),
	})

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("identity-api listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("http server failed")
		}
	}

	// Stop accepting requests, then flush pending audit events, then close stores.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	dispatcher.Stop()
	if redisCli != nil {
		if err := redisCli.Close(); err != nil {
			log.Error().Err(err).Msg("redis close failed")
		}
	}
	if mongoCli != nil {
		if err := mongoCli.Disconnect(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("mongo disconnect failed")
		}
	}

	log.Info().Msg("identity-api stopped")
	return nil
}

// bootstrapAdmin seeds an ADMIN account through the normal registration path.
// An existing account with that email is left untouched.
func bootstrapAdmin(ctx context.Context, auth *service.AuthService, admin config.AdminConfig, log zerolog.Logger) error {
	if admin.Email == "" {
		return nil
	}
	user, err := auth.Register(ctx, admin.Email, admin.Password, domain.RoleAdmin)
	switch {
	case errors.Is(err, domain.ErrUserExists):
		log.Info().Msg("admin account already present")
		return nil
	case err != nil:
		return err
	}
	log.Info().Str("user_id", user.ID).Msg("admin account created")
	return nil
}

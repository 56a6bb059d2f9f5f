package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const (
	StorageMongo  = "mongo"
	StorageMemory = "memory"
)

type Config struct {
	Port     string `env:"PORT,      default=8080"`
	Env      string `env:"ENV,       default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`
	Storage  string `env:"STORAGE,   default=mongo"`

	Auth      AuthConfig
	Directory DirectoryConfig
	Audit     AuditConfig
	Throttle  ThrottleConfig
	Admin     AdminConfig

	Mongo MongoConfig
	Redis RedisConfig
}

type AuthConfig struct {
	JWTSecret       string `env:"JWT_SECRET"`
	JWTAlgorithm    string `env:"JWT_ALGORITHM,     default=HS256"`
	TokenTTLMinutes int    `env:"TOKEN_TTL_MINUTES, default=30"`
	BcryptCost      int    `env:"BCRYPT_COST,       default=10"`
}

// TokenTTL is the access token lifetime.
func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.TokenTTLMinutes) * time.Minute
}

type DirectoryConfig struct {
	Timeout        time.Duration `env:"DIRECTORY_TIMEOUT,         default=5s"`
	MaxRetries     int           `env:"DIRECTORY_MAX_RETRIES,     default=3"`
	InitialBackoff time.Duration `env:"DIRECTORY_INITIAL_BACKOFF, default=50ms"`
	MaxBackoff     time.Duration `env:"DIRECTORY_MAX_BACKOFF,     default=1s"`
	RetryWrites    bool          `env:"DIRECTORY_RETRY_WRITES,    default=false"`
}

type AuditConfig struct {
	Workers      int           `env:"AUDIT_WORKERS,       default=2"`
	QueueSize    int           `env:"AUDIT_QUEUE_SIZE,    default=256"`
	WriteTimeout time.Duration `env:"AUDIT_WRITE_TIMEOUT, default=5s"`
}

type ThrottleConfig struct {
	MaxAttempts int           `env:"LOGIN_MAX_ATTEMPTS, default=5"`
	Window      time.Duration `env:"LOGIN_WINDOW,       default=15m"`
}

// AdminConfig seeds an ADMIN account at startup when both fields are set.
type AdminConfig struct {
	Email    string `env:"ADMIN_EMAIL"`
	Password string `env:"ADMIN_PASSWORD"`
}

type MongoConfig struct {
	URI         string        `env:"MONGO_URI,           default=mongodb://localhost:27017"`
	Database    string        `env:"MONGO_DB,            default=identity"`
	Timeout     time.Duration `env:"MONGO_TIMEOUT,       default=10s"`
	MaxPoolSize uint64        `env:"MONGO_MAX_POOL_SIZE, default=100"`
}

// RedisConfig is optional; the login throttle is disabled when Addr is empty.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB, default=0"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load() *Config {
	cfg, err := LoadFrom(context.Background(), envconfig.OsLookuper())
	if err != nil {
		panic(fmt.Sprintf("config: failed to load configuration: %v", err))
	}
	return cfg
}

// LoadFrom reads configuration from lookuper and validates it. Values are
// read once and treated as immutable afterwards.
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings the auth core cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.Auth.JWTAlgorithm {
	case "HS256", "HS384", "HS512":
	default:
		errs = append(errs, fmt.Errorf("JWT_ALGORITHM %q is not an HMAC algorithm", c.Auth.JWTAlgorithm))
	}
	if c.Auth.TokenTTLMinutes <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL_MINUTES must be positive"))
	}
	if c.Directory.Timeout <= 0 {
		errs = append(errs, errors.New("DIRECTORY_TIMEOUT must be positive"))
	}
	c.Storage = strings.ToLower(c.Storage)
	if c.Storage != StorageMongo && c.Storage != StorageMemory {
		errs = append(errs, fmt.Errorf("STORAGE %q must be %q or %q", c.Storage, StorageMongo, StorageMemory))
	}
	if (c.Admin.Email == "") != (c.Admin.Password == "") {
		errs = append(errs, errors.New("ADMIN_EMAIL and ADMIN_PASSWORD must be set together"))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether the service runs with ENV=production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

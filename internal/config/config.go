package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendNone     = "none"
)

type Config struct {
	App struct {
		Name string `envconfig:"APP_NAME" default:"finsync"`
		Port int    `envconfig:"PORT" default:"8080"`
	}

	Local struct {
		Path string `envconfig:"LOCAL_DB_PATH" default:"finsync.db"`
	}

	Remote struct {
		Backend string `envconfig:"REMOTE_BACKEND" default:"none"`

		Redis struct {
			Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
			Password string `envconfig:"REDIS_PASSWORD" default:""`
			DB       int    `envconfig:"REDIS_DB" default:"0"`
		}

		Postgres struct {
			Host     string `envconfig:"DB_HOST" default:"localhost"`
			Port     int    `envconfig:"DB_PORT" default:"5432"`
			User     string `envconfig:"DB_USER" default:"postgres"`
			Password string `envconfig:"DB_PASSWORD" default:""`
			Name     string `envconfig:"DB_NAME" default:"finsync"`
		}
	}

	Security struct {
		// KeyDir holds per-device bundle keys. Ignored when MasterSecret is set.
		KeyDir       string        `envconfig:"KEY_DIR" default:"keys"`
		MasterSecret string        `envconfig:"MASTER_SECRET"`
		Salt         string        `envconfig:"KEY_SALT" default:"finsync-bundle-key"`
		JWTSecret    string        `envconfig:"JWT_SECRET"`
		TokenTTL     time.Duration `envconfig:"TOKEN_TTL" default:"720h"`
	}

	Sync struct {
		RetryDelay    time.Duration `envconfig:"SYNC_RETRY_DELAY" default:"1s"`
		MaxRetryDelay time.Duration `envconfig:"SYNC_MAX_RETRY_DELAY" default:"1m"`
		AutoPush      bool          `envconfig:"SYNC_AUTO_PUSH" default:"true"`
	}

	Ledger struct {
		// LowBalanceThreshold is a decimal string; "0" disables low balance alerts.
		LowBalanceThreshold string `envconfig:"LOW_BALANCE_THRESHOLD" default:"0"`
	}

	Server struct {
		Timeout        time.Duration `envconfig:"SERVER_TIMEOUT" default:"30s"`
		AllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS"`
	}
}

func (c *Config) ConnectionString() string {
	p := c.Remote.Postgres

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		p.User, p.Password, p.Host, p.Port, p.Name)
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	var errs []error

	switch c.Remote.Backend {
	case BackendRedis, BackendPostgres, BackendMemory, BackendNone:
	default:
		errs = append(errs, fmt.Errorf("unknown remote backend %q", c.Remote.Backend))
	}

	if c.Local.Path == "" {
		errs = append(errs, errors.New("LOCAL_DB_PATH is required"))
	}

	if c.Security.MasterSecret == "" && c.Security.KeyDir == "" {
		errs = append(errs, errors.New("either MASTER_SECRET or KEY_DIR is required"))
	}

	if c.Security.MasterSecret != "" && len(c.Security.Salt) < 8 {
		errs = append(errs, errors.New("KEY_SALT must be at least 8 characters"))
	}

	if c.Sync.RetryDelay <= 0 || c.Sync.MaxRetryDelay < c.Sync.RetryDelay {
		errs = append(errs, errors.New("sync retry delays must be positive and max >= initial"))
	}

	return errors.Join(errs...)
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

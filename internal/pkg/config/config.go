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
	StoreMongo  = "mongo"
	StoreMemory = "memory"

	MailSMTP = "smtp"
	MailLog  = "log"

	minSecretLength = 32
	minBcryptCost   = 10
	maxBcryptCost   = 14
)

type Config struct {
	Port        string `env:"PORT,         default=8080"`
	Env         string `env:"ENV,          default=development"`
	JWTSecret   string `env:"JWT_SECRET"`
	StoreDriver string `env:"STORE_DRIVER, default=mongo"`

	Log    LogConfig
	Mongo  MongoConfig
	Redis  RedisConfig
	Auth   AuthConfig
	Mail   MailConfig
	Events EventsConfig
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL,  default=info"`
	Pretty bool   `env:"LOG_PRETTY, default=false"`
	File   string `env:"LOG_FILE"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=audiophile"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR,     default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,       default=0"`
}

type AuthConfig struct {
	BcryptCost       int           `env:"AUTH_BCRYPT_COST,       default=10"`
	HashConcurrency  int           `env:"AUTH_HASH_CONCURRENCY,  default=0"`
	SessionTTL       time.Duration `env:"AUTH_SESSION_TTL,       default=24h"`
	LockoutThreshold int           `env:"AUTH_LOCKOUT_THRESHOLD, default=5"`
	LockoutDuration  time.Duration `env:"AUTH_LOCKOUT_DURATION,  default=30m"`
	ResetTokenTTL    time.Duration `env:"AUTH_RESET_TOKEN_TTL,   default=30m"`
	ResetURL         string        `env:"AUTH_RESET_URL,         default=http://localhost:5173/password/reset"`
}

type MailConfig struct {
	Driver   string        `env:"MAIL_DRIVER,   default=log"`
	Host     string        `env:"MAIL_HOST"`
	Port     int           `env:"MAIL_PORT,     default=587"`
	Username string        `env:"MAIL_USERNAME"`
	Password string        `env:"MAIL_PASSWORD"`
	From     string        `env:"MAIL_FROM,     default=no-reply@audiophile.local"`
	Timeout  time.Duration `env:"MAIL_TIMEOUT,  default=10s"`
}

type EventsConfig struct {
	Workers int `env:"EVENTS_WORKERS, default=4"`
}

// IsProduction reports whether cookies must be marked Secure.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if len(c.JWTSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d bytes", minSecretLength))
	}
	if c.Auth.BcryptCost < minBcryptCost || c.Auth.BcryptCost > maxBcryptCost {
		errs = append(errs, fmt.Errorf("AUTH_BCRYPT_COST must be between %d and %d", minBcryptCost, maxBcryptCost))
	}
	if c.Auth.LockoutThreshold < 1 {
		errs = append(errs, errors.New("AUTH_LOCKOUT_THRESHOLD must be positive"))
	}
	if c.Auth.SessionTTL <= 0 || c.Auth.LockoutDuration <= 0 || c.Auth.ResetTokenTTL <= 0 {
		errs = append(errs, errors.New("AUTH durations must be positive"))
	}
	switch c.StoreDriver {
	case StoreMongo, StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER %q is not one of mongo, memory", c.StoreDriver))
	}
	switch c.Mail.Driver {
	case MailLog:
	case MailSMTP:
		if c.Mail.Host == "" {
			errs = append(errs, errors.New("MAIL_HOST is required for the smtp driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("MAIL_DRIVER %q is not one of smtp, log", c.Mail.Driver))
	}
	return errors.Join(errs...)
}

// Load reads configuration from environment variables using go-envconfig.
func Load() *Config {
	cfg, err := LoadWith(context.Background(), envconfig.OsLookuper())
	if err != nil {
		panic(fmt.Sprintf("config: failed to load configuration: %v", err))
	}
	return cfg
}

// LoadWith resolves configuration from the given lookuper and validates it.
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
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

// Package config loads service configuration from the environment. Key
// material is supplied externally (paths or inline PEM); the service never
// generates keys.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every tunable of the API process.
type Config struct {
	Addr        string `env:"BUGTRAIL_ADDR" envDefault:":8080"`
	Environment string `env:"BUGTRAIL_ENV" envDefault:"development"`

	DatabaseDSN string `env:"BUGTRAIL_PG_DSN"`

	JWTPrivateKeyPath string        `env:"BUGTRAIL_JWT_PRIVATE_KEY_PATH" envDefault:"./keys/private_key.pem"`
	JWTPublicKeyPath  string        `env:"BUGTRAIL_JWT_PUBLIC_KEY_PATH" envDefault:"./keys/public_key.pem"`
	JWTIssuer         string        `env:"BUGTRAIL_JWT_ISSUER" envDefault:"bugtrail"`
	AccessTokenTTL    time.Duration `env:"BUGTRAIL_ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenTTL   time.Duration `env:"BUGTRAIL_REFRESH_TOKEN_TTL" envDefault:"168h"`

	BcryptCost       int           `env:"BUGTRAIL_BCRYPT_COST" envDefault:"12"`
	MaxLoginAttempts int           `env:"BUGTRAIL_MAX_LOGIN_ATTEMPTS" envDefault:"5"`
	LockoutDuration  time.Duration `env:"BUGTRAIL_LOCKOUT_DURATION" envDefault:"30m"`

	LoginRateBurst     int `env:"BUGTRAIL_LOGIN_RATE_BURST" envDefault:"5"`
	LoginRatePerMinute int `env:"BUGTRAIL_LOGIN_RATE_PER_MINUTE" envDefault:"5"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse environment: %w", err)
	}
	if cfg.MaxLoginAttempts <= 0 {
		return Config{}, errors.New("config: max login attempts must be positive")
	}
	return cfg, nil
}

// IsProduction reports whether the process runs with production hardening.
func (c Config) IsProduction() bool { return c.Environment == "production" }

// ReadKeyPair loads the PEM-encoded RSA key pair from the configured paths.
func (c Config) ReadKeyPair() (privatePEM, publicPEM []byte, err error) {
	privatePEM, err = os.ReadFile(c.JWTPrivateKeyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("config: read private key: %w", err)
	}
	publicPEM, err = os.ReadFile(c.JWTPublicKeyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("config: read public key: %w", err)
	}
	return privatePEM, publicPEM, nil
}

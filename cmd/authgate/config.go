package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/authgate/internal/logger"
)

const (
	defaultListenAddr       = "localhost:8000"
	defaultLoggingLevel     = logger.LevelInfo
	defaultEnvironment      = logger.EnvProduction
	defaultAccessTokenTTL   = 15 * time.Minute
	defaultRefreshTokenTTL  = 24 * time.Hour
	defaultPurgeInterval    = time.Hour
	defaultLoginMaxAttempts = 5
	defaultLoginLockout     = 15 * time.Minute
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the service will be run
	ListenAddr string

	// Database to connect to
	// Tokens and users are kept in memory if not set
	DatabaseDSN string

	// Secret key to sign access tokens
	SecretKey string

	// Environment
	Environment string

	// Token lifetimes
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// How often expired refresh tokens are deleted
	PurgeInterval time.Duration

	// Redis to count failed logins. Logins are not throttled if not set
	RedisAddr        string
	LoginMaxAttempts int
	LoginLockout     time.Duration

	// Revoke all sessions of user if revoked refresh token presented again
	RevokeChainOnReuse bool

	// Password of 'admin' user created on start. Not created if not set
	AdminPassword string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:         defaultLoggingLevel,
		ListenAddr:       defaultListenAddr,
		Environment:      defaultEnvironment,
		AccessTokenTTL:   defaultAccessTokenTTL,
		RefreshTokenTTL:  defaultRefreshTokenTTL,
		PurgeInterval:    defaultPurgeInterval,
		LoginMaxAttempts: defaultLoginMaxAttempts,
		LoginLockout:     defaultLoginLockout,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) (err error) {
			if value != "" {
				*o, err = time.ParseDuration(value)
			}
			return err
		}
	}
	setInt := func(o *int) func(value string) error {
		return func(value string) (err error) {
			if value != "" {
				*o, err = strconv.Atoi(value)
			}
			return err
		}
	}
	setBool := func(o *bool) func(value string) error {
		return func(value string) (err error) {
			if value != "" {
				*o, err = strconv.ParseBool(value)
			}
			return err
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":           setString(&c.ListenAddr),
		"DATABASE_URI":          setString(&c.DatabaseDSN),
		"SECRET_KEY":            setString(&c.SecretKey),
		"LOG_LEVEL":             setString(&c.LogLevel),
		"ENVIRONMENT":           setString(&c.Environment),
		"ACCESS_TOKEN_TTL":      setDuration(&c.AccessTokenTTL),
		"REFRESH_TOKEN_TTL":     setDuration(&c.RefreshTokenTTL),
		"PURGE_INTERVAL":        setDuration(&c.PurgeInterval),
		"REDIS_ADDRESS":         setString(&c.RedisAddr),
		"LOGIN_MAX_ATTEMPTS":    setInt(&c.LoginMaxAttempts),
		"LOGIN_LOCKOUT":         setDuration(&c.LoginLockout),
		"REVOKE_CHAIN_ON_REUSE": setBool(&c.RevokeChainOnReuse),
		"ADMIN_PASSWORD":        setString(&c.AdminPassword),
	}

	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	return nil
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("authgate", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.DurationVar(&c.AccessTokenTTL, "access-ttl", c.AccessTokenTTL, "Access token lifetime")
	fs.DurationVar(&c.RefreshTokenTTL, "refresh-ttl", c.RefreshTokenTTL, "Refresh token lifetime")
	fs.DurationVar(&c.PurgeInterval, "purge-interval", c.PurgeInterval, "Interval between expired tokens purges")
	fs.StringVarP(&c.RedisAddr, "redis", "r", c.RedisAddr, "Redis address for login throttling")
	fs.IntVar(&c.LoginMaxAttempts, "login-max-attempts", c.LoginMaxAttempts, "Failed logins before lockout")
	fs.DurationVar(&c.LoginLockout, "login-lockout", c.LoginLockout, "Lockout window after failed logins")
	fs.BoolVar(&c.RevokeChainOnReuse, "revoke-chain-on-reuse", c.RevokeChainOnReuse, "Revoke all user sessions on refresh token reuse")
	fs.StringVar(&c.AdminPassword, "admin-password", c.AdminPassword, "Create 'admin' user with this password")

	return fs.Parse(args)
}

func (c *Config) Validate() error {
	switch {
	case c.SecretKey == "":
		return errors.New("secret key must be set")
	case c.AccessTokenTTL <= 0:
		return errors.New("access token ttl must be positive")
	case c.RefreshTokenTTL < 0:
		return errors.New("refresh token ttl must not be negative")
	case c.PurgeInterval <= 0:
		return errors.New("purge interval must be positive")
	}
	return nil
}

// Package config loads and validates process configuration from the environment
// and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/guardianentry/sessiongate"
)

// Store drivers accepted by STORE_DRIVER.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
	DriverRedis  = "redis"
	DriverBolt   = "bolt"
	DriverMemory = "memory"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8000).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// Env is the application environment ("development", "production").
	Env string `mapstructure:"APP_ENV"`

	SessionTimeout      time.Duration `mapstructure:"SESSION_TIMEOUT"`
	SweepInterval       time.Duration `mapstructure:"SESSION_SWEEP_INTERVAL"`
	SessionCacheSize    int           `mapstructure:"SESSION_CACHE_SIZE"`
	TrustProxyHeaders   bool          `mapstructure:"TRUST_PROXY_HEADERS"`
	RolePolicy          string        `mapstructure:"ROLE_POLICY"`
	RolePolicyRoles     string        `mapstructure:"ROLE_POLICY_ROLES"`
	RolePolicyMaxActive int           `mapstructure:"ROLE_POLICY_MAX_ACTIVE"`

	// StoreDriver selects the session backend: sqlite, mysql, redis, bolt or memory.
	StoreDriver string `mapstructure:"STORE_DRIVER"`
	// SQLitePath is the SQLite database file. Accounts live here unless the
	// driver is mysql or memory.
	SQLitePath string `mapstructure:"SQLITE_PATH"`
	// MySQLDSN is required when StoreDriver is mysql.
	MySQLDSN string `mapstructure:"MYSQL_DSN"`
	// RedisURL is required when StoreDriver is redis.
	RedisURL       string `mapstructure:"REDIS_URL"`
	RedisKeyPrefix string `mapstructure:"REDIS_KEY_PREFIX"`
	BoltPath       string `mapstructure:"BOLT_PATH"`

	// GeoIPDatabasePath points at a GeoLite2-City.mmdb; empty disables lookups.
	GeoIPDatabasePath string `mapstructure:"GEOIP_DATABASE_PATH"`

	JWTSecret string        `mapstructure:"JWT_SECRET"`
	JWTIssuer string        `mapstructure:"JWT_ISSUER"`
	JWTTTL    time.Duration `mapstructure:"JWT_TTL"`

	// AllowedOrigins is a comma-separated CORS allow list; empty allows any origin.
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8000")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("SESSION_TIMEOUT", "24h")
	v.SetDefault("SESSION_SWEEP_INTERVAL", "6h")
	v.SetDefault("SESSION_CACHE_SIZE", 1024)
	v.SetDefault("TRUST_PROXY_HEADERS", true)
	v.SetDefault("ROLE_POLICY", string(sessiongate.PolicyExclusive))
	v.SetDefault("ROLE_POLICY_ROLES", "admin,developer")
	v.SetDefault("ROLE_POLICY_MAX_ACTIVE", 3)
	v.SetDefault("STORE_DRIVER", DriverSQLite)
	v.SetDefault("SQLITE_PATH", "sessiongate.db")
	v.SetDefault("MYSQL_DSN", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_KEY_PREFIX", "sessiongate:")
	v.SetDefault("BOLT_PATH", "sessiongate.bolt")
	v.SetDefault("GEOIP_DATABASE_PATH", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "guardianentry")
	v.SetDefault("JWT_TTL", "1h")
	v.SetDefault("ALLOWED_ORIGINS", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.JWTSecret == "" {
		return errors.New("config: JWT_SECRET must be set")
	}
	if c.SessionTimeout <= 0 {
		return errors.New("config: SESSION_TIMEOUT must be positive")
	}
	if c.SweepInterval <= 0 {
		return errors.New("config: SESSION_SWEEP_INTERVAL must be positive")
	}
	if _, err := sessiongate.ParsePolicyMode(c.RolePolicy); err != nil {
		return fmt.Errorf("config: ROLE_POLICY: %w", err)
	}

	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	switch c.StoreDriver {
	case DriverSQLite, DriverBolt, DriverMemory:
	case DriverMySQL:
		if c.MySQLDSN == "" {
			return errors.New("config: MYSQL_DSN must be set when STORE_DRIVER=mysql")
		}
	case DriverRedis:
		if c.RedisURL == "" {
			return errors.New("config: REDIS_URL must be set when STORE_DRIVER=redis")
		}
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	}
	return nil
}

// IsDev reports whether the process runs in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "" || c.Env == "development"
}

// Policy returns the role admission policy.
func (c *Config) Policy() sessiongate.RolePolicy {
	mode, _ := sessiongate.ParsePolicyMode(c.RolePolicy)
	return sessiongate.RolePolicy{
		Mode:      mode,
		Roles:     splitList(c.RolePolicyRoles),
		MaxActive: c.RolePolicyMaxActive,
	}
}

// Origins returns the CORS allow list.
func (c *Config) Origins() []string {
	return splitList(c.AllowedOrigins)
}

// Gate returns the library configuration; the caller supplies the store and logger.
func (c *Config) Gate() sessiongate.Config {
	return sessiongate.Config{
		SessionTimeout:     c.SessionTimeout,
		SweepInterval:      c.SweepInterval,
		RolePolicy:         c.Policy(),
		CacheSize:          c.SessionCacheSize,
		IgnoreProxyHeaders: !c.TrustProxyHeaders,
		GeoIPDatabasePath:  c.GeoIPDatabasePath,
		DatabasePath:       c.SQLitePath,
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}

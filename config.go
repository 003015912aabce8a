package sessiongate

import (
	"fmt"
	"strings"
	"time"

	"github.com/guardianentry/sessiongate/store"
	"go.uber.org/zap"
)

// PolicyMode selects how role-level admission is enforced.
type PolicyMode string

const (
	// PolicyExclusive lets a new login of a governed role preempt every other
	// live session of that role.
	PolicyExclusive PolicyMode = "exclusive"

	// PolicyCapped rejects a new login of a governed role once MaxActive
	// sessions of that role are live. Nothing is evicted.
	PolicyCapped PolicyMode = "capped"

	// PolicyNone disables role-level admission.
	PolicyNone PolicyMode = "none"
)

// ParsePolicyMode converts a configuration string into a PolicyMode.
func ParsePolicyMode(s string) (PolicyMode, error) {
	switch mode := PolicyMode(strings.ToLower(strings.TrimSpace(s))); mode {
	case PolicyExclusive, PolicyCapped, PolicyNone:
		return mode, nil
	case "":
		return PolicyExclusive, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
	}
}

// RolePolicy describes which roles are subject to role-level admission and how.
type RolePolicy struct {
	// Mode is the enforcement mode.
	// Default: PolicyExclusive.
	Mode PolicyMode

	// Roles lists the governed roles, compared case-insensitively.
	// Default: admin, developer.
	Roles []string

	// MaxActive is the number of concurrently live sessions allowed per
	// governed role under PolicyCapped.
	// Default: 3.
	MaxActive int
}

// Governs reports whether role is subject to the policy.
func (p RolePolicy) Governs(role string) bool {
	if p.Mode == PolicyNone {
		return false
	}
	for _, r := range p.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// Config contains configuration options for a Gate.
type Config struct {
	// SessionTimeout is how long a session stays live without activity.
	// Default: 24 hours.
	SessionTimeout time.Duration

	// SweepInterval is how often the Sweeper purges expired sessions.
	// Default: 6 hours.
	SweepInterval time.Duration

	// RolePolicy controls role-level admission on login.
	RolePolicy RolePolicy

	// CacheSize bounds the in-process session cache.
	// Default: 1024 entries.
	CacheSize int

	// IgnoreProxyHeaders makes DeviceFromRequest use only RemoteAddr for the
	// client address. Leave false when running behind a reverse proxy.
	IgnoreProxyHeaders bool

	// GeoIPDatabasePath is the path to a MaxMind GeoLite2-City.mmdb file.
	// When empty, sessions are recorded with the IP address only.
	GeoIPDatabasePath string

	// SessionStore is the storage backend for sessions.
	// Default: SQLite store at DatabasePath.
	SessionStore store.SessionStore

	// DatabasePath is the path for the default SQLite database.
	// Only used if SessionStore is nil.
	// Default: "sessiongate.db".
	DatabasePath string

	// Logger receives operational logs.
	// Default: zap.NewNop().
	Logger *zap.Logger

	// Now returns the current time.
	// Default: time.Now.
	Now func() time.Time
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SessionTimeout: 24 * time.Hour,
		SweepInterval:  6 * time.Hour,
		RolePolicy: RolePolicy{
			Mode:      PolicyExclusive,
			Roles:     []string{"admin", "developer"},
			MaxActive: 3,
		},
		CacheSize:    1024,
		DatabasePath: "sessiongate.db",
	}
}

// applyDefaults fills in default values for zero-value fields.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.SessionTimeout <= 0 {
		c.SessionTimeout = defaults.SessionTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaults.SweepInterval
	}
	if c.RolePolicy.Mode == "" {
		c.RolePolicy.Mode = defaults.RolePolicy.Mode
	}
	if c.RolePolicy.Roles == nil {
		c.RolePolicy.Roles = defaults.RolePolicy.Roles
	}
	if c.RolePolicy.MaxActive <= 0 {
		c.RolePolicy.MaxActive = defaults.RolePolicy.MaxActive
	}
	if c.CacheSize <= 0 {
		c.CacheSize = defaults.CacheSize
	}
	if c.DatabasePath == "" {
		c.DatabasePath = defaults.DatabasePath
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

package sessiongate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/guardianentry/sessiongate/store"
)

// Gate enforces one live session per user and the configured role policy.
// It is safe for concurrent use.
type Gate struct {
	config   Config
	sessions store.SessionStore
	geoip    *GeoIPReader
	cache    *sessionCache
	log      *zap.Logger
	now      func() time.Time
}

// New creates a Gate with the given configuration.
// If SessionStore is nil, a SQLite store is opened at DatabasePath.
func New(cfg Config) (*Gate, error) {
	cfg.applyDefaults()

	cache, err := newSessionCache(cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("sessiongate: failed to create session cache: %w", err)
	}

	g := &Gate{
		config: cfg,
		cache:  cache,
		log:    cfg.Logger.Named("sessiongate"),
		now:    cfg.Now,
	}

	if cfg.SessionStore != nil {
		g.sessions = cfg.SessionStore
	} else {
		sqliteStore, err := store.NewSQLite(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("sessiongate: failed to initialize SQLite store: %w", err)
		}
		g.sessions = sqliteStore
	}

	if cfg.GeoIPDatabasePath != "" {
		geoip, err := NewGeoIPReader(cfg.GeoIPDatabasePath)
		if err != nil {
			g.sessions.Close()
			return nil, fmt.Errorf("sessiongate: failed to initialize GeoIP: %w", err)
		}
		g.geoip = geoip
	}

	return g, nil
}

// Close releases the session store and the GeoIP database.
func (g *Gate) Close() error {
	var errs []error
	if err := g.sessions.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := g.geoip.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("sessiongate: errors during close: %w", err)
	}
	return nil
}

// Timeout returns the configured session timeout.
func (g *Gate) Timeout() time.Duration {
	return g.config.SessionTimeout
}

// Policy returns the configured role policy.
func (g *Gate) Policy() RolePolicy {
	return g.config.RolePolicy
}

// DeviceFromRequest fingerprints the caller and resolves its location.
// Location contains only the IP when GeoIP is not configured.
func (g *Gate) DeviceFromRequest(r *http.Request) (DeviceInfo, LocationInfo) {
	device := ExtractDeviceInfo(r, !g.config.IgnoreProxyHeaders)
	return device, g.geoip.Locate(device.IP)
}

// DeviceID fingerprints the caller without parsing the user agent or
// resolving a location.
func (g *Gate) DeviceID(r *http.Request) string {
	return Fingerprint(MetadataFromRequest(r, !g.config.IgnoreProxyHeaders))
}

// load returns the live session for userID, or nil when there is none.
// A stale record is deleted before returning nil.
func (g *Gate) load(ctx context.Context, userID string) (*store.Session, error) {
	s, err := g.sessions.Get(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		g.cache.evict(userID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if now := g.now(); s.IsExpired(now, g.config.SessionTimeout) {
		g.log.Debug("removing stale session",
			zap.String("user_id", userID),
			zap.Time("last_activity", s.LastActivity),
		)
		if _, err := g.removeStale(ctx, userID, g.staleBefore(now)); err != nil {
			g.log.Warn("failed to remove stale session", zap.String("user_id", userID), zap.Error(err))
		}
		return nil, nil
	}

	if cached, ok := g.cache.get(userID); ok && cached.DeviceID != s.DeviceID {
		g.log.Debug("session cache out of date",
			zap.String("user_id", userID),
			zap.String("cached_device_id", cached.DeviceID),
			zap.String("device_id", s.DeviceID),
		)
	}
	g.cache.put(s)
	return s, nil
}

// liveByRole returns every live session with the given role, deleting stale
// records it encounters.
func (g *Gate) liveByRole(ctx context.Context, role string) ([]*store.Session, error) {
	sessions, err := g.sessions.ListByRole(ctx, strings.ToLower(role))
	if err != nil {
		return nil, err
	}

	now := g.now()
	live := sessions[:0]
	for _, s := range sessions {
		if s.IsExpired(now, g.config.SessionTimeout) {
			if _, err := g.removeStale(ctx, s.UserID, g.staleBefore(now)); err != nil {
				g.log.Warn("failed to remove stale session", zap.String("user_id", s.UserID), zap.Error(err))
			}
			continue
		}
		live = append(live, s)
	}
	return live, nil
}

// staleBefore returns the LastActivity cutoff below which a session is expired at now.
func (g *Gate) staleBefore(now time.Time) time.Time {
	return now.Add(-g.config.SessionTimeout)
}

// removeStale deletes the session for userID only if it is still stale, so a
// session written after the stale one was read survives.
func (g *Gate) removeStale(ctx context.Context, userID string, staleBefore time.Time) (bool, error) {
	g.cache.evict(userID)
	deleted, err := g.sessions.DeleteIfStale(ctx, userID, staleBefore)
	if err != nil {
		return false, fmt.Errorf("sessiongate: failed to delete stale session: %w", err)
	}
	return deleted, nil
}

// CheckActiveSession reports whether userID has a live session.
//
// Store failures are logged and reported as no active session so that a
// store outage does not block every request.
func (g *Gate) CheckActiveSession(ctx context.Context, userID string) ActiveSession {
	s, err := g.load(ctx, userID)
	if err != nil {
		g.log.Error("failed to check active session", zap.String("user_id", userID), zap.Error(err))
		return ActiveSession{}
	}
	if s == nil {
		return ActiveSession{}
	}
	return ActiveSession{
		Active:    true,
		DeviceID:  s.DeviceID,
		LoginTime: s.LoginTime,
		Session:   s,
	}
}

// CheckActiveSessionByRole returns the first live session holding role.
// Callers must not assume more than one match is impossible.
// Store failures are logged and reported as inactive.
func (g *Gate) CheckActiveSessionByRole(ctx context.Context, role string) RoleSession {
	live, err := g.liveByRole(ctx, role)
	if err != nil {
		g.log.Error("failed to check active session by role", zap.String("role", role), zap.Error(err))
		return RoleSession{}
	}
	if len(live) == 0 {
		return RoleSession{}
	}
	return RoleSession{
		Active:           true,
		ExistingUserID:   live[0].UserID,
		ExistingDeviceID: live[0].DeviceID,
	}
}

// ListSessions returns every live session.
func (g *Gate) ListSessions(ctx context.Context) ([]*store.Session, error) {
	sessions, err := g.sessions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("sessiongate: failed to list sessions: %w", err)
	}

	now := g.now()
	live := sessions[:0]
	for _, s := range sessions {
		if !s.IsExpired(now, g.config.SessionTimeout) {
			live = append(live, s)
		}
	}
	return live, nil
}

// CreateSession upserts the session for userID with fresh timestamps.
// It does not check for conflicts; use Admit for login admission.
func (g *Gate) CreateSession(ctx context.Context, userID, deviceID, role string) (*store.Session, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	now := g.now()
	s := &store.Session{
		UserID:       userID,
		Role:         strings.ToLower(role),
		DeviceID:     deviceID,
		LoginTime:    now,
		LastActivity: now,
	}
	if err := g.sessions.Put(ctx, s); err != nil {
		return nil, fmt.Errorf("sessiongate: failed to create session: %w", err)
	}
	g.cache.put(s)

	g.log.Info("session created",
		zap.String("user_id", userID),
		zap.String("device_id", deviceID),
		zap.String("role", s.Role),
	)
	return s, nil
}

// InvalidateSession deletes the session for userID, logging which device
// lost it.
func (g *Gate) InvalidateSession(ctx context.Context, userID string) error {
	prev, ok := g.cache.get(userID)
	if !ok {
		var err error
		prev, err = g.sessions.Get(ctx, userID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			g.log.Warn("failed to read session before invalidation", zap.String("user_id", userID), zap.Error(err))
		}
	}
	if prev != nil {
		g.log.Info("invalidating session",
			zap.String("user_id", userID),
			zap.String("device_id", prev.DeviceID),
		)
	}
	return g.DeleteSession(ctx, userID)
}

// DeleteSession removes the session for userID. Deleting an absent session
// is not an error.
func (g *Gate) DeleteSession(ctx context.Context, userID string) error {
	g.cache.evict(userID)
	if err := g.sessions.Delete(ctx, userID); err != nil {
		return fmt.Errorf("sessiongate: failed to delete session: %w", err)
	}
	return nil
}

// UpdateActivity moves LastActivity to now if a live session exists. It
// never creates a session and never revives an expired one.
func (g *Gate) UpdateActivity(ctx context.Context, userID string) error {
	now := g.now()
	if err := g.sessions.Touch(ctx, userID, now, g.staleBefore(now)); err != nil {
		return fmt.Errorf("sessiongate: failed to update activity: %w", err)
	}
	if cached, ok := g.cache.get(userID); ok && now.After(cached.LastActivity) {
		cached.LastActivity = now
		g.cache.put(cached)
	}
	return nil
}

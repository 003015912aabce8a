// Package httpapi exposes the session gate over HTTP with gin.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/guardianentry/sessiongate"
	"github.com/guardianentry/sessiongate/store"
)

// Verifier checks a raw bearer credential.
type Verifier interface {
	Verify(ctx context.Context, raw string) (sessiongate.Credential, error)
}

// Handler serves the auth and admin routes.
type Handler struct {
	gate     *sessiongate.Gate
	dir      *sessiongate.Directory
	verifier Verifier
	log      *zap.Logger
}

// NewHandler returns a Handler. A nil logger is replaced with a no-op logger.
func NewHandler(gate *sessiongate.Gate, dir *sessiongate.Directory, verifier Verifier, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{gate: gate, dir: dir, verifier: verifier, log: logger.Named("http")}
}

// Staff roles allowed on /admin.
var adminRoles = []string{"admin", "developer"}

// RegisterRoutes mounts the /auth and /admin routes on rg. Everything except
// login runs behind AuthGate; /admin also requires a staff role.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	gate := h.AuthGate()

	auth := rg.Group("/auth")
	auth.POST("/login", h.login)
	auth.POST("/logout", gate, h.logout)
	auth.GET("/profile", gate, h.profile)
	auth.GET("/session", gate, h.session)

	admin := rg.Group("/admin", gate, RequireRole(adminRoles...))
	admin.GET("/sessions", h.listSessions)
	admin.DELETE("/sessions/:userId", h.forceLogout)
}

type loginRequest struct {
	IDToken   string `json:"idToken"`
	PushToken string `json:"pushToken"`
}

type userView struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"fullName,omitempty"`
	Role     string `json:"role"`
}

type sessionView struct {
	UserID       string    `json:"userId"`
	Role         string    `json:"role,omitempty"`
	DeviceID     string    `json:"deviceId"`
	DeviceLabel  string    `json:"deviceLabel,omitempty"`
	IP           string    `json:"ip,omitempty"`
	City         string    `json:"city,omitempty"`
	Country      string    `json:"country,omitempty"`
	LoginTime    time.Time `json:"loginTime"`
	LastActivity time.Time `json:"lastActivity"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

func (h *Handler) viewSession(s *store.Session) sessionView {
	return sessionView{
		UserID:       s.UserID,
		Role:         s.Role,
		DeviceID:     s.DeviceID,
		DeviceLabel:  s.DeviceLabel,
		IP:           s.IP,
		City:         s.City,
		Country:      s.Country,
		LoginTime:    s.LoginTime,
		LastActivity: s.LastActivity,
		ExpiresAt:    s.LastActivity.Add(h.gate.Timeout()),
	}
}

func viewUser(id *sessiongate.Identity) userView {
	v := userView{ID: id.UserID, Email: id.Email, Role: id.Role}
	if id.Account != nil {
		v.FullName = id.Account.FullName
		if v.Email == "" {
			v.Email = id.Account.Email
		}
	}
	return v
}

// GET /
func health(c *gin.Context) {
	ok(c, gin.H{"message": "sessiongate is running"})
}

// POST /auth/login
func (h *Handler) login(c *gin.Context) {
	ctx := c.Request.Context()

	var req loginRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body")
			return
		}
	}
	raw := NormalizeToken(req.IDToken)
	if raw == "" {
		raw = NormalizeToken(c.GetHeader("Authorization"))
	}
	if raw == "" {
		badRequest(c, "ID token is required")
		return
	}

	cred, err := h.verifier.Verify(ctx, raw)
	if err != nil {
		h.log.Debug("login credential rejected", zap.Error(err))
		unauthorized(c, CodeUnauthorized, "Invalid or expired token")
		return
	}

	id, err := h.dir.Resolve(ctx, cred)
	if errors.Is(err, sessiongate.ErrAccountNotFound) {
		abort(c, http.StatusNotFound, CodeUnknownAccount, "No account is registered for this user")
		return
	}
	if err != nil {
		h.internalError(c, err)
		return
	}

	device, location := h.gate.DeviceFromRequest(c.Request)
	adm, err := h.gate.Admit(ctx, sessiongate.LoginRequest{
		UserID:   id.UserID,
		Role:     id.Role,
		Device:   device,
		Location: location,
	})
	if err != nil {
		h.internalError(c, err)
		return
	}

	switch adm.Outcome {
	case sessiongate.OutcomeConflict:
		abortWith(c, http.StatusForbidden, CodeSessionActive,
			"This account is already logged in on another device. Log out there first.",
			gin.H{
				"loginTime": adm.Existing.LoginTime,
				"device": gin.H{
					"label":   adm.Existing.DeviceLabel,
					"city":    adm.Existing.City,
					"country": adm.Existing.Country,
				},
			})
		return
	case sessiongate.OutcomeRoleLimit:
		abortWith(c, http.StatusTooManyRequests, CodeRoleLimit,
			"Too many active sessions for this role. Try again later.",
			gin.H{
				"activeCount": adm.ActiveCount,
				"maxActive":   h.gate.Policy().MaxActive,
			})
		return
	}

	if err := h.dir.RecordLogin(ctx, id.UserID, req.PushToken); err != nil {
		h.log.Warn("failed to record login", zap.String("user_id", id.UserID), zap.Error(err))
	}

	evicted := adm.Evicted
	if evicted == nil {
		evicted = []string{}
	}
	ok(c, gin.H{
		"message": "Login successful",
		"user":    viewUser(id),
		"session": h.viewSession(adm.Session),
		"evicted": evicted,
	})
}

// POST /auth/logout
func (h *Handler) logout(c *gin.Context) {
	id := CurrentIdentity(c)
	if err := h.gate.DeleteSession(c.Request.Context(), id.UserID); err != nil {
		h.internalError(c, err)
		return
	}
	h.dir.RecordLogout(c.Request.Context(), id.UserID)
	ok(c, gin.H{"message": "Logged out"})
}

// GET /auth/profile
func (h *Handler) profile(c *gin.Context) {
	id := CurrentIdentity(c)
	account, err := h.dir.Account(c.Request.Context(), id.UserID)
	if errors.Is(err, sessiongate.ErrAccountNotFound) {
		notFound(c, "Account not found")
		return
	}
	if err != nil {
		h.internalError(c, err)
		return
	}
	ok(c, gin.H{
		"id":          account.ID,
		"email":       account.Email,
		"fullName":    account.FullName,
		"role":        id.Role,
		"lastLoginAt": account.LastLoginAt,
	})
}

// GET /auth/session
func (h *Handler) session(c *gin.Context) {
	id := CurrentIdentity(c)
	active := h.gate.CheckActiveSession(c.Request.Context(), id.UserID)
	if !active.Active {
		// The session vanished between the gate and here.
		unauthorized(c, CodeNoSession, "No active session. Please log in again.")
		return
	}
	ok(c, gin.H{
		"active":  true,
		"current": active.DeviceID == CurrentDeviceID(c),
		"session": h.viewSession(active.Session),
	})
}

// GET /admin/sessions
func (h *Handler) listSessions(c *gin.Context) {
	sessions, err := h.gate.ListSessions(c.Request.Context())
	if err != nil {
		h.internalError(c, err)
		return
	}
	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, h.viewSession(s))
	}
	ok(c, gin.H{"count": len(views), "sessions": views})
}

// DELETE /admin/sessions/:userId
func (h *Handler) forceLogout(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.Param("userId")

	if !h.gate.CheckActiveSession(ctx, userID).Active {
		notFound(c, "No active session for this user")
		return
	}
	if err := h.gate.InvalidateSession(ctx, userID); err != nil {
		h.internalError(c, err)
		return
	}
	h.dir.RecordLogout(ctx, userID)

	h.log.Info("session revoked",
		zap.String("user_id", userID),
		zap.String("revoked_by", CurrentIdentity(c).UserID),
	)
	ok(c, gin.H{"message": "Session revoked", "userId": userID})
}

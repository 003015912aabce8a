package httpapi

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guardianentry/sessiongate"
)

const (
	ContextKeyIdentity  = "identity"
	ContextKeyDeviceID  = "device_id"
	ContextKeyRequestID = "request_id"

	headerRequestID = "X-Request-ID"
)

// RequestIDMiddleware propagates an inbound X-Request-ID or assigns a new one.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(headerRequestID))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(ContextKeyRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

// Logger returns a Gin middleware that logs each request using zap.
func Logger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Info("request",
			zap.String("request_id", RequestID(c)),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}

// AuthGate verifies the bearer credential, resolves the account and checks
// that the calling device owns the account's live session. On success the
// identity and device ID are stored on the context and activity is refreshed.
func (h *Handler) AuthGate() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		raw := NormalizeToken(c.GetHeader("Authorization"))
		if raw == "" {
			unauthorized(c, CodeUnauthorized, "Authorization token missing")
			return
		}
		cred, err := h.verifier.Verify(ctx, raw)
		if err != nil {
			h.log.Debug("credential rejected", zap.Error(err))
			unauthorized(c, CodeUnauthorized, "Invalid or expired token")
			return
		}

		id, err := h.dir.Resolve(ctx, cred)
		if errors.Is(err, sessiongate.ErrAccountNotFound) {
			unauthorized(c, CodeUnknownAccount, "No account is linked to this credential")
			return
		}
		if err != nil {
			h.internalError(c, err)
			return
		}

		deviceID := h.gate.DeviceID(c.Request)
		verdict, err := h.gate.Authorize(ctx, id.UserID, deviceID)
		if err != nil {
			h.internalError(c, err)
			return
		}
		switch verdict {
		case sessiongate.VerdictNoSession:
			unauthorized(c, CodeNoSession, "No active session. Please log in again.")
			return
		case sessiongate.VerdictDeviceMismatch:
			unauthorized(c, CodeSessionDeviceMismatch, "This account is logged in on another device.")
			return
		}

		c.Set(ContextKeyIdentity, id)
		c.Set(ContextKeyDeviceID, deviceID)
		c.Next()
	}
}

// RequireRole rejects requests whose authenticated role is not in roles.
// It must run after AuthGate.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := CurrentIdentity(c)
		if id == nil || id.Role == "" {
			forbidden(c, "Access denied")
			return
		}
		for _, r := range roles {
			if strings.EqualFold(r, id.Role) {
				c.Next()
				return
			}
		}
		forbidden(c, "You do not have permission")
	}
}

// CurrentIdentity returns the identity stored by AuthGate, or nil.
func CurrentIdentity(c *gin.Context) *sessiongate.Identity {
	v, _ := c.Get(ContextKeyIdentity)
	id, _ := v.(*sessiongate.Identity)
	return id
}

// CurrentDeviceID returns the device fingerprint stored by AuthGate.
func CurrentDeviceID(c *gin.Context) string {
	return c.GetString(ContextKeyDeviceID)
}

// RequestID returns the request ID assigned by RequestIDMiddleware.
func RequestID(c *gin.Context) string {
	return c.GetString(ContextKeyRequestID)
}

// NormalizeToken trims spaces and strips optional Bearer prefix.
func NormalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}

package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Machine-readable error codes returned in the "code" field.
const (
	CodeBadRequest            = "BAD_REQUEST"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeUnknownAccount        = "UNKNOWN_ACCOUNT"
	CodeNoSession             = "NO_SESSION"
	CodeSessionDeviceMismatch = "SESSION_DEVICE_MISMATCH"
	CodeForbidden             = "FORBIDDEN"
	CodeNotFound              = "NOT_FOUND"
	CodeSessionActive         = "SESSION_ACTIVE"
	CodeRoleLimit             = "ROLE_LIMIT"
	CodeInternal              = "INTERNAL"
)

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"ok": 0, "code": code, "message": message})
}

// abortWith sends an error body with extra fields merged in.
func abortWith(c *gin.Context, status int, code, message string, extra gin.H) {
	body := gin.H{"ok": 0, "code": code, "message": message}
	for k, v := range extra {
		body[k] = v
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, message string) {
	abort(c, http.StatusBadRequest, CodeBadRequest, message)
}

func unauthorized(c *gin.Context, code, message string) {
	abort(c, http.StatusUnauthorized, code, message)
}

func forbidden(c *gin.Context, message string) {
	abort(c, http.StatusForbidden, CodeForbidden, message)
}

func notFound(c *gin.Context, message string) {
	abort(c, http.StatusNotFound, CodeNotFound, message)
}

// internalError logs err and sends a generic 500; store details stay server-side.
func (h *Handler) internalError(c *gin.Context, err error) {
	h.log.Error("request failed",
		zap.String("request_id", RequestID(c)),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	abort(c, http.StatusInternalServerError, CodeInternal, "Server error")
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

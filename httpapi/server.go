package httpapi

import (
	"net/url"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/guardianentry/sessiongate"
)

// Options configures NewRouter.
type Options struct {
	Gate      *sessiongate.Gate
	Directory *sessiongate.Directory
	Verifier  Verifier
	Logger    *zap.Logger

	// AllowedOrigins holds exact hosts or wildcard patterns ("*.example.com",
	// "localhost:*"). Empty allows every origin.
	AllowedOrigins []string
	Dev            bool
}

// NewRouter builds the gin engine with middleware and every route mounted.
func NewRouter(opts Options) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if opts.Dev {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(Logger(logger))

	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", headerRequestID},
		ExposeHeaders: []string{"Content-Length", headerRequestID},
	}
	// Credentials are only allowed for an explicit allow list.
	if patterns := opts.AllowedOrigins; len(patterns) > 0 {
		corsConfig.AllowCredentials = true
		corsConfig.AllowOriginFunc = func(origin string) bool {
			host := extractOriginHost(origin)
			for _, pattern := range patterns {
				if matchOriginPattern(pattern, host) {
					return true
				}
			}
			return false
		}
	} else {
		corsConfig.AllowOriginFunc = func(string) bool { return true }
	}
	router.Use(cors.New(corsConfig))

	router.NoRoute(func(c *gin.Context) { notFound(c, "Route not found") })
	router.GET("/", health)

	h := NewHandler(opts.Gate, opts.Directory, opts.Verifier, logger)
	h.RegisterRoutes(router.Group("/api"))
	return router
}

func extractOriginHost(origin string) string {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return origin
	}
	return u.Host
}

// matchOriginPattern reports whether host matches pattern. A pattern may be
// a full origin, a host, "*.suffix" or "prefix:*".
func matchOriginPattern(pattern, host string) bool {
	pattern = extractOriginHost(pattern)
	if pattern == host {
		return true
	}
	if strings.HasPrefix(pattern, "*.") {
		return strings.HasSuffix(host, pattern[1:])
	}
	if strings.HasSuffix(pattern, ":*") {
		return strings.HasPrefix(host, pattern[:len(pattern)-1])
	}
	return false
}

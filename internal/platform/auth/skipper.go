package auth

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// publicPaths lists URL paths that should bypass authentication and tenant
// resolution. These are infrastructure endpoints (health checks, metrics)
// that must be accessible without credentials.
var publicPaths = map[string]bool{
	"/health":    true,
	"/health/db": true,
	"/metrics":   true,
}

// AuthSkipper returns true for requests whose path should skip authentication.
// Pass this function as the Skipper on JWTConfig or DevAuthMiddleware so that
// health-check and metrics endpoints remain accessible without a bearer token
// or tenant context. Shared-report endpoints use their own unauthenticated
// route group and do not rely on the skipper.
func AuthSkipper(c echo.Context) bool {
	if strings.HasPrefix(c.Path(), "/api/v1/shared/") {
		return true
	}
	return publicPaths[c.Path()]
}

// IsPublicPath reports whether the given path is a public infrastructure
// endpoint that should bypass auth and tenant middleware.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}

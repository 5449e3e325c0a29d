package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// publicPaths bypass authentication: health checks, metrics, API discovery and login.
var publicPaths = map[string]bool{
	"/health":       true,
	"/health/db":    true,
	"/metrics":      true,
	"/openapi.json": true,
}

// publicRoutes are anonymous entry points of the API, keyed by method and
// route: registration, login and refresh.
var publicRoutes = map[string]bool{
	http.MethodPost + " /identity/accounts":   true,
	http.MethodPost + " /auth/token":          true,
	http.MethodPut + " /auth/token/:username": true,
	http.MethodGet + " /":                     true,
}

// AuthSkipper returns true for requests whose route should skip
// authentication.
func AuthSkipper(c echo.Context) bool {
	path := c.Path()
	if publicPaths[path] {
		return true
	}
	return publicRoutes[c.Request().Method+" "+path]
}

// IsPublicPath reports whether the given path is an infrastructure endpoint.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}

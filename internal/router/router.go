package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront/internal/handler"
	"github.com/iliyamo/storefront/internal/middleware"
)

// RegisterRoutes registers unauthenticated operational routes.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db))
}

// RegisterAuth registers the session routes. Register, login and refresh
// live under /v1/auth without a bearer token; the rest require one.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, v middleware.AccessVerifier) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)

	auth := e.Group("/v1/auth", middleware.JWTAuth(v))
	auth.POST("/logout", a.Logout)
	auth.GET("/me", a.Me)
	auth.POST("/password", a.ChangePassword)
}

// RegisterPublic registers guest-facing catalog routes. cache wraps search
// only; pass nil to disable it.
func RegisterPublic(e *echo.Echo, s *handler.SearchHandler, cache echo.MiddlewareFunc) {
	if cache == nil {
		e.GET("/v1/search", s.Products)
		return
	}
	e.GET("/v1/search", s.Products, cache)
}

package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront/internal/handler"
	"github.com/iliyamo/storefront/internal/middleware"
	"github.com/iliyamo/storefront/internal/model"
)

// RegisterAdmin registers operator routes, restricted to the ADMIN role.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, v middleware.AccessVerifier) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(v),
		middleware.RequireRole(model.RoleAdmin),
	)
	g.POST("/users/:id/revoke-sessions", h.RevokeSessions)
}

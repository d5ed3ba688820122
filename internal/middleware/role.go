package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront/internal/httpx"
)

// RequireRole rejects requests whose access token role is not one of roles.
// It must run after JWTAuth.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !allowed[httpx.Role(c)] {
				return httpx.FailStatus(c, http.StatusForbidden, "forbidden", "forbidden", "")
			}
			return next(c)
		}
	}
}

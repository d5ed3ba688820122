package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront/internal/httpx"
	"github.com/iliyamo/storefront/internal/logger"
	"github.com/iliyamo/storefront/internal/service"
	"github.com/iliyamo/storefront/internal/utils"
)

// AccessVerifier validates an access token without touching storage.
type AccessVerifier interface {
	VerifyAccess(raw string) (utils.AccessClaims, error)
}

// JWTAuth validates the Bearer access token and stores the subject, role and
// token family in the context (see httpx.UserID, httpx.Role, httpx.Family).
// An expired token answers expired_access so clients refresh silently; any
// other failure answers invalid_access.
func JWTAuth(v AccessVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			raw, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				return httpx.Fail(c, &service.Error{Kind: service.KindInvalidAccess, Message: "missing bearer token"})
			}
			claims, err := v.VerifyAccess(strings.TrimSpace(raw))
			if err != nil {
				return httpx.Fail(c, err)
			}
			uid, err := claims.UserID()
			if err != nil || uid == 0 {
				return httpx.Fail(c, &service.Error{Kind: service.KindInvalidAccess, Message: "invalid subject"})
			}
			c.Set(httpx.KeyUserID, uid)
			c.Set(httpx.KeyRole, claims.Role)
			c.Set(httpx.KeyFamily, claims.Family)

			req := c.Request()
			l := logger.From(req.Context()).With(logger.UserID(uid))
			c.SetRequest(req.WithContext(logger.ToContext(req.Context(), l)))
			return next(c)
		}
	}
}

package middleware

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront/internal/httpx"
)

// identity returns the key used to attribute a request to a caller: the
// user id when authenticated, "anon" otherwise.
func identity(c echo.Context) string {
	if id, ok := httpx.UserID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}

// bearerIdentity is identity for middleware that runs ahead of JWTAuth: when
// no subject is set yet it uses the subject of a valid bearer token. Invalid
// or expired tokens count as "anon".
func bearerIdentity(c echo.Context, v AccessVerifier) string {
	if id := identity(c); id != "anon" || v == nil {
		return id
	}
	raw, ok := strings.CutPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
	if !ok {
		return "anon"
	}
	claims, err := v.VerifyAccess(strings.TrimSpace(raw))
	if err != nil {
		return "anon"
	}
	uid, err := claims.UserID()
	if err != nil || uid == 0 {
		return "anon"
	}
	return strconv.FormatUint(uid, 10)
}

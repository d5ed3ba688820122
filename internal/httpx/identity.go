package httpx

import "github.com/labstack/echo/v4"

// Context keys set by the JWT middleware.
const (
	KeyUserID = "user_id"
	KeyRole   = "role"
	KeyFamily = "family"
)

// UserID returns the authenticated user id.
func UserID(c echo.Context) (uint64, bool) {
	id, ok := c.Get(KeyUserID).(uint64)
	return id, ok && id != 0
}

// Role returns the authenticated user's role, or "".
func Role(c echo.Context) string {
	r, _ := c.Get(KeyRole).(string)
	return r
}

// Family returns the token family of the current session, or "".
func Family(c echo.Context) string {
	f, _ := c.Get(KeyFamily).(string)
	return f
}

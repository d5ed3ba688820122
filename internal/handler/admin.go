package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront/internal/httpx"
	"github.com/iliyamo/storefront/internal/service"
)

// AdminHandler holds operator endpoints. Routes must be guarded by
// RequireRole(model.RoleAdmin).
type AdminHandler struct {
	Tokens *service.TokenService
}

func NewAdminHandler(t *service.TokenService) *AdminHandler { return &AdminHandler{Tokens: t} }

// RevokeSessions ends every session of the user in the path.
func (h *AdminHandler) RevokeSessions(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return httpx.Fail(c, &service.Error{Kind: service.KindValidation, Message: "invalid user id"})
	}
	if err := h.Tokens.RevokeAll(c.Request().Context(), id); err != nil {
		return httpx.Fail(c, err)
	}
	return httpx.OK(c, http.StatusOK, "sessions revoked", nil)
}

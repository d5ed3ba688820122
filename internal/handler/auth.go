package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront/internal/httpx"
	"github.com/iliyamo/storefront/internal/logger"
	"github.com/iliyamo/storefront/internal/model"
	"github.com/iliyamo/storefront/internal/service"
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Tokens *service.TokenService
	Cart   *service.CartService
}

func NewAuthHandler(t *service.TokenService, cart *service.CartService) *AuthHandler {
	return &AuthHandler{Tokens: t, Cart: cart}
}

// ----- DTOs -----

type registerReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginReq struct {
	Email     string            `json:"email"`
	Password  string            `json:"password"`
	GuestCart []model.GuestLine `json:"guestCart"`
}

type refreshReq struct {
	RefreshToken string `json:"refreshToken"`
}

type passwordReq struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type userPart struct {
	ID        uint64    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

type authResp struct {
	User   userPart             `json:"user"`
	Tokens service.Pair         `json:"tokens"`
	Merge  *service.MergeResult `json:"merge,omitempty"`
}

func toUserPart(u model.User) userPart {
	return userPart{ID: u.ID, Email: u.Email, Role: u.Role, CreatedAt: u.CreatedAt}
}

func badBody() error {
	return &service.Error{Kind: service.KindValidation, Message: "invalid body"}
}

// Register creates a customer account and signs it in.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return httpx.Fail(c, badBody())
	}
	ctx := c.Request().Context()
	u, err := h.Tokens.Register(ctx, req.Email, req.Password)
	if err != nil {
		return httpx.Fail(c, err)
	}
	pair, err := h.Tokens.IssuePair(ctx, u)
	if err != nil {
		return httpx.Fail(c, err)
	}
	return httpx.OK(c, http.StatusCreated, "registered", authResp{User: toUserPart(u), Tokens: pair})
}

// Login verifies credentials, starts a new session and folds the guest cart
// into the stored cart. A failed merge does not fail the login.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return httpx.Fail(c, badBody())
	}
	ctx := c.Request().Context()
	u, pair, err := h.Tokens.Login(ctx, req.Email, req.Password)
	if err != nil {
		return httpx.Fail(c, err)
	}
	resp := authResp{User: toUserPart(u), Tokens: pair}
	if len(req.GuestCart) > 0 && h.Cart != nil {
		merged, err := h.Cart.MergeGuestCart(ctx, u.ID, req.GuestCart)
		if err != nil {
			logger.From(ctx).Warn("guest cart merge failed", logger.UserID(u.ID), logger.Err(err))
		} else {
			resp.Merge = &merged
		}
	}
	return httpx.OK(c, http.StatusOK, "logged in", resp)
}

// Refresh exchanges a refresh token for a new pair in the same family.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil {
		return httpx.Fail(c, badBody())
	}
	pair, err := h.Tokens.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return httpx.Fail(c, err)
	}
	return httpx.OK(c, http.StatusOK, "refreshed", pair)
}

// Logout revokes the session the access token belongs to.
func (h *AuthHandler) Logout(c echo.Context) error {
	uid, _ := httpx.UserID(c)
	if err := h.Tokens.RevokeFamily(c.Request().Context(), uid, httpx.Family(c)); err != nil {
		return httpx.Fail(c, err)
	}
	return httpx.OK(c, http.StatusOK, "logged out", nil)
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(c echo.Context) error {
	uid, _ := httpx.UserID(c)
	u, err := h.Tokens.Me(c.Request().Context(), uid)
	if err != nil {
		return httpx.Fail(c, err)
	}
	return httpx.OK(c, http.StatusOK, "ok", toUserPart(u))
}

// ChangePassword replaces the password, ends every session and returns a
// pair for the caller's new session.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	var req passwordReq
	if err := c.Bind(&req); err != nil {
		return httpx.Fail(c, badBody())
	}
	uid, _ := httpx.UserID(c)
	pair, err := h.Tokens.ChangePassword(c.Request().Context(), uid, req.CurrentPassword, req.NewPassword)
	if err != nil {
		return httpx.Fail(c, err)
	}
	return httpx.OK(c, http.StatusOK, "password changed", pair)
}

package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront/internal/httpx"
	"github.com/iliyamo/storefront/internal/model"
	"github.com/iliyamo/storefront/internal/service"
)

// CartHandler serves the authenticated user's cart. Every response carries
// the full cart as recomputed from live prices.
type CartHandler struct {
	Cart *service.CartService
}

func NewCartHandler(cart *service.CartService) *CartHandler { return &CartHandler{Cart: cart} }

type cartItemReq struct {
	ProductID uint64 `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type mergeReq struct {
	Lines []model.GuestLine `json:"lines"`
}

// Get returns the cart.
func (h *CartHandler) Get(c echo.Context) error {
	uid, _ := httpx.UserID(c)
	cart, err := h.Cart.GetCart(c.Request().Context(), uid)
	if err != nil {
		return httpx.Fail(c, err)
	}
	return httpx.OK(c, http.StatusOK, "ok", cart)
}

// SetItem adds a product or changes its quantity.
func (h *CartHandler) SetItem(c echo.Context) error {
	var req cartItemReq
	if err := c.Bind(&req); err != nil {
		return httpx.Fail(c, badBody())
	}
	if req.ProductID == 0 {
		return httpx.Fail(c, &service.Error{Kind: service.KindValidation, Message: "productId is required"})
	}
	uid, _ := httpx.UserID(c)
	up, err := h.Cart.AddOrUpdate(c.Request().Context(), uid, req.ProductID, req.Quantity)
	if err != nil {
		return httpx.Fail(c, err)
	}
	msg := "cart updated"
	if up.Clamped {
		msg = "quantity reduced to available stock"
	}
	return httpx.OK(c, http.StatusOK, msg, up)
}

// RemoveItem deletes a line. Removing an absent line succeeds.
func (h *CartHandler) RemoveItem(c echo.Context) error {
	pid, err := strconv.ParseUint(c.Param("productId"), 10, 64)
	if err != nil || pid == 0 {
		return httpx.Fail(c, &service.Error{Kind: service.KindValidation, Message: "invalid productId"})
	}
	uid, _ := httpx.UserID(c)
	cart, err := h.Cart.Remove(c.Request().Context(), uid, pid)
	if err != nil {
		return httpx.Fail(c, err)
	}
	return httpx.OK(c, http.StatusOK, "item removed", cart)
}

// Merge folds a guest cart into the stored cart.
func (h *CartHandler) Merge(c echo.Context) error {
	var req mergeReq
	if err := c.Bind(&req); err != nil {
		return httpx.Fail(c, badBody())
	}
	uid, _ := httpx.UserID(c)
	res, err := h.Cart.MergeGuestCart(c.Request().Context(), uid, req.Lines)
	if err != nil {
		return httpx.Fail(c, err)
	}
	return httpx.OK(c, http.StatusOK, "cart merged", res)
}

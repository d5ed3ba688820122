package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront/internal/httpx"
	"github.com/iliyamo/storefront/internal/service"
)

// HeaderIdempotencyKey may carry the checkout key instead of the body.
const HeaderIdempotencyKey = "Idempotency-Key"

// OrderHandler serves checkout and order history.
type OrderHandler struct {
	Orders *service.OrderService
}

func NewOrderHandler(o *service.OrderService) *OrderHandler { return &OrderHandler{Orders: o} }

type checkoutReq struct {
	AddressID      uint64 `json:"addressId"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// Checkout places an order. A new order answers 201, a replayed key 200.
// A stock rejection answers 409 with the stored order and the itemized
// shortages, for the first attempt and for every replay.
func (h *OrderHandler) Checkout(c echo.Context) error {
	var req checkoutReq
	if err := c.Bind(&req); err != nil {
		return httpx.Fail(c, badBody())
	}
	key := strings.TrimSpace(c.Request().Header.Get(HeaderIdempotencyKey))
	if key == "" {
		key = req.IdempotencyKey
	}
	uid, _ := httpx.UserID(c)
	res, err := h.Orders.Checkout(c.Request().Context(), service.CheckoutRequest{
		UserID:         uid,
		AddressID:      req.AddressID,
		IdempotencyKey: key,
	})
	if err != nil {
		var se *service.Error
		if errors.As(err, &se) && se.Kind == service.KindInsufficientStock && res.Order.ID != "" {
			return httpx.FailData(c, http.StatusConflict, string(se.Kind), se.Message, se.Action, map[string]any{
				"order":     res.Order,
				"shortages": se.Shortages,
				"replayed":  res.Replayed,
			})
		}
		return httpx.Fail(c, err)
	}
	if res.Replayed {
		return httpx.OK(c, http.StatusOK, "order already placed", res.Order)
	}
	return httpx.OK(c, http.StatusCreated, "order placed", res.Order)
}

// List returns the caller's orders.
func (h *OrderHandler) List(c echo.Context) error {
	uid, _ := httpx.UserID(c)
	out, err := h.Orders.ListOrders(c.Request().Context(), uid)
	if err != nil {
		return httpx.Fail(c, err)
	}
	return httpx.OK(c, http.StatusOK, "ok", out)
}

// Get returns one of the caller's orders.
func (h *OrderHandler) Get(c echo.Context) error {
	uid, _ := httpx.UserID(c)
	o, err := h.Orders.GetOrder(c.Request().Context(), uid, c.Param("id"))
	if err != nil {
		return httpx.Fail(c, err)
	}
	return httpx.OK(c, http.StatusOK, "ok", o)
}

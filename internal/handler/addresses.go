package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront/internal/httpx"
	"github.com/iliyamo/storefront/internal/model"
	"github.com/iliyamo/storefront/internal/service"
)

type AddressHandler struct {
	Addresses *service.AddressService
}

func NewAddressHandler(a *service.AddressService) *AddressHandler {
	return &AddressHandler{Addresses: a}
}

type addressReq struct {
	Line1      string `json:"line1"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

func (h *AddressHandler) List(c echo.Context) error {
	uid, _ := httpx.UserID(c)
	out, err := h.Addresses.List(c.Request().Context(), uid)
	if err != nil {
		return httpx.Fail(c, err)
	}
	return httpx.OK(c, http.StatusOK, "ok", out)
}

func (h *AddressHandler) Create(c echo.Context) error {
	var req addressReq
	if err := c.Bind(&req); err != nil {
		return httpx.Fail(c, badBody())
	}
	uid, _ := httpx.UserID(c)
	a, err := h.Addresses.Create(c.Request().Context(), model.Address{
		UserID:     uid,
		Line1:      req.Line1,
		City:       req.City,
		PostalCode: req.PostalCode,
		Country:    req.Country,
		IsActive:   true,
	})
	if err != nil {
		return httpx.Fail(c, err)
	}
	return httpx.OK(c, http.StatusCreated, "address created", a)
}

// Delete deactivates an address; orders that reference it keep the id.
func (h *AddressHandler) Delete(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return httpx.Fail(c, &service.Error{Kind: service.KindValidation, Message: "invalid address id"})
	}
	uid, _ := httpx.UserID(c)
	if err := h.Addresses.Delete(c.Request().Context(), uid, id); err != nil {
		return httpx.Fail(c, err)
	}
	return httpx.OK(c, http.StatusOK, "address deleted", nil)
}

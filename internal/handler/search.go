package handler

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront/internal/httpx"
	"github.com/iliyamo/storefront/internal/service"
)

// SearchHandler serves public product search.
type SearchHandler struct {
	Search *service.SearchService
}

func NewSearchHandler(s *service.SearchService) *SearchHandler { return &SearchHandler{Search: s} }

// Products handles GET /search?q=&page=. A missing or malformed page is
// treated as page 1.
func (h *SearchHandler) Products(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	res, err := h.Search.Search(c.Request().Context(), c.QueryParam("q"), page)
	if err != nil {
		return httpx.Fail(c, err)
	}
	return httpx.Paged(c, "ok", res.Items, res.Page, res.TotalPages)
}

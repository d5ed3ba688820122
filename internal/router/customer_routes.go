package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront/internal/handler"
	"github.com/iliyamo/storefront/internal/middleware"
	"github.com/iliyamo/storefront/internal/model"
)

// RegisterCustomer registers the cart, checkout and address routes. All of
// them require a valid access token of a customer or an admin.
func RegisterCustomer(e *echo.Echo, cart *handler.CartHandler, orders *handler.OrderHandler,
	addresses *handler.AddressHandler, v middleware.AccessVerifier) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(v),
		middleware.RequireRole(model.RoleCustomer, model.RoleAdmin),
	)
	g.GET("/cart", cart.Get)
	g.POST("/cart/items", cart.SetItem)
	g.DELETE("/cart/items/:productId", cart.RemoveItem)
	g.POST("/cart/merge", cart.Merge)

	g.POST("/orders", orders.Checkout)
	g.GET("/orders", orders.List)
	g.GET("/orders/:id", orders.Get)

	g.GET("/addresses", addresses.List)
	g.POST("/addresses", addresses.Create)
	g.DELETE("/addresses/:id", addresses.Delete)
}

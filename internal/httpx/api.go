package httpx

import (
	"net/http"

	"github.com/ariefcatur/harvest-market/internal/auctions"
	"github.com/ariefcatur/harvest-market/internal/orders"
	"github.com/ariefcatur/harvest-market/internal/payments"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// API serves the REST surface. Redis is optional: without it there is no
// idempotency short-circuit and no status cache.
type API struct {
	Auctions *auctions.Service
	Orders   *orders.Service
	Payments *payments.Service
	Socket   http.Handler
	Redis    *redis.Client
	Log      *zap.Logger
}

func (a *API) log() *zap.Logger {
	if a.Log == nil {
		return zap.NewNop()
	}
	return a.Log
}

func (a *API) Register(r chi.Router) {
	if a.Socket != nil {
		// upgrade websocket di luar middleware timeout
		r.Get("/ws/auctions", a.Socket.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Get("/auctions", a.listAuctions)
		r.Post("/auctions", a.createAuction)
		r.Get("/auctions/{id}", a.getAuction)
		r.Post("/auctions/{id}/bid", a.placeBid)
		r.Post("/auctions/{id}/close", a.closeAuction)

		r.Get("/products", a.listProducts)
		r.Post("/products", a.createProduct)
		r.Put("/products/{id}/inventory", a.setInventory)
		r.Get("/inventory", a.listInventory)

		r.Get("/cart", a.getCart)
		r.Post("/cart/items", a.addCartItem)
		r.Patch("/cart/items", a.updateCartItem)
		r.Delete("/cart/items/{productID}", a.removeCartItem)

		r.Post("/orders", a.createOrder)
		r.Get("/orders/{id}", a.getOrder)
		r.Get("/orders/{id}/status", a.getOrderStatus)
		r.Patch("/orders/{id}/cancel", a.cancelOrder)
		r.Patch("/orders/{id}/status", a.advanceOrder)

		if a.Payments != nil {
			r.Post("/payments/webhook", a.paymentWebhook)
			r.Post("/payments/intents", a.createPaymentIntent)
		}
	})
}

package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// NewRouter собирает маршруты API с прослойками аутентификации,
// авторизации, rate limiting и idempotency.
func NewRouter(handler *Handler, mw *Middleware) http.Handler {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		// Каталог открыт для чтения.
		r.Get("/products", handler.ListProducts)
		r.Get("/products/{id}", handler.GetProduct)

		// Webhook аутентифицируется подписью, не токеном.
		r.Post("/payments/stripe-webhook", handler.StripeWebhook)

		r.Group(func(r chi.Router) {
			r.Use(mw.RequireUser)
			r.Use(mw.RateLimit)

			r.Post("/orders/quote", handler.Quote)
			r.With(mw.Idempotency).Post("/orders", handler.CreateOrder)
			r.Get("/orders/my-orders", handler.MyOrders)
			r.Post("/payments/verify", handler.VerifyPayment)
			r.Post("/payments/stripe-session", handler.CreateStripeSession)
		})

		r.Group(func(r chi.Router) {
			r.Use(mw.RequireUser)
			r.Use(mw.RequireRole(domain.RoleAdmin))

			r.Get("/admin/orders", handler.AdminOrders)
			r.Put("/orders/{id}/status", handler.UpdateOrderStatus)
		})
	})

	return r
}

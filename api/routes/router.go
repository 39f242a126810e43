package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/medlinkhq/medsupply-backend/api/controllers"
	webhookcontrollers "github.com/medlinkhq/medsupply-backend/api/controllers/webhooks"
	"github.com/medlinkhq/medsupply-backend/api/middleware"
	"github.com/medlinkhq/medsupply-backend/internal/carts"
	"github.com/medlinkhq/medsupply-backend/internal/orders"
	"github.com/medlinkhq/medsupply-backend/internal/payments"
	payherewebhook "github.com/medlinkhq/medsupply-backend/internal/webhooks/payhere"
	"github.com/medlinkhq/medsupply-backend/pkg/config"
	"github.com/medlinkhq/medsupply-backend/pkg/db"
	"github.com/medlinkhq/medsupply-backend/pkg/logger"
	"github.com/medlinkhq/medsupply-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	cartsService carts.Service,
	ordersService orders.Service,
	paymentsService payments.Service,
	payhereWebhookService *payherewebhook.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, dbP, redisClient, logg))
	})

	// Gateway callbacks authenticate themselves via the payload signature, so
	// they sit outside the pharmacy context.
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payhere", webhookcontrollers.PayHereNotify(payhereWebhookService, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.PharmacyContext(logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.GetCart(cartsService, logg))
			r.Post("/items", controllers.AddCartItem(cartsService, logg))
			r.Delete("/items/{productId}", controllers.RemoveCartItem(cartsService, logg))
			r.Put("/discount-code", controllers.ApplyCartDiscountCode(cartsService, logg))
			r.Put("/addresses", controllers.SetCartAddresses(cartsService, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", controllers.CreateOrder(ordersService, logg))
			r.Get("/", controllers.ListOrders(ordersService, logg))
			r.Get("/{orderId}", controllers.OrderDetail(ordersService, logg))
			r.Get("/{orderId}/history", controllers.OrderHistory(ordersService, logg))
			r.Post("/{orderId}/cancel", controllers.CancelOrder(ordersService, logg))
			r.Post("/{orderId}/transition", controllers.TransitionOrder(ordersService, logg))
			r.Post("/{orderId}/payments", controllers.AddOrderPayment(ordersService, paymentsService, logg))
			r.Get("/{orderId}/payments", controllers.ListOrderPayments(ordersService, paymentsService, logg))
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/{paymentId}/refund", controllers.RefundPayment(paymentsService, logg))
		})
	})

	return r
}

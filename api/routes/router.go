package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mfigueroa/bazario-backend/api/controllers"
	"github.com/mfigueroa/bazario-backend/api/middleware"
	"github.com/mfigueroa/bazario-backend/internal/analytics"
	cartsvc "github.com/mfigueroa/bazario-backend/internal/cart"
	checkoutsvc "github.com/mfigueroa/bazario-backend/internal/checkout"
	orderssvc "github.com/mfigueroa/bazario-backend/internal/orders"
	payoutssvc "github.com/mfigueroa/bazario-backend/internal/payouts"
	"github.com/mfigueroa/bazario-backend/pkg/config"
	"github.com/mfigueroa/bazario-backend/pkg/enums"
	"github.com/mfigueroa/bazario-backend/pkg/logger"
	"github.com/mfigueroa/bazario-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient controllers.Pinger,
	redisClient *redis.Client,
	cartService cartsvc.Service,
	checkoutService checkoutsvc.Service,
	ordersService orderssvc.Service,
	payoutsService payoutssvc.Service,
	analyticsService analytics.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"database": dbClient,
			"redis":    redisClient,
		}))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/v1", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(enums.ActorRoleBuyer, logg))

				r.Route("/cart", func(r chi.Router) {
					r.Get("/", controllers.CartGet(cartService, logg))
					r.Post("/lines", controllers.CartAddLine(cartService, logg))
					r.Patch("/lines/{lineId}", controllers.CartUpdateLine(cartService, logg))
					r.Delete("/lines/{lineId}", controllers.CartRemoveLine(cartService, logg))
					r.Post("/coupon", controllers.CartApplyCoupon(cartService, logg))
					r.Delete("/coupon", controllers.CartRemoveCoupon(cartService, logg))
					r.Post("/shipping", controllers.CartSelectShipping(cartService, logg))
					r.Post("/quote", controllers.CartQuote(cartService, logg))
				})

				r.Post("/checkout", controllers.Checkout(checkoutService, logg))

				r.Route("/orders", func(r chi.Router) {
					r.Get("/", controllers.OrdersList(ordersService, logg))
					r.Get("/{orderId}", controllers.OrdersGet(ordersService, logg))
					r.Post("/{orderId}/cancel", controllers.OrdersCancel(ordersService, logg))
				})
			})

			r.Route("/vendor", func(r chi.Router) {
				r.Use(middleware.RequireRole(enums.ActorRoleVendor, logg))
				r.Use(middleware.VendorContext(logg))

				r.Get("/orders", controllers.VendorOrdersList(ordersService, logg))
				r.Patch("/orders/{itemId}", controllers.VendorOrdersTransition(ordersService, logg))
				r.Get("/payouts", controllers.VendorPayoutsList(payoutsService, logg))
				r.Get("/payouts/summary", controllers.VendorPayoutsSummary(payoutsService, logg))
			})
		})

		r.Route("/admin/v1", func(r chi.Router) {
			r.Use(middleware.RequireRole(enums.ActorRoleAdmin, logg))

			r.Patch("/orders/items/{itemId}", controllers.AdminOrdersTransition(ordersService, logg))
			r.Get("/analytics", controllers.AdminAnalytics(analyticsService, logg))
		})
	})

	return r
}

package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/charityconnect/charityconnect-backend/api/controllers"
	ordercontrollers "github.com/charityconnect/charityconnect-backend/api/controllers/orders"
	webhookcontrollers "github.com/charityconnect/charityconnect-backend/api/controllers/webhooks"
	"github.com/charityconnect/charityconnect-backend/api/middleware"
	"github.com/charityconnect/charityconnect-backend/internal/catalog"
	checkoutsvc "github.com/charityconnect/charityconnect-backend/internal/checkout"
	"github.com/charityconnect/charityconnect-backend/internal/orders"
	stripewebhook "github.com/charityconnect/charityconnect-backend/internal/webhooks/stripe"
	"github.com/charityconnect/charityconnect-backend/pkg/auth"
	"github.com/charityconnect/charityconnect-backend/pkg/config"
	"github.com/charityconnect/charityconnect-backend/pkg/logger"
	"github.com/charityconnect/charityconnect-backend/pkg/metrics"
	"github.com/charityconnect/charityconnect-backend/pkg/redis"
	"github.com/charityconnect/charityconnect-backend/pkg/stripe"
)

// Dependencies are the services the HTTP surface is wired to.
type Dependencies struct {
	DB             controllers.Pinger
	Redis          controllers.Pinger
	RateLimiter    redis.RateLimiter
	Catalog        catalog.Service
	Checkout       checkoutsvc.Service
	Orders         orders.Service
	Gateway        stripe.PaymentGateway
	WebhookService *stripewebhook.Service
	WebhookGuard   *stripewebhook.IdempotencyGuard
	WebhookMetrics *metrics.WebhookMetrics
	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	checkoutPolicy := middleware.RateLimitPolicy{
		Name:   "checkout",
		Window: cfg.Checkout.RateLimitWindow,
		PerIP:  cfg.Checkout.RateLimitPerIP,
	}
	requireAuthor := middleware.RequireCapability(auth.Actor.CanAuthorEvents, logg)
	requireAdmin := middleware.RequireCapability(auth.Actor.CanVerify, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": deps.Redis,
		}, logg))
	})

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(deps.WebhookService, deps.Gateway, deps.WebhookGuard, deps.WebhookMetrics, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.OptionalAuth(cfg.JWT, logg))

		r.Route("/events", func(r chi.Router) {
			r.Get("/", controllers.ListEvents(deps.Catalog, logg))
			r.With(requireAuthor).Post("/", controllers.CreateEvent(deps.Catalog, logg))
			r.Route("/{eventID}", func(r chi.Router) {
				r.Get("/", controllers.GetEvent(deps.Catalog, logg))
				r.With(requireAuthor).Put("/", controllers.UpdateEvent(deps.Catalog, logg))
				r.With(requireAuthor).Put("/beneficiaries", controllers.ReplaceBeneficiaries(deps.Catalog, logg))
				r.With(middleware.RateLimitByIP(checkoutPolicy, deps.RateLimiter, logg)).
					Post("/checkout", controllers.Checkout(deps.Checkout, logg))
			})
		})

		r.Get("/charities", controllers.ListCharities(deps.Catalog, logg))

		r.Route("/orders/{orderID}", func(r chi.Router) {
			r.Get("/", ordercontrollers.Confirm(deps.Checkout, deps.Orders, logg))
			r.Get("/verify", ordercontrollers.Verify(deps.Orders, logg))
			r.Get("/receipt", ordercontrollers.Receipt(deps.Orders, logg))
		})

		r.With(middleware.RequireCapability(nil, logg)).
			Post("/verification/apply", controllers.ApplyForVerification(deps.Catalog, logg))

		r.Route("/admin/verification", func(r chi.Router) {
			r.Use(requireAdmin)
			r.Get("/", controllers.ListVerifications(deps.Catalog, logg))
			r.Post("/{orgType}/{id}/{action}", controllers.SetVerification(deps.Catalog, logg))
		})
	})

	return r
}

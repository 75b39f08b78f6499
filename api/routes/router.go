package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/commercebridge/ideal-gateway/api/controllers"
	"github.com/commercebridge/ideal-gateway/api/controllers/webhooks"
	"github.com/commercebridge/ideal-gateway/api/middleware"
	"github.com/commercebridge/ideal-gateway/pkg/config"
	"github.com/commercebridge/ideal-gateway/pkg/logger"
)

// RouterParams carries every handler dependency the router mounts.
type RouterParams struct {
	AppConfig config.AppConfig
	Logger    *logger.Logger

	Health   *controllers.HealthController
	Checkout *controllers.CheckoutController
	Payments *controllers.PaymentsController
	Stripe   *webhooks.StripeController

	// Metrics is the registry behind /metrics. Optional; nil disables the
	// endpoint.
	Metrics prometheus.Gatherer
}

func NewRouter(params RouterParams) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer(params.Logger))
	r.Use(middleware.RequestID(params.Logger))
	r.Use(middleware.Logging(params.Logger))
	r.Use(middleware.CORS(params.AppConfig.CORSOrigins))

	if params.Health != nil {
		r.Route("/health", func(r chi.Router) {
			r.Get("/live", params.Health.Live)
			r.Get("/ready", params.Health.Ready)
		})
	}

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(params.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		if params.Checkout != nil {
			r.Route("/checkout", func(r chi.Router) {
				r.Get("/return", params.Checkout.Return)
				r.Post("/{orderId}/redirect", params.Checkout.CreateRedirect)
				r.Post("/{orderId}/confirm", params.Checkout.Confirm)
			})
		}

		if params.Stripe != nil {
			r.Post("/webhooks/stripe", params.Stripe.Handle)
		}
	})

	if params.Payments != nil {
		r.Route("/api/admin/v1/payments", func(r chi.Router) {
			r.Post("/{paymentId}/refund", params.Payments.Refund)
			r.Post("/{paymentId}/void", params.Payments.Void)
		})
	}

	return r
}

// Package router wires the HTTP surface: public webhook and health routes,
// and the tenant-authenticated API.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/clinvia/revenue-engine/internal/http/handlers"
	httpmiddleware "github.com/clinvia/revenue-engine/internal/http/middleware"
	"github.com/clinvia/revenue-engine/internal/payments"
	"github.com/clinvia/revenue-engine/internal/tenancy"
	"github.com/clinvia/revenue-engine/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger *logging.Logger

	Vault              httpmiddleware.ContextResolver
	CheckoutHandler    *payments.CheckoutHandler
	StatusHandler      *handlers.StatusHandler
	GapsHandler        *handlers.GapsHandler
	DispatchHandler    *handlers.DispatchHandler
	MercadoPagoHook    *payments.MercadoPagoWebhookHandler
	WebpayReturn       *payments.WebpayReturnHandler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Webhook rate limit, requests/sec per IP.
	WebhookRate  float64
	WebhookBurst int
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (webhooks, health, metrics)
	r.Group(func(public chi.Router) {
		public.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}

		rate, burst := cfg.WebhookRate, cfg.WebhookBurst
		if rate <= 0 {
			rate = 20
		}
		if burst <= 0 {
			burst = 40
		}
		public.Route("/webhooks", func(hooks chi.Router) {
			hooks.Use(httpmiddleware.RateLimit(rate, burst))
			if cfg.MercadoPagoHook != nil {
				hooks.Post("/mercadopago/{clinicID}", cfg.MercadoPagoHook.Handle)
			}
			if cfg.WebpayReturn != nil {
				hooks.Get("/webpay/{clinicID}/return", cfg.WebpayReturn.Handle)
				hooks.Post("/webpay/{clinicID}/return", cfg.WebpayReturn.Handle)
			}
		})
	})

	// Authenticated tenant API
	r.Group(func(api chi.Router) {
		api.Use(httpmiddleware.TenantAuth(cfg.Vault))

		if cfg.CheckoutHandler != nil {
			api.Post("/appointments/{id}/checkout", cfg.CheckoutHandler.Handle)
		}
		if cfg.StatusHandler != nil {
			api.With(httpmiddleware.RequireRole(tenancy.RoleAdmin, tenancy.RoleAgent, tenancy.RoleReceptionist)).
				Patch("/appointments/{id}/status", cfg.StatusHandler.Handle)
		}
		if cfg.GapsHandler != nil {
			api.Get("/gaps", cfg.GapsHandler.Handle)
		}
		if cfg.DispatchHandler != nil {
			api.With(httpmiddleware.RequireRole(tenancy.RoleAdmin)).
				Post("/flash-offers/dispatch", cfg.DispatchHandler.Handle)
		}
	})

	return r
}

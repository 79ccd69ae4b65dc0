package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig holds the webhook server's route dependencies.
type RouterConfig struct {
	Webhook        *WebhookHandler
	MetricsHandler http.Handler
}

// NewRouter creates the chi router for the webhook server.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	metricsHandler := cfg.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler)

	if cfg.Webhook != nil {
		r.Route("/webhook/whatsapp", func(r chi.Router) {
			r.Get("/", cfg.Webhook.Verify)
			r.Post("/", cfg.Webhook.Receive)
		})
	}

	return r
}

package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	obsmw "otp/internal/observability/middleware"
	"otp/internal/service"
)

type RouterConfig struct {
	CORSOrigins   []string
	IPLimit       int
	IPLimitWindow time.Duration
}

func NewRouter(cfg RouterConfig, otp service.OTPService, diag service.DiagnosticsService, authMW func(http.Handler) http.Handler) http.Handler {
	if cfg.IPLimit <= 0 {
		cfg.IPLimit = 100
	}
	if cfg.IPLimitWindow <= 0 {
		cfg.IPLimitWindow = time.Minute
	}

	h := &handlers{otp: otp, diag: diag}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(httprate.LimitByIP(cfg.IPLimit, cfg.IPLimitWindow))

	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Use(obsmw.WithRequestAndTrace)
	r.Use(obsmw.WithMetrics)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(pr chi.Router) {
		pr.Use(authMW)

		pr.Post("/v1/otp/request", h.requestOTP)
		pr.Post("/v1/otp/verify", h.verifyOTP)

		pr.Get("/v1/diagnostics", h.getDiagnostics)
		pr.Post("/v1/diagnostics/test", h.testConnectivity)
		pr.Post("/v1/diagnostics/report", h.submitReport)
		pr.Get("/v1/deliveries/{id}/troubleshooting", h.deliveryTroubleshooting)
	})

	return r
}

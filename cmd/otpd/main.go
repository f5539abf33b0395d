package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"otp/internal/authz"
	"otp/internal/config"
	"otp/internal/directory"
	"otp/internal/domain"
	"otp/internal/observability/logging"
	"otp/internal/observability/metrics"
	"otp/internal/provider"
	"otp/internal/ratelimit"
	"otp/internal/registry"
	"otp/internal/service"
	impl "otp/internal/service/impl"
	"otp/internal/store"
	httpx "otp/internal/transport/http"
)

func main() {
	_ = godotenv.Load()

	logger := logging.NewLogger(logging.Config{
		ServiceName: "otpd",
		Environment: os.Getenv("ENVIRONMENT"),
		Level:       os.Getenv("LOG_LEVEL"),
	})
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}

	metrics.MustRegister("otpd")

	gdb, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		logger.Error("gorm open", "error", err)
		os.Exit(1)
	}
	st := store.New(gdb)
	if err := st.AutoMigrate(context.Background()); err != nil {
		logger.Error("automigrate", "error", err)
		os.Exit(1)
	}

	// Provider catalog and transports from config.
	reg := registry.New(cfg.FailureThreshold)
	providers := provider.Set{}
	for _, pc := range cfg.Providers {
		reg.Register(domain.ServiceDescriptor{
			Name:        pc.Name,
			DisplayName: pc.DisplayName,
			Channels:    pc.Channels,
			Priority:    pc.Priority,
		})
		switch pc.Kind {
		case "webhook":
			providers[pc.Name] = provider.NewWebhookProvider(pc.Name, pc.URL)
		default:
			providers[pc.Name] = provider.NewLogProvider(pc.Name)
		}
	}

	audit := impl.NewGormAuditSink(st)

	otpSvc := impl.NewOTPService(st, reg, providers, audit, impl.OTPConfig{
		CodeLength:        cfg.CodeLength,
		CodeTTL:           cfg.CodeTTL,
		MaxVerifyAttempts: cfg.MaxVerifyAttempts,
		ProviderTimeout:   cfg.ProviderTimeout,
	})

	var dir service.UserDirectory
	if cfg.DirectoryURL != "" {
		dir = directory.NewClient(cfg.DirectoryURL, 5*time.Second)
	} else {
		logger.Warn("no DIRECTORY_URL configured, using empty static directory")
		dir = directory.NewStatic()
	}

	limiter := ratelimit.New(cfg.RateLimitWindow, cfg.RateLimitMax)
	diagSvc := impl.NewDiagnosticsService(reg, otpSvc, limiter, dir, audit, impl.DiagnosticsConfig{
		Lookback: cfg.DiagnosticsLookback,
	})

	if cfg.SigningKey == "" && cfg.JWKSURL == "" {
		// Only reachable in dev; Load rejects this combination elsewhere.
		logger.Warn("no SIGNING_KEY or JWKS_URL configured, using insecure dev secret")
		cfg.SigningKey = "dev-secret"
	}

	var authMW func(http.Handler) http.Handler
	if cfg.SigningKey != "" {
		logger.Info("using HS256 shared-secret token validation")
		authMW = authz.NewHMACValidator(cfg.SigningKey, cfg.Issuer).Middleware
	} else if cfg.JWKSURL != "" {
		logger.Info("using JWKS token validation", "jwks_url", cfg.JWKSURL)
		jv, err := authz.NewJWTValidator(context.Background(), cfg.JWKSURL, cfg.Issuer)
		if err != nil {
			logger.Error("init jwt validator", "error", err)
			os.Exit(1)
		}
		authMW = jv.Middleware
	}

	// Background maintenance: expiry sweep and attempt-log pruning.
	go func() {
		expire := time.NewTicker(time.Minute)
		prune := time.NewTicker(time.Hour)
		defer expire.Stop()
		defer prune.Stop()
		for {
			select {
			case <-expire.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				if n, err := otpSvc.ExpireStale(ctx); err != nil {
					logger.Error("expiry sweep", "error", err)
				} else if n > 0 {
					logger.Info("expired stale challenges", "count", n)
				}
				cancel()
			case <-prune.C:
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				cutoff := time.Now().UTC().Add(-cfg.HistoryRetention)
				if n, err := st.Attempts().PruneOlderThan(ctx, cutoff); err != nil {
					logger.Error("attempt prune", "error", err)
				} else if n > 0 {
					logger.Info("pruned delivery attempts", "count", n)
				}
				cancel()
			}
		}
	}()

	handler := httpx.NewRouter(httpx.RouterConfig{
		CORSOrigins:   cfg.CORSOrigins,
		IPLimit:       cfg.IPLimit,
		IPLimitWindow: cfg.IPLimitWindow,
	}, otpSvc, diagSvc, authMW)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("otp delivery service listening", "addr", srv.Addr, "providers", len(cfg.Providers))
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

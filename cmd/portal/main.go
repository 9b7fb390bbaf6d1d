package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-portal/internal/backend"
	"github.com/jwalitptl/clinic-portal/internal/config"
	"github.com/jwalitptl/clinic-portal/internal/format"
	appointmentHandler "github.com/jwalitptl/clinic-portal/internal/handler/appointment"
	authHandler "github.com/jwalitptl/clinic-portal/internal/handler/auth"
	"github.com/jwalitptl/clinic-portal/internal/handler/health"
	paymentHandler "github.com/jwalitptl/clinic-portal/internal/handler/payment"
	promHandler "github.com/jwalitptl/clinic-portal/internal/handler/prometheus"
	"github.com/jwalitptl/clinic-portal/internal/middleware"
	"github.com/jwalitptl/clinic-portal/internal/router"
	"github.com/jwalitptl/clinic-portal/internal/service/admin"
	"github.com/jwalitptl/clinic-portal/internal/service/appointment"
	"github.com/jwalitptl/clinic-portal/internal/service/payment"
	"github.com/jwalitptl/clinic-portal/internal/session"
	"github.com/jwalitptl/clinic-portal/internal/web"
	"github.com/jwalitptl/clinic-portal/pkg/logger"
	"github.com/jwalitptl/clinic-portal/pkg/metrics"
	"github.com/jwalitptl/clinic-portal/pkg/tracing"
)

const serviceName = "clinic-portal"

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger.NewLogger(&logger.Config{
		Level:   logger.ParseLevel(cfg.Log.Level),
		Console: cfg.Log.Console,
	}).Install()

	ctx := context.Background()

	// Tracing
	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		ServiceName: serviceName,
		Version:     version,
		Environment: cfg.Monitoring.Environment,
		Endpoint:    cfg.Monitoring.OTLPEndpoint,
		Insecure:    cfg.Monitoring.OTLPInsecure,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracing")
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(cfg.Monitoring.MetricsPrefix, reg)

	// Session store
	store, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize session store")
	}
	defer closeStore()

	// Backend client and services
	client := backend.NewClient(backend.Config{
		BaseURL:          cfg.Backend.BaseURL,
		Timeout:          cfg.Backend.Timeout,
		FailureThreshold: cfg.Backend.FailureThreshold,
		BreakerTimeout:   cfg.Backend.BreakerTimeout,
	}, m)

	adminSvc := admin.NewService(client)
	appointmentSvc := appointment.NewService(format.NewFormatter(cfg.Display.Currency))
	verifier := payment.NewVerifier(client, cfg.Routes.MyAppointments, m)

	// Router
	security := middleware.DefaultSecurityConfig()
	security.HSTS = cfg.Session.CookieSecure
	sessionCfg := middleware.SessionConfig{
		CookieName: cfg.Session.CookieName,
		TTL:        cfg.Session.TTL,
		Secure:     cfg.Session.CookieSecure,
	}

	r := router.NewRouter(router.RouterConfig{
		Mode:           cfg.Server.Mode,
		RateLimit:      cfg.RateLimit.RequestsPerSecond,
		RateBurst:      cfg.RateLimit.Burst,
		RateEnabled:    cfg.RateLimit.Enabled,
		RequestTimeout: cfg.Server.RequestTimeout,
		Security:       security,
		Session:        sessionCfg,
		MetricsPrefix:  cfg.Monitoring.MetricsPrefix,
		Registerer:     reg,
		ServiceName:    serviceName,
		Templates:      web.MustTemplates(),
	})
	r.Setup(router.Deps{
		Store:   store,
		Metrics: m,
		Health: health.NewHandler(map[string]health.Pinger{
			"session_store": store,
			"backend":       client,
		}),
		Prometheus:   promHandler.New(reg),
		Appointments: appointmentHandler.NewHandler(appointmentSvc, adminSvc),
		Payments:     paymentHandler.NewHandler(verifier, cfg.Routes.MyAppointments),
		Auth:         authHandler.NewHandler(sessionCfg),
	})

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Str("backend", cfg.Backend.BaseURL).Msg("starting portal")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to flush traces")
	}

	log.Info().Msg("server exited properly")
}

func newStore(ctx context.Context, cfg *config.Config) (session.Store, func(), error) {
	if !cfg.Redis.Enabled {
		return session.NewMemoryStore(cfg.Session.TTL, cfg.Session.CleanupInterval), func() {}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rs, err := session.NewRedisStore(ctx, session.RedisConfig{
		URL:          cfg.Redis.URL,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
	}, cfg.Session.TTL)
	if err != nil {
		return nil, nil, err
	}
	return rs, func() {
		if err := rs.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close redis")
		}
	}, nil
}

package router

import (
	"fmt"
	"html/template"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/jwalitptl/clinic-portal/internal/middleware"
	"github.com/jwalitptl/clinic-portal/internal/session"
	"github.com/jwalitptl/clinic-portal/pkg/metrics"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// APIHandler also serves JSON under /api/v1.
type APIHandler interface {
	Handler
	RegisterAPIRoutes(*gin.RouterGroup)
}

type Router struct {
	engine  *gin.Engine
	metrics *routerMetrics
	config  RouterConfig
}

type routerMetrics struct {
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	errorTotal      *prometheus.CounterVec
}

type RouterConfig struct {
	Mode           string
	RateLimit      float64
	RateBurst      int
	RateEnabled    bool
	RequestTimeout time.Duration
	Security       middleware.SecurityConfig
	Session        middleware.SessionConfig
	MetricsPrefix  string
	Registerer     prometheus.Registerer
	Templates      *template.Template
	// ServiceName enables request spans when set.
	ServiceName string
}

type Deps struct {
	Store        session.Store
	Metrics      *metrics.Metrics
	Health       Handler
	Prometheus   Handler
	Appointments APIHandler
	Payments     Handler
	Auth         Handler
}

func NewRouter(config RouterConfig) *Router {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}
	if config.Registerer == nil {
		config.Registerer = prometheus.DefaultRegisterer
	}

	engine := gin.New()
	if config.Templates != nil {
		engine.SetHTMLTemplate(config.Templates)
	}

	r := &Router{
		engine:  engine,
		metrics: initRouterMetrics(config.MetricsPrefix, config.Registerer),
		config:  config,
	}

	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		r.metricsMiddleware(),
		middleware.SecurityHeaders(config.Security),
	)
	if config.ServiceName != "" {
		engine.Use(otelgin.Middleware(config.ServiceName))
	}
	if config.RateEnabled {
		engine.Use(middleware.NewRateLimiter(middleware.RateLimiterConfig{
			RPS:   config.RateLimit,
			Burst: config.RateBurst,
		}).RateLimit())
	}

	return r
}

// Setup mounts every route. Health and metrics stay outside the session so
// probes never create sessions.
func (r *Router) Setup(d Deps) {
	root := r.engine.Group("")
	d.Health.RegisterRoutes(root)
	d.Prometheus.RegisterRoutes(root)

	withSession := r.engine.Group("",
		middleware.Timeout(r.config.RequestTimeout),
		middleware.Session(d.Store, r.config.Session, d.Metrics),
	)
	d.Appointments.RegisterRoutes(withSession)
	d.Payments.RegisterRoutes(withSession)
	d.Auth.RegisterRoutes(withSession)

	api := withSession.Group("/api/v1")
	api.Use(middleware.ErrorHandler(), func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})
	d.Appointments.RegisterAPIRoutes(api)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func initRouterMetrics(prefix string, reg prometheus.Registerer) *routerMetrics {
	factory := promauto.With(reg)
	return &routerMetrics{
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: prefix + "_request_duration_seconds",
				Help: "Duration of HTTP requests in seconds",
			},
			[]string{"method", "path", "status"},
		),
		requestTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		errorTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_errors_total",
				Help: "Total number of HTTP errors",
			},
			[]string{"method", "path", "type"},
		),
	}
}

func (r *Router) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		// unmatched paths share one label
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		code := c.Writer.Status()
		status := fmt.Sprintf("%d", code)

		r.metrics.requestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
		r.metrics.requestTotal.WithLabelValues(c.Request.Method, path, status).Inc()

		switch {
		case code >= 500:
			r.metrics.errorTotal.WithLabelValues(c.Request.Method, path, "server").Inc()
		case code >= 400:
			r.metrics.errorTotal.WithLabelValues(c.Request.Method, path, "client").Inc()
		}
	}
}

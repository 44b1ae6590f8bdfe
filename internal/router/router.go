package router

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/frontdesk/internal/handler"
	authh "github.com/jwalitptl/frontdesk/internal/handler/auth"
	dashboardh "github.com/jwalitptl/frontdesk/internal/handler/dashboard"
	patienth "github.com/jwalitptl/frontdesk/internal/handler/patient"
	"github.com/jwalitptl/frontdesk/internal/handler/screen"
	visith "github.com/jwalitptl/frontdesk/internal/handler/visit"
	"github.com/jwalitptl/frontdesk/internal/middleware"
	apperrors "github.com/jwalitptl/frontdesk/pkg/errors"
	"github.com/jwalitptl/frontdesk/pkg/httputil"
)

const apiPrefix = "/api/v1"

type Handlers struct {
	Health    *handler.Handler
	Auth      *authh.Handler
	Patients  *patienth.Handler
	Visits    *visith.Handler
	Dashboard *dashboardh.Handler
	Screens   *screen.Handler
}

type RouterConfig struct {
	Registerer     prometheus.Registerer
	MetricsPrefix  string
	AllowedOrigins []string
	LoginRate      rate.Limit
	LoginBurst     int
	SizeLimit      middleware.SizeLimitConfig
	TLS            bool
}

type Router struct {
	engine   *gin.Engine
	sessions *middleware.SessionMiddleware
	h        Handlers
	config   RouterConfig
	metrics  *routerMetrics
}

type routerMetrics struct {
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	errorTotal      *prometheus.CounterVec
}

func NewRouter(sessions *middleware.SessionMiddleware, h Handlers, config RouterConfig) *Router {
	engine := gin.New()
	engine.SetHTMLTemplate(screen.Templates())

	r := &Router{
		engine:   engine,
		sessions: sessions,
		h:        h,
		config:   config,
		metrics:  initRouterMetrics(config.Registerer, config.MetricsPrefix),
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Logger(),
		middleware.Recovery(),
		r.metricsMiddleware(),
		middleware.ErrorHandler(),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig(config.TLS)),
	)
	if len(config.AllowedOrigins) > 0 {
		engine.Use(cors.New(cors.Config{
			AllowOrigins:     config.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.HeaderXRequestID},
			ExposeHeaders:    []string{middleware.HeaderXRequestID},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.setup()
	return r
}

func (r *Router) setup() {
	r.h.Health.RegisterRoutes(r.engine)

	api := r.engine.Group(apiPrefix)
	api.Use(middleware.SizeLimit(r.config.SizeLimit), r.sessions.Resolve())

	login := api.Group("")
	login.Use(middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:  r.config.LoginRate,
		Burst: r.config.LoginBurst,
	}).RateLimit())

	protected := api.Group("")
	protected.Use(r.sessions.RequireAPI())

	r.h.Auth.RegisterRoutes(login, protected)
	r.h.Dashboard.RegisterRoutes(protected)
	r.h.Patients.RegisterRoutes(protected)
	r.h.Visits.RegisterRoutes(protected)

	screens := r.engine.Group("")
	screens.Use(r.sessions.Resolve(), r.sessions.Screen(r.logout))
	r.h.Screens.RegisterRoutes(screens)

	// Every other page, /logout included, is settled by the screen
	// middleware, which always redirects for unknown paths.
	r.engine.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			httputil.RespondWithError(c, apperrors.NotFound("route", nil))
			return
		}
		c.Next()
	}, r.sessions.Resolve(), r.sessions.Screen(r.logout))
}

func (r *Router) logout(c *gin.Context) {
	if err := r.h.Auth.LogoutRequest(c); err != nil {
		_ = c.Error(err)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func initRouterMetrics(reg prometheus.Registerer, prefix string) *routerMetrics {
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

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		r.metrics.requestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
		r.metrics.requestTotal.WithLabelValues(c.Request.Method, path, status).Inc()

		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			r.metrics.errorTotal.WithLabelValues(c.Request.Method, path, "server").Inc()
		case c.Writer.Status() >= http.StatusBadRequest:
			r.metrics.errorTotal.WithLabelValues(c.Request.Method, path, "client").Inc()
		}
	}
}

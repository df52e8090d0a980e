package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/connectmydoc/patient-api/internal/handler/health"
	"github.com/connectmydoc/patient-api/internal/handler/patient"
	"github.com/connectmydoc/patient-api/internal/handler/prometheus"
	"github.com/connectmydoc/patient-api/internal/middleware"
	"github.com/connectmydoc/patient-api/pkg/validator"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type RouterConfig struct {
	RateLimit      float64
	RateBurst      int
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	CORSConfig     middleware.CORSConfig
}

type Router struct {
	engine   *gin.Engine
	health   *health.Handler
	patients Handler
	metrics  *prometheus.Handler
}

func NewRouter(
	logger zerolog.Logger,
	healthH *health.Handler,
	patientH *patient.Handler,
	metricsH *prometheus.Handler,
	config RouterConfig,
) *Router {
	validator.Register()
	engine := gin.New()

	// RequestID goes first so every later middleware logs through the
	// request-scoped logger.
	engine.Use(
		middleware.RequestID(logger),
		middleware.Recovery(),
		middleware.Logger(),
		metricsH.Middleware(),
		middleware.ErrorHandler(),
		middleware.Timeout(config.RequestTimeout),
		middleware.CORS(config.CORSConfig),
	)

	if config.RateLimit > 0 {
		rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			RPS:   config.RateLimit,
			Burst: config.RateBurst,
		})
		engine.Use(rateLimiter.RateLimit())
	}
	if config.MaxBodyBytes > 0 {
		engine.Use(middleware.SizeLimit(config.MaxBodyBytes))
	}

	return &Router{
		engine:   engine,
		health:   healthH,
		patients: patientH,
		metrics:  metricsH,
	}
}

func (r *Router) Setup() {
	r.health.RegisterRoutes(r.engine)
	r.engine.GET("/metrics", r.metrics.Handler())

	api := r.engine.Group("/api")
	r.patients.RegisterRoutes(api)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/genflow-backend/internal/http/handlers"
	httpMW "github.com/yungbote/genflow-backend/internal/http/middleware"
	"github.com/yungbote/genflow-backend/internal/observability"
	"github.com/yungbote/genflow-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	CORSOrigins    []string
	CallbackSecret string
	// AdminKey guards the admin routes; they are not mounted without one.
	AdminKey string
	Metrics  *observability.Metrics

	AuthMiddleware    *httpMW.AuthMiddleware
	GenerationHandler *httpH.GenerationHandler
	CreditsHandler    *httpH.CreditsHandler
	CallbackHandler   *httpH.CallbackHandler
	AdminHandler      *httpH.AdminHandler
	HealthHandler     *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "genflow"
	}
	r.Use(otelgin.Middleware(serviceName))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	api := r.Group("/api")

	// Engine callbacks
	if cfg.CallbackHandler != nil {
		api.POST("/webhooks/flow-engine",
			httpMW.RequireSharedSecret(httpMW.HeaderCallbackSecret, cfg.CallbackSecret),
			cfg.CallbackHandler.Receive,
		)
	}

	// Admin
	if cfg.AdminHandler != nil && cfg.AdminKey != "" {
		admin := api.Group("/admin", httpMW.RequireSharedSecret(httpMW.HeaderAdminKey, cfg.AdminKey))
		admin.POST("/reap", cfg.AdminHandler.Reap)
	}

	protected := api.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// Generations
		if cfg.GenerationHandler != nil {
			protected.POST("/generations", cfg.GenerationHandler.Start)
			protected.GET("/generations", cfg.GenerationHandler.List)
			protected.GET("/generations/:id", cfg.GenerationHandler.Get)
			protected.POST("/generations/:id/cancel", cfg.GenerationHandler.Cancel)
			protected.GET("/generations/:id/status", cfg.GenerationHandler.Status)
		}

		// Credits
		if cfg.CreditsHandler != nil {
			protected.GET("/credits", cfg.CreditsHandler.Summary)
			protected.GET("/credits/events", cfg.CreditsHandler.Events)
		}
	}

	return r
}

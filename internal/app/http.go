package app

import (
	"context"

	"gorm.io/gorm"

	"github.com/yungbote/genflow-backend/internal/http"
	httpH "github.com/yungbote/genflow-backend/internal/http/handlers"
	httpMW "github.com/yungbote/genflow-backend/internal/http/middleware"
	"github.com/yungbote/genflow-backend/internal/observability"
	"github.com/yungbote/genflow-backend/internal/platform/logger"
)

type Handlers struct {
	Health     *httpH.HealthHandler
	Generation *httpH.GenerationHandler
	Credits    *httpH.CreditsHandler
	Callback   *httpH.CallbackHandler
	Admin      *httpH.AdminHandler
}

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

func wireHandlers(log *logger.Logger, db *gorm.DB, s Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:     httpH.NewHealthHandler(pingDB(db)),
		Generation: httpH.NewGenerationHandler(s.Generation, s.Cancellation, s.Reconciler),
		Credits:    httpH.NewCreditsHandler(s.Ledger, s.Admission),
		Callback:   httpH.NewCallbackHandler(s.Reconciler),
		Admin:      httpH.NewAdminHandler(s.Reaper),
	}
}

func wireMiddleware(log *logger.Logger, cfg Config) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, cfg.JWTSecretKey),
	}
}

func wireServer(log *logger.Logger, cfg Config, h Handlers, mw Middleware, metrics *observability.Metrics) *http.Server {
	log.Info("Wiring router...")
	return http.NewServer(http.RouterConfig{
		Log:               log,
		ServiceName:       cfg.Otel.ServiceName,
		CORSOrigins:       cfg.CORSOrigins,
		CallbackSecret:    cfg.CallbackSecret,
		AdminKey:          cfg.AdminAPIKey,
		Metrics:           metrics,
		AuthMiddleware:    mw.Auth,
		GenerationHandler: h.Generation,
		CreditsHandler:    h.Credits,
		CallbackHandler:   h.Callback,
		AdminHandler:      h.Admin,
		HealthHandler:     h.Health,
	})
}

func pingDB(db *gorm.DB) func(ctx context.Context) error {
	if db == nil {
		return nil
	}
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}

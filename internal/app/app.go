package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/genflow-backend/internal/data/db"
	"github.com/yungbote/genflow-backend/internal/http"
	"github.com/yungbote/genflow-backend/internal/jobs/sweeper"
	"github.com/yungbote/genflow-backend/internal/observability"
	"github.com/yungbote/genflow-backend/internal/platform/logger"
	"github.com/yungbote/genflow-backend/internal/services"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	DB       *gorm.DB
	Server   *http.Server
	Repos    Repos
	Clients  Clients
	Services Services
	Sweeper  *sweeper.Sweeper

	postgres     *db.PostgresService
	otelShutdown func(context.Context) error
}

func New(cfg Config, log *logger.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	otelShutdown := observability.InitOTel(context.Background(), log, cfg.Otel)
	metrics := observability.Init(log, cfg.MetricsEnabled)

	pg, gdb, err := openDB(log, cfg)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, err
	}

	clients, err := wireClients(log, cfg)
	if err != nil {
		_ = pg.Close()
		_ = otelShutdown(context.Background())
		return nil, err
	}

	reposet := wireRepos(gdb, log)
	svcs, err := wireServices(log, cfg, reposet, clients)
	if err != nil {
		clients.Close()
		_ = pg.Close()
		_ = otelShutdown(context.Background())
		return nil, err
	}

	var sw *sweeper.Sweeper
	if cfg.SweepEnabled {
		var locker sweeper.Locker
		if clients.Redis != nil {
			locker = sweeper.NewRedisLocker(log, clients.Redis, "")
		}
		sw, err = sweeper.New(log, cfg.Sweep, svcs.Reaper, svcs.Reconciler, locker)
		if err != nil {
			clients.Close()
			_ = pg.Close()
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("init sweeper: %w", err)
		}
	}

	handlers := wireHandlers(log, gdb, svcs)
	mw := wireMiddleware(log, cfg)
	server := wireServer(log, cfg, handlers, mw, metrics)

	return &App{
		Log:          log,
		Cfg:          cfg,
		DB:           gdb,
		Server:       server,
		Repos:        reposet,
		Clients:      clients,
		Services:     svcs,
		Sweeper:      sw,
		postgres:     pg,
		otelShutdown: otelShutdown,
	}, nil
}

// Serve runs the HTTP server and the background sweeps until ctx is done or
// either fails; the first error cancels the other.
func (a *App) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	addr := ":" + a.Cfg.Port
	g.Go(func() error {
		a.Log.Info("Server listening", "addr", addr)
		return a.Server.Run(gctx, addr)
	})
	if a.Sweeper != nil {
		g.Go(func() error {
			a.Sweeper.Start(gctx)
			<-gctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			a.Sweeper.Stop(stopCtx)
			return nil
		})
	}
	return g.Wait()
}

func (a *App) Close() {
	if a == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if a.Sweeper != nil {
		a.Sweeper.Stop(ctx)
	}
	a.Clients.Close()
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	if a.postgres != nil {
		_ = a.postgres.Close()
	}
	a.Log.Sync()
}

func openDB(log *logger.Logger, cfg Config) (*db.PostgresService, *gorm.DB, error) {
	pg, err := db.NewPostgresService(cfg.DB, log)
	if err != nil {
		return nil, nil, fmt.Errorf("init postgres: %w", err)
	}
	gdb := pg.DB()
	if cfg.AutoMigrate {
		if err := db.AutoMigrateAll(gdb); err != nil {
			_ = pg.Close()
			return nil, nil, err
		}
	}
	return pg, gdb, nil
}

// Migrate applies the schema and exits.
func Migrate(cfg Config, log *logger.Logger) error {
	pg, err := db.NewPostgresService(cfg.DB, log)
	if err != nil {
		return fmt.Errorf("init postgres: %w", err)
	}
	defer pg.Close()
	if err := db.AutoMigrateAll(pg.DB()); err != nil {
		return err
	}
	log.Info("Migrations applied")
	return nil
}

// Reap runs one stuck-job pass without the engine or HTTP stack, for cron
// runners outside the server process.
func Reap(ctx context.Context, cfg Config, log *logger.Logger) (services.ReapResult, error) {
	pg, gdb, err := openDB(log, cfg)
	if err != nil {
		return services.ReapResult{}, err
	}
	defer pg.Close()
	return wireReaper(log, cfg, wireRepos(gdb, log)).Reap(ctx)
}

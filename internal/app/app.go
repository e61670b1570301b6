package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/platebook/importer-backend/internal/db"
	"github.com/platebook/importer-backend/internal/handlers"
	"github.com/platebook/importer-backend/internal/health"
	"github.com/platebook/importer-backend/internal/logger"
	"github.com/platebook/importer-backend/internal/observability"
	"github.com/platebook/importer-backend/internal/queue"
	"github.com/platebook/importer-backend/internal/workers"
	"github.com/platebook/importer-backend/internal/ws"
)

// App owns every long-lived component of the importer: the HTTP API, the
// status websocket hub, the six queue workers, and their shared clients.
type App struct {
	Log     *logger.Logger
	DB      *gorm.DB
	Cfg     Config
	Router  *gin.Engine
	Hub     *ws.Hub
	Queues  map[string]queue.Queue
	Manager *workers.Manager

	clients      Clients
	monitor      *health.Monitor
	metrics      *observability.Metrics
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, err
	}

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	clients, err := wireClients(log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}

	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "importer-backend",
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})
	metrics := observability.Init(log)

	monitor := health.NewMonitor(log, time.Duration(cfg.HealthIntervalSeconds)*time.Second)
	monitor.RegisterProbe("postgres", func(ctx context.Context) error {
		sqlDB, err := theDB.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})
	monitor.RegisterProbe("redis", func(ctx context.Context) error {
		return clients.Redis.Ping(ctx).Err()
	})
	if clients.Store != nil {
		monitor.RegisterProbe("object-storage", clients.Store.Ping)
	}

	hub := ws.NewHub(log)
	reposet := wireRepos(theDB, log)
	serviceset := wireServices(log, hub)
	queues := wireQueues(clients, log, cfg)

	deps := wireWorkerDeps(log, theDB, cfg, clients, reposet, serviceset, queues, monitor, metrics)
	manager, err := wireWorkers(deps, cfg)
	if err != nil {
		clients.Close()
		log.Sync()
		return nil, err
	}

	handlerset := Handlers{
		Import: handlers.NewImportHandler(log, queues[queue.QueueNotes],
			reposet.Notes, reposet.Images, reposet.Ingredients, reposet.Instructions, reposet.Sources),
		Health: handlers.NewHealthHandler(monitor),
		Queues: handlers.NewQueueHandler(queues),
	}
	router := wireRouter(cfg, handlerset, metrics)

	return &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Router:       router,
		Hub:          hub,
		Queues:       queues,
		Manager:      manager,
		clients:      clients,
		monitor:      monitor,
		metrics:      metrics,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches the workers, the websocket hub, and the metrics collectors.
func (a *App) Start() error {
	if a == nil || a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if err := a.Manager.StartAll(ctx); err != nil {
		cancel()
		a.cancel = nil
		return fmt.Errorf("start workers: %w", err)
	}

	go func() {
		addr := ":" + a.Cfg.WSPort
		if err := a.Hub.Run(addr); err != nil && err != http.ErrServerClosed {
			a.Log.Error("Websocket hub exited", "error", err)
		}
	}()

	if a.metrics != nil {
		a.metrics.StartRedisCollector(ctx, a.Log, a.Cfg.RedisAddr)
		a.metrics.StartQueueDepthCollector(ctx, a.Log, a.Queues)
		go func() {
			ticker := time.NewTicker(5 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					a.metrics.SetWSClients(a.Hub.ClientCount())
				}
			}
		}()
	}
	return nil
}

// Run serves the HTTP API. Blocks until the listener fails or is shut down.
func (a *App) Run() error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Router.Run(":" + a.Cfg.Port)
}

// Close drains the workers and shuts everything down. Safe to call once.
func (a *App) Close() {
	if a == nil {
		return
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if a.Manager != nil {
		if err := a.Manager.StopAll(stopCtx); err != nil {
			a.Log.Warn("Workers did not drain cleanly", "error", err)
		}
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Hub != nil {
		_ = a.Hub.Shutdown(stopCtx)
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(stopCtx)
	}
	a.clients.Close()
	if a.Log != nil {
		a.Log.Sync()
	}
}

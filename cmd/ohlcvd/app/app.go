// Package app composes the ingest daemon: configuration, storage, the
// exchange client, the harvest/aggregate/ingest pipeline, the scheduler,
// and the thin HTTP consumer surface.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"upbit_ingestor/cmd/ohlcvd/transport"
	"upbit_ingestor/cmd/ohlcvd/transport/rest"
	"upbit_ingestor/internal/ohlcv/exchange"
	"upbit_ingestor/internal/ohlcv/harvest"
	"upbit_ingestor/internal/ohlcv/ingest"
	"upbit_ingestor/internal/ohlcv/schedule"
	"upbit_ingestor/internal/ohlcv/store"
	"upbit_ingestor/internal/ohlcv/store/postgres"
	"upbit_ingestor/internal/ohlcvconfig"
	"upbit_ingestor/pkg/cache"
	"upbit_ingestor/pkg/database"
	"upbit_ingestor/pkg/log"
)

// App wires every ingest daemon component and serves the consumer
// surface over HTTP.
type App struct {
	appSettings *ohlcvconfig.AppSettings
	router      *gin.Engine
	httpServer  *http.Server
	scheduler   *schedule.Scheduler
	dbCleanup   func()
}

// NewApp loads configuration, opens storage, applies schema migrations,
// and wires the harvest/aggregate/ingest/scheduler pipeline behind the
// HTTP consumer surface.
func NewApp() *App {
	ctx := context.Background()

	pairSettings, err := ohlcvconfig.Load()
	if err != nil {
		log.Fatal("failed to load ingestion configuration: %v", err)
	}

	appSettings, err := ohlcvconfig.LoadAppSettings()
	if err != nil {
		log.Fatal("failed to load application configuration: %v", err)
	}

	dbConfig, err := appSettings.DatabaseConfig()
	if err != nil {
		log.Fatal("failed to build database config: %v", err)
	}

	connMaster, dbCleanup, err := database.OpenMaster(ctx, dbConfig)
	if err != nil {
		log.Fatal("unable to connect to database: %v", err)
	}

	migrationHandler := database.NewMigrationHandler(connMaster, dbConfig)
	log.Info("applying schema migrations")
	if err := migrationHandler.ApplyMigrations(); err != nil {
		log.Fatal("failed to apply database migrations: %v", err)
	}

	candleRepo := postgres.NewCandleRepository(connMaster.DB)
	rangeRepo := postgres.NewRangeRepository(connMaster.DB)

	inmem := cache.NewInMemoryCache(appSettings.Cache.InMem)
	redisClient := cache.NewRedisStore(appSettings.Cache.Redis)
	cacheManager := cache.NewCacheManager(inmem, redisClient)
	cachedReader := store.NewCachedCandleReader(candleRepo, cacheManager)

	exchangeClient := exchange.NewClient(pairSettings.UpbitBaseURL)
	harvester := harvest.New(exchangeClient)
	orchestrator := ingest.New(harvester, candleRepo, rangeRepo, exchange.Zone())

	sched := schedule.New(orchestrator, pairSettings.Pairs, pairSettings.OffsetSeconds)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	candleHandler := rest.NewCandleHandler(cachedReader, rangeRepo, pairSettings.Pairs, sched)
	httpHandler := transport.NewHTTPHandler(candleHandler)
	httpHandler.RegisterRoutes(router)

	return &App{
		appSettings: appSettings,
		router:      router,
		scheduler:   sched,
		dbCleanup:   dbCleanup,
	}
}

// Run starts the scheduler's initial synchronous cycle and recurring
// cron, then serves the HTTP consumer surface until an interrupt.
func (a *App) Run() error {
	ctx := context.Background()

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer a.scheduler.Stop()
	defer a.dbCleanup()

	a.httpServer = &http.Server{
		Addr:         ":" + a.appSettings.Server.Port,
		Handler:      a.router,
		ReadTimeout:  time.Duration(a.appSettings.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(a.appSettings.Server.WriteTimeout) * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("starting HTTP server on port %s", a.appSettings.Server.Port)
		serverErrors <- a.httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-shutdown:
		log.Info("shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			a.httpServer.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}

	return nil
}

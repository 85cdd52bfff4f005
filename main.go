// Package main provides the main entry point for the sneaker price ledger service
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/amirphl/sneaker-price-ledger/app/handlers"
	"github.com/amirphl/sneaker-price-ledger/app/router"
	"github.com/amirphl/sneaker-price-ledger/app/scheduler"
	"github.com/amirphl/sneaker-price-ledger/app/services"
	businessflow "github.com/amirphl/sneaker-price-ledger/business_flow"
	"github.com/amirphl/sneaker-price-ledger/config"
	"github.com/amirphl/sneaker-price-ledger/repository"
	"github.com/amirphl/sneaker-price-ledger/utils"
	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Application represents the main application structure
type Application struct {
	config     *config.ProductionConfig
	logger     *log.Logger
	db         *gorm.DB
	cache      *redis.Client
	router     router.Router
	enrichment *handlers.EnrichmentHandler
	cancel     context.CancelFunc
	stopFuncs  []func()
}

func main() {
	log.Println("Starting sneaker price ledger...")

	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	app, err := initializeApplication(cfg)
	if err != nil {
		if services.IsConfigurationError(err) {
			log.Fatalf("Marketplace is not configured: %v", err)
		}
		log.Fatalf("Failed to initialize application: %v", err)
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		serverErr <- app.router.Start(address)
	}()

	select {
	case <-sigChan:
		app.logger.Println("Shutting down gracefully...")
	case err := <-serverErr:
		app.logger.Printf("Server stopped unexpectedly: %v", err)
	}

	app.shutdown()
	app.logger.Println("Server stopped")
}

// initializeLogger writes to stdout, a rotating file or both
func initializeLogger(cfg config.LoggingConfig) (*log.Logger, error) {
	var out io.Writer = os.Stdout
	if cfg.Output == "file" || cfg.Output == "both" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		out = file
		if cfg.Output == "both" {
			out = io.MultiWriter(os.Stdout, file)
		}
	}
	return log.New(out, "", log.LstdFlags|log.Lmicroseconds|log.LUTC), nil
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig, logger *log.Logger) (*gorm.DB, error) {
	logLevel := gormlogger.Silent
	if cfg.SlowQueryLog {
		logLevel = gormlogger.Warn
	}
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: gormlogger.New(logger, gormlogger.Config{
			SlowThreshold:             cfg.SlowQueryTime,
			LogLevel:                  logLevel,
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: utils.UTCNow,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)
	return db, nil
}

// initializeCache connects to redis when enabled; nil means no cache
func initializeCache(cfg config.CacheConfig, logger *log.Logger) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Printf("Redis connection established (db=%d)", cfg.RedisDB)
	return rc, nil
}

// initializeCatalog builds the token broker, fetcher and catalog client; missing credentials fail fast
func initializeCatalog(cfg config.MarketplaceConfig, logger *log.Logger) (*services.CatalogClient, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout}

	broker, err := services.NewTokenBroker(services.CredentialsFromConfig(cfg), services.TokenBrokerOptions{
		AuthURL:    cfg.AuthURL,
		HTTPClient: httpClient,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	fetcher := services.NewMarketplaceFetcher(broker, services.FetcherOptions{
		BaseURL:    cfg.BaseURL,
		UserAgent:  cfg.UserAgent,
		HTTPClient: httpClient,
		Timeout:    cfg.Timeout,
		PageDelay:  cfg.PageDelay,
		Logger:     logger,
	})
	return services.NewCatalogClient(fetcher, logger), nil
}

func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	logger, err := initializeLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	catalog, err := initializeCatalog(cfg.Marketplace, logger)
	if err != nil {
		return nil, err
	}

	db, err := initializeDatabase(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	cache, err := initializeCache(cfg.Cache, logger)
	if err != nil {
		return nil, err
	}

	// Repositories
	listingRepo := repository.NewRetailListingRepository(db)
	productRepo := repository.NewCanonicalProductRepository(db)
	sizeRepo := repository.NewSizeMasterRepository(db)
	sizeLogRepo := repository.NewSizeValidationLogRepository(db)
	priceSourceRepo := repository.NewPriceSourceRepository(db)
	priceHistoryRepo := repository.NewPriceHistoryRepository(db)
	jobRepo := repository.NewEnrichmentJobRepository(db)
	tx := repository.NewTransactor(db)

	// Business flows
	clock := utils.SystemClock{}
	sizeResolver := businessflow.NewSizeConflictResolver(sizeRepo, sizeLogRepo, tx, clock, logger)
	ledger := businessflow.NewPriceLedger(priceSourceRepo, priceHistoryRepo, tx, clock)
	enrichmentFlow := businessflow.NewEnrichmentFlow(listingRepo, productRepo, jobRepo, catalog, sizeResolver, ledger, clock, logger)
	opportunityFlow := businessflow.NewOpportunityFlow(priceSourceRepo, clock)

	ctx, cancel := context.WithCancel(context.Background())
	app := &Application{
		config: cfg,
		logger: logger,
		db:     db,
		cache:  cache,
		cancel: cancel,
	}

	// Handlers
	app.enrichment = handlers.NewEnrichmentHandler(ctx, enrichmentFlow, handlers.EnrichmentDefaults{
		RateLimitPerMinute: cfg.Enrichment.RateLimitPerMinute,
		BatchLimit:         cfg.Enrichment.BatchLimit,
		RunTimeout:         cfg.Enrichment.RunTimeout,
	}, logger)
	opportunityHandler := handlers.NewOpportunityHandler(opportunityFlow, logger)

	healthChecks := map[string]router.HealthCheck{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if cache != nil {
		healthChecks["redis"] = func(ctx context.Context) error {
			return cache.Ping(ctx).Err()
		}
	}

	app.router = router.NewFiberRouter(cfg.Server, cfg.Metrics, app.enrichment, opportunityHandler, healthChecks, logger)

	// Scheduler
	if cfg.Enrichment.ScheduleEnabled {
		var lock scheduler.RunLock
		if cache != nil {
			lock = scheduler.NewRedisRunLock(cache, cfg.Cache.RedisPrefix+"enrichment:lock", cfg.Cache.LockTTL)
		}
		s := scheduler.NewEnrichmentScheduler(enrichmentFlow, lock, businessflow.EnrichmentRunRequest{
			RateLimitPerMinute: cfg.Enrichment.RateLimitPerMinute,
			BatchLimit:         cfg.Enrichment.BatchLimit,
		}, cfg.Enrichment.ScheduleInterval, cfg.Enrichment.RunTimeout, logger)
		app.stopFuncs = append(app.stopFuncs, s.Start(ctx))
		logger.Printf("Enrichment scheduler started with interval %s", cfg.Enrichment.ScheduleInterval)
	}

	return app, nil
}

// shutdown stops the HTTP server, cancels background jobs and waits for them to finalize
func (a *Application) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.router.Shutdown(shutdownCtx); err != nil {
		a.logger.Printf("Error during server shutdown: %v", err)
	}

	a.cancel()
	for _, stop := range a.stopFuncs {
		stop()
	}

	done := make(chan struct{})
	go func() {
		a.enrichment.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		a.logger.Printf("Timed out waiting for enrichment jobs: %v", shutdownCtx.Err())
	}

	if a.cache != nil {
		_ = a.cache.Close()
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

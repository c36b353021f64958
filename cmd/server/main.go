package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	inventoryapp "github.com/erp/warehouse/internal/application/inventory"
	"github.com/erp/warehouse/internal/domain/inventory"
	"github.com/erp/warehouse/internal/infrastructure/cache"
	"github.com/erp/warehouse/internal/infrastructure/config"
	"github.com/erp/warehouse/internal/infrastructure/event"
	"github.com/erp/warehouse/internal/infrastructure/logger"
	"github.com/erp/warehouse/internal/infrastructure/migration"
	"github.com/erp/warehouse/internal/infrastructure/persistence"
	"github.com/erp/warehouse/internal/infrastructure/persistence/memory"
	"github.com/erp/warehouse/internal/infrastructure/telemetry"
	"github.com/erp/warehouse/internal/interfaces/http/handler"
	"github.com/erp/warehouse/internal/interfaces/http/middleware"
	"github.com/erp/warehouse/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	// .env is optional; real environment variables win over it
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  cfg.Log.Output,
		Service: cfg.App.Name,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Error("Server stopped with error", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	_ = log.Sync()
}

// closer releases one resource during shutdown
type closer struct {
	name string
	fn   func(ctx context.Context) error
}

func run(cfg *config.Config, baseLog *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var closers []closer
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].fn(shutdownCtx); err != nil {
				baseLog.Warn("Shutdown step failed", zap.String("component", closers[i].name), zap.Error(err))
			}
		}
	}()

	// Telemetry
	logsProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, baseLog)
	if err != nil {
		return fmt.Errorf("init log export: %w", err)
	}
	closers = append(closers, closer{"log export", logsProvider.Shutdown})
	log := logsProvider.Bridge(baseLog, logger.ParseLevel(cfg.Log.Level))

	log.Info("Starting warehouse service",
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("ledger_backend", cfg.Ledger.Backend),
	)

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	closers = append(closers, closer{"tracing", tracerProvider.Shutdown})

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	closers = append(closers, closer{"metrics", meterProvider.Shutdown})

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:              cfg.Profiler.Enabled,
		ServerAddress:        cfg.Profiler.ServerAddress,
		ApplicationName:      cfg.Telemetry.ServiceName,
		ProfileMutex:         cfg.Profiler.ProfileMutex,
		MutexProfileFraction: cfg.Profiler.MutexProfileFraction,
	}, log)
	if err != nil {
		return fmt.Errorf("init profiler: %w", err)
	}
	closers = append(closers, closer{"profiler", func(context.Context) error { return profiler.Stop() }})
	if cfg.Profiler.Enabled && cfg.Profiler.SpanProfiles && tracerProvider.IsEnabled() {
		tracerProvider.EnableSpanProfiles()
	}

	// Ledger backend
	health := handler.NewHealthHandler(cfg.Ledger.Backend)
	var (
		txScope inventoryapp.TransactionScope
		orders  inventory.OrderAllocationRepository
	)
	switch cfg.Ledger.Backend {
	case config.LedgerBackendPostgres:
		db, err := openDatabase(cfg, log)
		if err != nil {
			return err
		}
		closers = append(closers, closer{"database", func(context.Context) error { return db.Close() }})

		txScope = persistence.NewGormTransactionScope(db.DB)
		orders = persistence.NewGormOrderAllocationRepository(db.DB)
		health.AddCheck("database", func(ctx context.Context) error {
			sqlDB, err := db.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		})
	default:
		log.Warn("Using in-memory stock ledger; stock is lost on restart")
		memOrders := memory.NewOrderAllocationRepository()
		txScope = inventoryapp.NewNoOpTransactionScope(memory.NewStockLedger(), memOrders)
		orders = memOrders
	}

	service := inventoryapp.NewAllocationService(txScope, orders, inventoryapp.ServiceConfig{
		FallbackLocationID:    cfg.Ledger.FallbackLocationID,
		ReleaseIdempotencyTTL: cfg.Ledger.ReleaseIdempotencyTTL,
	}, log)

	idempotency, err := cache.NewIdempotencyStoreFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	).CreateStore(ctx)
	if err != nil {
		return fmt.Errorf("init idempotency store: %w", err)
	}
	closers = append(closers, closer{"idempotency store", func(context.Context) error { return idempotency.Close() }})
	service.SetIdempotencyStore(idempotency)

	allocationMetrics, err := telemetry.NewAllocationMetrics(meterProvider.Meter("warehouse.allocation"), log)
	if err != nil {
		return fmt.Errorf("init allocation metrics: %w", err)
	}
	service.SetAllocationMetrics(allocationMetrics)

	// Events
	bus := event.NewInMemoryEventBus(log)
	if cfg.Kafka.Enabled {
		forwarder := event.NewKafkaForwarder(event.NewKafkaWriter(cfg.Kafka), event.NewInventoryEventSerializer(), log)
		bus.Subscribe(forwarder)
		closers = append(closers, closer{"kafka forwarder", func(context.Context) error { return forwarder.Close() }})
		log.Info("Forwarding stock events to Kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}
	if err := bus.Start(ctx); err != nil {
		return fmt.Errorf("start event bus: %w", err)
	}
	closers = append(closers, closer{"event bus", bus.Stop})
	service.SetEventPublisher(bus)

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	cors := middleware.DefaultCORSConfig()
	if len(cfg.HTTP.CORSAllowOrigins) > 0 {
		cors.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	}
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		cors.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		cors.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}

	routerCfg := router.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		CORS:           cors,
		MaxBodyBytes:   1 << 20,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		Tracing:        tracerProvider.IsEnabled(),
		Profiling:      profiler.IsEnabled(),
	}
	if meterProvider.IsEnabled() {
		routerCfg.Meter = meterProvider.Meter("http.server")
	}
	engine, err := router.New(routerCfg, router.Handlers{
		Allocation: handler.NewAllocationHandler(service),
		Stock:      handler.NewStockHandler(service),
		Health:     health,
	}, log)
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Server exited gracefully")
	return nil
}

func openDatabase(cfg *config.Config, log *zap.Logger) (*persistence.Database, error) {
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Database.LogLevel),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh),
		logger.WithIgnoreRecordNotFoundError(true),
	)
	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithLogger(gormLog))
	if err != nil {
		return nil, err
	}
	log.Info("Database connected",
		zap.String("host", cfg.Database.Host),
		zap.String("dbname", cfg.Database.DBName),
	)

	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBSystem:        "postgresql",
	}, log); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("register db tracing: %w", err)
	}

	if cfg.Database.AutoMigrate {
		sqlDB, err := db.DB.DB()
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		// the migrator shares the pool, so it is not closed here
		m, err := migration.New(sqlDB, log.Named("migrate"))
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init migrations: %w", err)
		}
		if err := m.Up(); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ingestgate/ingestgate/adapters/clock"
	gatehttp "github.com/ingestgate/ingestgate/adapters/http"
	"github.com/ingestgate/ingestgate/adapters/idgen"
	"github.com/ingestgate/ingestgate/adapters/memory"
	"github.com/ingestgate/ingestgate/adapters/metrics"
	"github.com/ingestgate/ingestgate/adapters/redisstore"
	"github.com/ingestgate/ingestgate/adapters/sqlite"
	"github.com/ingestgate/ingestgate/app"
	"github.com/ingestgate/ingestgate/config"
	"github.com/ingestgate/ingestgate/ports"
)

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Config
	Holder     *config.Holder
	DB         *sqlite.DB
	HTTPServer *http.Server
	Metrics    *metrics.Collector

	ingestService *app.IngestService

	// Adapters (for cleanup)
	counterStore ports.CounterStore
	memoryStore  *memory.CounterStore
	recorder     ports.DecisionRecorder
	collector    *gatehttp.UpstreamClient
	appUpstream  *gatehttp.UpstreamClient

	stopCh chan struct{}
}

// New creates and initializes the application from a loaded config.
func New(cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg.Logging)
	return build(cfg, nil, logger)
}

// NewWithHotReload creates the application from a config file and watches
// it for changes. Reloadable fields are applied without a restart.
func NewWithHotReload(path string) (*App, error) {
	// Bootstrap logger until the config is loaded
	bootLogger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	holder, err := config.NewHolder(path, bootLogger)
	if err != nil {
		return nil, err
	}

	cfg := holder.Get()
	logger := setupLogger(cfg.Logging)

	a, err := build(cfg, holder, logger)
	if err != nil {
		holder.Stop()
		return nil, err
	}

	holder.OnChange(a.applyConfig)
	if err := holder.WatchFile(); err != nil {
		logger.Warn().Err(err).Msg("config file watch unavailable, SIGHUP reload only")
	}
	holder.WatchSignals()

	return a, nil
}

func build(cfg *config.Config, holder *config.Holder, logger zerolog.Logger) (*App, error) {
	logger.Info().Msg("initializing ingestgate")

	a := &App{
		Logger: logger,
		Config: cfg,
		Holder: holder,
		stopCh: make(chan struct{}),
	}

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
		logger.Info().Msg("prometheus metrics enabled")
	}

	if err := a.initCounterStore(cfg); err != nil {
		return nil, fmt.Errorf("init counter store: %w", err)
	}

	if err := a.initAudit(cfg); err != nil {
		return nil, fmt.Errorf("init audit: %w", err)
	}

	if err := a.initHTTPServer(cfg); err != nil {
		return nil, fmt.Errorf("init http server: %w", err)
	}

	return a, nil
}

func (a *App) initCounterStore(cfg *config.Config) error {
	switch cfg.Ingest.Store {
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		store, err := redisstore.NewCounterStore(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		a.counterStore = store
		a.Logger.Info().Str("addr", cfg.Redis.Addr).Msg("using redis counter store")

	default:
		store := memory.NewCounterStore(memory.Config{
			CleanupInterval: cfg.Ingest.CleanupInterval,
			Clock:           clock.Real{},
		})
		a.counterStore = store
		a.memoryStore = store
		a.Logger.Info().
			Dur("cleanup_interval", cfg.Ingest.CleanupInterval).
			Msg("using in-memory counter store")
	}
	return nil
}

func (a *App) initAudit(cfg *config.Config) error {
	if !cfg.Audit.Enabled {
		a.Logger.Info().Msg("decision audit disabled")
		return nil
	}

	db, err := sqlite.Open(cfg.Database.DSN)
	if err != nil {
		return err
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		return fmt.Errorf("migrate: %w", err)
	}
	a.DB = db

	store := sqlite.NewDecisionStore(db)
	a.recorder = app.NewBatchingRecorder(store, cfg.Audit.BatchSize, cfg.Audit.FlushInterval, a.Logger)

	a.Logger.Info().Str("dsn", cfg.Database.DSN).Msg("decision audit enabled")
	return nil
}

func (a *App) initHTTPServer(cfg *config.Config) error {
	collector, err := gatehttp.NewUpstreamClient(gatehttp.UpstreamConfig{
		Name:            "collector",
		BaseURL:         cfg.Collector.URL,
		Timeout:         cfg.Collector.Timeout,
		MaxIdleConns:    cfg.Collector.MaxIdleConns,
		IdleConnTimeout: cfg.Collector.IdleConnTimeout,
	})
	if err != nil {
		return fmt.Errorf("build collector upstream: %w", err)
	}
	a.collector = collector

	appUpstream, err := gatehttp.NewUpstreamClient(gatehttp.UpstreamConfig{
		Name:            "app",
		BaseURL:         cfg.App.URL,
		Timeout:         cfg.App.Timeout,
		MaxIdleConns:    cfg.App.MaxIdleConns,
		IdleConnTimeout: cfg.App.IdleConnTimeout,
	})
	if err != nil {
		return fmt.Errorf("build app upstream: %w", err)
	}
	a.appUpstream = appUpstream

	service, err := app.NewIngestService(app.IngestDeps{
		Counters:  a.counterStore,
		Collector: collector,
		Clock:     clock.Real{},
		IDGen:     idgen.UUID{},
		Recorder:  a.recorder,
		Logger:    a.Logger,
	}, app.IngestConfig{
		Limit:         cfg.Ingest.Limit,
		Window:        cfg.Ingest.Window(),
		ExtraPatterns: cfg.Ingest.ExtraPatterns,
	})
	if err != nil {
		return fmt.Errorf("build ingest service: %w", err)
	}
	a.ingestService = service

	var ingestHandler *gatehttp.IngestHandler
	if a.Metrics != nil {
		ingestHandler = gatehttp.NewIngestHandlerWithMetrics(service, a.Logger, a.Metrics)
	} else {
		ingestHandler = gatehttp.NewIngestHandler(service, a.Logger)
	}
	passthrough := gatehttp.NewPassthroughHandler(appUpstream, a.Logger)
	healthHandler := gatehttp.NewHealthHandler(collector, appUpstream)

	router := gatehttp.NewRouterWithConfig(ingestHandler, passthrough, healthHandler, a.Logger, gatehttp.RouterConfig{
		Metrics: a.Metrics,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	a.HTTPServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	a.Logger.Info().Str("addr", addr).Msg("http server configured")
	return nil
}

// applyConfig applies reloadable fields from a freshly loaded config.
func (a *App) applyConfig(cfg *config.Config) {
	if err := a.ingestService.UpdateConfig(cfg.Ingest.Limit, cfg.Ingest.Window(), cfg.Ingest.ExtraPatterns); err != nil {
		a.Logger.Error().Err(err).Msg("config reload rejected by ingest service")
		if a.Metrics != nil {
			a.Metrics.ConfigReloadErrors.Inc()
		}
		return
	}

	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	a.Config = cfg
	if a.Metrics != nil {
		a.Metrics.ConfigReloads.Inc()
		a.Metrics.ConfigLastReload.SetToCurrentTime()
	}

	a.Logger.Info().
		Int("limit", cfg.Ingest.Limit).
		Int("window_secs", cfg.Ingest.WindowSecs).
		Msg("ingest config applied")
}

// Run starts the HTTP server and blocks until shutdown.
func (a *App) Run() error {
	go a.maintenanceLoop()

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// maintenanceLoop reports counter table size and prunes old audit rows.
func (a *App) maintenanceLoop() {
	gaugeTicker := time.NewTicker(30 * time.Second)
	defer gaugeTicker.Stop()
	pruneTicker := time.NewTicker(12 * time.Hour)
	defer pruneTicker.Stop()

	for {
		select {
		case <-gaugeTicker.C:
			if a.Metrics != nil && a.memoryStore != nil {
				a.Metrics.LimiterEntries.Set(float64(a.memoryStore.Len()))
			}

		case <-pruneTicker.C:
			a.pruneAudit()

		case <-a.stopCh:
			return
		}
	}
}

func (a *App) pruneAudit() {
	if a.DB == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-a.Config.Audit.Retention)
	n, err := sqlite.NewDecisionStore(a.DB).Prune(ctx, cutoff)
	if err != nil {
		a.Logger.Error().Err(err).Msg("audit prune failed")
		return
	}
	if n > 0 {
		a.Logger.Info().Int64("rows", n).Msg("pruned old decision events")
	}
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	close(a.stopCh)

	if a.Holder != nil {
		a.Holder.Stop()
	}

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	if a.recorder != nil {
		if err := a.recorder.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("decision recorder close error")
		}
	}

	if a.counterStore != nil {
		if err := a.counterStore.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("counter store close error")
		}
	}

	if a.collector != nil {
		a.collector.Close()
	}
	if a.appUpstream != nil {
		a.appUpstream.Close()
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

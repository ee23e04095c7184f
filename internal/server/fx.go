// Package server builds the application graph and runs the HTTP service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/api"
	"github.com/JakeFAU/pagewatch/internal/clock/system"
	"github.com/JakeFAU/pagewatch/internal/config"
	"github.com/JakeFAU/pagewatch/internal/diff"
	"github.com/JakeFAU/pagewatch/internal/extract"
	"github.com/JakeFAU/pagewatch/internal/fetcher"
	collyfetcher "github.com/JakeFAU/pagewatch/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/pagewatch/internal/fetcher/headless"
	"github.com/JakeFAU/pagewatch/internal/id/uuid"
	"github.com/JakeFAU/pagewatch/internal/insight"
	memorylease "github.com/JakeFAU/pagewatch/internal/lease/memory"
	redislease "github.com/JakeFAU/pagewatch/internal/lease/redis"
	"github.com/JakeFAU/pagewatch/internal/logging"
	"github.com/JakeFAU/pagewatch/internal/orchestrator"
	"github.com/JakeFAU/pagewatch/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/pagewatch/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/pagewatch/internal/publisher/pubsub"
	"github.com/JakeFAU/pagewatch/internal/retention"
	"github.com/JakeFAU/pagewatch/internal/scheduler"
	"github.com/JakeFAU/pagewatch/internal/selector"
	gcsstorage "github.com/JakeFAU/pagewatch/internal/storage/gcs"
	localstorage "github.com/JakeFAU/pagewatch/internal/storage/local"
	memorystore "github.com/JakeFAU/pagewatch/internal/storage/memory"
	pgstore "github.com/JakeFAU/pagewatch/internal/storage/postgres"
	"github.com/JakeFAU/pagewatch/internal/telemetry"
	"github.com/JakeFAU/pagewatch/internal/watch"
)

// Scheduled job names.
const (
	JobTick       = "tick"
	JobQuotaReset = "quota_reset"
	JobRetention  = "retention"
)

// App contains the application's dependencies.
type App struct {
	cfg          *config.Config
	logger       *zap.Logger
	clock        watch.Clock
	store        watch.Store
	apiServer    *api.Server
	scheduler    *scheduler.Scheduler
	orchestrator *orchestrator.Orchestrator
	sweeper      *retention.Sweeper
	ready        []api.ReadyCheck

	pgStore         *pgstore.Store
	redisClient     *redis.Client
	pubsubClient    *pubsub.Client
	pubsubPublisher *gcppublisher.Publisher
	storage         *storage.Client
	headless        *headlessfetcher.Fetcher
	tracerShutdown  func(context.Context) error
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) *App {
	logger.Info("creating application",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("database", cfg.Database.Driver),
		zap.String("lease", cfg.Lease.Backend),
		zap.String("storage", cfg.Storage.Backend),
	)
	return &App{
		cfg:    cfg,
		logger: logger,
		clock:  system.New(),
	}
}

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Orchestrator returns the batch runner.
func (a *App) Orchestrator() *orchestrator.Orchestrator {
	return a.orchestrator
}

// Sweeper returns the retention sweeper.
func (a *App) Sweeper() *retention.Sweeper {
	return a.sweeper
}

// Handler exposes the HTTP handler, mostly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the scheduler and HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.cfg.Schedule.Enabled {
		a.scheduler.Start(ctx)
		for _, name := range []string{JobTick, JobQuotaReset, JobRetention} {
			if next, ok := a.scheduler.Next(name); ok {
				a.logger.Info("job scheduled", zap.String("job", name), zap.Time("next", next))
			}
		}
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       a.cfg.Server.ReadTimeout,
		WriteTimeout:      a.cfg.Server.WriteTimeout,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if a.cfg.Schedule.Enabled {
		a.scheduler.Stop()
	}

	return a.Close(shutdownCtx)
}

// Close releases every external client the App opened.
func (a *App) Close(ctx context.Context) error {
	a.closeInfrastructure()
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure() {
	if a.headless != nil {
		a.headless.Close()
	}
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("redis client close failed", zap.Error(err))
		}
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	// Sync on a console sink returns EINVAL; nothing useful to report.
	_ = a.logger.Sync() //nolint:errcheck
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	app := NewApp(cfg, logger)
	ok := false
	defer func() {
		if !ok {
			app.closeInfrastructure()
		}
	}()

	tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	app.tracerShutdown = tp.Shutdown

	app.logger.Info("building application dependencies")
	if err = setupDatabase(ctx, app); err != nil {
		return nil, err
	}
	leaser, err := setupLeaser(ctx, app)
	if err != nil {
		return nil, err
	}
	blobs, err := setupStorage(ctx, app)
	if err != nil {
		return nil, err
	}
	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		return nil, err
	}
	cascade, err := setupFetcher(app)
	if err != nil {
		return nil, err
	}

	app.orchestrator, err = orchestrator.New(orchestrator.Config{
		Concurrency:      cfg.Orchestrator.Concurrency,
		TickDeadline:     cfg.Orchestrator.TickDeadline,
		LeaseTTL:         cfg.Lease.TTL,
		HistoryDepth:     cfg.Orchestrator.HistoryDepth,
		ProvenWindow:     cfg.Orchestrator.ProvenWindow,
		ThrottleInterval: cfg.Orchestrator.ThrottleInterval,
		AlertTopic:       cfg.PubSub.AlertTopic,
		BlobPrefix:       cfg.Storage.Prefix,
		Limits:           cfg.Limits(),
	}, orchestrator.Deps{
		Store:      app.store,
		Fetcher:    cascade,
		Classifier: diff.NewClassifier(diff.Options{AlertOnMinor: cfg.Orchestrator.AlertOnMinor}),
		Leaser:     leaser,
		Blobs:      blobs,
		Publisher:  publisher,
		Insights:   insight.New(publisher, cfg.PubSub.InsightTopic, logger.Named("insight")),
		Clock:      app.clock,
		IDs:        uuid.New(),
	}, logger.Named("orchestrator"))
	if err != nil {
		return nil, fmt.Errorf("orchestrator init failed: %w", err)
	}

	app.sweeper = retention.New(app.store, cfg.RetentionPolicy(), app.clock, logger.Named("retention"))

	if err = setupScheduler(app); err != nil {
		return nil, err
	}

	app.apiServer = api.NewServer(api.Deps{
		Runner:  app.orchestrator,
		Gate:    app.orchestrator.Gate(),
		Targets: app.store,
		Sweeper: app.sweeper,
		Ready:   app.ready,
	}, *cfg, logger.Named("api"))

	ok = true
	return app, nil
}

func setupDatabase(ctx context.Context, app *App) error {
	if app.cfg.Database.Driver != "postgres" {
		app.logger.Warn("using in-memory target store; state is lost on restart")
		app.store = memorystore.NewStore()
		return nil
	}
	var err error
	app.pgStore, err = pgstore.New(ctx, pgstore.Config{
		DSN:             app.cfg.Database.DSN,
		MaxConns:        app.cfg.Database.MaxConns,
		MinConns:        app.cfg.Database.MinConns,
		MaxConnLifetime: app.cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("postgres store init failed: %w", err)
	}
	if app.cfg.Database.AutoMigrate {
		if err = app.pgStore.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("schema migration failed: %w", err)
		}
		app.logger.Info("database schema ensured")
	}
	app.store = app.pgStore
	app.ready = append(app.ready, api.ReadyCheck{Name: "postgres", Check: app.pgStore.Ping})
	app.logger.Info("postgres store initialized", zap.Int32("max_conns", app.cfg.Database.MaxConns))
	return nil
}

func setupLeaser(ctx context.Context, app *App) (watch.Leaser, error) {
	if app.cfg.Lease.Backend != "redis" {
		app.logger.Info("using in-process lease table")
		return memorylease.New(app.clock), nil
	}
	app.redisClient = redis.NewClient(&redis.Options{
		Addr:     app.cfg.Redis.Addr,
		Password: app.cfg.Redis.Password,
		DB:       app.cfg.Redis.DB,
	})
	if err := app.redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	client := app.redisClient
	app.ready = append(app.ready, api.ReadyCheck{
		Name:  "redis",
		Check: func(ctx context.Context) error { return client.Ping(ctx).Err() },
	})
	app.logger.Info("redis leases initialized", zap.String("addr", app.cfg.Redis.Addr))
	return redislease.New(app.redisClient, app.cfg.Lease.Prefix, app.clock), nil
}

func setupStorage(ctx context.Context, app *App) (watch.BlobStore, error) {
	switch app.cfg.Storage.Backend {
	case "gcs":
		var err error
		app.storage, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		blobs, err := gcsstorage.New(app.storage, gcsstorage.Config{Bucket: app.cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.logger.Info("using GCS archive", zap.String("bucket", app.cfg.Storage.GCSBucket))
		return blobs, nil
	case "local":
		blobs, err := localstorage.New(localstorage.Config{BaseDir: app.cfg.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Info("using local archive", zap.String("path", app.cfg.Storage.LocalDir))
		return blobs, nil
	default:
		app.logger.Info("using in-memory archive")
		return memorystore.NewBlobStore(), nil
	}
}

func setupPublisher(ctx context.Context, app *App) (watch.Publisher, error) {
	if app.cfg.PubSub.ProjectID == "" {
		app.logger.Warn("no Pub/Sub project configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	var err error
	app.pubsubClient, err = pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubPublisher = gcppublisher.New(app.pubsubClient)
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("alert_topic", app.cfg.PubSub.AlertTopic),
		zap.String("insight_topic", app.cfg.PubSub.InsightTopic),
	)
	return app.pubsubPublisher, nil
}

func setupFetcher(app *App) (*fetcher.Cascade, error) {
	fc := app.cfg.Fetcher
	cheap := collyfetcher.New(collyfetcher.Config{
		UserAgent:     fc.UserAgent,
		RespectRobots: fc.RespectRobots,
		Timeout:       fc.CheapTimeout,
	})
	app.logger.Info("using colly fetcher", zap.String("user_agent", fc.UserAgent))

	var accurate watch.Fetcher = headlessfetcher.NewNoop()
	if fc.HeadlessEnabled {
		var err error
		app.headless, err = headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       fc.MaxParallel,
			UserAgent:         fc.UserAgent,
			NavigationTimeout: fc.AccurateTimeout,
			SettleDelay:       fc.SettleDelay,
		})
		if err != nil {
			return nil, fmt.Errorf("headless fetcher init failed: %w", err)
		}
		accurate = app.headless
		app.logger.Info("using headless fetcher", zap.Int("max_parallel", fc.MaxParallel))
	} else {
		app.logger.Warn("headless fetcher disabled; escalations will fail")
	}

	limiter := ratelimit.New(
		ratelimit.Config{RPS: fc.CheapRPS, Burst: fc.CheapBurst},
		map[string]ratelimit.Config{
			string(watch.StrategyCheap):    {RPS: fc.CheapRPS, Burst: fc.CheapBurst},
			string(watch.StrategyAccurate): {RPS: fc.AccurateRPS, Burst: fc.AccurateBurst},
		},
	)
	return fetcher.NewCascade(
		cheap,
		accurate,
		limiter,
		extract.New(),
		selector.NewEscalator(app.cfg.Orchestrator.MinContentLength),
		app.logger.Named("fetcher"),
	), nil
}

func setupScheduler(app *App) error {
	app.scheduler = scheduler.New(app.cfg.Schedule.RunTimeout, app.logger.Named("scheduler"))
	jobs := []scheduler.Job{
		{
			Name: JobTick,
			Spec: app.cfg.Schedule.Tick,
			Run: func(ctx context.Context) error {
				_, err := app.orchestrator.Tick(ctx)
				return err
			},
		},
		{
			Name: JobQuotaReset,
			Spec: app.cfg.Schedule.QuotaReset,
			Run: func(ctx context.Context) error {
				return app.store.ResetDailyQuotas(ctx, app.clock.Now())
			},
		},
		{
			Name: JobRetention,
			Spec: app.cfg.Schedule.Retention,
			Run: func(ctx context.Context) error {
				_, err := app.sweeper.Run(ctx)
				return err
			},
		},
	}
	for _, job := range jobs {
		if err := app.scheduler.Add(job); err != nil {
			return fmt.Errorf("schedule %s: %w", job.Name, err)
		}
	}
	return nil
}

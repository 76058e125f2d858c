package app

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	cfg "github.com/likaia/nginxpulse-exporter/config"
	"github.com/likaia/nginxpulse-exporter/internal/cache"
	memqueue "github.com/likaia/nginxpulse-exporter/internal/cache/memory"
	redisqueue "github.com/likaia/nginxpulse-exporter/internal/cache/redis"
	"github.com/likaia/nginxpulse-exporter/internal/errors"
	"github.com/likaia/nginxpulse-exporter/internal/handler/httpapi"
	"github.com/likaia/nginxpulse-exporter/internal/logsource"
	"github.com/likaia/nginxpulse-exporter/internal/server"
	"github.com/likaia/nginxpulse-exporter/internal/store"
	"github.com/likaia/nginxpulse-exporter/internal/store/inmem"
	"github.com/likaia/nginxpulse-exporter/internal/store/postgres"
)

const demoLogRows = 5000

type App struct {
	Config *cfg.AppConfig

	Store store.Store
	Queue cache.Queue
	Logs  logsource.Source

	exitCh        chan error
	shutdown      func(ctx context.Context) error
	server        *server.Server
	validate      *validator.Validate
	tracer        trace.Tracer
	workers       *errgroup.Group
	workersCancel context.CancelFunc
}

// New creates a fully initialized App.
func New(config *cfg.AppConfig, shutdown func(ctx context.Context) error) (*App, error) {
	app := &App{
		Config:   config,
		shutdown: shutdown,
		exitCh:   make(chan error),
		validate: validator.New(),
		tracer:   otel.Tracer("exporter"),
	}

	if err := app.initStore(); err != nil {
		return nil, err
	}
	if err := app.initQueue(); err != nil {
		return nil, err
	}
	app.initLogSource()
	if err := app.initServer(); err != nil {
		return nil, err
	}

	return app, nil
}

// --------- Private init methods ---------

func (app *App) initStore() error {
	if app.Config.Database == nil {
		return errors.New("database config is nil")
	}
	if app.Config.Embedded() {
		app.Store = inmem.New()
		return nil
	}
	app.Store = postgres.New(app.Config.Database)
	return nil
}

func (app *App) initQueue() error {
	if app.Config.Embedded() || app.Config.Redis.Addr == "" {
		app.Queue = memqueue.New()
		return nil
	}
	queue, err := redisqueue.NewRedisQueue(app.Config.Redis.Addr, app.Config.Redis.Password, app.Config.Redis.DB)
	if err != nil {
		return errors.New("unable to initialize Redis", errors.WithCause(err))
	}
	app.Queue = queue
	return nil
}

func (app *App) initLogSource() {
	if pg, ok := app.Store.(*postgres.Store); ok {
		app.Logs = logsource.NewPostgres(pg.Database)
		return
	}
	app.Logs = logsource.NewDemo(demoLogRows)
}

func (app *App) initServer() error {
	srv, err := server.BuildServer(app.Config, httpapi.NewRouter(app), app.exitCh)
	if err != nil {
		return errors.New("failed to build server", errors.WithCause(err))
	}
	app.server = srv
	return nil
}

// OpenResources connects the store (with backoff: the database may still be
// coming up), prepares the artifact directory and requeues jobs the service
// left queued before its last shutdown.
func (app *App) OpenResources(ctx context.Context) error {
	backoff := retry.WithMaxRetries(5, retry.NewFibonacci(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := app.Store.Open(); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return errors.New("failed to open store", errors.WithCause(err))
	}

	if err := os.MkdirAll(app.Config.Export.Dir, 0o755); err != nil {
		return errors.New("failed to create export directory", errors.WithCause(err))
	}

	return app.requeuePending(ctx)
}

func (app *App) requeuePending(ctx context.Context) error {
	ids, err := app.Store.Job().QueuedIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := app.Queue.Push(ctx, id); err != nil {
			slog.ErrorContext(ctx, "exporter.app.requeue_failed",
				slog.String("job_id", id), slog.String("error", err.Error()))
		}
	}
	if len(ids) > 0 {
		slog.InfoContext(ctx, "exporter.app.requeued_pending_jobs", slog.Int("count", len(ids)))
	}
	return nil
}

// Start runs the store, HTTP server and background workers.
func (app *App) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	app.workersCancel = cancel

	if err := app.OpenResources(ctx); err != nil {
		cancel()
		return err
	}

	app.StartExportWorkers(ctx)
	go app.server.Start()

	return <-app.exitCh
}

// Stop gracefully shuts down all services.
func (app *App) Stop() error {
	slog.Info("exporter.app.stop_starting")

	if app.workersCancel != nil {
		app.workersCancel()
	}
	if app.workers != nil {
		_ = app.workers.Wait()
		slog.Info("export workers stopped")
	}

	if app.server != nil {
		app.server.Stop()
		slog.Info("server stopped")
	}

	if app.Queue != nil {
		if err := app.Queue.Close(); err != nil {
			slog.Error("queue close error", "err", err)
		} else {
			slog.Info("queue closed")
		}
	}

	if app.Store != nil {
		if err := app.Store.Close(); err != nil {
			slog.Error("store close error", "err", err)
		} else {
			slog.Info("store closed")
		}
	}

	if app.shutdown != nil {
		if err := app.shutdown(context.Background()); err != nil {
			slog.Error("shutdown hook error", "err", err)
		} else {
			slog.Info("shutdown hook executed")
		}
	}

	slog.Info("exporter.app.stop_complete")
	return nil
}

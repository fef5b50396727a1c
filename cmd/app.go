package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/shaharia-lab/notifyd/internal/build"
	"github.com/shaharia-lab/notifyd/internal/channel"
	"github.com/shaharia-lab/notifyd/internal/config"
	"github.com/shaharia-lab/notifyd/internal/logger"
	"github.com/shaharia-lab/notifyd/internal/notification"
	"github.com/shaharia-lab/notifyd/internal/queue"
	"github.com/shaharia-lab/notifyd/internal/service"
	"github.com/shaharia-lab/notifyd/internal/storage"
	"github.com/shaharia-lab/notifyd/internal/sweeper"
	"github.com/shaharia-lab/notifyd/internal/telemetry"
)

// app is the fully wired pipeline shared by serve and the one-shot commands.
type app struct {
	cfg        *config.AppConfig
	logger     *slog.Logger
	db         *sql.DB
	templates  *storage.SQLiteTemplateStore
	users      *storage.SQLiteUserStore
	deliveries *storage.SQLiteDeliveryStore
	channels   *channel.Registry
	metrics    *telemetry.Metrics
	otel       *telemetry.OTel
	queue      *queue.Queue[notification.Job]
	dispatcher *notification.Dispatcher
	sweeper    *sweeper.Sweeper
	svc        service.NotificationService

	closers []io.Closer
}

// newApp opens storage, loads the dispatch policy and wires the pipeline.
// The queue is created but not started.
func newApp(ctx context.Context, cfg *config.AppConfig) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", cfg.DataDir, err)
	}

	a := &app{cfg: cfg, metrics: telemetry.NewMetrics(nil)}

	otelProviders, err := telemetry.SetupOTel(ctx, telemetry.OTelConfig{
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
		ServiceName: "notifyd",
		Version:     build.Version,
	}, a.metrics.Registry())
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}
	a.otel = otelProviders

	var extra []slog.Handler
	if h := a.otel.LogHandler(); h != nil {
		extra = append(extra, h)
	}
	sysLogger, logCloser, err := logger.NewSystemLogger(cfg.LogDir(), cfg.SlogLevel(), extra...)
	if err != nil {
		_ = a.otel.Shutdown(ctx)
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	a.logger = sysLogger
	a.closers = append(a.closers, logCloser)
	a.metrics.SetLogger(sysLogger)
	if err := a.metrics.InstrumentLatency(a.otel.Meter()); err != nil {
		return nil, a.fail(ctx, err)
	}

	if err := a.wire(ctx); err != nil {
		return nil, a.fail(ctx, err)
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg

	policy, err := config.LoadDispatchPolicy(cfg.DispatchFile)
	if err != nil {
		return fmt.Errorf("loading dispatch policy: %w", err)
	}

	db, fresh, err := storage.NewSQLiteDB(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, db)
	if fresh {
		a.logger.Info("database created", "path", cfg.DBPath())
	}

	a.templates = storage.NewSQLiteTemplateStore(db)
	a.users = storage.NewSQLiteUserStore(db)
	a.deliveries = storage.NewSQLiteDeliveryStore(db)

	a.channels = channel.NewRegistry(
		channel.NewSMTPDriver(cfg.SMTP),
		channel.NewSMSDriver(cfg.SMS, a.logger),
	)

	builders := notification.NewBuilderRegistry(policy.DefaultBuilder, policy.Builders)
	notification.RegisterDefaultBuilders(builders, notification.WithAttachmentDir(cfg.AttachmentDir))
	if err := builders.Validate(); err != nil {
		return fmt.Errorf("validating builder registry: %w", err)
	}

	guards, err := notification.NewGuards(policy.Guards, notification.GuardDeps{
		Builders: builders,
		Channels: a.channels,
	})
	if err != nil {
		return fmt.Errorf("building guard chain: %w", err)
	}

	resolvers := notification.DefaultResolvers(a.users)

	worker := notification.NewWorker(notification.WorkerConfig{
		Templates:  a.templates,
		Resolvers:  resolvers,
		Builders:   builders,
		Deliveries: a.deliveries,
		Channels:   a.channels,
		Logger:     a.logger,
		Observer:   a.metrics,

		Diagnostics: policy.Debug,
	})

	a.queue, err = queue.New(worker.Deliver, queue.Config{
		Workers:     cfg.Workers,
		MaxAttempts: cfg.MaxAttempts,
		RetryDelay:  cfg.RetryDelay,
		Logger:      a.logger,
		OnDiscard: func(attempts int, err error) {
			a.metrics.Discarded()
			a.logger.Error("Delivery job discarded", "attempts", attempts, "error", err)
		},
	})
	if err != nil {
		return fmt.Errorf("creating work queue: %w", err)
	}

	a.dispatcher = notification.NewDispatcher(notification.DispatcherConfig{
		Resolvers: resolvers,
		Selector:  notification.NewSelector(a.templates),
		Guards:    notification.NewGuardManager(guards...),
		Builders:  builders,
		Queue:     a.queue,
		Logger:    a.logger,
		Observer:  a.metrics,

		Diagnostics: policy.Debug,
	})
	a.svc = service.NewNotificationService(a.dispatcher, a.templates, a.deliveries)

	a.sweeper, err = sweeper.New(sweeper.Config{
		Store:      a.deliveries,
		Interval:   cfg.SweepInterval,
		StaleAfter: cfg.StaleAfter,
		Logger:     a.logger,
		OnFailed:   a.metrics.Delivered,
	})
	if err != nil {
		return fmt.Errorf("creating delivery sweeper: %w", err)
	}

	a.logger.Info("pipeline ready",
		slog.Any("channels", a.channels.Names()),
		slog.Any("guards", policy.Guards),
		slog.String("default_builder", policy.DefaultBuilder),
		slog.Int("workers", cfg.Workers),
	)
	return nil
}

// Close drains the queue (when started) within ctx and releases resources.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.sweeper != nil {
		if err := a.sweeper.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stopping sweeper: %w", err))
		}
	}
	if a.queue != nil {
		if err := a.queue.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("draining queue: %w", err))
		}
	}
	if a.otel != nil {
		if err := a.otel.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down telemetry: %w", err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) fail(ctx context.Context, err error) error {
	return errors.Join(err, a.Close(ctx))
}

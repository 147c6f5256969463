// Package server builds the batchwatch application from configuration and
// runs it until interrupted.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/batchwatch/internal/api"
	"github.com/JakeFAU/batchwatch/internal/clock/system"
	"github.com/JakeFAU/batchwatch/internal/config"
	"github.com/JakeFAU/batchwatch/internal/dashboard"
	"github.com/JakeFAU/batchwatch/internal/id/uuid"
	"github.com/JakeFAU/batchwatch/internal/logging"
	"github.com/JakeFAU/batchwatch/internal/monitor"
	"github.com/JakeFAU/batchwatch/internal/progress"
	progresssinks "github.com/JakeFAU/batchwatch/internal/progress/sinks"
	"github.com/JakeFAU/batchwatch/internal/stream"
	"github.com/JakeFAU/batchwatch/internal/subscriber"
	memorysource "github.com/JakeFAU/batchwatch/internal/subscriber/memory"
	pubsubsource "github.com/JakeFAU/batchwatch/internal/subscriber/pubsub"
	"github.com/JakeFAU/batchwatch/internal/telemetry"
	"github.com/JakeFAU/batchwatch/internal/terminate"
	memoryterminator "github.com/JakeFAU/batchwatch/internal/terminate/memory"
	pubsubterminator "github.com/JakeFAU/batchwatch/internal/terminate/pubsub"
)

const serviceName = "batchwatch"

// App contains the application's dependencies.
type App struct {
	cfg            *config.Config
	logger         *zap.Logger
	widget         *dashboard.Widget
	monitor        *monitor.Monitor
	apiServer      *api.Server
	broker         *stream.Broker
	progressHub    *progress.Hub
	registry       *prometheus.Registry
	source         subscriber.Source
	memorySource   *memorysource.Source
	pubsubClient   *pubsub.Client
	terminator     terminate.Terminator
	closeTerm      func()
	tracerShutdown func(context.Context) error
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return BuildWithLogger(ctx, cfg, logger)
}

// BuildWithLogger is Build with a caller-supplied logger.
func BuildWithLogger(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("subscription_provider", cfg.Subscription.Provider),
		zap.String("channel", cfg.Subscription.Channel),
		zap.String("terminate_provider", cfg.Terminate.Provider),
	)

	tp, err := telemetry.InitTracerProvider(ctx, serviceName)
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	app.tracerShutdown = tp.Shutdown

	app.widget = dashboard.NewWidget(cfg.Dashboard.DefaultJobs)
	app.broker = stream.NewBroker(cfg.Dashboard.StreamBuffer)

	if err := app.setupProgress(ctx); err != nil {
		return nil, err
	}
	if err := app.setupSubscriber(ctx); err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}
	app.terminator, app.closeTerm, err = newTerminator(ctx, cfg, app.pubsubClient, logger)
	if err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}

	replay, err := cfg.Subscription.ReplayMode()
	if err != nil {
		app.closeInfrastructure(ctx)
		return nil, fmt.Errorf("subscription replay: %w", err)
	}
	app.monitor = monitor.New(
		app.source,
		app.widget,
		app.progressHub,
		system.New(),
		monitor.Config{Channel: cfg.Subscription.Channel, Replay: replay},
		logger.Named("monitor"),
	)

	app.apiServer = api.NewServer(
		app.widget,
		app.broker,
		app.terminator,
		app.monitor,
		uuid.NewUUIDGenerator(),
		*cfg,
		logger.Named("api"),
		app.registry,
	)
	return app, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Widget returns the dashboard owned by the app.
func (a *App) Widget() *dashboard.Widget {
	return a.widget
}

// Monitor returns the notification listener.
func (a *App) Monitor() *monitor.Monitor {
	return a.monitor
}

// MemorySource returns the in-process source when the memory provider is
// configured, nil otherwise.
func (a *App) MemorySource() *memorysource.Source {
	return a.memorySource
}

// Run starts the monitor and the HTTP server and blocks until ctx is
// canceled, a signal arrives, or the subscription fails. A subscription
// failure is returned.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		wg     sync.WaitGroup
		runErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.monitor.Run(ctx); err != nil {
			a.logger.Error("monitor stopped", zap.Error(err))
			runErr = err
			stop()
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: time.Duration(a.cfg.Server.ReadHeaderTimeoutSec) * time.Second,
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

	timeout := a.cfg.ShutdownTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Live streams never finish on their own; end them before draining HTTP.
	if err := a.broker.Close(shutdownCtx); err != nil {
		a.logger.Warn("stream broker close failed", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	wg.Wait()

	if err := a.Close(shutdownCtx); err != nil {
		a.logger.Warn("close failed", zap.Error(err))
	}
	return runErr
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	a.closeInfrastructure(ctx)
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("update hub close failed", zap.Error(err))
		}
	}
	if a.closeTerm != nil {
		a.closeTerm()
	}
	if a.memorySource != nil {
		a.memorySource.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
}

func (a *App) setupProgress(ctx context.Context) error {
	sinkList := []progress.Sink{a.broker}
	if a.cfg.Progress.Enabled {
		promSink, err := progresssinks.NewPrometheusSink(a.registry)
		if err != nil {
			return fmt.Errorf("prometheus sink init failed: %w", err)
		}
		sinkList = append(sinkList, promSink)
		a.logger.Debug("Added dashboard prometheus sink")
	}
	if a.cfg.Progress.LogEnabled {
		sinkList = append(sinkList, progresssinks.NewLogSink(a.logger.Named("progress_log")))
		a.logger.Debug("Added dashboard log sink")
	}
	hubCfg := progress.Config{
		BufferSize:   a.cfg.Progress.BufferSize,
		MaxBatchSize: a.cfg.Progress.Batch.MaxSize,
		MaxBatchWait: time.Duration(a.cfg.Progress.Batch.MaxWaitMs) * time.Millisecond,
		SinkTimeout:  time.Duration(a.cfg.Progress.SinkTimeoutMs) * time.Millisecond,
		BaseContext:  context.WithoutCancel(ctx),
		Logger:       a.logger.Named("progress_hub"),
	}
	a.progressHub = progress.NewHub(hubCfg, sinkList...)
	a.logger.Info("update hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_size", hubCfg.MaxBatchSize),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return nil
}

func (a *App) setupSubscriber(ctx context.Context) error {
	sub := a.cfg.Subscription
	switch sub.Provider {
	case config.ProviderPubSub:
		client, err := pubsub.NewClient(ctx, sub.ProjectID)
		if err != nil {
			return fmt.Errorf("pubsub client init failed: %w", err)
		}
		a.pubsubClient = client
		a.source = pubsubsource.New(client, pubsubsource.Config{
			SubscriptionID:  sub.SubscriptionID,
			TopicID:         sub.TopicID,
			EphemeralPrefix: sub.EphemeralPrefix,
			Expiration:      sub.Expiration,
		}, uuid.NewUUIDGenerator(), a.logger.Named("subscriber"))
		a.logger.Info("using Pub/Sub subscriber",
			zap.String("project", sub.ProjectID),
			zap.String("subscription", sub.SubscriptionID),
		)
	default:
		a.memorySource = memorysource.NewSource(sub.BufferSize)
		a.source = a.memorySource
		a.logger.Info("using in-memory subscriber", zap.Int("buffer_size", sub.BufferSize))
	}
	return nil
}

// NewTerminator builds the configured Terminator. The returned func releases
// its resources.
func NewTerminator(ctx context.Context, cfg *config.Config, logger *zap.Logger) (terminate.Terminator, func(), error) {
	return newTerminator(ctx, cfg, nil, logger)
}

func newTerminator(
	ctx context.Context,
	cfg *config.Config,
	shared *pubsub.Client,
	logger *zap.Logger,
) (terminate.Terminator, func(), error) {
	switch cfg.Terminate.Provider {
	case config.ProviderMemory:
		logger.Info("using in-memory terminator")
		return memoryterminator.New(), func() {}, nil
	case config.ProviderPubSub:
		client := shared
		owned := false
		if client == nil || client.Project() != cfg.TerminateProject() {
			var err error
			client, err = pubsub.NewClient(ctx, cfg.TerminateProject())
			if err != nil {
				return nil, nil, fmt.Errorf("terminate pubsub client init failed: %w", err)
			}
			owned = true
		}
		term := pubsubterminator.New(client.Topic(cfg.Terminate.TopicID))
		logger.Info("using Pub/Sub terminator",
			zap.String("project", cfg.TerminateProject()),
			zap.String("topic", cfg.Terminate.TopicID),
		)
		return term, func() {
			term.Stop()
			if owned {
				if err := client.Close(); err != nil {
					logger.Warn("terminate pubsub client close failed", zap.Error(err))
				}
			}
		}, nil
	default:
		logger.Info("termination disabled")
		return terminate.Disabled{}, func() {}, nil
	}
}

package server

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"VolGuard/internal/handler/ws"
	"VolGuard/internal/middleware"
	"VolGuard/internal/usecase"
	"VolGuard/pkg/cache"
	pkgch "VolGuard/pkg/clickhouse"
	"VolGuard/pkg/config"
	xhttp "VolGuard/pkg/http"
	pkgkafka "VolGuard/pkg/kafka"
	applogger "VolGuard/pkg/logger"
	"VolGuard/pkg/postgres"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	consumer   *pkgkafka.Consumer
	producer   *pkgkafka.Producer
	bars       *usecase.KafkaBarsHandler
	updates    *usecase.KafkaUpdatesHandler
	batcher    *middleware.UpdateBatcher
	hub        *ws.Hub
	httpServer *xhttp.Server
	cache      cache.Service
	chClient   *pkgch.Client
	pg         *postgres.Client
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	consumer *pkgkafka.Consumer,
	producer *pkgkafka.Producer,
	bars *usecase.KafkaBarsHandler,
	updates *usecase.KafkaUpdatesHandler,
	batcher *middleware.UpdateBatcher,
	hub *ws.Hub,
	httpServer *xhttp.Server,
	c cache.Service,
	chClient *pkgch.Client,
	pg *postgres.Client,
) *App {
	return &App{
		cfg:        cfg,
		l:          l,
		consumer:   consumer,
		producer:   producer,
		bars:       bars,
		updates:    updates,
		batcher:    batcher,
		hub:        hub,
		httpServer: httpServer,
		cache:      c,
		chClient:   chClient,
		pg:         pg,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.cfg.Log.ErrorTopic != "" {
		a.l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          a.cfg.Log.ErrorTopic,
			Service:        "volguard",
			Publisher:      a.producer,
		})
	}

	go a.hub.Run(ctx)
	// the batcher outlives the signal so Stop can flush what is pending
	a.batcher.Start(context.WithoutCancel(ctx))

	a.consumer.RegisterHandler(a.bars)
	a.consumer.RegisterHandler(a.updates)
	if err := a.consumer.Start(); err != nil {
		a.l.Error("kafka consumer start error", applogger.Error(err))
		return err
	}
	a.l.Info("kafka consumer started",
		applogger.String("bars_topic", a.bars.Topic()),
		applogger.String("updates_topic", a.updates.Topic()),
	)

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}

	<-ctx.Done()
	a.l.Info("shutdown signal received")
	return a.shutdown()
}

// shutdown stops intake first, then drains pending fan-outs, then closes
// infrastructure clients.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.consumer.Stop(ctx); err != nil {
		a.l.Warn("kafka consumer stop error", applogger.Error(err))
	}
	a.batcher.Stop()

	if err := a.httpServer.Stop(ctx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}

	a.l.RemoveCollector()
	if err := a.producer.Close(); err != nil {
		a.l.Warn("kafka producer close error", applogger.Error(err))
	}
	if err := a.cache.Close(); err != nil {
		a.l.Warn("cache close error", applogger.Error(err))
	}
	if err := a.chClient.Close(); err != nil {
		a.l.Warn("clickhouse close error", applogger.Error(err))
	}
	if err := a.pg.Close(); err != nil {
		a.l.Warn("postgres close error", applogger.Error(err))
	}

	a.l.Info("shutdown complete")
	return nil
}

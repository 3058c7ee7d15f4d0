package di

import (
	"context"
	"fmt"
	"time"

	domrepo "VolGuard/internal/domain/repository"
	domsvc "VolGuard/internal/domain/service"
	"VolGuard/internal/handler/api"
	"VolGuard/internal/handler/ws"
	"VolGuard/internal/middleware"
	internalrepo "VolGuard/internal/repository"
	"VolGuard/internal/services/analytics"
	"VolGuard/internal/services/dedup"
	"VolGuard/internal/services/notify"
	"VolGuard/internal/services/risk"
	"VolGuard/internal/usecase"
	"VolGuard/pkg/cache"
	pkgch "VolGuard/pkg/clickhouse"
	"VolGuard/pkg/config"
	xhttp "VolGuard/pkg/http"
	httpmw "VolGuard/pkg/http/middleware"
	pkgkafka "VolGuard/pkg/kafka"
	applogger "VolGuard/pkg/logger"
	"VolGuard/pkg/metrics"
	"VolGuard/pkg/postgres"
	"VolGuard/pkg/ratelimit"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	level := cfg.Log.Level
	if level == "" {
		level = "info"
	}
	l, err := applogger.New(&applogger.Config{Level: level, Format: cfg.Log.Format, Output: "stdout"})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New(nil)
}

// ProvideClickHouseClient creates a ClickHouse client and ensures the schema.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
		pkgch.WithCompression(cfg.ClickHouse.Compress),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, internalrepo.ClickHouseSchema(database(cfg))); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

func database(cfg *config.Config) string {
	if cfg.ClickHouse.Database == "" {
		return "default"
	}
	return cfg.ClickHouse.Database
}

// ProvidePostgres connects to the client directory database.
func ProvidePostgres(cfg *config.Config) (*postgres.Client, error) {
	pg, err := postgres.Connect(cfg.Postgres.DSN,
		postgres.WithPool(cfg.Postgres.MaxOpenConns, cfg.Postgres.MaxIdleConns, cfg.Postgres.ConnMaxLifetime),
		postgres.WithSQLLogging(cfg.Log.Level == "debug"),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	if cfg.Postgres.AutoMigrate {
		if err := pg.Migrate(internalrepo.ClientModels()...); err != nil {
			_ = pg.Close()
			return nil, fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return pg, nil
}

// ProvideCache returns a Redis-backed layered cache when Redis is enabled and
// a process-local cache otherwise.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Cache.MemoryMaxSize)), nil
	}
	remote, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
		cache.WithRedisTimeouts(cfg.Redis.DialTimeout, cfg.Redis.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return cache.NewLayeredCache(remote,
		cache.WithLayeredMemorySize(cfg.Cache.MemoryMaxSize),
		cache.WithLayeredMemoryTTL(30*time.Second),
	), nil
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l.With(applogger.String("component", "kafka_consumer"))),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(
		pkgkafka.TraceHook(),
		pkgkafka.LogHook(l.With(applogger.String("component", "kafka_consumer"))),
	))
	return consumer, nil
}

// ProvideBarStore creates the ClickHouse bar history store.
func ProvideBarStore(ch *pkgch.Client, cfg *config.Config, l *applogger.Logger) domrepo.BarStore {
	return internalrepo.NewCHBarStore(ch, database(cfg), l)
}

// ProvideCHVolatilityStore creates the uncached ClickHouse volatility store.
// The risk fan-out reads it directly so it always sees the record whose
// update triggered the run.
func ProvideCHVolatilityStore(ch *pkgch.Client, cfg *config.Config, l *applogger.Logger) *internalrepo.CHVolatilityStore {
	return internalrepo.NewCHVolatilityStore(ch, database(cfg), l)
}

// ProvideVolatilityStore puts a read-through cache in front of ClickHouse for
// the estimate pipeline and the HTTP latest endpoint.
func ProvideVolatilityStore(base *internalrepo.CHVolatilityStore, c cache.Service, cfg *config.Config, l *applogger.Logger) domrepo.VolatilityStore {
	return internalrepo.NewCachedVolatilityStore(base, c, cfg.Cache.VolatilityTTL, l)
}

// ProvideClientDirectory creates the Postgres client directory.
func ProvideClientDirectory(pg *postgres.Client) *internalrepo.PostgresClientDirectory {
	return internalrepo.NewPostgresClientDirectory(pg)
}

// ProvideCooldownStore selects the dedup backend.
func ProvideCooldownStore(cfg *config.Config, pg *postgres.Client, c cache.Service, l *applogger.Logger) domrepo.CooldownStore {
	switch cfg.Risk.DedupBackend {
	case "redis":
		return internalrepo.NewCacheCooldownStore(c)
	case "memory":
		l.Warn("in-process dedup store: cooldowns are not shared between replicas")
		return dedup.NewMemoryStore()
	default:
		return internalrepo.NewPostgresCooldownStore(pg)
	}
}

// ProvideDedupGate wraps the cooldown store with metrics and logging.
func ProvideDedupGate(store domrepo.CooldownStore, m domrepo.Metrics, l *applogger.Logger) domsvc.DedupGate {
	return dedup.NewController(store,
		dedup.WithMetrics(m),
		dedup.WithLogger(l.With(applogger.String("component", "dedup"))),
	)
}

// ProvideEstimator selects the volatility estimator.
func ProvideEstimator(cfg *config.Config, l *applogger.Logger) domsvc.VolatilityEstimator {
	if cfg.Estimator.Method != "predictive" {
		return analytics.NewHistoricalEstimator()
	}
	var src domrepo.ModelSource
	if cfg.Estimator.Model.URL != "" {
		src = analytics.NewHTTPModelSource(cfg.Estimator.Model.URL, cfg.Estimator.Model.Timeout, cfg.Estimator.Model.MaxElapsed)
	} else {
		src = analytics.NewFileModelSource(cfg.Estimator.Model.File)
	}
	return analytics.NewPredictiveEstimator(analytics.NewModelHolder(src, l), l)
}

// ProvideUpdatePublisher creates the Kafka update publisher.
func ProvideUpdatePublisher(producer *pkgkafka.Producer, cfg *config.Config) domrepo.UpdatePublisher {
	return internalrepo.NewKafkaUpdatePublisher(producer, cfg.Kafka.Topics.Updates)
}

// ProvideNotificationSender selects the notification transport.
func ProvideNotificationSender(cfg *config.Config, producer *pkgkafka.Producer, l *applogger.Logger) domrepo.NotificationSender {
	if cfg.Notify.Backend == "log" {
		return internalrepo.NewLogNotificationSender(l)
	}
	return internalrepo.NewKafkaNotificationSender(producer, cfg.Kafka.Topics.Notifications)
}

// ProvideComposer creates the notification composer.
func ProvideComposer(cfg *config.Config) *notify.Composer {
	return notify.NewComposer(
		notify.WithSubject(cfg.Notify.Subject),
		notify.WithSender(cfg.Notify.Sender),
	)
}

// ProvideEvaluator creates the risk band evaluator.
func ProvideEvaluator(cfg *config.Config) (*risk.Evaluator, error) {
	return risk.NewEvaluator(cfg.Tolerance())
}

// ProvideHub creates the assessment stream hub.
func ProvideHub(cfg *config.Config, l *applogger.Logger) *ws.Hub {
	return ws.NewHub(l.With(applogger.String("component", "ws_hub")),
		ws.WithAllowedOrigins(cfg.Server.AllowedOrigins),
		ws.WithStreamToken(cfg.Server.StreamToken),
	)
}

// ProvideVolatilityUseCase creates the estimation use case.
func ProvideVolatilityUseCase(
	barStore domrepo.BarStore,
	store domrepo.VolatilityStore,
	publisher domrepo.UpdatePublisher,
	estimator domsvc.VolatilityEstimator,
	m domrepo.Metrics,
	l *applogger.Logger,
	cfg *config.Config,
) *usecase.VolatilityUseCase {
	return usecase.NewVolatilityUseCase(barStore, store, publisher, estimator, m, l, cfg.Estimator.HistoryBars, cfg.Estimator.Benchmark)
}

// ProvideRiskMonitor creates the fan-out use case.
func ProvideRiskMonitor(
	clients domrepo.ClientDirectory,
	vols *internalrepo.CHVolatilityStore,
	evaluator *risk.Evaluator,
	gate domsvc.DedupGate,
	composer *notify.Composer,
	sender domrepo.NotificationSender,
	hub *ws.Hub,
	m domrepo.Metrics,
	l *applogger.Logger,
	cfg *config.Config,
) *usecase.RiskMonitor {
	return usecase.NewRiskMonitor(clients, vols, evaluator, gate, composer, sender, hub, m,
		l.With(applogger.String("component", "risk_monitor")),
		usecase.RiskMonitorConfig{
			Cooldown:     cfg.Risk.Cooldown,
			NotifyPolicy: cfg.Risk.NotifyPolicy,
			FanoutMode:   cfg.Fanout.Mode,
			PageSize:     cfg.Fanout.PageSize,
			Workers:      cfg.Fanout.Workers,
		},
	)
}

// ProvideUpdateBatcher coalesces update events in front of the risk monitor.
func ProvideUpdateBatcher(monitor *usecase.RiskMonitor, m domrepo.Metrics, l *applogger.Logger, cfg *config.Config) *middleware.UpdateBatcher {
	return middleware.NewUpdateBatcher(monitor, m, l,
		middleware.WithFlushInterval(cfg.Fanout.FlushInterval),
		middleware.WithMaxBatch(cfg.Fanout.MaxBatch),
	)
}

// ProvideKafkaBarsHandler registers the handler for the bars topic.
func ProvideKafkaBarsHandler(uc *usecase.VolatilityUseCase, m domrepo.Metrics, l *applogger.Logger, cfg *config.Config) *usecase.KafkaBarsHandler {
	return usecase.NewKafkaBarsHandler(cfg.Kafka.Topics.Bars, uc, m, l)
}

// ProvideKafkaUpdatesHandler registers the handler for the updates topic.
func ProvideKafkaUpdatesHandler(batcher *middleware.UpdateBatcher, m domrepo.Metrics, cfg *config.Config) *usecase.KafkaUpdatesHandler {
	return usecase.NewKafkaUpdatesHandler(cfg.Kafka.Topics.Updates, batcher, m)
}

// ProvideVolatilityHandler creates the REST handler.
func ProvideVolatilityHandler(l *applogger.Logger, uc *usecase.VolatilityUseCase, monitor *usecase.RiskMonitor, clients domrepo.ClientWriter) *api.VolatilityHandler {
	return api.NewVolatilityHandler(l, uc, monitor, clients)
}

// ProvideHTTPServer creates the HTTP server with REST and stream routes.
func ProvideHTTPServer(
	cfg *config.Config,
	l *applogger.Logger,
	h *api.VolatilityHandler,
	hub *ws.Hub,
	ch *pkgch.Client,
	pg *postgres.Client,
) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.AllowedOrigins...),
		xhttp.WithLogger(l.With(applogger.String("component", "http"))),
		xhttp.WithHealth(func(ctx context.Context) error {
			if err := ch.Health(ctx); err != nil {
				return fmt.Errorf("clickhouse: %w", err)
			}
			if err := pg.Health(ctx); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
			return nil
		}),
	}
	if cfg.Server.RateLimit.PerSecond > 0 {
		opts = append(opts, xhttp.WithRateLimit(ratelimit.New(cfg.Server.RateLimit.PerSecond, cfg.Server.RateLimit.Burst)))
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithHTTPMetrics(httpmw.NewHTTPMetrics(nil), cfg.Metrics.Path))
	}
	return xhttp.NewServer([]xhttp.Handler{h, hub}, opts...)
}

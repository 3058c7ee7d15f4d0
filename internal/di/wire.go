//go:build wireinject
// +build wireinject

package di

import (
	domrepo "VolGuard/internal/domain/repository"
	internalrepo "VolGuard/internal/repository"
	"VolGuard/pkg/config"
	"VolGuard/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvidePostgres,
		ProvideCache,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideBarStore,
		ProvideCHVolatilityStore,
		ProvideVolatilityStore,
		ProvideClientDirectory,
		wire.Bind(new(domrepo.ClientDirectory), new(*internalrepo.PostgresClientDirectory)),
		wire.Bind(new(domrepo.ClientWriter), new(*internalrepo.PostgresClientDirectory)),
		ProvideCooldownStore,
		ProvideUpdatePublisher,
		ProvideNotificationSender,

		// Domain services
		ProvideDedupGate,
		ProvideEstimator,
		ProvideComposer,
		ProvideEvaluator,

		// Use cases
		ProvideHub,
		ProvideVolatilityUseCase,
		ProvideRiskMonitor,
		ProvideUpdateBatcher,
		ProvideKafkaBarsHandler,
		ProvideKafkaUpdatesHandler,

		// Transport
		ProvideVolatilityHandler,
		ProvideHTTPServer,

		server.New,
	)
	return &server.App{}, nil
}

//go:build wireinject
// +build wireinject

package di

import (
	"TradeDesk/pkg/config"
	"TradeDesk/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideRedisCache,
		ProvideCache,
		ProvideLogSink,

		// Repositories
		ProvidePriceStore,
		ProvidePricePublisher,
		ProvideLatestPrices,
		ProvideUpstreamDialer,

		// Use cases
		ProvidePriceProcessor,
		ProvidePersistPipeline,
		ProvideQuoteService,
		ProvideKafkaConsumer,
		ProvideKafkaPricesHandler,

		// Services
		ProvideRelay,
		ProvideResponder,

		// HTTP and application server
		ProvideHTTPHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}

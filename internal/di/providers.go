package di

import (
	"context"
	"fmt"
	"time"

	"TradeDesk/internal/domain/repository"
	"TradeDesk/internal/handler/api"
	mid "TradeDesk/internal/middleware"
	"TradeDesk/internal/relay"
	internalrepo "TradeDesk/internal/repository"
	"TradeDesk/internal/service/finnhub"
	"TradeDesk/internal/service/ratelimit"
	"TradeDesk/internal/services/assistant"
	"TradeDesk/internal/services/intent"
	"TradeDesk/internal/usecase"
	"TradeDesk/pkg/cache"
	pkgch "TradeDesk/pkg/clickhouse"
	"TradeDesk/pkg/config"
	xhttp "TradeDesk/pkg/http"
	pkgkafka "TradeDesk/pkg/kafka"
	applogger "TradeDesk/pkg/logger"
	"TradeDesk/pkg/metrics"
	"TradeDesk/pkg/queue"
	"TradeDesk/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
)

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder, or a no-op one when disabled.
func ProvideMetrics(cfg *config.Config) repository.Metrics {
	if !cfg.Metrics.Enabled {
		return metrics.Nop{}
	}
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client and ensures the price history schema.
// It returns nil when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvidePriceStore creates the ClickHouse price store and its table. nil without ClickHouse.
func ProvidePriceStore(ch *pkgch.Client, cfg *config.Config) (repository.Storage, error) {
	if ch == nil {
		return nil, nil
	}
	store := internalrepo.NewClickHousePriceStore(ch, internalrepo.WithRetentionDays(cfg.ClickHouse.RetentionDays))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

// ProvideKafkaProducer creates a Kafka producer. nil when no brokers are configured.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvidePricePublisher creates the Kafka price publisher. nil without a producer.
func ProvidePricePublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaPricePublisher(producer, cfg.Kafka.Topic)
}

// ProvideRedisCache connects to Redis. nil when Redis is disabled.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideCache returns Redis when available, otherwise an in-process cache.
func ProvideCache(rc *cache.RedisCache) cache.Service {
	if rc != nil {
		return rc
	}
	return cache.NewMemoryCache()
}

// ProvideLatestPrices mirrors latest prices into Redis. nil when Redis is disabled.
func ProvideLatestPrices(rc *cache.RedisCache, cfg *config.Config) repository.LatestPrices {
	if rc == nil {
		return nil
	}
	return internalrepo.NewLatestPriceCache(rc, cfg.Redis.LatestTTL)
}

// ProvideLogSink picks the log collector sink: Kafka, then Redis, else none.
func ProvideLogSink(cfg *config.Config, producer *pkgkafka.Producer, rc *cache.RedisCache, l *applogger.Logger) applogger.Publisher {
	if cfg.Logging.CollectorTopic == "" {
		return nil
	}
	if producer != nil {
		return producer
	}
	if rc != nil {
		p, err := queue.NewRedisPublisher(l, rc.Client(), queue.WithKeyPrefix(cfg.Redis.Prefix+":logs"))
		if err != nil {
			l.Warn("log collector sink unavailable", applogger.Error(err))
			return nil
		}
		return p
	}
	return nil
}

// ProvidePriceProcessor creates the persistence router.
func ProvidePriceProcessor(
	pub repository.Publisher,
	store repository.Storage,
	latest repository.LatestPrices,
	m repository.Metrics,
	l *applogger.Logger,
	cfg *config.Config,
) (*usecase.PriceProcessor, error) {
	switch cfg.Backend.Type {
	case usecase.BackendKafka:
		if pub == nil {
			return nil, fmt.Errorf("backend kafka: no producer")
		}
	case usecase.BackendClickHouse:
		if store == nil {
			return nil, fmt.Errorf("backend clickhouse: no store")
		}
	}
	return usecase.NewPriceProcessor(pub, store, latest, m, l, cfg.Backend.Type), nil
}

// ProvidePersistPipeline creates the async persistence pipeline.
func ProvidePersistPipeline(proc *usecase.PriceProcessor, m repository.Metrics, l *applogger.Logger, cfg *config.Config) *mid.PersistPipeline {
	return mid.NewPersistPipeline(proc, m, l,
		mid.WithMaxRPS(cfg.Persistence.MaxRPSPerSymbol),
		mid.WithBufferSize(cfg.Persistence.BufferSize),
		mid.WithBatch(cfg.Persistence.BatchSize, cfg.Persistence.FlushInterval),
	)
}

// ProvideQuoteService creates the cached, rate-limited Finnhub quote service.
func ProvideQuoteService(cfg *config.Config, c cache.Service, l *applogger.Logger) *usecase.QuoteService {
	hc := xhttp.NewClient(xhttp.WithTimeout(cfg.Finnhub.RestTimeout))
	client := finnhub.NewQuoteClient(cfg.Finnhub.APIKey, cfg.Finnhub.RestURL, hc)
	limiter := ratelimit.New(cfg.Finnhub.RestBurst, cfg.Finnhub.RestRatePerSec)
	return usecase.NewQuoteService(client, c, limiter, cfg.Finnhub.QuoteCacheTTL, l)
}

// ProvideUpstreamDialer creates the Finnhub WebSocket dialer.
func ProvideUpstreamDialer(cfg *config.Config) repository.UpstreamDialer {
	return finnhub.NewDialer(cfg.Finnhub.APIKey, cfg.Finnhub.WebSocketURL, 10*time.Second)
}

// ProvideRelay creates the realtime price relay.
func ProvideRelay(
	dialer repository.UpstreamDialer,
	quotes *usecase.QuoteService,
	pipe *mid.PersistPipeline,
	m repository.Metrics,
	l *applogger.Logger,
	cfg *config.Config,
) *relay.Relay {
	var sink repository.PriceSink
	if cfg.Backend.Type != usecase.BackendNone || cfg.Redis.Enabled {
		sink = pipe
	}
	return relay.New(dialer, quotes, sink, m, l.With(applogger.String("component", "relay")),
		relay.WithPingInterval(cfg.Relay.PingInterval),
		relay.WithBackoff(cfg.Relay.BackoffBase, cfg.Relay.BackoffMax),
		relay.WithMaxAttempts(cfg.Relay.MaxReconnectAttempts),
		relay.WithSendBuffer(cfg.Relay.SendBuffer),
		relay.WithDebugMessages(cfg.Relay.DebugMessages),
	)
}

// ProvideResponder creates the chat intent router.
func ProvideResponder(l *applogger.Logger) *assistant.Responder {
	return assistant.NewResponder(intent.NewDetector(l), l)
}

// ProvideKafkaConsumer creates the history consumer. nil unless backend is kafka and the consumer is enabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if cfg.Backend.Type != usecase.BackendKafka || !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerMaxWait(cfg.Kafka.Consumer.MaxWait),
		pkgkafka.WithConsumerRegistry(prometheus.DefaultRegisterer),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(
		pkgkafka.ContentTypeHook{Want: "application/json"},
		pkgkafka.LoggingHook{Log: l, Slow: time.Second},
	))
	return consumer, nil
}

// ProvideKafkaPricesHandler creates the consumer-side ClickHouse writer. nil without a store.
func ProvideKafkaPricesHandler(store repository.Storage, m repository.Metrics, cfg *config.Config) *usecase.KafkaPricesHandler {
	if store == nil {
		return nil
	}
	return usecase.NewKafkaPricesHandler(cfg.Kafka.Topic, store, m)
}

// ProvideHTTPHandler assembles all HTTP routes.
func ProvideHTTPHandler(
	cfg *config.Config,
	l *applogger.Logger,
	r *relay.Relay,
	quotes *usecase.QuoteService,
	responder *assistant.Responder,
	store repository.Storage,
	latest repository.LatestPrices,
	ch *pkgch.Client,
	rc *cache.RedisCache,
) xhttp.Handler {
	// history is served only when prices are written straight to ClickHouse
	var history repository.Storage
	if cfg.Backend.Type == usecase.BackendClickHouse {
		history = store
	}

	var checks []api.HealthCheck
	if ch != nil {
		checks = append(checks, api.HealthCheck{Name: "clickhouse", Check: ch.Health})
	}
	if rc != nil {
		checks = append(checks, api.HealthCheck{Name: "redis", Check: rc.Ping})
	}

	return api.Router{
		api.NewRelayHandler(l, r, cfg.HasAPIKey(), cfg.Server.AllowOrigins),
		api.NewPricesHandler(l, quotes, cfg.HasAPIKey(), history),
		api.NewChatHandler(l, responder, latest),
		api.NewHealthHandler(r, checks...),
	}
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	handler xhttp.Handler,
	r *relay.Relay,
	pipe *mid.PersistPipeline,
	proc *usecase.PriceProcessor,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaPricesHandler,
	producer *pkgkafka.Producer,
	ch *pkgch.Client,
	rc *cache.RedisCache,
	c cache.Service,
	sink applogger.Publisher,
) *server.App {
	return server.New(server.Deps{
		Config:        cfg,
		Logger:        l,
		Handler:       handler,
		Relay:         r,
		Pipeline:      pipe,
		Processor:     proc,
		Consumer:      consumer,
		PricesHandler: kh,
		Producer:      producer,
		ClickHouse:    ch,
		Redis:         rc,
		Cache:         c,
		LogSink:       sink,
	})
}

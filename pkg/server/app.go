package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	mid "TradeDesk/internal/middleware"
	"TradeDesk/internal/relay"
	"TradeDesk/internal/usecase"
	"TradeDesk/pkg/cache"
	pkgch "TradeDesk/pkg/clickhouse"
	"TradeDesk/pkg/config"
	xhttp "TradeDesk/pkg/http"
	pkgkafka "TradeDesk/pkg/kafka"
	applogger "TradeDesk/pkg/logger"
)

// Deps are the wired components the App owns. Optional ones may be nil.
type Deps struct {
	Config        *config.Config
	Logger        *applogger.Logger
	Handler       xhttp.Handler
	Relay         *relay.Relay
	Pipeline      *mid.PersistPipeline
	Processor     *usecase.PriceProcessor
	Consumer      *pkgkafka.Consumer
	PricesHandler *usecase.KafkaPricesHandler
	Producer      *pkgkafka.Producer
	ClickHouse    *pkgch.Client
	Redis         *cache.RedisCache
	Cache         cache.Service
	LogSink       applogger.Publisher
}

// App encapsulates the entire application lifecycle.
type App struct {
	Deps
	log        *applogger.Logger
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(d Deps) *App {
	if d.Logger == nil {
		d.Logger = applogger.Nop()
	}
	return &App{Deps: d, log: d.Logger}
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		// release whatever started before the failure
		_ = a.Shutdown(context.Background())
		return err
	}
	<-ctx.Done()

	a.log.Info("shutdown signal received")
	return a.Shutdown(context.Background())
}

// Start launches background workers and the HTTP server.
func (a *App) Start(ctx context.Context) error {
	cfg := a.Config

	if a.LogSink != nil {
		a.log.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Logging.CollectorEvery,
			CountThreshold: 100,
			Topic:          cfg.Logging.CollectorTopic,
			Publisher:      a.LogSink,
		})
		a.log.Info("log collector enabled", applogger.String("topic", cfg.Logging.CollectorTopic))
	}

	if !cfg.HasAPIKey() {
		a.log.Error("FINNHUB_API_KEY is not set; relay and quote endpoints will answer 500")
	}

	if a.Pipeline != nil {
		a.Pipeline.Start(ctx)
	}

	if a.Consumer != nil && a.PricesHandler != nil {
		a.Consumer.RegisterHandler(a.PricesHandler)
		if err := a.Consumer.Start(); err != nil {
			a.log.Error("kafka consumer start error", applogger.Error(err))
			return err
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.PricesHandler.Topic()))
	}

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	a.httpServer = xhttp.NewServer(a.Handler,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithAllowOrigins(cfg.Server.AllowOrigins),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithLogger(a.log),
	)
	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	a.log.Info("tradedesk started",
		applogger.String("backend", cfg.Backend.Type),
		applogger.Int("port", cfg.Server.Port),
	)
	return nil
}

// Addr is the bound HTTP address after Start, "" before.
func (a *App) Addr() string {
	if a.httpServer == nil {
		return ""
	}
	return a.httpServer.Addr()
}

// Shutdown stops everything in reverse start order.
func (a *App) Shutdown(ctx context.Context) error {
	a.log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	// hijacked websocket sessions are not covered by the HTTP shutdown
	if a.Relay != nil {
		a.Relay.Shutdown()
	}
	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}

	if a.Consumer != nil {
		if err := a.Consumer.Stop(shutdownCtx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.Pipeline != nil {
		a.Pipeline.Stop()
	}
	if a.Processor != nil {
		a.Processor.Close()
	}

	// flush aggregated logs while the sinks are still open
	a.log.RemoveCollector()

	if a.Producer != nil {
		if err := a.Producer.Close(); err != nil {
			a.log.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	if a.ClickHouse != nil {
		if err := a.ClickHouse.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if mc, ok := a.Cache.(*cache.MemoryCache); ok {
		_ = mc.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.log.Warn("redis close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}

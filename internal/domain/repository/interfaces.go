package repository

import (
	"context"
	"time"

	"TradeDesk/internal/domain/models"
)

// UpstreamDialer opens one upstream trade-stream connection per relay session.
type UpstreamDialer interface {
	Dial(ctx context.Context) (UpstreamConn, error)
}

// UpstreamConn is a single upstream trade-stream connection.
// ReadMessage is called from one goroutine only; writes may come from another.
type UpstreamConn interface {
	Subscribe(symbol string) error
	Unsubscribe(symbol string) error
	Ping() error
	ReadMessage() ([]byte, error)
	Close(code int) error
}

// QuoteProvider fetches a one-off snapshot quote for a symbol.
type QuoteProvider interface {
	Quote(ctx context.Context, symbol string) (*models.PriceRecord, error)
}

// PriceSink accepts price records for best-effort persistence. Enqueue never blocks.
type PriceSink interface {
	Enqueue(rec *models.PriceRecord)
}

type Publisher interface {
	PublishBatch(ctx context.Context, recs []*models.PriceRecord) error
	Close() error
}

type Storage interface {
	Init(ctx context.Context) error // ensure tables
	Store(ctx context.Context, r *models.PriceRecord) error
	StoreBatch(ctx context.Context, recs []*models.PriceRecord) error
	Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.PriceRecord, error)
	Health(ctx context.Context) error // ping
	Close() error
}

// LatestPrices mirrors the most recent record per symbol.
type LatestPrices interface {
	SetLatest(ctx context.Context, r *models.PriceRecord) error
	GetLatest(ctx context.Context, symbol string) (*models.PriceRecord, error)
	GetLatestMany(ctx context.Context, symbols []string) (map[string]*models.PriceRecord, error)
}

type Metrics interface {
	RecordMessageSent(backend, symbol string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	RecordSessions(delta int)
	RecordReconnect(result string)
}

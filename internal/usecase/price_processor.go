package usecase

import (
	"context"
	"fmt"
	"time"

	"TradeDesk/internal/domain/models"
	drepo "TradeDesk/internal/domain/repository"
	applogger "TradeDesk/pkg/logger"
	"TradeDesk/pkg/metrics"
)

// Storage backends accepted by PriceProcessor.
const (
	BackendClickHouse = "clickhouse"
	BackendKafka      = "kafka"
	BackendNone       = "none"
)

// PriceProcessor routes price records to the configured backend and mirrors the latest one.
type PriceProcessor struct {
	pub     drepo.Publisher
	store   drepo.Storage
	latest  drepo.LatestPrices
	metrics drepo.Metrics
	log     *applogger.Logger
	backend string
}

// NewPriceProcessor creates a new PriceProcessor. pub, store and latest may be nil when unused.
func NewPriceProcessor(
	pub drepo.Publisher,
	store drepo.Storage,
	latest drepo.LatestPrices,
	m drepo.Metrics,
	l *applogger.Logger,
	backend string,
) *PriceProcessor {
	if m == nil {
		m = metrics.Nop{}
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &PriceProcessor{
		pub:     pub,
		store:   store,
		latest:  latest,
		metrics: m,
		log:     l,
		backend: backend,
	}
}

// Backend returns the configured backend name.
func (p *PriceProcessor) Backend() string { return p.backend }

// ProcessBatch persists records in one backend call and mirrors the last record per symbol.
// A failed latest-price mirror is logged, not returned.
func (p *PriceProcessor) ProcessBatch(ctx context.Context, recs []*models.PriceRecord) error {
	if len(recs) == 0 {
		return nil
	}

	start := time.Now()
	var err error
	switch p.backend {
	case BackendKafka:
		err = p.pub.PublishBatch(ctx, recs)
	case BackendClickHouse:
		err = p.store.StoreBatch(ctx, recs)
	case BackendNone:
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}
	if err != nil {
		p.metrics.RecordError("process_batch")
		return fmt.Errorf("process batch: %w", err)
	}

	last := make(map[string]*models.PriceRecord, len(recs))
	for _, r := range recs {
		if p.backend != BackendNone {
			p.metrics.RecordMessageSent(p.backend, r.Symbol)
		}
		last[r.Symbol] = r
	}
	if p.backend != BackendNone {
		p.metrics.RecordLatency("process_batch", time.Since(start).Seconds())
	}
	for _, r := range last {
		p.metrics.RecordLastPrice(r.Symbol, r.CurrentPrice)
		p.mirror(ctx, r)
	}
	return nil
}

func (p *PriceProcessor) mirror(ctx context.Context, r *models.PriceRecord) {
	if p.latest == nil {
		return
	}
	if err := p.latest.SetLatest(ctx, r); err != nil {
		p.metrics.RecordError("latest_mirror")
		p.log.Warn("latest price mirror failed",
			applogger.String("symbol", r.Symbol),
			applogger.Error(err),
		)
	}
}

// Close closes underlying resources if available.
func (p *PriceProcessor) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
}

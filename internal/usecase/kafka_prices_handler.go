package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"TradeDesk/internal/domain/models"
	domrepo "TradeDesk/internal/domain/repository"
	pkgkafka "TradeDesk/pkg/kafka"
)

// KafkaPricesHandler consumes PriceRecord messages and writes them to storage.
type KafkaPricesHandler struct {
	topic   string
	storage domrepo.Storage
	metrics domrepo.Metrics
	now     func() time.Time
}

func NewKafkaPricesHandler(topic string, storage domrepo.Storage, metrics domrepo.Metrics) *KafkaPricesHandler {
	return &KafkaPricesHandler{topic: topic, storage: storage, metrics: metrics, now: time.Now}
}

func (h *KafkaPricesHandler) Topic() string { return h.topic }

// Handle decodes one PriceRecord JSON message. Errors are returned so the consumer retries or dead-letters.
func (h *KafkaPricesHandler) Handle(ctx context.Context, b []byte) error {
	var r models.PriceRecord
	if err := json.Unmarshal(b, &r); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode price record: %w", err)
	}
	if r.Symbol == "" || r.Timestamp <= 0 {
		h.metrics.RecordError("consumer_invalid")
		return fmt.Errorf("invalid price record: symbol=%q timestamp=%d", r.Symbol, r.Timestamp)
	}

	// event time to consumption
	h.metrics.RecordLatency("ingest_e2e", h.now().Sub(r.Time()).Seconds())

	start := h.now()
	err := h.storage.Store(ctx, &r)
	h.metrics.RecordLatency("ch_insert", h.now().Sub(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordMessageSent(BackendClickHouse, r.Symbol)
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaPricesHandler)(nil)

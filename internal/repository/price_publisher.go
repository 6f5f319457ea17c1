package repository

import (
	"context"

	"TradeDesk/internal/domain/models"
	"TradeDesk/internal/domain/repository"
	pkgkafka "TradeDesk/pkg/kafka"
)

// KafkaPricePublisher implements Publisher for Kafka. Messages are PriceRecord JSON keyed by symbol.
type KafkaPricePublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaPricePublisher creates Kafka publisher.
func NewKafkaPricePublisher(producer *pkgkafka.Producer, topic string) *KafkaPricePublisher {
	return &KafkaPricePublisher{producer: producer, topic: topic}
}

func (p *KafkaPricePublisher) PublishBatch(ctx context.Context, recs []*models.PriceRecord) error {
	if len(recs) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(recs))
	for i, r := range recs {
		msgs[i] = pkgkafka.Message{Key: []byte(r.Symbol), Value: r}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

// Close is a no-op; the producer is shared with the log collector and closed by the app.
func (p *KafkaPricePublisher) Close() error {
	return nil
}

var _ repository.Publisher = (*KafkaPricePublisher)(nil)

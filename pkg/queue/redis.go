package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"TradeDesk/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisPublisher appends messages to one capped Redis list per topic.
// Newest entries sit at the head; the list is trimmed to maxLen on every push.
type RedisPublisher struct {
	logger    *logger.Logger
	client    *redis.Client
	keyPrefix string
	maxLen    int64
	now       func() time.Time
}

// RedisPublisherOption configures RedisPublisher.
type RedisPublisherOption func(*RedisPublisher)

// WithKeyPrefix sets custom key prefix.
func WithKeyPrefix(prefix string) RedisPublisherOption {
	return func(r *RedisPublisher) {
		r.keyPrefix = prefix
	}
}

// WithMaxLen caps each topic list. Values below 1 are ignored.
func WithMaxLen(n int64) RedisPublisherOption {
	return func(r *RedisPublisher) {
		if n > 0 {
			r.maxLen = n
		}
	}
}

// NewRedisPublisher creates a publisher and checks the connection.
func NewRedisPublisher(lgr *logger.Logger, client *redis.Client, opts ...RedisPublisherOption) (*RedisPublisher, error) {
	if lgr == nil {
		lgr = logger.Nop()
	}
	r := &RedisPublisher{
		logger:    lgr,
		client:    client,
		keyPrefix: "tradedesk:queue",
		maxLen:    10000,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	r.logger.Info("redis publisher started",
		logger.String("addr", client.Options().Addr),
		logger.String("prefix", r.keyPrefix))
	return r, nil
}

// PublishMessage wraps payload in a Message and pushes it onto the topic list.
func (r *RedisPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	msg := Message{
		ID:        uuid.NewString(),
		Type:      topic,
		Payload:   payload,
		Timestamp: r.now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	key := r.Key(topic)
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, r.maxLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("lpush %s: %w", key, err)
	}
	return nil
}

// Key returns the list key for topic.
func (r *RedisPublisher) Key(topic string) string {
	return fmt.Sprintf("%s:%s", r.keyPrefix, topic)
}

var _ Publisher = (*RedisPublisher)(nil)
var _ logger.Publisher = (*RedisPublisher)(nil)

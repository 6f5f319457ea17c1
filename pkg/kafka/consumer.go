package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strconv"
	"sync"
	"time"

	applogger "TradeDesk/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// DLQ record headers.
const (
	HeaderSourceTopic     = "x-source-topic"
	HeaderSourcePartition = "x-source-partition"
	HeaderSourceOffset    = "x-source-offset"
	HeaderError           = "x-error"
	HeaderAttempts        = "x-attempts"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// Consumer reads topics through a consumer group and hands messages to a
// fixed set of lanes. A partition always lands on the same lane, so records
// keyed by symbol are handled and committed in order. Failed messages are
// retried, then parked on the DLQ when one is configured.
type Consumer struct {
	cfg      *ConsumerConfig
	log      *applogger.Logger
	readers  map[string]*kafka.Reader
	handlers map[string]MessageHandler
	lanes    []chan kafka.Message
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	dlq      messageWriter
	hook     ConsumerHook
	metrics  *consumerMetrics
}

// NewConsumer creates a consumer; handlers are added with RegisterHandler before Start.
func NewConsumer(l *applogger.Logger, opts ...ConsumerOption) (*Consumer, error) {
	cfg := defaultConsumerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if l == nil {
		l = applogger.Nop()
	}

	c := &Consumer{
		cfg:      cfg,
		log:      l,
		readers:  make(map[string]*kafka.Reader),
		handlers: make(map[string]MessageHandler),
		lanes:    make([]chan kafka.Message, cfg.WorkerCount),
		stop:     make(chan struct{}),
		hook:     NoopHook{},
		metrics:  newConsumerMetrics(cfg.Registerer),
	}
	for i := range c.lanes {
		c.lanes[i] = make(chan kafka.Message, cfg.BufferSize)
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		}
	}
	return c, nil
}

// RegisterHandler registers a message handler for its topic.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.log.Warn("kafka consumer: handler already registered", applogger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// WithConsumerHook sets a hook implementation for lifecycle events.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// Start opens one reader per registered topic and starts the lanes.
func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return errors.New("no handlers registered")
	}

	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			Topic:    topic,
			GroupID:  c.cfg.GroupID,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
			MaxWait:  c.cfg.MaxWait,
			// a new group replays what the topic still retains
			StartOffset: kafka.FirstOffset,
		})
	}

	for i, lane := range c.lanes {
		c.wg.Add(1)
		go c.runLane(i, lane)
	}
	for topic, reader := range c.readers {
		c.wg.Add(1)
		go c.fetch(topic, reader)
	}

	c.log.Info("kafka consumer started",
		applogger.Int("lanes", len(c.lanes)),
		applogger.Int("topics", len(c.readers)),
		applogger.String("group", c.cfg.GroupID),
	)
	return nil
}

// Stop closes the readers and waits for in-flight messages until ctx expires.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error

	c.stopOnce.Do(func() {
		close(c.stop)

		// readers close first to unblock FetchMessage
		for topic, reader := range c.readers {
			if err := reader.Close(); err != nil {
				c.log.Warn("kafka consumer: close reader", applogger.String("topic", topic), applogger.Error(err))
			}
		}

		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			stopErr = fmt.Errorf("kafka consumer stop: %w", ctx.Err())
		}

		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				c.log.Warn("kafka consumer: close dlq writer", applogger.Error(err))
			}
		}
		if stopErr == nil {
			c.log.Info("kafka consumer stopped")
		}
	})

	return stopErr
}

func (c *Consumer) stopped() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

func (c *Consumer) laneFor(km kafka.Message) int {
	if km.Partition < 0 {
		return 0
	}
	return km.Partition % len(c.lanes)
}

func (c *Consumer) fetch(topic string, reader *kafka.Reader) {
	defer c.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		km, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			c.log.Warn("kafka consumer: fetch", applogger.String("topic", topic), applogger.Error(err))
			continue
		}

		i := c.laneFor(km)
		// a full lane blocks the reader
		select {
		case c.lanes[i] <- km:
			c.metrics.queueDepth.WithLabelValues(strconv.Itoa(i)).Set(float64(len(c.lanes[i])))
		case <-c.stop:
			return
		}
	}
}

func (c *Consumer) runLane(i int, lane <-chan kafka.Message) {
	defer c.wg.Done()
	label := strconv.Itoa(i)

	for {
		select {
		case <-c.stop:
			return
		case km := <-lane:
			c.metrics.queueDepth.WithLabelValues(label).Set(float64(len(lane)))
			handler, ok := c.handlers[km.Topic]
			if !ok {
				continue
			}

			start := time.Now()
			err := c.process(handler, km)
			result := "ok"
			switch {
			case err != nil && c.dlq != nil:
				result = "dlq"
			case err != nil:
				result = "failed"
			}
			c.metrics.handled.WithLabelValues(km.Topic, result).Inc()
			c.metrics.handleSeconds.WithLabelValues(km.Topic).Observe(time.Since(start).Seconds())

			// a parked message is committed so it cannot block the partition
			if err == nil || c.dlq != nil {
				if reader := c.readers[km.Topic]; reader != nil {
					_ = c.commit(reader, km)
				}
			}
		}
	}
}

// process runs the handler with retries. After the last attempt the message
// goes to the DLQ, annotated with where it came from and why it failed.
func (c *Consumer) process(handler MessageHandler, km kafka.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
			c.log.Error("kafka consumer: handler panic", applogger.String("topic", km.Topic), applogger.Error(err))
		}
	}()

	attempts := 0
	for {
		attempts++
		hctx, hmsg, hdata, berr := c.hook.BeforeHandle(context.Background(), km.Topic, km, km.Value)
		if berr != nil {
			err = berr
			break
		}

		err = handler.Handle(hctx, hdata)
		c.hook.AfterHandle(hctx, km.Topic, hmsg, hdata, err)
		if err == nil || attempts > c.cfg.RetryMax {
			break
		}
		c.hook.OnError(hctx, km.Topic, hmsg, hdata, err)

		select {
		case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempts)):
		case <-c.stop:
			return err
		}
	}

	if err == nil {
		return nil
	}
	c.log.Error("kafka consumer: message failed",
		applogger.String("topic", km.Topic),
		applogger.Int("partition", km.Partition),
		applogger.Int64("offset", km.Offset),
		applogger.Int("attempts", attempts),
		applogger.Error(err),
	)
	if c.dlq != nil {
		if dlqErr := c.dlq.WriteMessages(context.Background(), deadLetter(c.cfg.DLQTopic, km, attempts, err)); dlqErr != nil {
			c.log.Error("kafka consumer: dlq write", applogger.String("dlq", c.cfg.DLQTopic), applogger.Error(dlqErr))
		}
	}
	return err
}

func deadLetter(topic string, km kafka.Message, attempts int, cause error) kafka.Message {
	headers := append([]kafka.Header{}, km.Headers...)
	headers = append(headers,
		kafka.Header{Key: HeaderSourceTopic, Value: []byte(km.Topic)},
		kafka.Header{Key: HeaderSourcePartition, Value: []byte(strconv.Itoa(km.Partition))},
		kafka.Header{Key: HeaderSourceOffset, Value: []byte(strconv.FormatInt(km.Offset, 10))},
		kafka.Header{Key: HeaderError, Value: []byte(cause.Error())},
		kafka.Header{Key: HeaderAttempts, Value: []byte(strconv.Itoa(attempts))},
	)
	return kafka.Message{
		Topic:   topic,
		Key:     km.Key,
		Value:   km.Value,
		Time:    time.Now().UTC(),
		Headers: headers,
	}
}

// commit retries a few times but gives up once the consumer is stopping;
// the group then redelivers from the last committed offset.
func (c *Consumer) commit(reader *kafka.Reader, km kafka.Message) error {
	const maxAttempts = 3
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = reader.CommitMessages(ctx, km)
		cancel()
		if err == nil {
			return nil
		}
		if c.stopped() {
			break
		}
		select {
		case <-time.After(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt)):
		case <-c.stop:
		}
	}
	c.metrics.commitFailures.WithLabelValues(km.Topic).Inc()
	c.log.Error("kafka consumer: commit failed",
		applogger.String("topic", km.Topic),
		applogger.Int64("offset", km.Offset),
		applogger.Error(err),
	)
	return err
}

func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	exp := min * time.Duration(1<<uint(attempt-1))
	if exp > max || exp <= 0 {
		exp = max
	}
	// jitter up to 50%
	if half := int64(exp) / 2; half > 0 {
		exp -= time.Duration(rand.Int63n(half))
	}
	return exp
}

type consumerMetrics struct {
	queueDepth     *prometheus.GaugeVec
	handled        *prometheus.CounterVec
	handleSeconds  *prometheus.HistogramVec
	commitFailures *prometheus.CounterVec
}

// newConsumerMetrics registers on reg; a nil reg keeps the series local.
func newConsumerMetrics(reg prometheus.Registerer) *consumerMetrics {
	f := promauto.With(reg)
	return &consumerMetrics{
		queueDepth: f.NewGaugeVec(
			prometheus.GaugeOpts{Name: "tradedesk_kafka_consumer_queue_depth", Help: "Messages waiting per consumer lane"},
			[]string{"lane"},
		),
		handled: f.NewCounterVec(
			prometheus.CounterOpts{Name: "tradedesk_kafka_consumer_messages_total", Help: "Consumed messages by outcome"},
			[]string{"topic", "result"},
		),
		handleSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{Name: "tradedesk_kafka_consumer_handle_seconds", Help: "Handling time per message including retries"},
			[]string{"topic"},
		),
		commitFailures: f.NewCounterVec(
			prometheus.CounterOpts{Name: "tradedesk_kafka_consumer_commit_failures_total", Help: "Offset commits that failed after retries"},
			[]string{"topic"},
		),
	}
}

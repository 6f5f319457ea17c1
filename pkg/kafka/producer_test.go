package kafka

import (
	"context"
	"errors"
	"testing"
)

func TestProducerPublishesLogsAndPrices(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "snappy")
	ctx := context.Background()

	if err := p.PublishMessage(ctx, "logs", []byte(`{"level":"error"}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := p.PublishBatch(ctx, "price_updates", []Message{
		{Key: []byte("AAPL"), Value: map[string]float64{"currentPrice": 1}},
		{Key: []byte("MSFT"), Value: "raw"},
	}); err != nil {
		t.Fatalf("publish batch: %v", err)
	}

	if len(w.msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(w.msgs))
	}
	if w.msgs[0].Key != nil || w.msgs[0].Topic != "logs" {
		t.Fatalf("unexpected log message %+v", w.msgs[0])
	}
	if string(w.msgs[1].Value) != `{"currentPrice":1}` || string(w.msgs[2].Value) != "raw" {
		t.Fatalf("unexpected encoded values %q %q", w.msgs[1].Value, w.msgs[2].Value)
	}
	if h := w.msgs[1].Headers; len(h) != 1 || string(h[0].Value) != "application/json" {
		t.Fatalf("expected json content type header, got %+v", h)
	}
	if string(w.msgs[2].Headers[0].Value) != "application/octet-stream" {
		t.Fatalf("expected raw content type, got %+v", w.msgs[2].Headers)
	}
}

func TestProducerBatchEncodingErrorSendsNothing(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "none")

	err := p.PublishBatch(context.Background(), "price_updates", []Message{
		{Key: []byte("AAPL"), Value: "ok"},
		{Key: []byte("BAD"), Value: make(chan int)},
	})
	if err == nil {
		t.Fatalf("expected encoding error")
	}
	if len(w.msgs) != 0 {
		t.Fatalf("expected nothing written, got %d", len(w.msgs))
	}
}

func TestProducerWrapsWriteError(t *testing.T) {
	boom := errors.New("leader not available")
	p := newProducer(&fakeWriter{err: boom}, "snappy")
	if err := p.Publish(context.Background(), "price_updates", []byte("AAPL"), "x"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped write error, got %v", err)
	}
}

func TestNewProducerValidates(t *testing.T) {
	cases := []struct {
		name string
		opts []ProducerOption
	}{
		{"no brokers", nil},
		{"bad acks", []ProducerOption{WithBrokers([]string{"k:9092"}), WithRequiredAcks(2)}},
		{"bad codec", []ProducerOption{WithBrokers([]string{"k:9092"}), WithCompression("brotli")}},
	}
	for _, c := range cases {
		if _, err := NewProducer(c.opts...); err == nil {
			t.Fatalf("%s: expected error", c.name)
		}
	}

	p, err := NewProducer(WithBrokers([]string{"k:9092"}), WithCompression("zstd"), WithRequiredAcks(1))
	if err != nil {
		t.Fatalf("valid config: %v", err)
	}
	_ = p.Close()
}

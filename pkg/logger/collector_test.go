package logger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingPublisher struct {
	mu      sync.Mutex
	batches [][]AggregatedLogEntry
}

func (p *recordingPublisher) PublishMessage(_ context.Context, _ string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return nil
}

func TestCollectorAggregatesRepeats(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 100, Topic: "logs", Publisher: pub})

	for i := 0; i < 5; i++ {
		c.AddLog("error", "upstream dial failed", map[string]interface{}{"session": "a"}, "relay/session.go:10")
	}
	c.AddLog("error", "snapshot failed", nil, "relay/session.go:20")
	c.Close()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.batches) != 1 {
		t.Fatalf("expected one flushed batch, got %d", len(pub.batches))
	}
	counts := map[string]int{}
	for _, e := range pub.batches[0] {
		counts[e.Message] = e.Count
	}
	if counts["upstream dial failed"] != 5 || counts["snapshot failed"] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
}

func TestLoggerFeedsCollectorOnError(t *testing.T) {
	pub := &recordingPublisher{}
	l := Nop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, Publisher: pub})
	l.Warn("not collected")
	l.Error("collected", Error(errors.New("boom")))
	l.RemoveCollector()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.batches) != 1 || len(pub.batches[0]) != 1 {
		t.Fatalf("expected a single collected entry, got %v", pub.batches)
	}
	if pub.batches[0][0].Fields["error"] != "boom" {
		t.Fatalf("expected error field, got %v", pub.batches[0][0].Fields)
	}
}

func TestChildLoggerCreatedBeforeCollectorIsCollected(t *testing.T) {
	pub := &recordingPublisher{}
	root := Nop()
	relayLog := root.With(String("component", "relay"))
	sessionLog := relayLog.With(String("session", "s-1"))

	root.AddCollector(&CollectionConfig{TimeInterval: time.Hour, Publisher: pub})
	for _, l := range []*Logger{sessionLog, relayLog} {
		l.Error("upstream dial failed")
	}
	root.RemoveCollector()
	sessionLog.Error("after removal")

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.batches) != 1 || len(pub.batches[0]) != 1 {
		t.Fatalf("expected one aggregated entry, got %v", pub.batches)
	}
	if pub.batches[0][0].Count != 2 {
		t.Fatalf("expected session and relay errors to aggregate, got count %d", pub.batches[0][0].Count)
	}
}

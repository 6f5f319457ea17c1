package queue

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisPublisherCapsList(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	p, err := NewRedisPublisher(nil, client, WithKeyPrefix("test:logs"), WithMaxLen(2))
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := p.PublishMessage(ctx, "errors", map[string]int{"n": i}); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	items, err := mr.List("test:logs:errors")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected capped list of 2, got %d", len(items))
	}

	var newest struct {
		ID      string         `json:"id"`
		Type    string         `json:"type"`
		Payload map[string]int `json:"payload"`
	}
	if err := json.Unmarshal([]byte(items[0]), &newest); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if newest.Type != "errors" || newest.Payload["n"] != 2 || newest.ID == "" {
		t.Fatalf("unexpected head message %+v", newest)
	}
}

func TestRedisPublisherPingFails(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	if _, err := NewRedisPublisher(nil, client); err == nil {
		t.Fatalf("expected ping failure")
	}
}

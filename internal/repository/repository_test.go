package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"TradeDesk/internal/domain/models"
	"TradeDesk/pkg/cache"
)

func TestPriceHistorySchema(t *testing.T) {
	stmts := PriceHistorySchema("tradedesk", 0)
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(stmts))
	}
	ddl := stmts[1]
	for _, want := range []string{"tradedesk.price_history", "ts DateTime64(3)", "MergeTree", "ORDER BY (symbol, ts)"} {
		if !strings.Contains(ddl, want) {
			t.Fatalf("ddl missing %q:\n%s", want, ddl)
		}
	}
	if strings.Contains(ddl, "TTL") {
		t.Fatalf("expected no TTL without retention:\n%s", ddl)
	}

	ddl = PriceHistorySchema("tradedesk", 30)[1]
	if !strings.HasSuffix(ddl, "ORDER BY (symbol, ts) TTL toDateTime(ts) + INTERVAL 30 DAY") {
		t.Fatalf("expected retention TTL:\n%s", ddl)
	}
}

func TestBatchInsertSkipsIncompleteRecords(t *testing.T) {
	recs := []*models.PriceRecord{
		{Symbol: "AAPL", CurrentPrice: 190, Timestamp: 1700000000123},
		nil,
		{Symbol: "", Timestamp: 1},
		{Symbol: "MSFT", CurrentPrice: 410, Timestamp: 0},
		{Symbol: "MSFT", CurrentPrice: 410, Timestamp: 1700000000456},
	}
	q, args := batchInsert("db.price_history", recs)
	if strings.Count(q, "(?, ?, ?, ?, ?, ?, ?, ?, ?)") != 2 {
		t.Fatalf("expected two value tuples: %s", q)
	}
	if len(args) != 18 {
		t.Fatalf("expected 18 args, got %d", len(args))
	}
	if ts, ok := args[8].(time.Time); !ok || ts.UnixMilli() != 1700000000123 {
		t.Fatalf("expected millisecond timestamp, got %v", args[8])
	}

	if q, _ := batchInsert("db.price_history", []*models.PriceRecord{nil}); q != "" {
		t.Fatalf("expected empty statement, got %q", q)
	}
}

func TestLatestPriceCacheRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedisCache(cache.WithRedisAddr(mr.Addr()))
	if err != nil {
		t.Fatalf("redis cache: %v", err)
	}
	defer rc.Close()

	lp := NewLatestPriceCache(rc, time.Minute)
	ctx := context.Background()

	if _, err := lp.GetLatest(ctx, "AAPL"); !errors.Is(err, cache.ErrCacheMiss) {
		t.Fatalf("expected miss, got %v", err)
	}
	if err := lp.SetLatest(ctx, &models.PriceRecord{Symbol: "AAPL", CurrentPrice: 191.25, Timestamp: 1}); err != nil {
		t.Fatalf("set latest: %v", err)
	}
	got, err := lp.GetLatest(ctx, "aapl")
	if err != nil || got.CurrentPrice != 191.25 {
		t.Fatalf("unexpected latest %+v (%v)", got, err)
	}
	if !mr.Exists("tradedesk:latest:AAPL") {
		t.Fatalf("expected namespaced key, have %v", mr.Keys())
	}
	if ttl := mr.TTL("tradedesk:latest:AAPL"); ttl != time.Minute {
		t.Fatalf("expected 1m ttl, got %v", ttl)
	}

	_ = lp.SetLatest(ctx, &models.PriceRecord{Symbol: "MSFT", CurrentPrice: 410, Timestamp: 2})
	many, err := lp.GetLatestMany(ctx, []string{"aapl", "MSFT", "TSLA"})
	if err != nil {
		t.Fatalf("get latest many: %v", err)
	}
	if len(many) != 2 || many["AAPL"].CurrentPrice != 191.25 || many["MSFT"].CurrentPrice != 410 {
		t.Fatalf("unexpected batch %+v", many)
	}
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"TradeDesk/internal/domain/models"
	"TradeDesk/internal/domain/repository"
	pkgch "TradeDesk/pkg/clickhouse"
)

const priceColumns = "symbol, price, change, change_percent, high, low, open, previous_close, ts"

// insertChunk caps rows per multi-row INSERT.
const insertChunk = 2000

// PriceHistorySchema returns the idempotent DDL for the price history table.
// retentionDays > 0 adds a TTL that drops rows older than that many days.
func PriceHistorySchema(database string, retentionDays int) []string {
	ttl := ""
	if retentionDays > 0 {
		ttl = fmt.Sprintf(" TTL toDateTime(ts) + INTERVAL %d DAY", retentionDays)
	}
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.price_history (
    symbol String,
    price Float64,
    change Float64,
    change_percent Float64,
    high Float64,
    low Float64,
    open Float64,
    previous_close Float64,
    ts DateTime64(3)
) ENGINE = MergeTree ORDER BY (symbol, ts)%s`, database, ttl),
	}
}

// ClickHousePriceStore implements Storage for ClickHouse.
type ClickHousePriceStore struct {
	ch            *pkgch.Client
	db            *sql.DB
	database      string
	table         string
	retentionDays int
}

// PriceStoreOption configures ClickHousePriceStore.
type PriceStoreOption func(*ClickHousePriceStore)

// WithRetentionDays sets the table TTL applied when the table is first created.
func WithRetentionDays(days int) PriceStoreOption {
	return func(s *ClickHousePriceStore) { s.retentionDays = days }
}

// NewClickHousePriceStore creates ClickHouse storage on <database>.price_history.
func NewClickHousePriceStore(ch *pkgch.Client, opts ...PriceStoreOption) *ClickHousePriceStore {
	s := &ClickHousePriceStore{
		ch:       ch,
		db:       ch.DB(),
		database: ch.Database(),
		table:    ch.Database() + ".price_history",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ClickHousePriceStore) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, PriceHistorySchema(s.database, s.retentionDays))
}

func (s *ClickHousePriceStore) Store(ctx context.Context, r *models.PriceRecord) error {
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)", s.table, priceColumns)
	if _, err := s.ch.Exec(ctx, q, recordArgs(r)...); err != nil {
		return fmt.Errorf("insert price: %w", err)
	}
	return nil
}

func (s *ClickHousePriceStore) StoreBatch(ctx context.Context, recs []*models.PriceRecord) error {
	for start := 0; start < len(recs); start += insertChunk {
		end := min(start+insertChunk, len(recs))
		q, args := batchInsert(s.table, recs[start:end])
		if q == "" {
			continue
		}
		if _, err := s.ch.Exec(ctx, q, args...); err != nil {
			return fmt.Errorf("insert price batch: %w", err)
		}
	}
	return nil
}

// Query returns up to limit records for symbol in [from, to], newest first.
func (s *ClickHousePriceStore) Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.PriceRecord, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE symbol = ? AND ts >= ? AND ts <= ? ORDER BY ts DESC LIMIT ?", priceColumns, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("query prices: %w", err)
	}
	defer rows.Close()

	out := make([]*models.PriceRecord, 0, limit)
	for rows.Next() {
		var r models.PriceRecord
		var ts time.Time
		if err := rows.Scan(&r.Symbol, &r.CurrentPrice, &r.Change, &r.ChangePercent,
			&r.High, &r.Low, &r.Open, &r.PreviousClose, &ts); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		r.Timestamp = ts.UnixMilli()
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *ClickHousePriceStore) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}

// Close is a no-op; the connection pool belongs to the ClickHouse client.
func (s *ClickHousePriceStore) Close() error {
	return nil
}

func recordArgs(r *models.PriceRecord) []any {
	return []any{
		r.Symbol, r.CurrentPrice, r.Change, r.ChangePercent,
		r.High, r.Low, r.Open, r.PreviousClose,
		time.UnixMilli(r.Timestamp).UTC(),
	}
}

// batchInsert builds one multi-row INSERT, skipping records without symbol or timestamp.
func batchInsert(table string, recs []*models.PriceRecord) (string, []any) {
	values := make([]string, 0, len(recs))
	args := make([]any, 0, len(recs)*9)
	for _, r := range recs {
		if r == nil || r.Symbol == "" || r.Timestamp == 0 {
			continue
		}
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, recordArgs(r)...)
	}
	if len(values) == 0 {
		return "", nil
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, priceColumns, strings.Join(values, ", ")), args
}

var _ repository.Storage = (*ClickHousePriceStore)(nil)

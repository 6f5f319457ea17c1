package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"TradeDesk/internal/domain/models"
	"TradeDesk/internal/domain/repository"
	"TradeDesk/pkg/cache"
)

const latestPrefix = "latest"

// LatestPriceCache mirrors the most recent record per symbol under latest:<SYMBOL>.
type LatestPriceCache struct {
	cache cache.Service
	ttl   time.Duration
}

// NewLatestPriceCache creates the mirror. A non-positive ttl keeps entries until overwritten.
func NewLatestPriceCache(c cache.Service, ttl time.Duration) *LatestPriceCache {
	return &LatestPriceCache{cache: c, ttl: ttl}
}

func (c *LatestPriceCache) SetLatest(ctx context.Context, r *models.PriceRecord) error {
	return c.cache.Set(ctx, latestKey(r.Symbol), r, c.ttl)
}

// GetLatest returns cache.ErrCacheMiss when nothing is mirrored for symbol.
func (c *LatestPriceCache) GetLatest(ctx context.Context, symbol string) (*models.PriceRecord, error) {
	var r models.PriceRecord
	if err := c.cache.Get(ctx, latestKey(symbol), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetLatestMany returns the mirrored records for symbols in one round trip, keyed by upper-case symbol.
// Symbols without an entry are omitted.
func (c *LatestPriceCache) GetLatestMany(ctx context.Context, symbols []string) (map[string]*models.PriceRecord, error) {
	keys := make([]string, len(symbols))
	for i, s := range symbols {
		keys[i] = latestKey(s)
	}
	raw, err := c.cache.GetMany(ctx, keys)
	if err != nil {
		return nil, err
	}

	out := make(map[string]*models.PriceRecord, len(raw))
	for k, b := range raw {
		var r models.PriceRecord
		if err := json.Unmarshal(b, &r); err != nil {
			return nil, fmt.Errorf("decode %s: %w", k, err)
		}
		out[strings.TrimPrefix(k, latestPrefix+":")] = &r
	}
	return out, nil
}

func latestKey(symbol string) string {
	return cache.GenerateKey(latestPrefix, strings.ToUpper(symbol))
}

var _ repository.LatestPrices = (*LatestPriceCache)(nil)

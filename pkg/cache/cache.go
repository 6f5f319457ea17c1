package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var ErrCacheMiss = errors.New("cache: key not found")

// Service is the key/value store behind quote snapshots and the latest-price mirror.
// Values that are not string or []byte are stored JSON-encoded.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	// GetMany returns the raw encoded value of every key that is present. Misses are omitted.
	GetMany(ctx context.Context, keys []string) (map[string][]byte, error)
	Delete(ctx context.Context, keys ...string) error
}

// GenerateKey joins a namespace and an id, e.g. quote:AAPL.
func GenerateKey(prefix string, id string) string {
	return prefix + ":" + id
}

func encode(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return append([]byte(nil), v...), nil
	default:
		return json.Marshal(v)
	}
}

func decode(data []byte, dest interface{}) error {
	if s, ok := dest.(*string); ok {
		*s = string(data)
		return nil
	}
	return json.Unmarshal(data, dest)
}

func trimPrefix(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, prefix+":")
}

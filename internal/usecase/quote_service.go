package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"TradeDesk/internal/domain/models"
	drepo "TradeDesk/internal/domain/repository"
	"TradeDesk/internal/service/ratelimit"
	"TradeDesk/pkg/cache"
	xhttp "TradeDesk/pkg/http"
	applogger "TradeDesk/pkg/logger"
)

// ErrRateLimited is returned when the upstream REST budget is exhausted.
var ErrRateLimited = errors.New("quote rate limit exceeded")

// RateLimitError carries a retry hint and matches ErrRateLimited with errors.Is.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error // upstream cause, nil when the local bucket refused
}

func (e *RateLimitError) Error() string {
	if e.Err != nil {
		return ErrRateLimited.Error() + ": " + e.Err.Error()
	}
	return ErrRateLimited.Error()
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }
func (e *RateLimitError) Unwrap() error        { return e.Err }

// upstream REST limits apply per API key, so all symbols share one bucket
const quoteBucket = "finnhub_rest"

// QuoteService wraps a QuoteProvider with a short-lived cache and a token bucket.
type QuoteService struct {
	provider drepo.QuoteProvider
	cache    cache.Service
	limiter  *ratelimit.Limiter
	ttl      time.Duration
	log      *applogger.Logger
}

// NewQuoteService creates a QuoteService. c and limiter may be nil.
func NewQuoteService(p drepo.QuoteProvider, c cache.Service, limiter *ratelimit.Limiter, ttl time.Duration, l *applogger.Logger) *QuoteService {
	if l == nil {
		l = applogger.Nop()
	}
	return &QuoteService{provider: p, cache: c, limiter: limiter, ttl: ttl, log: l}
}

// Quote returns the snapshot for symbol, served from cache when fresh.
func (s *QuoteService) Quote(ctx context.Context, symbol string) (*models.PriceRecord, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	key := cache.GenerateKey("quote", symbol)

	if s.cache != nil && s.ttl > 0 {
		var rec models.PriceRecord
		err := s.cache.Get(ctx, key, &rec)
		if err == nil {
			return &rec, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.Warn("quote cache read failed", applogger.String("symbol", symbol), applogger.Error(err))
		}
	}

	if s.limiter != nil && !s.limiter.Allow(quoteBucket) {
		return nil, &RateLimitError{RetryAfter: s.limiter.RetryAfter(quoteBucket)}
	}

	rec, err := s.provider.Quote(ctx, symbol)
	var se *xhttp.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{RetryAfter: se.RetryAfter, Err: err}
	}
	if err != nil {
		return nil, err
	}

	if s.cache != nil && s.ttl > 0 {
		if err := s.cache.Set(ctx, key, rec, s.ttl); err != nil {
			s.log.Warn("quote cache write failed", applogger.String("symbol", symbol), applogger.Error(err))
		}
	}
	return rec, nil
}

var _ drepo.QuoteProvider = (*QuoteService)(nil)

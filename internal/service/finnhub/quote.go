package finnhub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"TradeDesk/internal/domain/models"
	apphttp "TradeDesk/pkg/http"
)

// ErrNoQuote is returned when the symbol is unknown upstream (current price 0).
var ErrNoQuote = errors.New("finnhub: no quote for symbol")

// QuoteClient fetches snapshot quotes from the Finnhub REST API.
type QuoteClient struct {
	apiKey  string
	baseURL string
	http    *apphttp.Client
	now     func() time.Time
}

// NewQuoteClient creates a REST quote client.
func NewQuoteClient(apiKey, baseURL string, hc *apphttp.Client) *QuoteClient {
	return &QuoteClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
		now:     time.Now,
	}
}

// Quote returns the snapshot for symbol as a PriceRecord.
func (c *QuoteClient) Quote(ctx context.Context, symbol string) (*models.PriceRecord, error) {
	var q models.Quote
	err := c.http.SendAndParse(ctx, &apphttp.RequestOptions{
		Method: apphttp.MethodGet,
		URL:    c.baseURL + "/quote",
		QueryParams: map[string][]string{
			"symbol": {symbol},
			"token":  {c.apiKey},
		},
		Headers: map[string]string{"Accept": "application/json"},
	}, &q)
	if err != nil {
		return nil, fmt.Errorf("finnhub quote %s: %w", symbol, err)
	}
	if q.Current == 0 {
		return nil, ErrNoQuote
	}
	return q.ToPriceRecord(symbol, c.now().UnixMilli()), nil
}

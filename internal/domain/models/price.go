package models

import "time"

// PriceRecord is the per-symbol quote state a relay session streams to its client.
type PriceRecord struct {
	Symbol        string  `json:"symbol"`
	CurrentPrice  float64 `json:"currentPrice"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Open          float64 `json:"open"`
	PreviousClose float64 `json:"previousClose"`
	Timestamp     int64   `json:"timestamp"` // epoch ms
}

// Time returns the record timestamp as time.Time.
func (r *PriceRecord) Time() time.Time { return time.UnixMilli(r.Timestamp) }

// NewPriceRecordFromTrade seeds a record when a trade arrives for a symbol with no snapshot.
func NewPriceRecordFromTrade(symbol string, price float64, nowMs int64) *PriceRecord {
	return &PriceRecord{
		Symbol:        symbol,
		CurrentPrice:  price,
		High:          price,
		Low:           price,
		Open:          price,
		PreviousClose: price,
		Timestamp:     nowMs,
	}
}

// ApplyTrade moves the record to a new last price.
func (r *PriceRecord) ApplyTrade(price float64, nowMs int64) {
	r.CurrentPrice = price
	r.Change = price - r.PreviousClose
	if r.PreviousClose != 0 {
		r.ChangePercent = r.Change / r.PreviousClose * 100
	} else {
		r.ChangePercent = 0
	}
	if price > r.High {
		r.High = price
	}
	if r.Low == 0 || price < r.Low {
		r.Low = price
	}
	r.Timestamp = nowMs
}

// Trade is a single upstream trade tick.
type Trade struct {
	Symbol    string
	Price     float64
	Volume    float64
	Timestamp int64 // epoch ms
}

// Quote is the REST snapshot shape returned by the market-data provider.
type Quote struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	ChangePercent float64 `json:"dp"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PreviousClose float64 `json:"pc"`
	Timestamp     int64   `json:"t"` // epoch s
}

// ToPriceRecord converts the snapshot; a zero quote timestamp falls back to nowMs.
func (q *Quote) ToPriceRecord(symbol string, nowMs int64) *PriceRecord {
	ts := nowMs
	if q.Timestamp > 0 {
		ts = q.Timestamp * 1000
	}
	return &PriceRecord{
		Symbol:        symbol,
		CurrentPrice:  q.Current,
		Change:        q.Change,
		ChangePercent: q.ChangePercent,
		High:          q.High,
		Low:           q.Low,
		Open:          q.Open,
		PreviousClose: q.PreviousClose,
		Timestamp:     ts,
	}
}

// HistoryRequest is the query for persisted price history.
type HistoryRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,ticker"`
	From   string `query:"from" json:"from"`
	To     string `query:"to" json:"to"`
	Limit  int    `query:"limit" json:"limit" default:"500" validate:"gte=1,lte=5000"`
}

// QuoteRequest is the query for a single snapshot quote.
type QuoteRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,ticker"`
}

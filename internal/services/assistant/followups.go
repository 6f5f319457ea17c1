package assistant

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"TradeDesk/internal/services/intent"
)

const maxFollowUps = 3

var genericFollowUps = []string{
	"What can this app do?",
	"What is technical analysis?",
	"How do I set a price alert?",
}

type followUpPool struct {
	keys        []string
	suggestions []string
}

// followUpPools are consulted in order after the symbol pool.
var followUpPools = []followUpPool{
	{[]string{"rsi"}, []string{"What RSI levels signal overbought or oversold?", "How do I spot RSI divergence?"}},
	{[]string{"macd"}, []string{"How do I read a MACD crossover?"}},
	{[]string{"moving average", "moving averages", "ema", "sma"}, []string{"What's the difference between EMA and SMA?"}},
	{[]string{"divergence"}, []string{"Is bullish divergence reliable on its own?"}},
	{[]string{"support", "resistance"}, []string{"How do I draw support and resistance levels?"}},
	{[]string{"strategy", "strategies"}, []string{"How do I backtest a strategy?", "How much should I risk per trade?"}},
	{[]string{"risk", "stop loss", "position sizing"}, []string{"Where should I place my stop loss?", "What is a good risk/reward ratio?"}},
	{[]string{"invest", "investing", "investment", "portfolio", "allocation"}, []string{"What is dollar cost averaging?", "How often should I rebalance?"}},
	{[]string{"alert", "alerts", "notification", "notifications"}, []string{"How do I manage my existing alerts?", "Can I get alerts by email?"}},
	{[]string{"watchlist", "favorite", "favorites"}, []string{"How do I remove an asset from my watchlist?"}},
	{[]string{"chart ai"}, []string{"What patterns can Chart AI detect?"}},
	{[]string{"upgrade", "pro", "premium", "pro plan"}, []string{"What's included in the Pro Plan?"}},
	{[]string{"news", "news feed"}, []string{"Can I filter the news feed by asset?"}},
}

func symbolFollowUps(sym string) []string {
	return []string{
		fmt.Sprintf("What's the trend for %s today?", sym),
		fmt.Sprintf("Set a price alert for %s", sym),
		fmt.Sprintf("What are the key levels for %s?", sym),
	}
}

// followUps returns up to three de-duplicated suggestions: symbol pool first, then keyword pools.
func followUps(t *turn) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(s string) bool {
		if _, ok := seen[s]; ok {
			return false
		}
		seen[s] = struct{}{}
		out = append(out, s)
		return len(out) == maxFollowUps
	}

	if len(t.symbols) > 0 {
		for _, s := range symbolFollowUps(t.symbols[0]) {
			if add(s) {
				return out
			}
		}
	}
	for _, pool := range followUpPools {
		if !t.text.HasAny(pool.keys...) {
			continue
		}
		for _, s := range pool.suggestions {
			if add(s) {
				return out
			}
		}
	}

	if len(out) == 0 {
		return append([]string(nil), genericFollowUps...)
	}
	return out
}

var (
	dollarTicker = regexp.MustCompile(`\$([A-Za-z][A-Za-z.]{0,5})`)
	capsToken    = regexp.MustCompile(`\b[A-Z]{2,5}\b`)
)

// notTickers are all-caps tokens that commonly appear in questions without naming an asset.
var notTickers = map[string]struct{}{
	"AI": {}, "RSI": {}, "MACD": {}, "EMA": {}, "SMA": {}, "ETF": {}, "ETFS": {}, "USD": {}, "EUR": {},
	"OK": {}, "PE": {}, "CEO": {}, "IPO": {}, "ATH": {}, "FAQ": {}, "APP": {}, "PRO": {}, "HOW": {},
	"WHAT": {}, "WHY": {}, "THE": {}, "AND": {}, "FOR": {}, "DCA": {}, "ROI": {}, "EPS": {}, "GDP": {},
	"CPI": {}, "FOMC": {}, "FED": {}, "SEC": {}, "IS": {}, "IT": {}, "MY": {}, "ME": {}, "TO": {}, "IN": {},
	"ON": {}, "OR": {}, "OF": {}, "AT": {}, "DO": {}, "BE": {}, "AM": {}, "PM": {}, "ATR": {}, "VWAP": {},
	"CAN": {}, "HELP": {}, "WHERE": {}, "WHEN": {}, "WHO": {}, "WHICH": {}, "WILL": {}, "WOULD": {},
	"COULD": {}, "SHALL": {}, "BUY": {}, "SELL": {}, "HOLD": {}, "LONG": {}, "SHORT": {}, "NOT": {},
	"ARE": {}, "WAS": {}, "YOU": {}, "YOUR": {}, "HI": {}, "HEY": {}, "HELLO": {}, "TELL": {}, "SHOW": {},
	"GIVE": {}, "GET": {}, "NOW": {}, "WITH": {}, "THIS": {}, "THAT": {}, "IF": {}, "AN": {}, "SO": {},
	"NEED": {}, "WANT": {}, "BEST": {}, "GOOD": {}, "BAD": {}, "ALL": {}, "ANY": {}, "NEW": {}, "NEWS": {},
	"LIVE": {}, "STOCK": {}, "PRICE": {}, "TRADE": {}, "RISK": {}, "PLS": {}, "THX": {}, "USA": {}, "US": {},
}

// Symbols returns the tickers a message names explicitly ($TICKER or an all-caps token).
func Symbols(message string) []string {
	return detectSymbols(&turn{raw: message, text: intent.Normalize(message)})
}

// detectSymbols finds $TICKER mentions, all-caps tokens and market data keys named in the message.
// $TICKER mentions come first, then caps tokens in message order, then market data keys in key order.
func detectSymbols(t *turn) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(s string) {
		s = strings.ToUpper(strings.TrimRight(s, "."))
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	for _, m := range dollarTicker.FindAllStringSubmatch(t.raw, -1) {
		add(m[1])
	}
	for _, tok := range capsToken.FindAllString(t.raw, -1) {
		if _, skip := notTickers[tok]; !skip {
			add(tok)
		}
	}

	keys := make([]string, 0, len(t.market))
	for k := range t.market {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if t.text.Has(k) {
			add(k)
		}
	}
	return out
}

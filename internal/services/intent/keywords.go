package intent

// Keyword tables. Entries are lower-case words or phrases matched on whole-word boundaries.
var (
	ProductKeywords = []string{
		"app", "feature", "features", "button", "menu", "tab", "page", "sidebar", "toolbar",
		"settings", "setting", "account", "profile", "login", "log in", "sign in", "password",
		"upgrade", "pro", "plan", "premium", "subscription", "billing", "pricing",
		"favorite", "favorites", "favourite", "watchlist", "alert", "alerts", "notification", "notifications",
		"dashboard", "news feed", "assistant", "tour", "navigate", "where is", "how to use", "help",
		"search", "theme", "dark mode", "language", "export",
	}

	TradingKeywords = []string{
		"stock", "stocks", "share", "shares", "trade", "trades", "trading", "trader",
		"buy", "sell", "invest", "investing", "investment", "investor", "market", "markets",
		"price", "crypto", "bitcoin", "ethereum", "etf", "etfs", "dividend", "dividends", "earnings",
		"bull", "bear", "bullish", "bearish", "trend", "volatility", "volume", "support", "resistance",
		"indicator", "indicators", "strategy", "strategies", "risk", "portfolio", "allocation",
		"profit", "loss", "short", "long", "ticker", "breakout", "momentum", "entry", "exit",
		"hedge", "leverage", "margin", "forex", "bond", "bonds", "index", "fund",
	}

	HighConfidenceProduct = []string{
		"chart ai", "feature tour", "app tour", "watchlist", "price alert", "pro plan", "upgrade to pro",
		"news feed", "asset browser", "ai assistant", "how do i use", "where can i find", "my account",
		"notification settings",
	}

	HighConfidenceTrading = []string{
		"rsi", "macd", "bollinger", "bollinger bands", "fibonacci", "moving average", "moving averages",
		"ema", "sma", "divergence", "candlestick", "candlesticks", "support and resistance",
		"stop loss", "risk management", "position sizing", "trading strategy", "day trading",
		"swing trading", "options trading", "technical analysis", "fundamental analysis",
		"pe ratio", "price to earnings", "diversification", "asset allocation", "dollar cost averaging",
	}
)

var (
	// plain sets include the high-confidence entries once
	allProduct = union(ProductKeywords, HighConfidenceProduct)
	allTrading = union(TradingKeywords, HighConfidenceTrading)
)

func union(sets ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, set := range sets {
		for _, k := range set {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}

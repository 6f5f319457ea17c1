package assistant

import (
	"fmt"
	"strings"
)

type indicator struct {
	name     string
	keys     []string
	overview string
}

// indicators are checked in order; the first hit leads the answer.
var indicators = []indicator{
	{"RSI (Relative Strength Index)", []string{"rsi", "relative strength"},
		"RSI measures the speed of recent price moves on a 0-100 scale. Readings above 70 are commonly read as overbought, below 30 as oversold. It is usually calculated over 14 periods."},
	{"MACD", []string{"macd"},
		"MACD is the difference between a 12- and a 26-period EMA, plotted with a 9-period signal line. Crossovers of the two lines and the histogram's direction are used to gauge momentum shifts."},
	{"Moving Averages", []string{"moving average", "moving averages", "ema", "sma"},
		"A moving average smooths price over a window (for example 50 or 200 days). Price above a rising average suggests an uptrend; crossovers between a fast and a slow average are classic trend signals."},
	{"Bollinger Bands", []string{"bollinger", "bollinger bands"},
		"Bollinger Bands place bands two standard deviations around a 20-period moving average. Narrowing bands signal low volatility that often precedes a larger move; touches of a band are not signals on their own."},
	{"Fibonacci Retracements", []string{"fibonacci"},
		"Fibonacci retracements mark the 23.6%, 38.2%, 50% and 61.8% levels of a prior move. Traders watch them as potential areas where a pullback may pause."},
	{"Support & Resistance", []string{"support and resistance", "support", "resistance"},
		"Support is a price area where buying has repeatedly stopped declines; resistance is where selling has capped rallies. The more often a level is tested, the more attention it gets."},
	{"Volume", []string{"volume"},
		"Volume shows how many shares or contracts changed hands. Moves on rising volume carry more conviction than moves on thin volume."},
	{"Candlestick Patterns", []string{"candlestick", "candlesticks", "candle", "candles"},
		"Each candlestick shows open, high, low and close for a period. Patterns such as engulfing candles, hammers and dojis describe the balance between buyers and sellers."},
	{"Divergence", []string{"divergence"},
		"Divergence occurs when price and an oscillator disagree: price makes a new high while the indicator makes a lower high (bearish), or the reverse (bullish). It hints that momentum is fading."},
}

var tradingRules = []rule{
	{"strategy", hasAny("strategy", "strategies", "trading strategy", "day trading", "swing trading"), renderStrategy},
	{"indicator", func(t *turn) bool { return len(matchIndicators(t)) > 0 }, renderIndicator},
	{"investment", hasAny("invest", "investing", "investment", "allocation", "asset allocation", "portfolio", "diversification", "dollar cost averaging"), renderInvestment},
	{"risk", hasAny("risk", "risk management", "stop loss", "position sizing", "hedge", "leverage"), renderRisk},
	{"market_data", func(t *turn) bool { _, ok := liveSymbol(t); return ok }, renderMarketData},
	{"education", always, renderEducation},
}

func matchIndicators(t *turn) []indicator {
	var out []indicator
	for _, ind := range indicators {
		if t.text.HasAny(ind.keys...) {
			out = append(out, ind)
		}
	}
	return out
}

func renderStrategy(*turn) reply {
	return reply{
		content: "A trading strategy is a written set of rules for when to enter, when to exit and how much to risk.\n\n" +
			"• **Entry**: the exact condition, for example a close above the 50-day moving average.\n" +
			"• **Exit**: a profit target and a stop loss defined before you enter.\n" +
			"• **Sizing**: risk a small, fixed share of your account per trade.\n\n" +
			"Test the rules on historical charts and on paper before committing real money.",
		disclaimer: true,
	}
}

func renderIndicator(t *turn) reply {
	matched := matchIndicators(t)
	var b strings.Builder
	for i, ind := range matched {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "**%s**: %s", ind.name, ind.overview)
	}
	b.WriteString("\n\nNo indicator works in isolation; confirm signals with price action and volume.")
	return reply{content: b.String()}
}

func renderInvestment(*turn) reply {
	return reply{
		content: "Long-term investing usually starts with allocation: how your money is split between stocks, bonds, cash and other assets.\n\n" +
			"• Diversify across sectors and regions so one holding cannot sink the portfolio.\n" +
			"• Match the mix to your time horizon; money needed soon belongs in steadier assets.\n" +
			"• Dollar cost averaging, buying a fixed amount on a schedule, reduces timing risk.\n" +
			"• Rebalance periodically back to your target weights.",
		disclaimer: true,
	}
}

func renderRisk(*turn) reply {
	return reply{content: "Risk management keeps one bad trade from doing lasting damage.\n\n" +
		"• Decide your stop loss before entering and respect it.\n" +
		"• Size positions so a stopped-out trade costs a small, fixed share of your account (1-2% is common).\n" +
		"• Aim for setups where the potential reward is a multiple of the risk.\n" +
		"• Be careful with leverage: it magnifies losses as much as gains."}
}

func renderMarketData(t *turn) reply {
	sym, _ := liveSymbol(t)
	rec := t.market[sym]

	direction := "flat"
	switch {
	case rec.Change > 0:
		direction = "up"
	case rec.Change < 0:
		direction = "down"
	}

	return reply{
		content: fmt.Sprintf(
			"**%s** is trading at $%.2f, %s %.2f (%.2f%%) from the previous close of $%.2f.\n\n"+
				"Today's range is $%.2f to $%.2f after opening at $%.2f. "+
				"Where price sits within that range hints at intraday momentum; check volume and key levels before drawing conclusions.",
			sym, rec.CurrentPrice, direction, abs(rec.Change), rec.ChangePercent, rec.PreviousClose,
			rec.Low, rec.High, rec.Open),
		disclaimer: true,
	}
}

func renderEducation(*turn) reply {
	return reply{content: "Trading comes down to three questions: what is the trend, where are the key levels, and how much are you willing to risk?\n\n" +
		"• **Technical analysis** studies price, volume and indicators such as RSI or moving averages.\n" +
		"• **Fundamental analysis** looks at earnings, valuation and the business itself.\n" +
		"• **Risk management** decides position size and exits.\n\n" +
		"Tell me which of these you want to dig into."}
}

// liveSymbol returns the first detected symbol that has market data.
func liveSymbol(t *turn) (string, bool) {
	for _, s := range t.symbols {
		if rec, ok := t.market[s]; ok && rec != nil {
			return s, true
		}
	}
	return "", false
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

package assistant

import (
	"strings"

	"TradeDesk/internal/domain/models"
	"TradeDesk/internal/services/intent"
	applogger "TradeDesk/pkg/logger"
)

// ClarifyThreshold is the confidence below which the fixed clarifying response is returned.
const ClarifyThreshold = 0.4

const clarifyContent = "I'm not sure whether you're asking about using the app or about trading. " +
	"I can explain app features such as Chart AI, alerts and your watchlist, or trading concepts such as " +
	"indicators, strategies and risk management. Could you tell me a bit more about what you need?"

const mixedHelpContent = "Happy to help! Are you looking for help with the app itself (features, settings, alerts) " +
	"or with a trading topic (indicators, strategies, risk)? Let me know and I'll point you in the right direction."

// Responder turns a chat request into a canned response. It has no error path.
type Responder struct {
	detector *intent.Detector
	log      *applogger.Logger
}

// NewResponder creates a Responder.
func NewResponder(d *intent.Detector, l *applogger.Logger) *Responder {
	if l == nil {
		l = applogger.Nop()
	}
	if d == nil {
		d = intent.NewDetector(l)
	}
	return &Responder{detector: d, log: l}
}

// Respond classifies req.UserMessage and renders the matching template.
func (r *Responder) Respond(req *models.ChatRequest) *models.ChatResponse {
	t := &turn{
		raw:    req.UserMessage,
		text:   intent.Normalize(req.UserMessage),
		req:    req,
		market: make(map[string]*models.PriceRecord, len(req.MarketData)),
	}
	for k, v := range req.MarketData {
		if v != nil {
			t.market[strings.ToUpper(strings.TrimSpace(k))] = v
		}
	}
	t.analysis = r.detector.Analyze(req.UserMessage)
	t.features = intent.MatchFeatures(t.text)
	t.symbols = detectSymbols(t)

	resp := &models.ChatResponse{
		Mode:               t.analysis.Type,
		Confidence:         t.analysis.Confidence,
		SuggestedFollowUps: followUps(t),
	}

	var name string
	var out reply
	switch {
	case t.analysis.Confidence < ClarifyThreshold:
		name, out = "clarify", reply{content: clarifyContent}
		resp.Mode = models.IntentMixed
	case t.analysis.Type == models.IntentProduct:
		name, out = dispatch(productRules, t)
		resp.RelatedFeatures = t.analysis.ProductFeatures
	case t.analysis.Type == models.IntentTrading:
		name, out = dispatch(tradingRules, t)
	default:
		name, out = r.mixed(t)
	}

	resp.Content = out.content
	resp.RiskDisclaimer = out.disclaimer

	r.log.Debug("assistant responded",
		applogger.String("mode", string(resp.Mode)),
		applogger.String("rule", name),
		applogger.Float64("confidence", resp.Confidence),
	)
	return resp
}

// mixed asks a clarifying question for bare help requests and otherwise answers as trading.
func (r *Responder) mixed(t *turn) (string, reply) {
	if t.text.Has("help") && !t.text.HasAny("strategy", "strategies", "chart", "charts") {
		return "mixed_help", reply{content: mixedHelpContent}
	}
	return dispatch(tradingRules, t)
}

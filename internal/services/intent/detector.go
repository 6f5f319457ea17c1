package intent

import (
	"math"

	"TradeDesk/internal/domain/models"
	applogger "TradeDesk/pkg/logger"
)

// Detector classifies chat messages. It holds no mutable state.
type Detector struct {
	log *applogger.Logger
}

// NewDetector creates a Detector. l may be nil.
func NewDetector(l *applogger.Logger) *Detector {
	if l == nil {
		l = applogger.Nop()
	}
	return &Detector{log: l}
}

// Analyze classifies message. The first matching rule wins:
// high-confidence product or catalog hit, high-confidence trading hit, product/trading
// ratio above 1.5, any signal (mixed), no signal (mixed, 0.3).
func (d *Detector) Analyze(message string) models.IntentAnalysis {
	text := Normalize(message)

	hcProduct := text.Matches(HighConfidenceProduct)
	hcTrading := text.Matches(HighConfidenceTrading)
	product := text.Matches(allProduct)
	trading := text.Matches(allTrading)
	features := MatchFeatures(text)

	featureNames := make([]string, 0, len(features))
	for _, f := range features {
		featureNames = append(featureNames, f.Name)
	}

	a := models.IntentAnalysis{
		Keywords:        union(product, trading),
		ProductFeatures: featureNames,
		TradingTopics:   trading,
	}

	p, t := float64(len(product)), float64(len(trading))
	switch {
	case len(hcProduct)+len(features) > 0:
		a.Type = models.IntentProduct
		a.Confidence = math.Min(0.95, 0.7+0.1*float64(len(hcProduct)+len(features)))
	case len(hcTrading) > 0:
		a.Type = models.IntentTrading
		a.Confidence = math.Min(0.95, 0.7+0.1*float64(len(hcTrading)))
	case p > 1.5*t:
		a.Type = models.IntentProduct
		a.Confidence = math.Min(0.8, 0.5+0.05*p)
	case t > 1.5*p:
		a.Type = models.IntentTrading
		a.Confidence = math.Min(0.8, 0.5+0.05*t)
	case p+t > 0:
		a.Type = models.IntentMixed
		a.Confidence = math.Min(0.6, 0.4+0.03*(p+t))
	default:
		a.Type = models.IntentMixed
		a.Confidence = 0.3
	}
	a.Confidence = round2(a.Confidence)

	d.log.Debug("intent classified",
		applogger.String("type", string(a.Type)),
		applogger.Float64("confidence", a.Confidence),
		applogger.Strings("keywords", a.Keywords),
	)
	return a
}

// MatchFeatures returns catalog features with at least one keyword in text, in catalog order.
func MatchFeatures(text Text) []models.ProductFeature {
	var out []models.ProductFeature
	for _, f := range Features {
		if text.HasAny(f.Keywords...) {
			out = append(out, f)
		}
	}
	return out
}

// round2 removes float noise such as 0.7+0.2 = 0.8999999999999999.
func round2(v float64) float64 { return math.Round(v*100) / 100 }

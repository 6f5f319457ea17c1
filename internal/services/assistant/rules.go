package assistant

import (
	"TradeDesk/internal/domain/models"
	"TradeDesk/internal/services/intent"
)

// turn is everything a rule may look at for one message.
type turn struct {
	raw      string
	text     intent.Text
	req      *models.ChatRequest
	market   map[string]*models.PriceRecord // upper-cased symbol keys
	analysis models.IntentAnalysis
	features []models.ProductFeature
	symbols  []string
}

type reply struct {
	content    string
	disclaimer bool
}

// rule is one (predicate, template) pair. Rules are evaluated in order; the first match renders.
type rule struct {
	name   string
	match  func(*turn) bool
	render func(*turn) reply
}

func always(*turn) bool { return true }

func hasAny(keywords ...string) func(*turn) bool {
	return func(t *turn) bool { return t.text.HasAny(keywords...) }
}

func dispatch(rules []rule, t *turn) (string, reply) {
	for _, r := range rules {
		if r.match(t) {
			return r.name, r.render(t)
		}
	}
	last := rules[len(rules)-1]
	return last.name, last.render(t)
}

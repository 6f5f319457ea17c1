package intent

import (
	"strings"
	"testing"

	"TradeDesk/internal/domain/models"
)

func TestAnalyzeExamples(t *testing.T) {
	d := NewDetector(nil)

	cases := []struct {
		msg  string
		typ  models.IntentType
		conf float64
	}{
		{"What is RSI divergence?", models.IntentTrading, 0.9},
		{"How do I set a price alert?", models.IntentProduct, 0.9},
		{"Can chart ai explain the MACD crossover on my stock?", models.IntentProduct, 0.9},
		{"Should I buy this stock or sell?", models.IntentTrading, 0.65},
		{"Where are the settings for my profile?", models.IntentProduct, 0.6},
		{"hello there", models.IntentMixed, 0.3},
		{"", models.IntentMixed, 0.3},
	}
	for _, c := range cases {
		a := d.Analyze(c.msg)
		if a.Type != c.typ || a.Confidence != c.conf {
			t.Fatalf("%q: expected %s/%.2f, got %s/%.2f (keywords %v)", c.msg, c.typ, c.conf, a.Type, a.Confidence, a.Keywords)
		}
	}
}

func TestAnalyzeMixed(t *testing.T) {
	// one product and one trading keyword: neither dominates
	a := NewDetector(nil).Analyze("help me with the market")
	if a.Type != models.IntentMixed {
		t.Fatalf("expected mixed, got %s", a.Type)
	}
	if a.Confidence != 0.46 {
		t.Fatalf("expected 0.4+0.03*2, got %v", a.Confidence)
	}
}

func TestAnalyzeHighConfidenceProductWinsOverTrading(t *testing.T) {
	a := NewDetector(nil).Analyze("use chart ai with rsi macd bollinger fibonacci strategy")
	if a.Type != models.IntentProduct || a.Confidence < 0.7 {
		t.Fatalf("expected product >= 0.7, got %s/%v", a.Type, a.Confidence)
	}
}

func TestAnalyzeConfidenceCapped(t *testing.T) {
	a := NewDetector(nil).Analyze("rsi macd bollinger fibonacci divergence candlestick stop loss")
	if a.Confidence != 0.95 {
		t.Fatalf("expected cap 0.95, got %v", a.Confidence)
	}
}

func TestAnalyzeDeterministic(t *testing.T) {
	d := NewDetector(nil)
	msg := "Is it a good time to invest in ETFs with my watchlist?"
	first := d.Analyze(msg)
	for i := 0; i < 20; i++ {
		a := d.Analyze(msg)
		if a.Type != first.Type || a.Confidence != first.Confidence {
			t.Fatalf("non-deterministic result %+v vs %+v", a, first)
		}
	}
}

func TestAnalyzeFeaturesAndTopics(t *testing.T) {
	a := NewDetector(nil).Analyze("Add TSLA to my watchlist and notify me with an alert")
	if strings.Join(a.ProductFeatures, ",") != "Alerts & Notifications,Favorites & Watchlist" {
		t.Fatalf("unexpected features %v", a.ProductFeatures)
	}
}

func TestWholeWordMatching(t *testing.T) {
	text := Normalize("What's my PROFIT on this position?")
	if text.Has("pro") {
		t.Fatalf("pro must not match profit")
	}
	if !text.Has("profit") {
		t.Fatalf("expected profit to match")
	}
	if !Normalize("Set a price-alert, please").Has("price alert") {
		t.Fatalf("punctuation should split words")
	}
	if Normalize("anything").Has("") {
		t.Fatalf("empty keyword must never match")
	}
}

func TestCatalogTables(t *testing.T) {
	for _, f := range Features {
		if f.Name == "" || f.Location == "" || len(f.Keywords) == 0 {
			t.Fatalf("incomplete feature %+v", f)
		}
		for _, k := range f.Keywords {
			if Normalize(k).Has("rsi") {
				t.Fatalf("feature %s must not claim indicator keyword %q", f.Name, k)
			}
		}
	}
	if f, ok := FeatureByName("Alerts & Notifications"); !ok || f.Location != "Settings → Notifications" {
		t.Fatalf("unexpected alerts feature %+v", f)
	}
}

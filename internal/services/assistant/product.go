package assistant

import (
	"fmt"
	"strings"

	"TradeDesk/internal/domain/models"
	"TradeDesk/internal/services/intent"
)

var productRules = []rule{
	{"feature_tour", hasAny("feature tour", "app tour", "tour", "what can you do", "what can this app do", "features"), renderTour},
	{"upgrade", hasAny("upgrade", "pro", "pro plan", "premium", "subscription", "pricing", "billing"), renderFeature("Pro Plan")},
	{"watchlist", hasAny("favorite", "favorites", "favourite", "favourites", "watchlist", "watch list"), renderFeature("Favorites & Watchlist")},
	{"alerts", hasAny("alert", "alerts", "notification", "notifications"), renderAlerts},
	{"chart_ai", hasAny("chart ai", "ai chart", "chart analysis", "analyze chart"), renderFeature("Chart AI")},
	{"feature", func(t *turn) bool { return len(t.features) > 0 }, func(t *turn) reply { return featureReply(t.features[0]) }},
	{"help", always, renderProductHelp},
}

func renderTour(*turn) reply {
	var b strings.Builder
	b.WriteString("Here's a quick tour of what you can do:\n\n")
	for _, f := range intent.Features {
		fmt.Fprintf(&b, "• **%s**: %s. Find it under %s.\n", f.Name, f.Description, f.Location)
	}
	b.WriteString("\nAsk me about any of these and I'll walk you through it.")
	return reply{content: b.String()}
}

func renderFeature(name string) func(*turn) reply {
	return func(*turn) reply {
		f, _ := intent.FeatureByName(name)
		return featureReply(f)
	}
}

func featureReply(f models.ProductFeature) reply {
	return reply{content: fmt.Sprintf("**%s**: %s.\n\nYou'll find it under %s.", f.Name, f.Description, f.Location)}
}

func renderAlerts(t *turn) reply {
	f, _ := intent.FeatureByName("Alerts & Notifications")
	target := "an asset"
	if len(t.symbols) > 0 {
		target = t.symbols[0]
	}
	return reply{content: fmt.Sprintf(
		"To set a price alert, use **%s**.\n\n"+
			"1. Open %s and choose the notification channels you want.\n"+
			"2. Open the chart for %s and click the bell icon.\n"+
			"3. Pick a price level and whether to trigger above or below it.\n\n"+
			"%s.",
		f.Name, f.Location, target, f.Description)}
}

func renderProductHelp(*turn) reply {
	names := make([]string, 0, len(intent.Features))
	for _, f := range intent.Features {
		names = append(names, f.Name)
	}
	return reply{content: "I can help you find your way around the app. Popular features include " +
		strings.Join(names, ", ") + ".\n\nWhich one would you like to know more about?"}
}

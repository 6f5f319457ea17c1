package intent

import "TradeDesk/internal/domain/models"

// Features is the product feature catalog.
var Features = []models.ProductFeature{
	{
		Name:        "Chart AI",
		Keywords:    []string{"chart ai", "ai chart", "chart analysis", "analyze chart", "analyze my chart"},
		Description: "AI-generated commentary on the chart you are looking at: trend, key levels and notable patterns",
		Location:    "Charts → Chart AI button in the chart toolbar",
	},
	{
		Name:        "Alerts & Notifications",
		Keywords:    []string{"alert", "alerts", "notification", "notifications", "price alert"},
		Description: "Price alerts that notify you when an asset crosses a level you choose",
		Location:    "Settings → Notifications",
	},
	{
		Name:        "Favorites & Watchlist",
		Keywords:    []string{"favorite", "favorites", "favourite", "favourites", "watchlist", "watch list"},
		Description: "Star assets to keep them in your personal watchlist with live prices",
		Location:    "Asset Browser → star icon on any asset; your list appears on the Dashboard",
	},
	{
		Name:        "News Feed",
		Keywords:    []string{"news feed", "market news", "headlines"},
		Description: "Curated market headlines filtered to the assets you follow",
		Location:    "Sidebar → News",
	},
	{
		Name:        "AI Assistant",
		Keywords:    []string{"ai assistant", "assistant", "chat assistant"},
		Description: "This chat: ask about app features or trading concepts",
		Location:    "Sidebar → AI Assistant",
	},
	{
		Name:        "Asset Browser",
		Keywords:    []string{"asset browser", "browse assets", "search assets", "find a stock", "find assets"},
		Description: "Search and filter stocks, ETFs and crypto, then open any asset's chart",
		Location:    "Sidebar → Assets",
	},
	{
		Name:        "Pro Plan",
		Keywords:    []string{"pro plan", "upgrade", "premium", "subscription", "pricing", "billing"},
		Description: "Unlimited Chart AI analyses, more alerts and real-time data for all assets",
		Location:    "Settings → Billing → Upgrade to Pro",
	},
	{
		Name:        "Dashboard",
		Keywords:    []string{"dashboard", "home screen", "overview page"},
		Description: "Your overview: watchlist, market movers and recent news at a glance",
		Location:    "Sidebar → Dashboard",
	},
}

// FeatureByName returns the catalog entry with the given name.
func FeatureByName(name string) (models.ProductFeature, bool) {
	for _, f := range Features {
		if f.Name == name {
			return f, true
		}
	}
	return models.ProductFeature{}, false
}

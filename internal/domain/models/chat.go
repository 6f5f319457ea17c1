package models

// IntentType is the classified purpose of a chat message.
type IntentType string

const (
	IntentTrading IntentType = "trading"
	IntentProduct IntentType = "product"
	IntentMixed   IntentType = "mixed"
)

// IntentAnalysis is produced fresh per message and never mutated after.
type IntentAnalysis struct {
	Type            IntentType `json:"type"`
	Confidence      float64    `json:"confidence"`
	Keywords        []string   `json:"keywords"`
	ProductFeatures []string   `json:"productFeatures,omitempty"`
	TradingTopics   []string   `json:"tradingTopics,omitempty"`
}

// ProductFeature is a static catalog entry describing an app feature.
type ProductFeature struct {
	Name        string   `json:"name"`
	Keywords    []string `json:"keywords"`
	Description string   `json:"description"`
	Location    string   `json:"location"`
}

// ChatTurn is one prior message in a conversation.
type ChatTurn struct {
	Role    string `json:"role" validate:"oneof=user assistant"`
	Content string `json:"content"`
}

// ChatRequest is the router input.
type ChatRequest struct {
	UserMessage         string                  `json:"userMessage" validate:"required,max=2000"`
	Context             string                  `json:"context,omitempty" validate:"max=500"`
	MarketData          map[string]*PriceRecord `json:"marketData,omitempty"`
	ConversationHistory []ChatTurn              `json:"conversationHistory,omitempty" validate:"max=50,dive"`
}

// ChatResponse is the router output.
type ChatResponse struct {
	Content            string     `json:"content"`
	Mode               IntentType `json:"mode"`
	Confidence         float64    `json:"confidence"`
	SuggestedFollowUps []string   `json:"suggestedFollowUps"`
	RelatedFeatures    []string   `json:"relatedFeatures,omitempty"`
	RiskDisclaimer     bool       `json:"riskDisclaimer,omitempty"`
}

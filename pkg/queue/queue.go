package queue

import (
	"context"
	"time"
)

// Publisher pushes a payload under a topic. It matches the log collector's sink contract.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

// Message is the envelope stored for every published payload.
type Message struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

package rabbitmq

import "time"

// Envelope is the canonical message envelope shared with the other services.
type Envelope[T any] struct {
	Version    int       `json:"version"`
	Producer   string    `json:"producer"`
	TraceID    string    `json:"trace_id,omitempty"`
	MessageID  string    `json:"message_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    T         `json:"payload"`
}

type AbandonedCartPayload struct {
	DeviceID string `json:"device_id"`
	ItemID   string `json:"item_id"`
}

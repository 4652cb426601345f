// Package notify carries rendered checkout notifications from the API to
// the mail relay. The API publishes one envelope per message; the notifier
// worker consumes, dedups and delivers them.
package notify

import (
	"encoding/json"
	"time"
)

const (
	TopicNotifications = "storefront.notifications"

	EventEmailRequested = "EmailRequested"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type EmailRequestedPayload struct {
	Template string   `json:"template"`
	OrderID  string   `json:"order_id"`
	To       []string `json:"to"`
	Subject  string   `json:"subject"`
	Body     string   `json:"body"`
	HTML     string   `json:"html,omitempty"`
}

// PartitionKey keeps every message of one order on one partition.
func PartitionKey(orderID string) []byte { return []byte(orderID) }

package models

import "time"

// Trade event types published to Kafka
const (
	EventOrderSubmitted = "ORDER_SUBMITTED"
	EventCycleCompleted = "CYCLE_COMPLETED"
)

// TradeEvent represents a Kafka event emitted by the orchestrator
type TradeEvent struct {
	EventType string        `json:"event_type"`
	Symbol    string        `json:"symbol"`
	Order     *Order        `json:"order,omitempty"`
	Cycle     *CycleHistory `json:"cycle,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

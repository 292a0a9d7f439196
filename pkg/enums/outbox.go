package enums

import "fmt"

// OutboxStatus maps to the outbox_status enum in Postgres. A row moves
// pending -> published exactly once, or pending -> failed once its retry
// budget is spent. Neither transition ever reverses.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

var validOutboxStatuses = []OutboxStatus{
	OutboxStatusPending,
	OutboxStatusPublished,
	OutboxStatusFailed,
}

// IsValid reports whether the value matches the canonical outbox_status enum.
func (s OutboxStatus) IsValid() bool {
	for _, candidate := range validOutboxStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// EventType maps to the event_type enum in Postgres.
type EventType string

const (
	EventUserRegistered   EventType = "user_registered"
	EventOrderPlaced      EventType = "order_placed"
	EventPaymentSucceeded EventType = "payment_succeeded"
	EventPaymentFailed    EventType = "payment_failed"
)

var validEventTypes = []EventType{
	EventUserRegistered,
	EventOrderPlaced,
	EventPaymentSucceeded,
	EventPaymentFailed,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e EventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseEventType converts raw input into EventType.
func ParseEventType(value string) (EventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// AggregateType maps to the aggregate_type enum in Postgres.
type AggregateType string

const (
	AggregateUser    AggregateType = "user"
	AggregateProduct AggregateType = "product"
	AggregateOrder   AggregateType = "order"
	AggregatePayment AggregateType = "payment"
)

var validAggregateTypes = []AggregateType{
	AggregateUser,
	AggregateProduct,
	AggregateOrder,
	AggregatePayment,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a AggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

package outbox

import (
	"encoding/json"
	"fmt"

	"github.com/openmarketlabs/relay-backend/pkg/config"
	"github.com/openmarketlabs/relay-backend/pkg/db/models"
	"github.com/openmarketlabs/relay-backend/pkg/enums"
)

// TopicDescriptor links an event type to its aggregate and broker topic.
type TopicDescriptor struct {
	EventType     enums.EventType
	AggregateType enums.AggregateType
	Topic         string
}

// ResolvedEvent is the result of decoding an outbox row for publication.
type ResolvedEvent struct {
	Descriptor TopicDescriptor
	Envelope   PayloadEnvelope
}

// TopicRegistry maps each supported event type to its descriptor.
type TopicRegistry struct {
	entries map[enums.EventType]TopicDescriptor
}

// NonRetryableError signals the publisher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

// Error implements error.
func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped error.
func (e NonRetryableError) Unwrap() error {
	return e.Err
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

// NewTopicRegistry builds the registry with the configured topic names.
func NewTopicRegistry(cfg config.PubSubConfig) (*TopicRegistry, error) {
	if cfg.UserRegistrationTopic == "" {
		return nil, fmt.Errorf("user registration topic is required")
	}
	if cfg.OrderPlacedTopic == "" {
		return nil, fmt.Errorf("order placed topic is required")
	}
	if cfg.PaymentSuccessTopic == "" {
		return nil, fmt.Errorf("payment success topic is required")
	}
	if cfg.PaymentFailureTopic == "" {
		return nil, fmt.Errorf("payment failure topic is required")
	}

	reg := &TopicRegistry{entries: make(map[enums.EventType]TopicDescriptor)}
	for _, desc := range []TopicDescriptor{
		{
			EventType:     enums.EventUserRegistered,
			AggregateType: enums.AggregateUser,
			Topic:         cfg.UserRegistrationTopic,
		},
		{
			EventType:     enums.EventOrderPlaced,
			AggregateType: enums.AggregateOrder,
			Topic:         cfg.OrderPlacedTopic,
		},
		{
			EventType:     enums.EventPaymentSucceeded,
			AggregateType: enums.AggregatePayment,
			Topic:         cfg.PaymentSuccessTopic,
		},
		{
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregatePayment,
			Topic:         cfg.PaymentFailureTopic,
		},
	} {
		reg.entries[desc.EventType] = desc
	}
	return reg, nil
}

// Resolve decodes the stored envelope and looks up the target topic. Unknown
// event types and undecodable envelopes are permanent failures.
func (r *TopicRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("no topic registered for event type %q", event.EventType))
	}
	var envelope PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decoding envelope: %w", err))
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope}, nil
}

// TopicFor returns the broker topic an event type publishes to.
func (r *TopicRegistry) TopicFor(eventType enums.EventType) (string, bool) {
	desc, ok := r.entries[eventType]
	if !ok {
		return "", false
	}
	return desc.Topic, true
}

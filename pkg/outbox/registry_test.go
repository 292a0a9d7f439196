package outbox

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openmarketlabs/relay-backend/pkg/config"
	"github.com/openmarketlabs/relay-backend/pkg/db/models"
	"github.com/openmarketlabs/relay-backend/pkg/enums"
)

func testPubSubConfig() config.PubSubConfig {
	return config.PubSubConfig{
		UserRegistrationTopic: "user-registration",
		OrderPlacedTopic:      "order-placed",
		PaymentSuccessTopic:   "payment-success",
		PaymentFailureTopic:   "payment-failure",
	}
}

func TestNewTopicRegistryValidatesTopics(t *testing.T) {
	cfg := testPubSubConfig()
	cfg.PaymentFailureTopic = ""
	_, err := NewTopicRegistry(cfg)
	require.Error(t, err)

	reg, err := NewTopicRegistry(testPubSubConfig())
	require.NoError(t, err)
	require.NotNil(t, reg)
}

func TestResolveMapsEventTypesToTopics(t *testing.T) {
	reg, err := NewTopicRegistry(testPubSubConfig())
	require.NoError(t, err)

	cases := map[enums.EventType]string{
		enums.EventUserRegistered:   "user-registration",
		enums.EventOrderPlaced:      "order-placed",
		enums.EventPaymentSucceeded: "payment-success",
		enums.EventPaymentFailed:    "payment-failure",
	}
	for eventType, topic := range cases {
		resolved, err := reg.Resolve(models.OutboxEvent{
			EventType: eventType,
			Payload:   []byte(`{"version":1,"eventId":"abc","source":"order-service","data":{}}`),
		})
		require.NoError(t, err)
		require.Equal(t, topic, resolved.Descriptor.Topic)
		require.Equal(t, "abc", resolved.Envelope.EventID)
	}
}

func TestResolveUnknownEventTypeIsPermanent(t *testing.T) {
	reg, err := NewTopicRegistry(testPubSubConfig())
	require.NoError(t, err)

	_, err = reg.Resolve(models.OutboxEvent{
		EventType: enums.EventType("order-shipped"),
		Payload:   []byte(`{}`),
	})
	require.Error(t, err)
	var nonRetryable NonRetryableError
	require.True(t, errors.As(err, &nonRetryable))
}

func TestResolveBadEnvelopeIsPermanent(t *testing.T) {
	reg, err := NewTopicRegistry(testPubSubConfig())
	require.NoError(t, err)

	_, err = reg.Resolve(models.OutboxEvent{
		EventType: enums.EventOrderPlaced,
		Payload:   []byte(`not-json`),
	})
	require.Error(t, err)
	var nonRetryable NonRetryableError
	require.True(t, errors.As(err, &nonRetryable))
}

func TestTopicFor(t *testing.T) {
	reg, err := NewTopicRegistry(testPubSubConfig())
	require.NoError(t, err)

	topic, ok := reg.TopicFor(enums.EventOrderPlaced)
	require.True(t, ok)
	require.Equal(t, "order-placed", topic)

	_, ok = reg.TopicFor(enums.EventType("order-shipped"))
	require.False(t, ok)
}

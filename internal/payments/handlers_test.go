package payments

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/openmarketlabs/relay-backend/pkg/dispatch"
	"github.com/openmarketlabs/relay-backend/pkg/enums"
	relayerrors "github.com/openmarketlabs/relay-backend/pkg/errors"
	"github.com/openmarketlabs/relay-backend/pkg/outbox"
	"github.com/openmarketlabs/relay-backend/pkg/outbox/payloads"
)

type fakeRecorder struct {
	events []outbox.DomainEvent
	err    error
}

func (f *fakeRecorder) Record(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) (uuid.UUID, error) {
	if f.err != nil {
		return uuid.Nil, f.err
	}
	f.events = append(f.events, event)
	return uuid.New(), nil
}

func staticGateway(result ChargeResult, err error) Gateway {
	return GatewayFunc(func(ctx context.Context, order payloads.OrderPlacedEvent) (ChargeResult, error) {
		return result, err
	})
}

func orderPlacedDelivery(t *testing.T, order payloads.OrderPlacedEvent) dispatch.Delivery {
	t.Helper()

	data, err := json.Marshal(order)
	require.NoError(t, err)
	return dispatch.Delivery{
		EventID:   uuid.New(),
		Topic:     "order-placed",
		EventType: enums.EventOrderPlaced,
		Envelope: outbox.PayloadEnvelope{
			Version: 1,
			Data:    data,
		},
	}
}

func newHandler(t *testing.T, repo *Repository, recorder eventRecorder, gateway Gateway) dispatch.HandlerFunc {
	t.Helper()

	handler, err := OrderPlacedHandler(HandlerParams{
		Repo:     repo,
		Recorder: recorder,
		Gateway:  gateway,
	})
	require.NoError(t, err)
	return handler
}

func TestOrderPlacedHandlerRecordsSuccess(t *testing.T) {
	conn := setupPaymentsDB(t)
	repo := NewRepository(conn)
	recorder := &fakeRecorder{}
	handler := newHandler(t, repo, recorder, staticGateway(ChargeResult{
		Status:   enums.PaymentStatusSuccess,
		Response: `{"approved":true}`,
	}, nil))

	order := payloads.OrderPlacedEvent{
		OrderID:   uuid.New(),
		UserID:    uuid.New(),
		ProductID: uuid.New(),
		Quantity:  2,
		Total:     decimal.NewFromFloat(39.98),
	}
	require.NoError(t, handler(context.Background(), conn, orderPlacedDelivery(t, order)))

	payment, err := repo.FindByOrderID(context.Background(), order.OrderID)
	require.NoError(t, err)
	require.NotNil(t, payment)
	require.Equal(t, enums.PaymentStatusSuccess, payment.Status)
	require.Equal(t, `{"approved":true}`, payment.GatewayResponse)

	require.Len(t, recorder.events, 1)
	event := recorder.events[0]
	require.Equal(t, enums.EventPaymentSucceeded, event.EventType)
	require.Equal(t, enums.AggregatePayment, event.AggregateType)
	require.Equal(t, payment.ID, event.AggregateID)
	require.Equal(t, "payment-service", event.Source)

	payload, ok := event.Data.(payloads.PaymentStatusEvent)
	require.True(t, ok)
	require.Equal(t, payment.ID, payload.PaymentID)
	require.Equal(t, order.OrderID, payload.OrderID)
	require.True(t, order.Total.Equal(payload.Amount))
}

func TestOrderPlacedHandlerRecordsFailure(t *testing.T) {
	conn := setupPaymentsDB(t)
	repo := NewRepository(conn)
	recorder := &fakeRecorder{}
	handler := newHandler(t, repo, recorder, staticGateway(ChargeResult{
		Status:   enums.PaymentStatusFailed,
		Response: `{"approved":false}`,
		Reason:   "card declined",
	}, nil))

	order := payloads.OrderPlacedEvent{
		OrderID:   uuid.New(),
		UserID:    uuid.New(),
		ProductID: uuid.New(),
		Quantity:  1,
		Total:     decimal.NewFromFloat(10),
	}
	require.NoError(t, handler(context.Background(), conn, orderPlacedDelivery(t, order)))

	payment, err := repo.FindByOrderID(context.Background(), order.OrderID)
	require.NoError(t, err)
	require.NotNil(t, payment)
	require.Equal(t, enums.PaymentStatusFailed, payment.Status)

	require.Len(t, recorder.events, 1)
	require.Equal(t, enums.EventPaymentFailed, recorder.events[0].EventType)
	payload, ok := recorder.events[0].Data.(payloads.PaymentStatusEvent)
	require.True(t, ok)
	require.Equal(t, "card declined", payload.Reason)
}

func TestOrderPlacedHandlerChargesOncePerOrder(t *testing.T) {
	conn := setupPaymentsDB(t)
	repo := NewRepository(conn)
	recorder := &fakeRecorder{}
	handler := newHandler(t, repo, recorder, staticGateway(ChargeResult{
		Status: enums.PaymentStatusSuccess,
	}, nil))

	order := payloads.OrderPlacedEvent{
		OrderID:   uuid.New(),
		UserID:    uuid.New(),
		ProductID: uuid.New(),
		Quantity:  1,
		Total:     decimal.NewFromFloat(10),
	}
	delivery := orderPlacedDelivery(t, order)
	require.NoError(t, handler(context.Background(), conn, delivery))
	// Redelivery charges nothing and announces nothing.
	require.NoError(t, handler(context.Background(), conn, delivery))

	require.Len(t, recorder.events, 1)
}

func TestOrderPlacedHandlerRetriesGatewayOutage(t *testing.T) {
	conn := setupPaymentsDB(t)
	repo := NewRepository(conn)
	recorder := &fakeRecorder{}
	handler := newHandler(t, repo, recorder, staticGateway(ChargeResult{}, errors.New("gateway timeout")))

	order := payloads.OrderPlacedEvent{
		OrderID:   uuid.New(),
		UserID:    uuid.New(),
		ProductID: uuid.New(),
		Quantity:  1,
		Total:     decimal.NewFromFloat(10),
	}
	err := handler(context.Background(), conn, orderPlacedDelivery(t, order))
	require.Error(t, err)
	require.True(t, relayerrors.Retryable(err))

	payment, findErr := repo.FindByOrderID(context.Background(), order.OrderID)
	require.NoError(t, findErr)
	require.Nil(t, payment)
	require.Empty(t, recorder.events)
}

func TestOrderPlacedHandlerRejectsBlankOrderID(t *testing.T) {
	conn := setupPaymentsDB(t)
	handler := newHandler(t, NewRepository(conn), &fakeRecorder{}, ApproveAllGateway())

	delivery := dispatch.Delivery{
		EventID:  uuid.New(),
		Envelope: outbox.PayloadEnvelope{Data: json.RawMessage(`{"quantity":1}`)},
	}
	err := handler(context.Background(), conn, delivery)
	require.Error(t, err)
	require.Equal(t, relayerrors.CodePermanentHandler, relayerrors.CodeOf(err))
	require.False(t, relayerrors.Retryable(err))
}

func TestOrderPlacedHandlerRejectsUnknownGatewayStatus(t *testing.T) {
	conn := setupPaymentsDB(t)
	handler := newHandler(t, NewRepository(conn), &fakeRecorder{}, staticGateway(ChargeResult{
		Status: "maybe",
	}, nil))

	order := payloads.OrderPlacedEvent{
		OrderID:   uuid.New(),
		UserID:    uuid.New(),
		ProductID: uuid.New(),
		Quantity:  1,
		Total:     decimal.NewFromFloat(10),
	}
	err := handler(context.Background(), conn, orderPlacedDelivery(t, order))
	require.Error(t, err)
	require.Equal(t, relayerrors.CodePermanentHandler, relayerrors.CodeOf(err))
}

func TestOrderPlacedHandlerValidatesParams(t *testing.T) {
	conn := setupPaymentsDB(t)
	repo := NewRepository(conn)

	_, err := OrderPlacedHandler(HandlerParams{Recorder: &fakeRecorder{}, Gateway: ApproveAllGateway()})
	require.Error(t, err)
	_, err = OrderPlacedHandler(HandlerParams{Repo: repo, Gateway: ApproveAllGateway()})
	require.Error(t, err)
	_, err = OrderPlacedHandler(HandlerParams{Repo: repo, Recorder: &fakeRecorder{}})
	require.Error(t, err)
}

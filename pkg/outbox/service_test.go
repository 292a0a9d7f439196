package outbox

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/openmarketlabs/relay-backend/pkg/db/models"
	"github.com/openmarketlabs/relay-backend/pkg/enums"
	relayerrors "github.com/openmarketlabs/relay-backend/pkg/errors"
	"github.com/openmarketlabs/relay-backend/pkg/outbox/payloads"
)

func TestRecordQueuesPendingEvent(t *testing.T) {
	conn := setupOutboxDB(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)

	orderID := uuid.New()
	event := DomainEvent{
		EventType:     enums.EventOrderPlaced,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Source:        "order-service",
		Version:       1,
		Data: payloads.OrderPlacedEvent{
			OrderID:   orderID,
			UserID:    uuid.New(),
			ProductID: uuid.New(),
			Quantity:  2,
		},
	}

	tx := conn.Begin()
	require.NoError(t, tx.Error)
	eventID, err := svc.Record(context.Background(), tx, event)
	require.NoError(t, err)
	require.NoError(t, tx.Commit().Error)
	require.NotEqual(t, uuid.Nil, eventID)

	row, err := repo.FindByID(context.Background(), eventID)
	require.NoError(t, err)
	require.NotNil(t, row)
	require.Equal(t, enums.OutboxStatusPending, row.Status)
	require.Equal(t, enums.EventOrderPlaced, row.EventType)
	require.Equal(t, orderID, row.AggregateID)
	require.Zero(t, row.AttemptCount)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &envelope))
	require.Equal(t, eventID.String(), envelope.EventID)
	require.Equal(t, "order-service", envelope.Source)
	require.Equal(t, 1, envelope.Version)
	require.False(t, envelope.OccurredAt.IsZero())

	var data payloads.OrderPlacedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	require.Equal(t, orderID, data.OrderID)
	require.Equal(t, 2, data.Quantity)
}

func TestRecordRollsBackWithCaller(t *testing.T) {
	conn := setupOutboxDB(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)

	tx := conn.Begin()
	require.NoError(t, tx.Error)
	eventID, err := svc.Record(context.Background(), tx, DomainEvent{
		EventType:     enums.EventUserRegistered,
		AggregateType: enums.AggregateUser,
		AggregateID:   uuid.New(),
		Data:          payloads.UserRegisteredEvent{UserID: uuid.New()},
	})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback().Error)

	row, err := repo.FindByID(context.Background(), eventID)
	require.NoError(t, err)
	require.Nil(t, row, "a rolled-back transaction must leave no event behind")
}

func TestRecordRejectsMissingTx(t *testing.T) {
	conn := setupOutboxDB(t)
	svc := NewService(NewRepository(conn), nil)

	_, err := svc.Record(context.Background(), nil, DomainEvent{
		EventType: enums.EventOrderPlaced,
	})
	require.Error(t, err)
	require.Equal(t, relayerrors.CodeTransaction, relayerrors.CodeOf(err))
}

func TestRecordRejectsUnknownEventType(t *testing.T) {
	conn := setupOutboxDB(t)
	svc := NewService(NewRepository(conn), nil)

	tx := conn.Begin()
	require.NoError(t, tx.Error)
	defer tx.Rollback()

	_, err := svc.Record(context.Background(), tx, DomainEvent{
		EventType:     enums.EventType("order-shipped"),
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
	})
	require.Error(t, err)
	require.Equal(t, relayerrors.CodeSerialization, relayerrors.CodeOf(err))
}

func TestRecordRejectsUnencodableData(t *testing.T) {
	conn := setupOutboxDB(t)
	svc := NewService(NewRepository(conn), nil)

	tx := conn.Begin()
	require.NoError(t, tx.Error)
	defer tx.Rollback()

	_, err := svc.Record(context.Background(), tx, DomainEvent{
		EventType:     enums.EventOrderPlaced,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Data:          make(chan int),
	})
	require.Error(t, err)
	require.Equal(t, relayerrors.CodeSerialization, relayerrors.CodeOf(err))
}

func TestRecordIfNotExistsReturnsExisting(t *testing.T) {
	conn := setupOutboxDB(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)

	event := DomainEvent{
		EventType:     enums.EventPaymentSucceeded,
		AggregateType: enums.AggregatePayment,
		AggregateID:   uuid.New(),
		Data:          payloads.PaymentStatusEvent{OrderID: uuid.New()},
		OccurredAt:    time.Now().UTC(),
	}

	tx := conn.Begin()
	require.NoError(t, tx.Error)
	first, err := svc.RecordIfNotExists(context.Background(), tx, event)
	require.NoError(t, err)
	second, err := svc.RecordIfNotExists(context.Background(), tx, event)
	require.NoError(t, err)
	require.NoError(t, tx.Commit().Error)

	require.Equal(t, first, second)

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

package orders

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/openmarketlabs/relay-backend/pkg/db/models"
	"github.com/openmarketlabs/relay-backend/pkg/enums"
	"github.com/openmarketlabs/relay-backend/pkg/outbox"
)

type gormTxRunner struct {
	conn *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.conn.WithContext(ctx).Transaction(fn)
}

type fakeRecorder struct {
	err      error
	recorded []outbox.DomainEvent
}

func (f *fakeRecorder) Record(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) (uuid.UUID, error) {
	if f.err != nil {
		return uuid.Nil, f.err
	}
	f.recorded = append(f.recorded, event)
	return uuid.New(), nil
}

func newOrderService(t *testing.T, conn *gorm.DB, recorder *fakeRecorder) *Service {
	t.Helper()

	svc, err := NewService(ServiceParams{
		DB:       gormTxRunner{conn: conn},
		Repo:     NewRepository(conn),
		Recorder: recorder,
	})
	require.NoError(t, err)
	return svc
}

func TestPlaceOrderRecordsEventWithOrder(t *testing.T) {
	conn := setupOrdersDB(t)
	recorder := &fakeRecorder{}
	svc := newOrderService(t, conn, recorder)

	userID := uuid.New()
	require.NoError(t, NewRepository(conn).UpsertRegisteredUserTx(conn, userID))

	order, err := svc.PlaceOrder(context.Background(), PlaceOrderInput{
		UserID:    userID,
		ProductID: uuid.New(),
		Quantity:  2,
		Total:     decimal.NewFromFloat(42.50),
	})
	require.NoError(t, err)
	require.NotNil(t, order)
	require.Equal(t, enums.OrderStatusPending, order.Status)

	found, err := NewRepository(conn).FindOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.NotNil(t, found)

	require.Len(t, recorder.recorded, 1)
	event := recorder.recorded[0]
	require.Equal(t, enums.EventOrderPlaced, event.EventType)
	require.Equal(t, enums.AggregateOrder, event.AggregateType)
	require.Equal(t, order.ID, event.AggregateID)
	require.Equal(t, "order-service", event.Source)
}

func TestPlaceOrderRejectsUnregisteredUser(t *testing.T) {
	conn := setupOrdersDB(t)
	recorder := &fakeRecorder{}
	svc := newOrderService(t, conn, recorder)

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderInput{
		UserID:    uuid.New(),
		ProductID: uuid.New(),
		Quantity:  1,
		Total:     decimal.NewFromFloat(5),
	})
	require.Error(t, err)
	require.Empty(t, recorder.recorded)

	var count int64
	require.NoError(t, conn.Model(&models.Order{}).Count(&count).Error)
	require.EqualValues(t, 0, count)
}

func TestPlaceOrderRollsBackWhenRecordingFails(t *testing.T) {
	conn := setupOrdersDB(t)
	recorder := &fakeRecorder{err: errors.New("outbox insert failed")}
	svc := newOrderService(t, conn, recorder)

	userID := uuid.New()
	require.NoError(t, NewRepository(conn).UpsertRegisteredUserTx(conn, userID))

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderInput{
		UserID:    userID,
		ProductID: uuid.New(),
		Quantity:  1,
		Total:     decimal.NewFromFloat(10),
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, conn.Model(&models.Order{}).Count(&count).Error)
	require.EqualValues(t, 0, count, "order must not outlive a failed event record")
}

func TestPlaceOrderValidatesInput(t *testing.T) {
	conn := setupOrdersDB(t)
	svc := newOrderService(t, conn, &fakeRecorder{})

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderInput{
		ProductID: uuid.New(),
		Quantity:  1,
	})
	require.Error(t, err)

	_, err = svc.PlaceOrder(context.Background(), PlaceOrderInput{
		UserID:    uuid.New(),
		ProductID: uuid.New(),
		Quantity:  0,
	})
	require.Error(t, err)
}

func TestNewServiceValidation(t *testing.T) {
	conn := setupOrdersDB(t)

	_, err := NewService(ServiceParams{Repo: NewRepository(conn), Recorder: &fakeRecorder{}})
	require.Error(t, err)
	_, err = NewService(ServiceParams{DB: gormTxRunner{conn: conn}, Recorder: &fakeRecorder{}})
	require.Error(t, err)
	_, err = NewService(ServiceParams{DB: gormTxRunner{conn: conn}, Repo: NewRepository(conn)})
	require.Error(t, err)
}

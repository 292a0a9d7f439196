package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openmarketlabs/relay-backend/pkg/db/models"
	"github.com/openmarketlabs/relay-backend/pkg/dispatch"
	"github.com/openmarketlabs/relay-backend/pkg/enums"
	relayerrors "github.com/openmarketlabs/relay-backend/pkg/errors"
	"github.com/openmarketlabs/relay-backend/pkg/logger"
	"github.com/openmarketlabs/relay-backend/pkg/outbox"
	"github.com/openmarketlabs/relay-backend/pkg/outbox/payloads"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

type eventRecorder interface {
	Record(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) (uuid.UUID, error)
}

// HandlerParams wires the order-placed handler.
type HandlerParams struct {
	Repo     *Repository
	Recorder eventRecorder
	Gateway  Gateway
	Source   string
	Logger   *logger.Logger
}

// OrderPlacedHandler charges each placed order and queues the outcome as a
// payment-success or payment-failure event. The payment row and its event
// commit in the dispatcher's transaction, so every charge is announced
// exactly once. A redelivered order lands on the payments table's conflict
// path: no second charge, no second event.
func OrderPlacedHandler(params HandlerParams) (dispatch.HandlerFunc, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Recorder == nil {
		return nil, fmt.Errorf("event recorder required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Source == "" {
		params.Source = "payment-service"
	}
	repo, recorder, gateway, source, logg := params.Repo, params.Recorder, params.Gateway, params.Source, params.Logger

	return func(ctx context.Context, tx *gorm.DB, delivery dispatch.Delivery) error {
		var order payloads.OrderPlacedEvent
		if err := decodePayload(delivery.Envelope.Data, &order); err != nil {
			return err
		}

		result, err := gateway.Charge(ctx, order)
		if err != nil {
			return fmt.Errorf("charging order %s: %w", order.OrderID, err)
		}
		if !result.Status.IsValid() {
			return relayerrors.New(relayerrors.CodePermanentHandler,
				fmt.Sprintf("gateway returned unknown status %q", result.Status))
		}

		payment := &models.Payment{
			ID:              uuid.New(),
			OrderID:         order.OrderID,
			Amount:          order.Total,
			Status:          result.Status,
			GatewayResponse: result.Response,
		}
		created, err := repo.CreatePaymentTx(tx, payment)
		if err != nil {
			return err
		}
		if !created {
			if logg != nil {
				logg.Info(logg.WithField(ctx, "order_id", order.OrderID.String()),
					"order already charged, skipping")
			}
			return nil
		}

		eventType := enums.EventPaymentSucceeded
		if result.Status == enums.PaymentStatusFailed {
			eventType = enums.EventPaymentFailed
		}
		_, err = recorder.Record(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Source:        source,
			Version:       1,
			Data: payloads.PaymentStatusEvent{
				PaymentID: payment.ID,
				OrderID:   order.OrderID,
				Amount:    order.Total,
				Reason:    result.Reason,
			},
		})
		if err != nil {
			return err
		}

		if logg != nil {
			logCtx := logg.WithFields(ctx, map[string]any{
				"order_id":   order.OrderID.String(),
				"payment_id": payment.ID.String(),
				"status":     result.Status,
			})
			logg.Info(logCtx, "payment recorded")
		}
		return nil
	}, nil
}

func decodePayload(data json.RawMessage, dest any) error {
	if err := json.Unmarshal(data, dest); err != nil {
		return relayerrors.Wrap(relayerrors.CodePermanentHandler, err, "decoding payload")
	}
	if err := validate.Struct(dest); err != nil {
		return relayerrors.Wrap(relayerrors.CodePermanentHandler, err, "payload validation failed")
	}
	return nil
}

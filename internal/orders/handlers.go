package orders

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/openmarketlabs/relay-backend/pkg/dispatch"
	"github.com/openmarketlabs/relay-backend/pkg/enums"
	relayerrors "github.com/openmarketlabs/relay-backend/pkg/errors"
	"github.com/openmarketlabs/relay-backend/pkg/logger"
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

// UserRegistrationHandler maintains the registered_users projection from
// user-registration events. A blank user id is a payload defect, never worth
// retrying.
func UserRegistrationHandler(repo *Repository, logg *logger.Logger) dispatch.HandlerFunc {
	return func(ctx context.Context, tx *gorm.DB, delivery dispatch.Delivery) error {
		var payload payloads.UserRegisteredEvent
		if err := decodePayload(delivery.Envelope.Data, &payload); err != nil {
			return err
		}
		if err := repo.UpsertRegisteredUserTx(tx, payload.UserID); err != nil {
			return err
		}
		if logg != nil {
			logCtx := logg.WithField(ctx, "user_id", payload.UserID.String())
			logg.Info(logCtx, "user registered in projection")
		}
		return nil
	}
}

// PaymentOutcomeHandler settles pending orders from payment events; Paid for
// payment-success, Failed for payment-failure. Orders that are missing or
// already settled are left untouched, which makes duplicate and out-of-order
// deliveries harmless.
func PaymentOutcomeHandler(repo *Repository, target enums.OrderStatus, logg *logger.Logger) dispatch.HandlerFunc {
	return func(ctx context.Context, tx *gorm.DB, delivery dispatch.Delivery) error {
		var payload payloads.PaymentStatusEvent
		if err := decodePayload(delivery.Envelope.Data, &payload); err != nil {
			return err
		}
		settled, err := repo.SettleOrderTx(tx, payload.OrderID, target)
		if err != nil {
			return err
		}
		if logg != nil {
			logCtx := logg.WithFields(ctx, map[string]any{
				"order_id": payload.OrderID.String(),
				"status":   target,
				"settled":  settled,
			})
			if settled {
				logg.Info(logCtx, "order settled")
			} else {
				logg.Info(logCtx, "payment event ignored, order not pending")
			}
		}
		return nil
	}
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

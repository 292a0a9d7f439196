package orders

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/openmarketlabs/relay-backend/pkg/db/models"
	"github.com/openmarketlabs/relay-backend/pkg/enums"
	relayerrors "github.com/openmarketlabs/relay-backend/pkg/errors"
	"github.com/openmarketlabs/relay-backend/pkg/logger"
	"github.com/openmarketlabs/relay-backend/pkg/outbox"
	"github.com/openmarketlabs/relay-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventRecorder interface {
	Record(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) (uuid.UUID, error)
}

// PlaceOrderInput is a new purchase request.
type PlaceOrderInput struct {
	UserID    uuid.UUID       `json:"user_id" validate:"required"`
	ProductID uuid.UUID       `json:"product_id" validate:"required"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	Total     decimal.Decimal `json:"total"`
}

// Service places orders. The order row and its order-placed event commit in
// the same transaction, so a placed order is always announced and a rolled
// back placement never is.
type Service struct {
	db       txRunner
	repo     *Repository
	recorder eventRecorder
	source   string
	logg     *logger.Logger
}

// ServiceParams wires the order service.
type ServiceParams struct {
	DB       txRunner
	Repo     *Repository
	Recorder eventRecorder
	Source   string
	Logger   *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Recorder == nil {
		return nil, fmt.Errorf("event recorder required")
	}
	if params.Source == "" {
		params.Source = "order-service"
	}
	return &Service{
		db:       params.DB,
		repo:     params.Repo,
		recorder: params.Recorder,
		source:   params.Source,
		logg:     params.Logger,
	}, nil
}

// PlaceOrder creates a pending order for a registered user and queues the
// order-placed event.
func (s *Service) PlaceOrder(ctx context.Context, input PlaceOrderInput) (*models.Order, error) {
	if err := validate.Struct(input); err != nil {
		return nil, relayerrors.Wrap(relayerrors.CodeSerialization, err, "invalid order input")
	}

	order := &models.Order{
		ID:        uuid.New(),
		UserID:    input.UserID,
		ProductID: input.ProductID,
		Quantity:  input.Quantity,
		Total:     input.Total,
		Status:    enums.OrderStatusPending,
	}

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		registered, err := s.repo.IsRegisteredTx(tx, input.UserID)
		if err != nil {
			return err
		}
		if !registered {
			return fmt.Errorf("user %s is not registered", input.UserID)
		}
		if err := s.repo.CreateOrderTx(tx, order); err != nil {
			return err
		}
		_, err = s.recorder.Record(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPlaced,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Source:        s.source,
			Version:       1,
			Data: payloads.OrderPlacedEvent{
				OrderID:   order.ID,
				UserID:    order.UserID,
				ProductID: order.ProductID,
				Quantity:  order.Quantity,
				Total:     order.Total,
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id": order.ID.String(),
			"user_id":  order.UserID.String(),
		})
		s.logg.Info(logCtx, "order placed")
	}
	return order, nil
}

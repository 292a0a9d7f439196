package payloads

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UserRegisteredEvent announces a completed registration on the
// user-registration topic. Consumers reject blank user IDs outright.
type UserRegisteredEvent struct {
	UserID   uuid.UUID `json:"user_id" validate:"required"`
	Username string    `json:"username,omitempty"`
	Email    string    `json:"email,omitempty"`
}

// OrderPlacedEvent announces a new order on the order-placed topic.
type OrderPlacedEvent struct {
	OrderID   uuid.UUID       `json:"order_id" validate:"required"`
	UserID    uuid.UUID       `json:"user_id" validate:"required"`
	ProductID uuid.UUID       `json:"product_id" validate:"required"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	Total     decimal.Decimal `json:"total"`
}

// PaymentStatusEvent carries both payment-success and payment-failure
// outcomes; the topic distinguishes them.
type PaymentStatusEvent struct {
	PaymentID uuid.UUID       `json:"payment_id,omitempty"`
	OrderID   uuid.UUID       `json:"order_id" validate:"required"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason,omitempty"`
}

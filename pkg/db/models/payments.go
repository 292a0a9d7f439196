package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openmarketlabs/relay-backend/pkg/enums"
)

// Payment records the outcome of charging one order. order_id is unique:
// a redelivered order-placed event lands on the conflict path instead of
// charging twice.
type Payment struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID         uuid.UUID           `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	Amount          decimal.Decimal     `gorm:"column:amount;type:numeric(10,2);not null"`
	Status          enums.PaymentStatus `gorm:"column:status;type:payment_status_enum;not null"`
	GatewayResponse string              `gorm:"column:gateway_response;not null"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
}

// TableName overrides gorm's pluralization.
func (Payment) TableName() string {
	return "payments"
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openmarketlabs/relay-backend/pkg/enums"
)

// RegisteredUser is the order service's read-only projection of users that
// completed registration. Written solely by the user-registration consumer.
type RegisteredUser struct {
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName overrides gorm's pluralization.
func (RegisteredUser) TableName() string {
	return "registered_users"
}

// Order mirrors the order service's orders table as far as the relay's
// payment consumers need it: status transitions plus the columns that
// identify the purchase.
type Order struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID         `gorm:"column:user_id;type:uuid;not null"`
	ProductID uuid.UUID         `gorm:"column:product_id;type:uuid;not null"`
	Quantity  int               `gorm:"column:quantity;not null"`
	Total     decimal.Decimal   `gorm:"column:total;type:numeric(10,2);not null"`
	Status    enums.OrderStatus `gorm:"column:status;type:order_status_enum;not null;default:Pending"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

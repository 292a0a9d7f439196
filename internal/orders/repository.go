package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/openmarketlabs/relay-backend/pkg/db/models"
	"github.com/openmarketlabs/relay-backend/pkg/enums"
)

// Repository covers the order service's tables: the orders themselves and
// the registered_users projection maintained from registration events.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// UpsertRegisteredUserTx records a user in the projection. Re-delivered
// registration events land on the conflict path and change nothing.
func (r *Repository) UpsertRegisteredUserTx(tx *gorm.DB, userID uuid.UUID) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	row := models.RegisteredUser{UserID: userID}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&row).Error
}

// IsRegistered reports whether the projection knows the user.
func (r *Repository) IsRegistered(ctx context.Context, userID uuid.UUID) (bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var count int64
	err := r.db.WithContext(ctx).Model(&models.RegisteredUser{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count > 0, err
}

// IsRegisteredTx is IsRegistered inside an open transaction.
func (r *Repository) IsRegisteredTx(tx *gorm.DB, userID uuid.UUID) (bool, error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	var count int64
	err := tx.Model(&models.RegisteredUser{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count > 0, err
}

// CreateOrderTx inserts a new pending order.
func (r *Repository) CreateOrderTx(tx *gorm.DB, order *models.Order) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(order).Error
}

// FindOrder loads an order by id, nil when absent.
func (r *Repository) FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var order models.Order
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// SettleOrderTx moves a pending order to its payment outcome. Returns false
// when the order is missing or already settled; duplicate and out-of-order
// deliveries end up here as no-ops.
func (r *Repository) SettleOrderTx(tx *gorm.DB, orderID uuid.UUID, target enums.OrderStatus) (bool, error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	if target != enums.OrderStatusPaid && target != enums.OrderStatusFailed {
		return false, errors.New("orders only settle to Paid or Failed")
	}
	res := tx.Model(&models.Order{}).
		Where("id = ?", orderID).
		Where("status = ?", enums.OrderStatusPending).
		Update("status", target)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

package payments

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/openmarketlabs/relay-backend/pkg/db/models"
)

// Repository covers the payment service's payments table.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreatePaymentTx inserts a payment row. Returns false when a payment for
// the order already exists; redelivered order-placed events land here and
// must not charge again.
func (r *Repository) CreatePaymentTx(tx *gorm.DB, payment *models.Payment) (bool, error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		DoNothing: true,
	}).Create(payment)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// FindPayment loads a payment by id, nil when absent.
func (r *Repository) FindPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var payment models.Payment
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

// FindByOrderID loads the payment recorded for an order, nil when the order
// has not been charged yet.
func (r *Repository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var payment models.Payment
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

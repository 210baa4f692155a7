package repository

import (
	"gorm.io/gorm"

	"github.com/coinsub/coinsub/app/models"
)

// paymentRepository implements the PaymentRepository interface
type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new payment repository instance
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

// ListBySubscription returns all payments recorded for a subscription,
// oldest first
func (r *paymentRepository) ListBySubscription(subscriptionID string) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.Where("subscription_id = ?", subscriptionID).Order("created_at ASC").Find(&payments).Error
	return payments, err
}

// Count returns the total number of payment rows
func (r *paymentRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Payment{}).Count(&count).Error
	return count, err
}

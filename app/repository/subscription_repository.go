package repository

import (
	"gorm.io/gorm"

	"github.com/coinsub/coinsub/app/models"
)

// subscriptionRepository implements the SubscriptionRepository interface
type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository instance
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

// GetByID retrieves a subscription by its id
func (r *subscriptionRepository) GetByID(id string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.Where("id = ?", id).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetLatestByEmail retrieves the most recently created subscription for an email
func (r *subscriptionRepository) GetLatestByEmail(email string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("email = ?", email).Order("created_at DESC").First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// List returns subscriptions ordered by creation time, newest first
func (r *subscriptionRepository) List(offset, limit int) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&subs).Error
	return subs, err
}

// CountByStatus counts subscriptions in the given status
func (r *subscriptionRepository) CountByStatus(status string) (int64, error) {
	var count int64
	err := r.db.Model(&models.Subscription{}).Where("status = ?", status).Count(&count).Error
	return count, err
}

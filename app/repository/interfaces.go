package repository

import (
	"github.com/coinsub/coinsub/app/models"
)

// SubscriptionRepository defines the read-side database operations used by
// the subscription endpoints. All writes go through the billing service.
type SubscriptionRepository interface {
	GetByID(id string) (*models.Subscription, error)
	GetLatestByEmail(email string) (*models.Subscription, error)
	List(offset, limit int) ([]models.Subscription, error)
	CountByStatus(status string) (int64, error)
}

// PaymentRepository defines the read-side database operations for payments.
type PaymentRepository interface {
	ListBySubscription(subscriptionID string) ([]models.Payment, error)
	Count() (int64, error)
}

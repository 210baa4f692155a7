package billing

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/coinsub/coinsub/app/models"
)

// Repository provides the DB operations used by the lifecycle manager and
// the callback reconciler.
type Repository interface {
	// Transaction runs fn against a transaction-scoped repository. Payment
	// writes and the subscription transitions they trigger always share one
	// transaction so a crash never leaves them inconsistent.
	Transaction(fn func(Repository) error) error

	CreateSubscription(sub *models.Subscription) error
	GetSubscription(id string) (*models.Subscription, error)
	GetSubscriptionByEmail(email string) (*models.Subscription, error)
	SaveSubscription(sub *models.Subscription) error
	ListRemindable(from, to time.Time) ([]models.Subscription, error)
	ListExpired(now time.Time) ([]models.Subscription, error)

	GetPayment(subscriptionID, txidIn string) (*models.Payment, error)
	// CreatePaymentIfNotExists inserts atomically against the
	// (subscription_id, txid_in) unique index. It returns created=false and
	// the stored row when the key already exists, closing the race between
	// lookup and insert under concurrent callback delivery.
	CreatePaymentIfNotExists(p *models.Payment) (bool, *models.Payment, error)
	SavePayment(p *models.Payment) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Transaction(fn func(Repository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

func (r *gormRepository) CreateSubscription(sub *models.Subscription) error {
	return r.db.Create(sub).Error
}

func (r *gormRepository) GetSubscription(id string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.Where("id = ?", id).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) GetSubscriptionByEmail(email string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("email = ?", email).Order("created_at DESC").First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) SaveSubscription(sub *models.Subscription) error {
	return r.db.Save(sub).Error
}

func (r *gormRepository) ListRemindable(from, to time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.
		Where("status = ? AND expires_at >= ? AND expires_at <= ? AND reminder_sent_at IS NULL",
			models.SubscriptionStatusActive, from, to).
		Find(&subs).Error
	return subs, err
}

func (r *gormRepository) ListExpired(now time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.
		Where("status = ? AND expires_at < ?", models.SubscriptionStatusActive, now).
		Find(&subs).Error
	return subs, err
}

func (r *gormRepository) GetPayment(subscriptionID, txidIn string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.Where("subscription_id = ? AND txid_in = ?", subscriptionID, txidIn).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) CreatePaymentIfNotExists(p *models.Payment) (bool, *models.Payment, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "subscription_id"},
			{Name: "txid_in"},
		},
		DoNothing: true,
	}).Create(p)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.Payment
	if err := r.db.Where("subscription_id = ? AND txid_in = ?", p.SubscriptionID, p.TxidIn).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) SavePayment(p *models.Payment) error {
	return r.db.Save(p).Error
}

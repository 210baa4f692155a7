package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	SubscriptionPlanMonthly = "monthly"
	SubscriptionPlanYearly  = "yearly"
)

const (
	BillingIntervalMonth = "month"
	BillingIntervalYear  = "year"
)

const (
	SubscriptionStatusPending        = "pending"
	SubscriptionStatusPendingPayment = "pending_payment"
	SubscriptionStatusActive         = "active"
	SubscriptionStatusExpired        = "expired"
	SubscriptionStatusCanceled       = "canceled"
)

// Subscription is a crypto-paid subscription bound to a one-time receiving
// address. Rate, crypto amount and address are frozen at creation and never
// recomputed for an existing subscription.
type Subscription struct {
	ID              string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	Email           string          `gorm:"type:varchar(200);not null;index" json:"email"`
	Plan            string          `gorm:"type:varchar(16);not null" json:"plan"`
	FiatAmount      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"fiat_amount"`
	FiatCurrency    string          `gorm:"type:varchar(8);not null;default:'USD'" json:"fiat_currency"`
	Coin            string          `gorm:"type:varchar(10);not null" json:"coin"`
	CryptoAmount    decimal.Decimal `gorm:"type:decimal(30,18);not null" json:"crypto_amount"`
	ConversionRate  decimal.Decimal `gorm:"type:decimal(30,10);not null" json:"conversion_rate"`
	BillingInterval string          `gorm:"type:varchar(8);not null;default:'month'" json:"billing_interval"`
	Status          string          `gorm:"type:varchar(20);not null;default:'pending';index:idx_subscriptions_status_expires,priority:1" json:"status"`
	Address         string          `gorm:"type:varchar(128);not null;default:'';index" json:"address"`
	StartAt         time.Time       `gorm:"type:timestamp;not null" json:"start_at"`
	ExpiresAt       time.Time       `gorm:"type:timestamp;not null;index:idx_subscriptions_status_expires,priority:2" json:"expires_at"`
	LastPaymentAt   *time.Time      `gorm:"type:timestamp;default:null" json:"last_payment_at,omitempty"`
	ReminderSentAt  *time.Time      `gorm:"type:timestamp;default:null" json:"reminder_sent_at,omitempty"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminal reports whether the subscription reached a terminal state.
// Terminal subscriptions are reactivated by a confirmed payment, never deleted.
func (s *Subscription) IsTerminal() bool {
	return s.Status == SubscriptionStatusExpired || s.Status == SubscriptionStatusCanceled
}

// PlanInterval maps a plan to its billing interval.
func PlanInterval(plan string) string {
	if plan == SubscriptionPlanYearly {
		return BillingIntervalYear
	}
	return BillingIntervalMonth
}

// AddInterval advances t by one billing interval.
func AddInterval(t time.Time, interval string) time.Time {
	if interval == BillingIntervalYear {
		return t.AddDate(1, 0, 0)
	}
	return t.AddDate(0, 1, 0)
}

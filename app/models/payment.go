package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
)

const (
	VerificationSourceOracle   = "oracle"
	VerificationSourceFallback = "fallback"
)

// Payment records a single on-chain transfer towards a subscription. The
// unique (subscription_id, txid_in) index is the dedup key that collapses
// duplicated and out-of-order callback delivery into one logical payment.
type Payment struct {
	ID                 uint            `gorm:"primaryKey" json:"id"`
	SubscriptionID     string          `gorm:"type:varchar(36);not null;index:ux_payments_subscription_txid,unique,priority:1" json:"subscription_id"`
	TxidIn             string          `gorm:"type:varchar(128);not null;index:ux_payments_subscription_txid,unique,priority:2" json:"txid_in"`
	TxidOut            string          `gorm:"type:varchar(128);not null;default:''" json:"txid_out"`
	Coin               string          `gorm:"type:varchar(10);not null" json:"coin"`
	ClaimedAmount      decimal.Decimal `gorm:"type:decimal(30,18);not null" json:"claimed_amount"`
	VerifiedAmount     decimal.Decimal `gorm:"type:decimal(30,18);not null" json:"verified_amount"`
	ForwardedAmount    decimal.Decimal `gorm:"type:decimal(30,18);not null;default:0" json:"forwarded_amount"`
	Fee                decimal.Decimal `gorm:"type:decimal(30,18);not null;default:0" json:"fee"`
	Confirmations      int             `gorm:"not null;default:0" json:"confirmations"`
	Status             string          `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	VerificationSource string          `gorm:"type:varchar(16);not null;default:'oracle'" json:"verification_source"`
	AmountMismatch     bool            `gorm:"default:false" json:"amount_mismatch"`
	RawPayloadJSON     string          `gorm:"type:longtext" json:"raw_payload_json"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	PaymentTypeSubscription   = "subscription"
	PaymentTypeCreditPurchase = "credit_purchase"
	PaymentTypeRefund         = "refund"
)

const (
	PaymentStatusPending    = "pending"
	PaymentStatusProcessing = "processing"
	PaymentStatusSucceeded  = "succeeded"
	PaymentStatusFailed     = "failed"
	PaymentStatusCancelled  = "cancelled"
	PaymentStatusRefunded   = "refunded"
)

// Payment tracks one gateway charge from intent creation to settlement.
// Exactly one Payment exists per external intent id; status moves only
// forward (pending -> processing -> succeeded/failed, succeeded -> refunded).
type Payment struct {
	ID               uint   `gorm:"primaryKey" json:"id"`
	PublicID         string `gorm:"type:varchar(36);uniqueIndex" json:"public_id"`
	ClientID         uint   `gorm:"not null;index" json:"client_id"`
	BrandID          uint   `gorm:"not null;index" json:"brand_id"`
	Type             string `gorm:"type:varchar(20);not null" json:"type"`
	Status           string `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	AmountMinor      int64  `gorm:"not null" json:"amount_minor"`
	Currency         string `gorm:"type:varchar(3);not null" json:"currency"`
	ExternalIntentID string `gorm:"type:varchar(191);not null;uniqueIndex" json:"external_intent_id"`

	// Provisional entitlement created together with the payment.
	SubscriptionID *uint `gorm:"index" json:"subscription_id,omitempty"`
	BalanceID      *uint `gorm:"index" json:"balance_id,omitempty"`
	PlanID         uint  `gorm:"not null;index" json:"plan_id"`

	FailureReason string     `gorm:"type:text" json:"failure_reason,omitempty"`
	ProcessedAt   *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	MetadataJSON  string     `gorm:"type:text" json:"metadata_json,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.PublicID == "" {
		p.PublicID = uuid.NewString()
	}
	return nil
}

// IsTerminal reports whether the payment reached a state that must not be
// advanced again, except for the single succeeded -> refunded edge.
func (p *Payment) IsTerminal() bool {
	switch p.Status {
	case PaymentStatusSucceeded, PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusRefunded:
		return true
	default:
		return false
	}
}

// IsSettled reports whether the payment already settled successfully, i.e.
// a second finalize attempt must be a no-op.
func (p *Payment) IsSettled() bool {
	return p.Status == PaymentStatusSucceeded || p.Status == PaymentStatusRefunded
}

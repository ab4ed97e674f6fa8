package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	SubscriptionStatusPending   = "pending"
	SubscriptionStatusActive    = "active"
	SubscriptionStatusCancelled = "cancelled"
	SubscriptionStatusExpired   = "expired"
)

// Subscription grants frequency-capped class bookings for one (client, brand)
// pair. A row is created in pending state per purchase attempt and either
// promoted to active when its payment settles or torn down, never resurrected.
type Subscription struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	PublicID string `gorm:"type:varchar(36);uniqueIndex" json:"public_id"`
	ClientID uint   `gorm:"not null;index:idx_subscriptions_client_brand,priority:1" json:"client_id"`
	BrandID  uint   `gorm:"not null;index:idx_subscriptions_client_brand,priority:2" json:"brand_id"`
	PlanID   uint   `gorm:"not null;index" json:"plan_id"`
	Status   string `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`

	StartDate          time.Time `json:"start_date"`
	EndDate            time.Time `json:"end_date"`
	CurrentPeriodStart time.Time `json:"current_period_start"`
	CurrentPeriodEnd   time.Time `json:"current_period_end"`

	FrequencyUsed      int       `gorm:"default:0" json:"frequency_used"`
	FrequencyResetDate time.Time `json:"frequency_reset_date"`

	AutoRenew          bool       `gorm:"default:true" json:"auto_renew"`
	CancelledAt        *time.Time `gorm:"type:timestamp;default:null" json:"cancelled_at,omitempty"`
	CancellationReason string     `gorm:"type:varchar(255)" json:"cancellation_reason,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Plan Plan `gorm:"foreignKey:PlanID" json:"-"`
}

func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.PublicID == "" {
		s.PublicID = uuid.NewString()
	}
	return nil
}

package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	BrandStatusActive    = "active"
	BrandStatusSuspended = "suspended"
)

// Brand is a merchant tenant offering classes. Payments for a brand settle
// into its connected gateway account.
type Brand struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	PublicID         string         `gorm:"type:varchar(36);uniqueIndex" json:"public_id"`
	Name             string         `gorm:"type:varchar(150)" json:"name" validate:"required,min=2,max=150"`
	Status           string         `gorm:"type:varchar(50);default:'active'" json:"status" validate:"oneof=active suspended"`
	GatewayAccountID string         `gorm:"type:varchar(191);index" json:"gateway_account_id"`
	DefaultCurrency  string         `gorm:"type:varchar(3);default:'EUR'" json:"default_currency" validate:"len=3"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

func (b *Brand) Validate() error {
	v := validator.New()

	return v.Struct(b)
}

func (b *Brand) BeforeCreate(tx *gorm.DB) error {
	if b.PublicID == "" {
		b.PublicID = uuid.NewString()
	}
	return nil
}

func (b *Brand) IsActive() bool {
	return b.Status == BrandStatusActive
}

package models

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	PlanTypeSubscription = "subscription"
	PlanTypeCredit       = "credit"
)

const (
	FrequencyPeriodWeek  = "week"
	FrequencyPeriodMonth = "month"
)

// Plan is a purchasable offering of a single brand: either a recurring
// subscription (frequency-capped per billing period) or a prepaid credit
// package blueprint (expiring batch of credits).
type Plan struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	PublicID   string `gorm:"type:varchar(36);uniqueIndex" json:"public_id"`
	BrandID    uint   `gorm:"not null;index" json:"brand_id"`
	Code       string `gorm:"type:varchar(100);uniqueIndex" json:"code" validate:"required,min=2,max=100"`
	Name       string `gorm:"type:varchar(150)" json:"name" validate:"required,max=150"`
	Type       string `gorm:"type:varchar(20);not null;index" json:"type" validate:"oneof=subscription credit"`
	PriceMinor int64  `gorm:"not null" json:"price_minor" validate:"gt=0"`
	Currency   string `gorm:"type:varchar(3);not null" json:"currency" validate:"len=3"`
	IsActive   bool   `gorm:"default:true;index" json:"is_active"`

	// Subscription plans only.
	DurationDays      int    `gorm:"default:0" json:"duration_days"`
	FrequencyCount    int    `gorm:"default:0" json:"frequency_count"` // 0 = unlimited
	FrequencyPeriod   string `gorm:"type:varchar(10);default:'month'" json:"frequency_period" validate:"omitempty,oneof=week month"`
	FrequencyResetDay int    `gorm:"default:1" json:"frequency_reset_day"`

	// Credit plans only.
	CreditAmount int `gorm:"default:0" json:"credit_amount"`
	BonusCredits int `gorm:"default:0" json:"bonus_credits"`
	ValidityDays int `gorm:"default:0" json:"validity_days"`

	// JSON array of class public ids; empty means the plan covers all classes.
	IncludedClassesJSON string `gorm:"type:text" json:"included_classes_json"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Brand Brand `gorm:"foreignKey:BrandID" json:"-"`
}

func (p *Plan) Validate() error {
	v := validator.New()

	return v.Struct(p)
}

func (p *Plan) BeforeCreate(tx *gorm.DB) error {
	if p.PublicID == "" {
		p.PublicID = uuid.NewString()
	}
	return nil
}

// IncludedClasses decodes the stored class restriction list. An empty or
// unparseable list means no restriction.
func (p *Plan) IncludedClasses() []string {
	if p.IncludedClassesJSON == "" {
		return nil
	}
	var classes []string
	if err := json.Unmarshal([]byte(p.IncludedClassesJSON), &classes); err != nil {
		return nil
	}
	return classes
}

// IncludesClass reports whether the plan covers the given class. Plans with
// an empty inclusion list cover all classes.
func (p *Plan) IncludesClass(classID string) bool {
	return ClassListIncludes(p.IncludedClassesJSON, classID)
}

// TotalCredits is the credit amount minted per purchase of a credit plan.
func (p *Plan) TotalCredits() int {
	return p.CreditAmount + p.BonusCredits
}

// ClassListIncludes checks a JSON-encoded class restriction list against a
// class id. Empty lists cover all classes.
func ClassListIncludes(classesJSON, classID string) bool {
	if classesJSON == "" {
		return true
	}
	var classes []string
	if err := json.Unmarshal([]byte(classesJSON), &classes); err != nil {
		return true
	}
	if len(classes) == 0 {
		return true
	}
	for _, c := range classes {
		if c == classID {
			return true
		}
	}
	return false
}

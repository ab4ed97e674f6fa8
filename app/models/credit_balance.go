package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/google/uuid"
)

const (
	CreditPackageStatusActive   = "active"
	CreditPackageStatusConsumed = "consumed"
	CreditPackageStatusExpired  = "expired"
)

const (
	CreditTxnTypePurchase = "purchase"
	CreditTxnTypeUsage    = "usage"
	CreditTxnTypeRefund   = "refund"
	CreditTxnTypeExpiry   = "expiry"
)

// CreditBalance is the prepaid ledger of one (client, brand) pair. It is
// created lazily on first purchase and never deleted; packages accumulate
// and age out via status recomputation, never physically removed.
//
// Invariant: AvailableCredits equals the sum of CreditsRemaining over
// packages whose status is active. All mutations go through the credit
// ledger, never through direct field writes.
type CreditBalance struct {
	ID       uint `gorm:"primaryKey" json:"id"`
	ClientID uint `gorm:"not null;index:ux_credit_balances_client_brand,unique,priority:1" json:"client_id"`
	BrandID  uint `gorm:"not null;index:ux_credit_balances_client_brand,unique,priority:2" json:"brand_id"`

	AvailableCredits   int `gorm:"default:0" json:"available_credits"`
	TotalCreditsEarned int `gorm:"default:0" json:"total_credits_earned"`
	TotalCreditsUsed   int `gorm:"default:0" json:"total_credits_used"`

	Packages     []CreditPackage     `gorm:"foreignKey:BalanceID" json:"packages"`
	Transactions []CreditTransaction `gorm:"foreignKey:BalanceID" json:"transactions"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// CreditPackage is one purchased batch of credits with its own expiry.
// Status is a pure function of (CreditsRemaining, ExpiryDate, now):
// consumed when empty, else expired when past expiry, else active.
type CreditPackage struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	PublicID  string `gorm:"type:varchar(36);uniqueIndex" json:"public_id"`
	BalanceID uint   `gorm:"not null;index" json:"balance_id"`
	PlanID    uint   `gorm:"not null;index" json:"plan_id"`

	PurchaseDate     time.Time `gorm:"not null;index" json:"purchase_date"`
	ExpiryDate       time.Time `gorm:"not null" json:"expiry_date"`
	OriginalCredits  int       `gorm:"not null" json:"original_credits"`
	CreditsRemaining int       `gorm:"not null" json:"credits_remaining"`
	Status           string    `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	PaymentIntentID  string    `gorm:"type:varchar(191);index" json:"payment_intent_id,omitempty"`

	// Class restriction snapshot taken from the plan at mint time.
	IncludedClassesJSON string `gorm:"type:text" json:"included_classes_json"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *CreditPackage) BeforeCreate(tx *gorm.DB) error {
	if p.PublicID == "" {
		p.PublicID = uuid.NewString()
	}
	return nil
}

// IncludesClass reports whether the package may fund a booking for classID.
func (p *CreditPackage) IncludesClass(classID string) bool {
	return ClassListIncludes(p.IncludedClassesJSON, classID)
}

// CreditTransaction is one append-only ledger entry. Rows are immutable
// once written.
type CreditTransaction struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	BalanceID uint   `gorm:"not null;index" json:"balance_id"`
	PackageID *uint  `gorm:"index" json:"package_id,omitempty"`
	Type      string `gorm:"type:varchar(20);not null;index" json:"type"`
	// Positive for purchase/refund, negative for usage/expiry.
	Amount    int       `gorm:"not null" json:"amount"`
	Timestamp time.Time `gorm:"not null;index" json:"timestamp"`
	BookingID string    `gorm:"type:varchar(191);index" json:"booking_id,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

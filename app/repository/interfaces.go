package repository

import (
	"time"

	"github.com/ClasslyHQ/Classly/app/models"
)

// PaymentRepository defines the database operations for payment records.
// GuardedUpdate is the compare-and-swap primitive the lifecycle manager and
// webhook reconciler use to race safely for the terminal transition.
type PaymentRepository interface {
	Create(payment *models.Payment) error
	GetByID(id uint) (*models.Payment, error)
	GetByPublicID(publicID string) (*models.Payment, error)
	GetByIntentID(intentID string) (*models.Payment, error)
	// GuardedUpdate applies updates only while the payment's status is one
	// of fromStatuses. It reports whether the write won; on false the
	// payment was already advanced by a concurrent caller.
	GuardedUpdate(id uint, fromStatuses []string, updates map[string]interface{}) (bool, error)
}

// SubscriptionRepository defines the database operations for subscriptions.
type SubscriptionRepository interface {
	Create(sub *models.Subscription) error
	GetByID(id uint) (*models.Subscription, error)
	GetByPublicID(publicID string) (*models.Subscription, error)
	// FindActiveOrPending returns the blocking subscription for the
	// duplicate-subscription rule, or nil when none exists.
	FindActiveOrPending(clientID, brandID uint) (*models.Subscription, error)
	Update(sub *models.Subscription) error
	// GuardedUpdate mirrors PaymentRepository.GuardedUpdate for the
	// pending -> active / pending -> cancelled promotion race.
	GuardedUpdate(id uint, fromStatuses []string, updates map[string]interface{}) (bool, error)
}

// CreditBalanceRepository defines the database operations for the prepaid
// ledger aggregate. Loads always include packages and transactions so the
// ledger operates on the full aggregate in memory.
type CreditBalanceRepository interface {
	GetOrCreate(clientID, brandID uint) (*models.CreditBalance, error)
	GetByClientBrand(clientID, brandID uint) (*models.CreditBalance, error)
	GetByID(id uint) (*models.CreditBalance, error)
	// Persist writes the aggregate back: balance totals, touched packages
	// and newly appended transactions, in one database transaction.
	Persist(balance *models.CreditBalance) error
	// ListWithExpiringPackages returns balance ids that still carry credits
	// in packages past their expiry, for the background sweeper.
	ListWithExpiringPackages(now time.Time, limit int) ([]uint, error)
}

// PlanRepository defines read access to purchasable plans.
type PlanRepository interface {
	GetByID(id uint) (*models.Plan, error)
	GetByPublicID(publicID string) (*models.Plan, error)
}

// ClientRepository defines read access to clients.
type ClientRepository interface {
	GetByID(id uint) (*models.Client, error)
	GetByPublicID(publicID string) (*models.Client, error)
}

// BrandRepository defines read access to brands.
type BrandRepository interface {
	GetByID(id uint) (*models.Brand, error)
	GetByPublicID(publicID string) (*models.Brand, error)
}

// WebhookEventRepository journals gateway events for idempotent processing.
type WebhookEventRepository interface {
	// CreateIfNotExists inserts the event unless its (provider, event id)
	// pair was seen before. It reports whether the row is new and returns
	// the stored row either way.
	CreateIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkProcessed(id uint, processingError string) error
}

// Repositories bundles all repository implementations.
type Repositories struct {
	Payment       PaymentRepository
	Subscription  SubscriptionRepository
	CreditBalance CreditBalanceRepository
	Plan          PlanRepository
	Client        ClientRepository
	Brand         BrandRepository
	WebhookEvent  WebhookEventRepository
}

package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Factory manages repository instances and ensures they are singletons
type Factory struct {
	db    *gorm.DB
	repos *Repositories
	once  sync.Once
}

// NewFactory creates a new repository factory
func NewFactory(db *gorm.DB) *Factory {
	return &Factory{
		db: db,
	}
}

// GetRepositories returns a singleton instance of all repositories
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db)
	})
	return f.repos
}

// NewRepositories creates all GORM-backed repository implementations.
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Payment:       NewPaymentRepository(db),
		Subscription:  NewSubscriptionRepository(db),
		CreditBalance: NewCreditBalanceRepository(db),
		Plan:          NewPlanRepository(db),
		Client:        NewClientRepository(db),
		Brand:         NewBrandRepository(db),
		WebhookEvent:  NewWebhookEventRepository(db),
	}
}

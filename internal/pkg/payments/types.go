package payments

import (
	"context"
	"fmt"
	"sync"

	"github.com/ClasslyHQ/Classly/app/models"
)

// PurchaseResult is returned by both purchase paths: the pending payment,
// the gateway client secret the client completes the charge with, and the
// provisional entitlement.
type PurchaseResult struct {
	Payment      *models.Payment      `json:"payment"`
	ClientSecret string               `json:"client_secret"`
	Subscription *models.Subscription `json:"subscription,omitempty"`
}

// ConfirmResult reports the outcome of a confirm call. Succeeded is false
// when the gateway still requires action from the client; the payment stays
// in processing in that case.
type ConfirmResult struct {
	Payment   *models.Payment `json:"payment"`
	Succeeded bool            `json:"succeeded"`
}

// EligibilitySource names which entitlement would fund a booking.
type EligibilitySource string

const (
	EligibilityNone         EligibilitySource = "none"
	EligibilitySubscription EligibilitySource = "subscription"
	EligibilityCredits      EligibilitySource = "credits"
)

// Eligibility is the combined booking-eligibility answer for one
// (client, brand, class) triple.
type Eligibility struct {
	Eligible           bool              `json:"eligible"`
	Source             EligibilitySource `json:"source"`
	RemainingFrequency int               `json:"remaining_frequency,omitempty"`
	AvailableCredits   int               `json:"available_credits"`
	Reason             string            `json:"reason,omitempty"`
}

// BalanceLocker serializes ledger mutations per (client, brand) balance.
// Cross-balance operations proceed in parallel.
type BalanceLocker interface {
	WithLock(ctx context.Context, key string, fn func() error) error
}

// localLocker is an in-process BalanceLocker keyed by balance. It backs
// single-instance deployments and tests; multi-instance deployments use
// the redis-based locker from the cache package.
type localLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLocalLocker creates an in-process balance locker.
func NewLocalLocker() BalanceLocker {
	return &localLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *localLocker) WithLock(ctx context.Context, key string, fn func() error) error {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn()
}

// BalanceLockKey is the lock scope for one credit balance.
func BalanceLockKey(clientID, brandID uint) string {
	return fmt.Sprintf("balance:%d:%d", clientID, brandID)
}

package entitlements

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ClasslyHQ/Classly/app/models"
)

var (
	// ErrCrossBrandPlan is returned when a plan from one brand is applied to
	// a balance owned by another brand.
	ErrCrossBrandPlan = errors.New("plan does not belong to the balance's brand")

	// ErrInsufficientCredits is returned when the eligible packages cannot
	// cover a requested deduction. Nothing is committed in that case.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrInvalidAmount is returned for non-positive ledger amounts.
	ErrInvalidAmount = errors.New("amount must be a positive integer")
)

// PackageStatus computes a package's status as a pure function of its
// remaining credits and expiry. Consumed wins over expired.
func PackageStatus(p *models.CreditPackage, now time.Time) string {
	if p.CreditsRemaining <= 0 {
		return models.CreditPackageStatusConsumed
	}
	if now.After(p.ExpiryDate) {
		return models.CreditPackageStatusExpired
	}
	return models.CreditPackageStatusActive
}

// RecomputePackageStatuses refreshes the stored status of every package
// against now. Expired packages keep their CreditsRemaining until
// CleanupExpired zeroes them out.
func RecomputePackageStatuses(b *models.CreditBalance, now time.Time) {
	for i := range b.Packages {
		b.Packages[i].Status = PackageStatus(&b.Packages[i], now)
	}
}

// AddPackage mints a credit package from a credit plan onto the balance,
// appends the purchase transaction and adjusts the running totals. The plan
// must belong to the same brand as the balance.
func AddPackage(b *models.CreditBalance, plan *models.Plan, paymentIntentID string, now time.Time) (*models.CreditPackage, error) {
	if plan.BrandID != b.BrandID {
		return nil, fmt.Errorf("plan %s: %w", plan.Code, ErrCrossBrandPlan)
	}
	credits := plan.TotalCredits()
	if credits <= 0 {
		return nil, fmt.Errorf("plan %s mints no credits: %w", plan.Code, ErrInvalidAmount)
	}

	pkg := models.CreditPackage{
		BalanceID:           b.ID,
		PlanID:              plan.ID,
		PurchaseDate:        now,
		ExpiryDate:          now.AddDate(0, 0, plan.ValidityDays),
		OriginalCredits:     credits,
		CreditsRemaining:    credits,
		Status:              models.CreditPackageStatusActive,
		PaymentIntentID:     paymentIntentID,
		IncludedClassesJSON: plan.IncludedClassesJSON,
	}
	b.Packages = append(b.Packages, pkg)

	b.Transactions = append(b.Transactions, models.CreditTransaction{
		BalanceID: b.ID,
		Type:      models.CreditTxnTypePurchase,
		Amount:    credits,
		Timestamp: now,
	})
	b.AvailableCredits += credits
	b.TotalCreditsEarned += credits

	return &b.Packages[len(b.Packages)-1], nil
}

// Deduct consumes amount credits FIFO across active, non-expired packages
// ordered by purchase date, oldest first. It is all-or-nothing: if the
// eligible packages cannot cover the amount, no package is touched. One
// usage transaction is emitted per package drawn from.
func Deduct(b *models.CreditBalance, amount int, bookingID string, now time.Time) ([]models.CreditTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	RecomputePackageStatuses(b, now)

	eligible := activePackagesOldestFirst(b)
	total := 0
	for _, p := range eligible {
		total += p.CreditsRemaining
	}
	if total < amount {
		return nil, fmt.Errorf("requested %d, available %d: %w", amount, total, ErrInsufficientCredits)
	}

	var emitted []models.CreditTransaction
	left := amount
	for _, p := range eligible {
		if left == 0 {
			break
		}
		take := p.CreditsRemaining
		if take > left {
			take = left
		}
		p.CreditsRemaining -= take
		p.Status = PackageStatus(p, now)
		left -= take

		txn := models.CreditTransaction{
			BalanceID: b.ID,
			PackageID: packageRef(p),
			Type:      models.CreditTxnTypeUsage,
			Amount:    -take,
			Timestamp: now,
			BookingID: bookingID,
		}
		b.Transactions = append(b.Transactions, txn)
		emitted = append(emitted, txn)
	}

	b.AvailableCredits -= amount
	b.TotalCreditsUsed += amount

	return emitted, nil
}

// Refund restores amount credits, targeting the newest non-expired package
// first. A package never holds more than its OriginalCredits. When every
// package is expired, the leftover is restored into the newest package
// regardless of expiry; such credits do not re-enter AvailableCredits since
// the receiving package stays expired.
func Refund(b *models.CreditBalance, amount int, bookingID string, now time.Time) (*models.CreditTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	RecomputePackageStatuses(b, now)

	left := amount
	restoredActive := 0
	for _, p := range nonExpiredPackagesNewestFirst(b, now) {
		if left == 0 {
			break
		}
		room := p.OriginalCredits - p.CreditsRemaining
		if room <= 0 {
			continue
		}
		give := room
		if give > left {
			give = left
		}
		p.CreditsRemaining += give
		p.Status = PackageStatus(p, now)
		left -= give
		restoredActive += give
	}

	// Drift tolerance: park any leftover in the newest package even if it
	// is expired rather than failing the refund.
	if left > 0 {
		if p := newestPackage(b); p != nil {
			room := p.OriginalCredits - p.CreditsRemaining
			give := room
			if give > left {
				give = left
			}
			if give > 0 {
				p.CreditsRemaining += give
				p.Status = PackageStatus(p, now)
				if p.Status == models.CreditPackageStatusActive {
					restoredActive += give
				}
				left -= give
			}
		}
	}

	txn := models.CreditTransaction{
		BalanceID: b.ID,
		Type:      models.CreditTxnTypeRefund,
		Amount:    amount - left,
		Timestamp: now,
		BookingID: bookingID,
	}
	b.Transactions = append(b.Transactions, txn)
	b.AvailableCredits += restoredActive
	b.TotalCreditsUsed -= amount - left

	return &b.Transactions[len(b.Transactions)-1], nil
}

// CleanupExpired zeroes out every expired package that still carries
// credits, emitting one expiry transaction per package. Running it twice
// produces no further transactions.
func CleanupExpired(b *models.CreditBalance, now time.Time) []models.CreditTransaction {
	RecomputePackageStatuses(b, now)

	var emitted []models.CreditTransaction
	for i := range b.Packages {
		p := &b.Packages[i]
		if p.Status != models.CreditPackageStatusExpired || p.CreditsRemaining <= 0 {
			continue
		}
		forfeited := p.CreditsRemaining
		p.CreditsRemaining = 0
		p.Status = models.CreditPackageStatusExpired

		txn := models.CreditTransaction{
			BalanceID: b.ID,
			PackageID: packageRef(p),
			Type:      models.CreditTxnTypeExpiry,
			Amount:    -forfeited,
			Timestamp: now,
		}
		b.Transactions = append(b.Transactions, txn)
		emitted = append(emitted, txn)
		b.AvailableCredits -= forfeited
	}

	return emitted
}

// AvailableCreditsForClass sums remaining credits over active packages
// whose originating plan covers classID.
func AvailableCreditsForClass(b *models.CreditBalance, classID string, now time.Time) int {
	RecomputePackageStatuses(b, now)

	total := 0
	for i := range b.Packages {
		p := &b.Packages[i]
		if p.Status != models.CreditPackageStatusActive {
			continue
		}
		if !p.IncludesClass(classID) {
			continue
		}
		total += p.CreditsRemaining
	}
	return total
}

// HasExpiredCredits reports whether a cleanup run would forfeit anything.
func HasExpiredCredits(b *models.CreditBalance, now time.Time) bool {
	for i := range b.Packages {
		p := &b.Packages[i]
		if p.CreditsRemaining > 0 && now.After(p.ExpiryDate) {
			return true
		}
	}
	return false
}

func activePackagesOldestFirst(b *models.CreditBalance) []*models.CreditPackage {
	var pkgs []*models.CreditPackage
	for i := range b.Packages {
		if b.Packages[i].Status == models.CreditPackageStatusActive {
			pkgs = append(pkgs, &b.Packages[i])
		}
	}
	sort.SliceStable(pkgs, func(i, j int) bool {
		return pkgs[i].PurchaseDate.Before(pkgs[j].PurchaseDate)
	})
	return pkgs
}

func nonExpiredPackagesNewestFirst(b *models.CreditBalance, now time.Time) []*models.CreditPackage {
	var pkgs []*models.CreditPackage
	for i := range b.Packages {
		if !now.After(b.Packages[i].ExpiryDate) {
			pkgs = append(pkgs, &b.Packages[i])
		}
	}
	sort.SliceStable(pkgs, func(i, j int) bool {
		return pkgs[i].PurchaseDate.After(pkgs[j].PurchaseDate)
	})
	return pkgs
}

func newestPackage(b *models.CreditBalance) *models.CreditPackage {
	var newest *models.CreditPackage
	for i := range b.Packages {
		p := &b.Packages[i]
		if newest == nil || p.PurchaseDate.After(newest.PurchaseDate) {
			newest = p
		}
	}
	return newest
}

func packageRef(p *models.CreditPackage) *uint {
	if p.ID == 0 {
		return nil
	}
	id := p.ID
	return &id
}

package entitlements

import (
	"errors"
	"testing"
	"time"

	"github.com/ClasslyHQ/Classly/app/models"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestBalance() *models.CreditBalance {
	return &models.CreditBalance{ID: 1, ClientID: 1, BrandID: 1}
}

func addTestPackage(b *models.CreditBalance, id uint, credits int, purchased, expiry time.Time) *models.CreditPackage {
	b.Packages = append(b.Packages, models.CreditPackage{
		ID:               id,
		BalanceID:        b.ID,
		PurchaseDate:     purchased,
		ExpiryDate:       expiry,
		OriginalCredits:  credits,
		CreditsRemaining: credits,
		Status:           models.CreditPackageStatusActive,
	})
	b.AvailableCredits += credits
	b.TotalCreditsEarned += credits
	return &b.Packages[len(b.Packages)-1]
}

// checkInvariant verifies AvailableCredits == sum of CreditsRemaining over
// active packages.
func checkInvariant(t *testing.T, b *models.CreditBalance) {
	t.Helper()
	sum := 0
	for i := range b.Packages {
		if b.Packages[i].Status == models.CreditPackageStatusActive {
			sum += b.Packages[i].CreditsRemaining
		}
	}
	if b.AvailableCredits != sum {
		t.Fatalf("available credits %d, active packages hold %d", b.AvailableCredits, sum)
	}
}

func TestPackageStatus(t *testing.T) {
	future := testNow.AddDate(0, 0, 30)
	past := testNow.AddDate(0, 0, -1)

	tests := []struct {
		name      string
		remaining int
		expiry    time.Time
		want      string
	}{
		{name: "active", remaining: 5, expiry: future, want: models.CreditPackageStatusActive},
		{name: "consumed", remaining: 0, expiry: future, want: models.CreditPackageStatusConsumed},
		{name: "expired", remaining: 5, expiry: past, want: models.CreditPackageStatusExpired},
		{name: "consumed beats expired", remaining: 0, expiry: past, want: models.CreditPackageStatusConsumed},
		{name: "expiry boundary is inclusive", remaining: 5, expiry: testNow, want: models.CreditPackageStatusActive},
	}

	for _, tt := range tests {
		p := &models.CreditPackage{CreditsRemaining: tt.remaining, ExpiryDate: tt.expiry}
		if got := PackageStatus(p, testNow); got != tt.want {
			t.Fatalf("%s: status = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestAddPackage(t *testing.T) {
	b := newTestBalance()
	plan := &models.Plan{ID: 7, BrandID: 1, Code: "credits-10", CreditAmount: 10, BonusCredits: 2, ValidityDays: 90}

	pkg, err := AddPackage(b, plan, "pi_123", testNow)
	if err != nil {
		t.Fatalf("AddPackage: %v", err)
	}
	if pkg.OriginalCredits != 12 || pkg.CreditsRemaining != 12 {
		t.Fatalf("minted %d/%d credits, want 12/12", pkg.CreditsRemaining, pkg.OriginalCredits)
	}
	if want := testNow.AddDate(0, 0, 90); !pkg.ExpiryDate.Equal(want) {
		t.Fatalf("expiry %v, want %v", pkg.ExpiryDate, want)
	}
	if b.AvailableCredits != 12 || b.TotalCreditsEarned != 12 {
		t.Fatalf("balance totals %d/%d, want 12/12", b.AvailableCredits, b.TotalCreditsEarned)
	}
	if len(b.Transactions) != 1 || b.Transactions[0].Type != models.CreditTxnTypePurchase || b.Transactions[0].Amount != 12 {
		t.Fatalf("expected one purchase transaction of 12, got %+v", b.Transactions)
	}
	checkInvariant(t, b)
}

func TestAddPackageCrossBrand(t *testing.T) {
	b := newTestBalance()
	plan := &models.Plan{ID: 7, BrandID: 2, Code: "other-brand", CreditAmount: 10}

	if _, err := AddPackage(b, plan, "", testNow); !errors.Is(err, ErrCrossBrandPlan) {
		t.Fatalf("expected ErrCrossBrandPlan, got %v", err)
	}
	if len(b.Packages) != 0 || b.AvailableCredits != 0 {
		t.Fatalf("cross-brand purchase must not touch the balance")
	}
}

func TestDeductFIFO(t *testing.T) {
	b := newTestBalance()
	expiry := testNow.AddDate(0, 0, 30)
	addTestPackage(b, 1, 10, testNow.AddDate(0, 0, -10), expiry)
	addTestPackage(b, 2, 5, testNow.AddDate(0, 0, -5), expiry)

	txns, err := Deduct(b, 12, "booking-1", testNow)
	if err != nil {
		t.Fatalf("Deduct: %v", err)
	}

	if b.Packages[0].CreditsRemaining != 0 {
		t.Fatalf("oldest package holds %d, want 0", b.Packages[0].CreditsRemaining)
	}
	if b.Packages[0].Status != models.CreditPackageStatusConsumed {
		t.Fatalf("oldest package status %q, want consumed", b.Packages[0].Status)
	}
	if b.Packages[1].CreditsRemaining != 3 {
		t.Fatalf("newest package holds %d, want 3", b.Packages[1].CreditsRemaining)
	}

	if len(txns) != 2 {
		t.Fatalf("expected 2 usage transactions, got %d", len(txns))
	}
	if txns[0].Amount != -10 || txns[1].Amount != -2 {
		t.Fatalf("usage amounts %d/%d, want -10/-2", txns[0].Amount, txns[1].Amount)
	}
	for _, txn := range txns {
		if txn.Type != models.CreditTxnTypeUsage || txn.BookingID != "booking-1" {
			t.Fatalf("malformed usage transaction %+v", txn)
		}
	}

	if b.AvailableCredits != 3 || b.TotalCreditsUsed != 12 {
		t.Fatalf("balance totals available=%d used=%d, want 3/12", b.AvailableCredits, b.TotalCreditsUsed)
	}
	checkInvariant(t, b)
}

func TestDeductAllOrNothing(t *testing.T) {
	b := newTestBalance()
	expiry := testNow.AddDate(0, 0, 30)
	addTestPackage(b, 1, 10, testNow.AddDate(0, 0, -10), expiry)
	addTestPackage(b, 2, 5, testNow.AddDate(0, 0, -5), expiry)

	_, err := Deduct(b, 20, "booking-2", testNow)
	if !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}

	if b.Packages[0].CreditsRemaining != 10 || b.Packages[1].CreditsRemaining != 5 {
		t.Fatalf("failed deduction must not consume anything")
	}
	if len(b.Transactions) != 0 {
		t.Fatalf("failed deduction must not emit transactions")
	}
	checkInvariant(t, b)
}

func TestDeductSkipsExpiredPackages(t *testing.T) {
	b := newTestBalance()
	addTestPackage(b, 1, 10, testNow.AddDate(0, 0, -60), testNow.AddDate(0, 0, -1))
	addTestPackage(b, 2, 5, testNow.AddDate(0, 0, -5), testNow.AddDate(0, 0, 30))
	// recompute drops the expired package out of AvailableCredits bookkeeping
	b.AvailableCredits = 5

	if _, err := Deduct(b, 6, "booking-3", testNow); !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("expired credits must not fund a deduction, got %v", err)
	}

	txns, err := Deduct(b, 5, "booking-3", testNow)
	if err != nil {
		t.Fatalf("Deduct: %v", err)
	}
	if len(txns) != 1 || txns[0].PackageID == nil || *txns[0].PackageID != 2 {
		t.Fatalf("deduction must draw from the active package only, got %+v", txns)
	}
	if b.Packages[0].CreditsRemaining != 10 {
		t.Fatalf("expired package was touched")
	}
	checkInvariant(t, b)
}

func TestDeductInvalidAmount(t *testing.T) {
	b := newTestBalance()
	for _, amount := range []int{0, -3} {
		if _, err := Deduct(b, amount, "", testNow); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("Deduct(%d): expected ErrInvalidAmount, got %v", amount, err)
		}
	}
}

func TestRefundRestoresCredits(t *testing.T) {
	b := newTestBalance()
	addTestPackage(b, 1, 10, testNow.AddDate(0, 0, -10), testNow.AddDate(0, 0, 30))

	if _, err := Deduct(b, 5, "booking-4", testNow); err != nil {
		t.Fatalf("Deduct: %v", err)
	}
	txn, err := Refund(b, 3, "booking-4", testNow)
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}

	if b.Packages[0].CreditsRemaining != 8 {
		t.Fatalf("package holds %d after refund, want 8", b.Packages[0].CreditsRemaining)
	}
	if txn.Type != models.CreditTxnTypeRefund || txn.Amount != 3 {
		t.Fatalf("refund transaction %+v, want +3", txn)
	}
	if b.AvailableCredits != 8 || b.TotalCreditsUsed != 2 {
		t.Fatalf("balance totals available=%d used=%d, want 8/2", b.AvailableCredits, b.TotalCreditsUsed)
	}
	checkInvariant(t, b)
}

func TestRefundTargetsNewestFirst(t *testing.T) {
	b := newTestBalance()
	expiry := testNow.AddDate(0, 0, 30)
	addTestPackage(b, 1, 10, testNow.AddDate(0, 0, -10), expiry)
	addTestPackage(b, 2, 10, testNow.AddDate(0, 0, -5), expiry)
	older, newer := &b.Packages[0], &b.Packages[1]
	older.CreditsRemaining = 4
	newer.CreditsRemaining = 7
	b.AvailableCredits = 11
	b.TotalCreditsUsed = 9

	if _, err := Refund(b, 4, "booking-5", testNow); err != nil {
		t.Fatalf("Refund: %v", err)
	}

	if newer.CreditsRemaining != 10 {
		t.Fatalf("newest package holds %d, want it filled to 10 first", newer.CreditsRemaining)
	}
	if older.CreditsRemaining != 5 {
		t.Fatalf("older package holds %d, want 5", older.CreditsRemaining)
	}
	checkInvariant(t, b)
}

func TestRefundNeverOverfillsPackage(t *testing.T) {
	b := newTestBalance()
	addTestPackage(b, 1, 10, testNow.AddDate(0, 0, -10), testNow.AddDate(0, 0, 30))

	txn, err := Refund(b, 5, "booking-6", testNow)
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if b.Packages[0].CreditsRemaining != 10 {
		t.Fatalf("package overfilled to %d", b.Packages[0].CreditsRemaining)
	}
	if txn.Amount != 0 {
		t.Fatalf("refund with no capacity recorded %d, want 0", txn.Amount)
	}
	checkInvariant(t, b)
}

func TestRefundIntoExpiredPackageStaysOutOfAvailable(t *testing.T) {
	b := newTestBalance()
	p := addTestPackage(b, 1, 10, testNow.AddDate(0, 0, -60), testNow.AddDate(0, 0, -1))
	p.CreditsRemaining = 2
	p.Status = models.CreditPackageStatusExpired
	b.AvailableCredits = 0
	b.TotalCreditsUsed = 8

	txn, err := Refund(b, 3, "booking-7", testNow)
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}

	if p.CreditsRemaining != 5 {
		t.Fatalf("expired package holds %d, want 5", p.CreditsRemaining)
	}
	if p.Status != models.CreditPackageStatusExpired {
		t.Fatalf("refund must not resurrect an expired package")
	}
	if b.AvailableCredits != 0 {
		t.Fatalf("credits parked in an expired package must not be available, got %d", b.AvailableCredits)
	}
	if txn.Amount != 3 || b.TotalCreditsUsed != 5 {
		t.Fatalf("refund recorded %d, used total %d, want 3/5", txn.Amount, b.TotalCreditsUsed)
	}
	checkInvariant(t, b)
}

func TestCleanupExpiredIsIdempotent(t *testing.T) {
	b := newTestBalance()
	addTestPackage(b, 1, 10, testNow.AddDate(0, 0, -60), testNow.AddDate(0, 0, -1))
	addTestPackage(b, 2, 5, testNow.AddDate(0, 0, -5), testNow.AddDate(0, 0, 30))
	b.AvailableCredits = 15

	first := CleanupExpired(b, testNow)
	if len(first) != 1 {
		t.Fatalf("expected one expiry transaction, got %d", len(first))
	}
	if first[0].Type != models.CreditTxnTypeExpiry || first[0].Amount != -10 {
		t.Fatalf("expiry transaction %+v, want -10", first[0])
	}
	if b.Packages[0].CreditsRemaining != 0 {
		t.Fatalf("expired package still holds %d", b.Packages[0].CreditsRemaining)
	}
	if b.AvailableCredits != 5 {
		t.Fatalf("available %d after cleanup, want 5", b.AvailableCredits)
	}

	second := CleanupExpired(b, testNow)
	if len(second) != 0 {
		t.Fatalf("second cleanup emitted %d transactions, want 0", len(second))
	}
	checkInvariant(t, b)
}

func TestAvailableCreditsForClass(t *testing.T) {
	b := newTestBalance()
	expiry := testNow.AddDate(0, 0, 30)
	addTestPackage(b, 1, 4, testNow.AddDate(0, 0, -10), expiry)
	addTestPackage(b, 2, 6, testNow.AddDate(0, 0, -5), expiry)
	b.Packages[1].IncludedClassesJSON = `["yoga","pilates"]`

	if got := AvailableCreditsForClass(b, "yoga", testNow); got != 10 {
		t.Fatalf("yoga credits = %d, want 10", got)
	}
	if got := AvailableCreditsForClass(b, "boxing", testNow); got != 4 {
		t.Fatalf("boxing credits = %d, want 4 (unrestricted package only)", got)
	}
}

func TestHasExpiredCredits(t *testing.T) {
	b := newTestBalance()
	if HasExpiredCredits(b, testNow) {
		t.Fatalf("empty balance reports expired credits")
	}
	addTestPackage(b, 1, 10, testNow.AddDate(0, 0, -60), testNow.AddDate(0, 0, -1))
	if !HasExpiredCredits(b, testNow) {
		t.Fatalf("balance with stale expired package must report expired credits")
	}
	CleanupExpired(b, testNow)
	if HasExpiredCredits(b, testNow) {
		t.Fatalf("cleanup left expired credits behind")
	}
}

// Purchase, spend across expiry, refund, cleanup. The available/active
// package invariant must hold after every step.
func TestLedgerLifecycle(t *testing.T) {
	b := newTestBalance()
	plan := &models.Plan{ID: 1, BrandID: 1, Code: "credits-10", CreditAmount: 10, BonusCredits: 2, ValidityDays: 90}

	if _, err := AddPackage(b, plan, "pi_1", testNow); err != nil {
		t.Fatalf("AddPackage: %v", err)
	}
	checkInvariant(t, b)

	if _, err := Deduct(b, 5, "b1", testNow.AddDate(0, 0, 1)); err != nil {
		t.Fatalf("Deduct: %v", err)
	}
	checkInvariant(t, b)

	if _, err := Refund(b, 2, "b1", testNow.AddDate(0, 0, 2)); err != nil {
		t.Fatalf("Refund: %v", err)
	}
	checkInvariant(t, b)
	if b.AvailableCredits != 9 {
		t.Fatalf("available = %d, want 9", b.AvailableCredits)
	}

	// past the 90 day validity everything left is forfeited
	later := testNow.AddDate(0, 0, 91)
	txns := CleanupExpired(b, later)
	if len(txns) != 1 || txns[0].Amount != -9 {
		t.Fatalf("expected a single -9 expiry transaction, got %+v", txns)
	}
	checkInvariant(t, b)
	if b.AvailableCredits != 0 {
		t.Fatalf("available = %d after expiry, want 0", b.AvailableCredits)
	}
}

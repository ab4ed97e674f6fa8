package entitlements

import (
	"testing"
	"time"

	"github.com/ClasslyHQ/Classly/app/models"
)

func activeSubscription(now time.Time) *models.Subscription {
	return &models.Subscription{
		Status:             models.SubscriptionStatusActive,
		StartDate:          now.AddDate(0, 0, -10),
		EndDate:            now.AddDate(0, 0, 20),
		CurrentPeriodStart: now.AddDate(0, 0, -3),
		CurrentPeriodEnd:   now.AddDate(0, 0, 4),
		FrequencyResetDate: now.AddDate(0, 0, 4),
	}
}

func TestIsActive(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	s := activeSubscription(now)
	if !IsActive(s, now) {
		t.Fatalf("subscription inside its window must be active")
	}

	s.Status = models.SubscriptionStatusPending
	if IsActive(s, now) {
		t.Fatalf("pending subscription must not be active")
	}

	s = activeSubscription(now)
	if IsActive(s, s.EndDate.AddDate(0, 0, 1)) {
		t.Fatalf("subscription past its end date must not be active")
	}
	if !IsActive(s, s.EndDate) {
		t.Fatalf("end date itself is inside the window")
	}
}

func TestRemainingFrequency(t *testing.T) {
	tests := []struct {
		name  string
		count int
		used  int
		want  int
	}{
		{name: "unlimited", count: 0, used: 100, want: UnlimitedFrequency},
		{name: "untouched", count: 8, used: 0, want: 8},
		{name: "partially used", count: 8, used: 5, want: 3},
		{name: "exhausted", count: 8, used: 8, want: 0},
		{name: "over-used clamps to zero", count: 8, used: 11, want: 0},
	}

	for _, tt := range tests {
		s := &models.Subscription{FrequencyUsed: tt.used}
		plan := &models.Plan{FrequencyCount: tt.count}
		if got := RemainingFrequency(s, plan); got != tt.want {
			t.Fatalf("%s: remaining = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestCanBookClassRespectsRestriction(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	s := activeSubscription(now)
	plan := &models.Plan{FrequencyCount: 8, IncludedClassesJSON: `["yoga"]`}

	if !CanBookClass(s, plan, "yoga", now) {
		t.Fatalf("included class must be bookable")
	}
	if CanBookClass(s, plan, "boxing", now) {
		t.Fatalf("excluded class must not be bookable")
	}

	plan.IncludedClassesJSON = ""
	if !CanBookClass(s, plan, "boxing", now) {
		t.Fatalf("empty restriction list covers all classes")
	}
}

func TestNextResetDateWeekly(t *testing.T) {
	// Wednesday 2025-06-18; resetDay 1 = Monday
	now := time.Date(2025, 6, 18, 15, 30, 0, 0, time.UTC)

	got := NextResetDate(models.FrequencyPeriodWeek, 1, now)
	want := time.Date(2025, 6, 23, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("next Monday from Wednesday = %v, want %v", got, want)
	}

	// the reset day itself rolls a full week forward
	monday := time.Date(2025, 6, 23, 8, 0, 0, 0, time.UTC)
	got = NextResetDate(models.FrequencyPeriodWeek, 1, monday)
	want = time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("next Monday from Monday = %v, want %v", got, want)
	}
}

func TestNextResetDateMonthly(t *testing.T) {
	tests := []struct {
		name     string
		now      time.Time
		resetDay int
		want     time.Time
	}{
		{
			name:     "later in same month",
			now:      time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC),
			resetDay: 15,
			want:     time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "already passed rolls to next month",
			now:      time.Date(2025, 6, 20, 12, 0, 0, 0, time.UTC),
			resetDay: 15,
			want:     time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "day 31 clamps to short month",
			now:      time.Date(2025, 6, 5, 12, 0, 0, 0, time.UTC),
			resetDay: 31,
			want:     time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "day 31 clamps to february",
			now:      time.Date(2025, 2, 10, 12, 0, 0, 0, time.UTC),
			resetDay: 31,
			want:     time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		got := NextResetDate(models.FrequencyPeriodMonth, tt.resetDay, tt.now)
		if !got.Equal(tt.want) {
			t.Fatalf("%s: reset date = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestIncrementFrequencyUsage(t *testing.T) {
	s := &models.Subscription{FrequencyUsed: 8}
	plan := &models.Plan{FrequencyCount: 8}

	// No upper clamp: usage keeps counting past the cap, the read side
	// clamps remaining to zero.
	for i := 0; i < 3; i++ {
		IncrementFrequencyUsage(s)
	}
	if s.FrequencyUsed != 11 {
		t.Fatalf("used = %d, want 11", s.FrequencyUsed)
	}
	if got := RemainingFrequency(s, plan); got != 0 {
		t.Fatalf("remaining = %d, want 0", got)
	}
}

func TestRolloverIfDue(t *testing.T) {
	now := time.Date(2025, 6, 16, 9, 0, 0, 0, time.UTC)
	plan := &models.Plan{FrequencyCount: 8, FrequencyPeriod: models.FrequencyPeriodWeek, FrequencyResetDay: 1}

	s := activeSubscription(now)
	s.FrequencyUsed = 8
	s.FrequencyResetDate = time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)

	if !RolloverIfDue(s, plan, now) {
		t.Fatalf("reset date reached, rollover must fire")
	}
	if s.FrequencyUsed != 0 {
		t.Fatalf("rollover left usage at %d", s.FrequencyUsed)
	}
	if want := time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC); !s.CurrentPeriodStart.Equal(want) {
		t.Fatalf("period start = %v, want the old reset date %v", s.CurrentPeriodStart, want)
	}
	if want := time.Date(2025, 6, 23, 0, 0, 0, 0, time.UTC); !s.FrequencyResetDate.Equal(want) {
		t.Fatalf("next reset = %v, want %v", s.FrequencyResetDate, want)
	}
	if !s.CurrentPeriodEnd.Equal(s.FrequencyResetDate) {
		t.Fatalf("period end %v must track the next reset %v", s.CurrentPeriodEnd, s.FrequencyResetDate)
	}

	if RolloverIfDue(s, plan, now) {
		t.Fatalf("rollover must not fire twice before the next reset date")
	}
}

func TestRolloverIfDueClampsPeriodEndToEndDate(t *testing.T) {
	now := time.Date(2025, 6, 16, 9, 0, 0, 0, time.UTC)
	plan := &models.Plan{FrequencyCount: 8, FrequencyPeriod: models.FrequencyPeriodWeek, FrequencyResetDay: 1}

	// The subscription expires before the next weekly reset (Mon 6/23),
	// so the final period ends with the subscription itself.
	s := activeSubscription(now)
	s.EndDate = time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC)
	s.FrequencyResetDate = time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)

	if !RolloverIfDue(s, plan, now) {
		t.Fatalf("reset date reached, rollover must fire")
	}
	if !s.CurrentPeriodEnd.Equal(s.EndDate) {
		t.Fatalf("period end = %v, want the end date %v", s.CurrentPeriodEnd, s.EndDate)
	}
}

func TestActivationWindow(t *testing.T) {
	now := time.Date(2025, 6, 18, 15, 0, 0, 0, time.UTC)
	plan := &models.Plan{DurationDays: 30, FrequencyCount: 8, FrequencyPeriod: models.FrequencyPeriodWeek, FrequencyResetDay: 1}

	s := &models.Subscription{Status: models.SubscriptionStatusPending, FrequencyUsed: 3}
	ActivationWindow(s, plan, now)

	if !s.StartDate.Equal(now) {
		t.Fatalf("start date = %v, want %v", s.StartDate, now)
	}
	if want := now.AddDate(0, 0, 30); !s.EndDate.Equal(want) {
		t.Fatalf("end date = %v, want %v", s.EndDate, want)
	}
	if s.FrequencyUsed != 0 {
		t.Fatalf("activation must zero the period usage")
	}
	if want := time.Date(2025, 6, 23, 0, 0, 0, 0, time.UTC); !s.FrequencyResetDate.Equal(want) {
		t.Fatalf("first reset = %v, want %v", s.FrequencyResetDate, want)
	}
	if !s.CurrentPeriodEnd.Equal(s.FrequencyResetDate) {
		t.Fatalf("first period end %v must equal the first reset %v", s.CurrentPeriodEnd, s.FrequencyResetDate)
	}
}

func TestActivationWindowDefaultsDuration(t *testing.T) {
	now := time.Date(2025, 6, 18, 15, 0, 0, 0, time.UTC)
	plan := &models.Plan{FrequencyPeriod: models.FrequencyPeriodMonth, FrequencyResetDay: 1}

	s := &models.Subscription{}
	ActivationWindow(s, plan, now)

	if want := now.AddDate(0, 0, 30); !s.EndDate.Equal(want) {
		t.Fatalf("plans without a duration default to 30 days, got %v", s.EndDate)
	}
}

package entitlements

import (
	"time"

	"github.com/ClasslyHQ/Classly/app/models"
)

// UnlimitedFrequency is the sentinel returned by RemainingFrequency for
// plans without a booking cap.
const UnlimitedFrequency = -1

// IsActive reports whether the subscription is active and inside its
// overall validity window.
func IsActive(s *models.Subscription, now time.Time) bool {
	if s.Status != models.SubscriptionStatusActive {
		return false
	}
	return !now.Before(s.StartDate) && !now.After(s.EndDate)
}

// IsValidForBooking additionally requires now to fall inside the current
// billing period.
func IsValidForBooking(s *models.Subscription, now time.Time) bool {
	if !IsActive(s, now) {
		return false
	}
	return !now.Before(s.CurrentPeriodStart) && !now.After(s.CurrentPeriodEnd)
}

// CanBookClass reports whether the subscription may fund a booking of the
// given class under its plan's class restriction.
func CanBookClass(s *models.Subscription, plan *models.Plan, classID string, now time.Time) bool {
	if !IsValidForBooking(s, now) {
		return false
	}
	return plan.IncludesClass(classID)
}

// RemainingFrequency returns how many bookings are left in the current
// period, or UnlimitedFrequency for uncapped plans.
func RemainingFrequency(s *models.Subscription, plan *models.Plan) int {
	if plan.FrequencyCount == 0 {
		return UnlimitedFrequency
	}
	left := plan.FrequencyCount - s.FrequencyUsed
	if left < 0 {
		return 0
	}
	return left
}

// IncrementFrequencyUsage counts one booking against the current period.
// Callers check RemainingFrequency first; this never fails and applies no
// upper clamp.
func IncrementFrequencyUsage(s *models.Subscription) {
	s.FrequencyUsed++
}

// ResetFrequencyUsage zeroes the period usage and schedules the next reset.
func ResetFrequencyUsage(s *models.Subscription, plan *models.Plan, now time.Time) {
	s.FrequencyUsed = 0
	s.FrequencyResetDate = NextResetDate(plan.FrequencyPeriod, plan.FrequencyResetDay, now)
}

// RolloverIfDue resets the period usage when the reset date has been
// reached, and advances the current billing period window accordingly.
// It returns true when a rollover happened.
func RolloverIfDue(s *models.Subscription, plan *models.Plan, now time.Time) bool {
	if s.FrequencyResetDate.IsZero() || now.Before(s.FrequencyResetDate) {
		return false
	}
	s.CurrentPeriodStart = s.FrequencyResetDate
	ResetFrequencyUsage(s, plan, now)
	s.CurrentPeriodEnd = s.FrequencyResetDate
	if s.CurrentPeriodEnd.After(s.EndDate) {
		s.CurrentPeriodEnd = s.EndDate
	}
	return true
}

// NextResetDate computes the next occurrence of resetDay after now for the
// given period. Weekly periods use resetDay as a weekday (0 = Sunday, per
// time.Weekday); monthly periods use it as a day of month, clamped to the
// month's length. The result is always strictly after now, at midnight UTC
// of the matching day.
func NextResetDate(period string, resetDay int, now time.Time) time.Time {
	day := startOfDay(now)

	switch period {
	case models.FrequencyPeriodWeek:
		target := time.Weekday(((resetDay % 7) + 7) % 7)
		next := day.AddDate(0, 0, 1)
		for next.Weekday() != target {
			next = next.AddDate(0, 0, 1)
		}
		return next
	default: // month
		next := monthlyOccurrence(day.Year(), day.Month(), resetDay, now.Location())
		if !next.After(day) {
			y, m := day.Year(), day.Month()+1
			next = monthlyOccurrence(y, m, resetDay, now.Location())
		}
		return next
	}
}

// ActivationWindow computes the billing fields set when a pending
// subscription is promoted to active: the overall validity window from the
// plan duration and the first frequency period.
func ActivationWindow(s *models.Subscription, plan *models.Plan, now time.Time) {
	s.StartDate = now
	duration := plan.DurationDays
	if duration <= 0 {
		duration = 30
	}
	s.EndDate = now.AddDate(0, 0, duration)
	s.CurrentPeriodStart = now
	s.FrequencyUsed = 0
	s.FrequencyResetDate = NextResetDate(plan.FrequencyPeriod, plan.FrequencyResetDay, now)
	s.CurrentPeriodEnd = s.FrequencyResetDate
	if s.CurrentPeriodEnd.After(s.EndDate) {
		s.CurrentPeriodEnd = s.EndDate
	}
}

func monthlyOccurrence(year int, month time.Month, day int, loc *time.Location) time.Time {
	if day < 1 {
		day = 1
	}
	last := daysInMonth(year, month)
	if day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

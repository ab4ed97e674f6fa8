package payments

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ClasslyHQ/Classly/app/models"
	"github.com/ClasslyHQ/Classly/app/repository"
	"github.com/ClasslyHQ/Classly/internal/pkg/entitlements"
)

// CancellationReasonPaymentFailed is stamped on subscriptions torn down
// because their payment did not settle.
const CancellationReasonPaymentFailed = "Payment failed"

// Service drives payments through their state machine and keeps the
// provisional entitlements consistent with the gateway's settlement,
// whether that arrives through a confirm call or a webhook.
type Service struct {
	repos   *repository.Repositories
	gateway GatewayClient
	locker  BalanceLocker
	now     func() time.Time
}

// NewService creates the payment lifecycle service.
func NewService(repos *repository.Repositories, gateway GatewayClient, locker BalanceLocker) *Service {
	return &Service{
		repos:   repos,
		gateway: gateway,
		locker:  locker,
		now:     time.Now,
	}
}

// PurchaseSubscription starts a subscription purchase: it validates the
// client, plan and brand, enforces the one-subscription-per-brand rule,
// creates a gateway intent and only then persists the pending payment and
// pending subscription. A failed or timed-out gateway call leaves nothing
// behind.
func (s *Service) PurchaseSubscription(ctx context.Context, clientPublicID, planPublicID string) (*PurchaseResult, error) {
	client, plan, brand, err := s.loadPurchaseContext(ctx, clientPublicID, planPublicID, models.PlanTypeSubscription)
	if err != nil {
		return nil, err
	}

	existing, err := s.repos.Subscription.FindActiveOrPending(client.ID, brand.ID)
	if err != nil {
		return nil, wrapErr(CodeIntegrity, "subscription lookup failed", err)
	}
	if existing != nil {
		return nil, ErrDuplicateSubscription
	}

	intent, err := s.createIntent(ctx, client, plan, brand, models.PaymentTypeSubscription)
	if err != nil {
		return nil, err
	}

	sub := &models.Subscription{
		ClientID: client.ID,
		BrandID:  brand.ID,
		PlanID:   plan.ID,
		Status:   models.SubscriptionStatusPending,
	}
	if err := s.repos.Subscription.Create(sub); err != nil {
		return nil, wrapErr(CodeIntegrity, "persist subscription failed", err)
	}

	payment, err := s.createPayment(client, plan, brand, intent, models.PaymentTypeSubscription, &sub.ID, nil)
	if err != nil {
		// Do not leave a pending subscription pointing at a payment that
		// never existed.
		now := s.now()
		if _, gErr := s.repos.Subscription.GuardedUpdate(sub.ID,
			[]string{models.SubscriptionStatusPending},
			map[string]interface{}{
				"status":              models.SubscriptionStatusCancelled,
				"cancelled_at":        &now,
				"cancellation_reason": CancellationReasonPaymentFailed,
				"auto_renew":          false,
			}); gErr != nil {
			log.Errorf("[Payments] Failed to tear down subscription %s after payment persist error: %v", sub.PublicID, gErr)
		}
		return nil, err
	}

	log.Infof("[Payments] Subscription purchase started: payment=%s intent=%s client=%s plan=%s",
		payment.PublicID, intent.ID, client.PublicID, plan.Code)

	return &PurchaseResult{Payment: payment, ClientSecret: intent.ClientSecret, Subscription: sub}, nil
}

// PurchaseCredits starts a credit package purchase. The balance row is
// created lazily if missing but no credits are added until the payment
// settles.
func (s *Service) PurchaseCredits(ctx context.Context, clientPublicID, planPublicID string) (*PurchaseResult, error) {
	client, plan, brand, err := s.loadPurchaseContext(ctx, clientPublicID, planPublicID, models.PlanTypeCredit)
	if err != nil {
		return nil, err
	}

	balance, err := s.repos.CreditBalance.GetOrCreate(client.ID, brand.ID)
	if err != nil {
		return nil, wrapErr(CodeIntegrity, "credit balance lookup failed", err)
	}

	intent, err := s.createIntent(ctx, client, plan, brand, models.PaymentTypeCreditPurchase)
	if err != nil {
		return nil, err
	}

	payment, err := s.createPayment(client, plan, brand, intent, models.PaymentTypeCreditPurchase, nil, &balance.ID)
	if err != nil {
		return nil, err
	}

	log.Infof("[Payments] Credit purchase started: payment=%s intent=%s client=%s plan=%s",
		payment.PublicID, intent.ID, client.PublicID, plan.Code)

	return &PurchaseResult{Payment: payment, ClientSecret: intent.ClientSecret}, nil
}

// ConfirmPayment resolves a payment against the gateway's current intent
// status. It races with webhook delivery for the same intent: whichever
// side wins performs the terminal transition, the loser sees
// ErrAlreadyProcessed together with the post-transition record.
func (s *Service) ConfirmPayment(ctx context.Context, intentID, clientPublicID string) (*ConfirmResult, error) {
	client, err := s.repos.Client.GetByPublicID(clientPublicID)
	if err != nil {
		return nil, s.notFoundOr(err, ErrClientNotFound, "client lookup failed")
	}

	payment, err := s.repos.Payment.GetByIntentID(intentID)
	if err != nil {
		return nil, s.notFoundOr(err, ErrPaymentNotFound, "payment lookup failed")
	}
	if payment.ClientID != client.ID {
		return nil, ErrPaymentNotFound
	}

	if payment.IsTerminal() {
		return &ConfirmResult{Payment: payment, Succeeded: payment.IsSettled()}, ErrAlreadyProcessed
	}

	intent, err := s.gateway.GetIntentStatus(ctx, intentID)
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			return nil, err
		}
		return nil, wrapErr(CodeGateway, "gateway intent lookup failed", err)
	}

	switch intent.Status {
	case IntentStatusSucceeded:
		updated, err := s.finalizeSuccess(ctx, payment)
		if err != nil {
			return &ConfirmResult{Payment: updated, Succeeded: updated != nil && updated.IsSettled()}, err
		}
		return &ConfirmResult{Payment: updated, Succeeded: true}, nil

	case IntentStatusRequiresAction, IntentStatusProcessing:
		// Mark the payment as in-flight; no entitlement side effects.
		if _, err := s.repos.Payment.GuardedUpdate(payment.ID,
			[]string{models.PaymentStatusPending},
			map[string]interface{}{"status": models.PaymentStatusProcessing}); err != nil {
			return nil, wrapErr(CodeIntegrity, "payment update failed", err)
		}
		refreshed, err := s.repos.Payment.GetByID(payment.ID)
		if err != nil {
			return nil, wrapErr(CodeIntegrity, "payment reload failed", err)
		}
		return &ConfirmResult{Payment: refreshed, Succeeded: false}, nil

	default:
		updated, err := s.finalizeFailure(ctx, payment, intent.FailureReason)
		if err != nil {
			return &ConfirmResult{Payment: updated}, err
		}
		return &ConfirmResult{Payment: updated, Succeeded: false}, nil
	}
}

// finalizeSuccess performs the terminal success transition and applies the
// entitlement side effects exactly once. The status-guarded write decides
// the confirm/webhook race; only the winner touches the entitlement.
func (s *Service) finalizeSuccess(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	now := s.now()
	won, err := s.repos.Payment.GuardedUpdate(payment.ID,
		[]string{models.PaymentStatusPending, models.PaymentStatusProcessing},
		map[string]interface{}{
			"status":       models.PaymentStatusSucceeded,
			"processed_at": &now,
		})
	if err != nil {
		return nil, wrapErr(CodeIntegrity, "payment transition failed", err)
	}

	refreshed, rErr := s.repos.Payment.GetByID(payment.ID)
	if rErr != nil {
		return nil, wrapErr(CodeIntegrity, "payment reload failed", rErr)
	}
	if !won {
		log.Infof("[Payments] Payment %s already advanced to %s, skipping finalize", refreshed.PublicID, refreshed.Status)
		return refreshed, ErrAlreadyProcessed
	}

	switch payment.Type {
	case models.PaymentTypeSubscription:
		if err := s.activateSubscription(payment, now); err != nil {
			return refreshed, err
		}
	case models.PaymentTypeCreditPurchase:
		if err := s.creditPackage(ctx, payment, now); err != nil {
			return refreshed, err
		}
	}

	log.Infof("[Payments] Payment %s succeeded (intent=%s)", refreshed.PublicID, refreshed.ExternalIntentID)
	return refreshed, nil
}

// finalizeFailure performs the terminal failure transition and tears down
// the provisional subscription so no pending entitlement outlives its
// payment. A credit purchase failure leaves the balance untouched.
func (s *Service) finalizeFailure(ctx context.Context, payment *models.Payment, reason string) (*models.Payment, error) {
	_ = ctx
	now := s.now()
	if reason == "" {
		reason = "payment was not completed"
	}
	won, err := s.repos.Payment.GuardedUpdate(payment.ID,
		[]string{models.PaymentStatusPending, models.PaymentStatusProcessing},
		map[string]interface{}{
			"status":         models.PaymentStatusFailed,
			"failure_reason": reason,
			"processed_at":   &now,
		})
	if err != nil {
		return nil, wrapErr(CodeIntegrity, "payment transition failed", err)
	}

	refreshed, rErr := s.repos.Payment.GetByID(payment.ID)
	if rErr != nil {
		return nil, wrapErr(CodeIntegrity, "payment reload failed", rErr)
	}
	if !won {
		return refreshed, ErrAlreadyProcessed
	}

	if payment.SubscriptionID != nil {
		if _, err := s.repos.Subscription.GuardedUpdate(*payment.SubscriptionID,
			[]string{models.SubscriptionStatusPending},
			map[string]interface{}{
				"status":              models.SubscriptionStatusCancelled,
				"cancelled_at":        &now,
				"cancellation_reason": CancellationReasonPaymentFailed,
				"auto_renew":          false,
			}); err != nil {
			return refreshed, wrapErr(CodeIntegrity, "subscription teardown failed", err)
		}
	}

	log.Infof("[Payments] Payment %s failed: %s", refreshed.PublicID, reason)
	return refreshed, nil
}

func (s *Service) activateSubscription(payment *models.Payment, now time.Time) error {
	if payment.SubscriptionID == nil {
		return nil
	}
	sub, err := s.repos.Subscription.GetByID(*payment.SubscriptionID)
	if err != nil {
		return wrapErr(CodeIntegrity, "subscription lookup failed", err)
	}
	plan, err := s.repos.Plan.GetByID(sub.PlanID)
	if err != nil {
		return wrapErr(CodeIntegrity, "plan lookup failed", err)
	}

	entitlements.ActivationWindow(sub, plan, now)
	won, err := s.repos.Subscription.GuardedUpdate(sub.ID,
		[]string{models.SubscriptionStatusPending},
		map[string]interface{}{
			"status":               models.SubscriptionStatusActive,
			"start_date":           sub.StartDate,
			"end_date":             sub.EndDate,
			"current_period_start": sub.CurrentPeriodStart,
			"current_period_end":   sub.CurrentPeriodEnd,
			"frequency_used":       0,
			"frequency_reset_date": sub.FrequencyResetDate,
		})
	if err != nil {
		return wrapErr(CodeIntegrity, "subscription activation failed", err)
	}
	if !won {
		log.Warnf("[Payments] Subscription %s left pending state before activation", sub.PublicID)
	}
	return nil
}

func (s *Service) creditPackage(ctx context.Context, payment *models.Payment, now time.Time) error {
	plan, err := s.repos.Plan.GetByID(payment.PlanID)
	if err != nil {
		return wrapErr(CodeIntegrity, "plan lookup failed", err)
	}

	return s.locker.WithLock(ctx, BalanceLockKey(payment.ClientID, payment.BrandID), func() error {
		balance, err := s.repos.CreditBalance.GetByID(*payment.BalanceID)
		if err != nil {
			return wrapErr(CodeIntegrity, "credit balance lookup failed", err)
		}
		if _, err := entitlements.AddPackage(balance, plan, payment.ExternalIntentID, now); err != nil {
			if errors.Is(err, entitlements.ErrCrossBrandPlan) {
				return ErrCrossBrandPlan
			}
			return wrapErr(CodeIntegrity, "credit package mint failed", err)
		}
		if err := s.repos.CreditBalance.Persist(balance); err != nil {
			return wrapErr(CodeIntegrity, "credit balance persist failed", err)
		}
		return nil
	})
}

// CancelSubscription cancels a client's active or pending subscription.
func (s *Service) CancelSubscription(ctx context.Context, clientPublicID, subscriptionPublicID, reason string) (*models.Subscription, error) {
	_ = ctx
	client, err := s.repos.Client.GetByPublicID(clientPublicID)
	if err != nil {
		return nil, s.notFoundOr(err, ErrClientNotFound, "client lookup failed")
	}
	sub, err := s.repos.Subscription.GetByPublicID(subscriptionPublicID)
	if err != nil {
		return nil, s.notFoundOr(err, ErrSubscriptionNotFound, "subscription lookup failed")
	}
	if sub.ClientID != client.ID {
		return nil, ErrSubscriptionNotFound
	}

	now := s.now()
	if reason == "" {
		reason = "cancelled by client"
	}
	won, err := s.repos.Subscription.GuardedUpdate(sub.ID,
		[]string{models.SubscriptionStatusActive, models.SubscriptionStatusPending},
		map[string]interface{}{
			"status":              models.SubscriptionStatusCancelled,
			"cancelled_at":        &now,
			"cancellation_reason": reason,
			"auto_renew":          false,
		})
	if err != nil {
		return nil, wrapErr(CodeIntegrity, "subscription cancel failed", err)
	}
	if !won {
		return nil, ErrSubscriptionNotActive
	}
	return s.repos.Subscription.GetByID(sub.ID)
}

// CheckBookingEligibility answers whether the client may book the given
// class at the brand, and which entitlement would fund it. Subscriptions
// win over credits. A due frequency reset is applied here before the
// subscription is consulted.
func (s *Service) CheckBookingEligibility(ctx context.Context, clientPublicID, brandPublicID, classID string) (*Eligibility, error) {
	client, brand, err := s.loadClientBrand(clientPublicID, brandPublicID)
	if err != nil {
		return nil, err
	}
	now := s.now()

	sub, err := s.repos.Subscription.FindActiveOrPending(client.ID, brand.ID)
	if err != nil {
		return nil, wrapErr(CodeIntegrity, "subscription lookup failed", err)
	}
	if sub != nil && sub.Status == models.SubscriptionStatusActive {
		plan, err := s.repos.Plan.GetByID(sub.PlanID)
		if err != nil {
			return nil, wrapErr(CodeIntegrity, "plan lookup failed", err)
		}
		if entitlements.RolloverIfDue(sub, plan, now) {
			if err := s.repos.Subscription.Update(sub); err != nil {
				return nil, wrapErr(CodeIntegrity, "subscription rollover persist failed", err)
			}
		}
		if entitlements.CanBookClass(sub, plan, classID, now) {
			remaining := entitlements.RemainingFrequency(sub, plan)
			if remaining != 0 {
				return &Eligibility{
					Eligible:           true,
					Source:             EligibilitySubscription,
					RemainingFrequency: remaining,
				}, nil
			}
		}
	}

	balance, err := s.repos.CreditBalance.GetByClientBrand(client.ID, brand.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &Eligibility{Eligible: false, Source: EligibilityNone, Reason: "no entitlement for this brand"}, nil
		}
		return nil, wrapErr(CodeIntegrity, "credit balance lookup failed", err)
	}

	available := entitlements.AvailableCreditsForClass(balance, classID, now)
	if available > 0 {
		return &Eligibility{
			Eligible:         true,
			Source:           EligibilityCredits,
			AvailableCredits: available,
		}, nil
	}
	return &Eligibility{Eligible: false, Source: EligibilityNone, Reason: "no usable subscription or credits"}, nil
}

// GetCreditBalance returns the prepaid ledger with package statuses
// recomputed against now.
func (s *Service) GetCreditBalance(ctx context.Context, clientPublicID, brandPublicID string) (*models.CreditBalance, error) {
	_ = ctx
	client, brand, err := s.loadClientBrand(clientPublicID, brandPublicID)
	if err != nil {
		return nil, err
	}
	balance, err := s.repos.CreditBalance.GetByClientBrand(client.ID, brand.ID)
	if err != nil {
		return nil, s.notFoundOr(err, ErrBalanceNotFound, "credit balance lookup failed")
	}
	entitlements.RecomputePackageStatuses(balance, s.now())
	return balance, nil
}

// DeductCreditsForBooking spends credits FIFO for one booking, serialized
// per balance.
func (s *Service) DeductCreditsForBooking(ctx context.Context, clientPublicID, brandPublicID string, amount int, bookingID string) ([]models.CreditTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	client, brand, err := s.loadClientBrand(clientPublicID, brandPublicID)
	if err != nil {
		return nil, err
	}

	var txns []models.CreditTransaction
	err = s.locker.WithLock(ctx, BalanceLockKey(client.ID, brand.ID), func() error {
		balance, err := s.repos.CreditBalance.GetByClientBrand(client.ID, brand.ID)
		if err != nil {
			return s.notFoundOr(err, ErrBalanceNotFound, "credit balance lookup failed")
		}
		txns, err = entitlements.Deduct(balance, amount, bookingID, s.now())
		if err != nil {
			if errors.Is(err, entitlements.ErrInsufficientCredits) {
				return ErrInsufficientCredits
			}
			if errors.Is(err, entitlements.ErrInvalidAmount) {
				return ErrInvalidAmount
			}
			return wrapErr(CodeIntegrity, "credit deduction failed", err)
		}
		return s.persistBalanceOr(balance)
	})
	if err != nil {
		return nil, err
	}
	return txns, nil
}

// RefundCreditsForBooking restores credits for a cancelled booking.
func (s *Service) RefundCreditsForBooking(ctx context.Context, clientPublicID, brandPublicID string, amount int, bookingID string) (*models.CreditTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	client, brand, err := s.loadClientBrand(clientPublicID, brandPublicID)
	if err != nil {
		return nil, err
	}

	var txn *models.CreditTransaction
	err = s.locker.WithLock(ctx, BalanceLockKey(client.ID, brand.ID), func() error {
		balance, err := s.repos.CreditBalance.GetByClientBrand(client.ID, brand.ID)
		if err != nil {
			return s.notFoundOr(err, ErrBalanceNotFound, "credit balance lookup failed")
		}
		txn, err = entitlements.Refund(balance, amount, bookingID, s.now())
		if err != nil {
			if errors.Is(err, entitlements.ErrInvalidAmount) {
				return ErrInvalidAmount
			}
			return wrapErr(CodeIntegrity, "credit refund failed", err)
		}
		return s.persistBalanceOr(balance)
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// CleanupExpiredForBalance forfeits expired credits on one balance. Used by
// the background sweeper; safe to run repeatedly.
func (s *Service) CleanupExpiredForBalance(ctx context.Context, balanceID uint) (int, error) {
	var forfeited int
	balance, err := s.repos.CreditBalance.GetByID(balanceID)
	if err != nil {
		return 0, s.notFoundOr(err, ErrBalanceNotFound, "credit balance lookup failed")
	}
	err = s.locker.WithLock(ctx, BalanceLockKey(balance.ClientID, balance.BrandID), func() error {
		// Re-read under the lock so concurrent ledger writes are not lost.
		balance, err = s.repos.CreditBalance.GetByID(balanceID)
		if err != nil {
			return s.notFoundOr(err, ErrBalanceNotFound, "credit balance lookup failed")
		}
		txns := entitlements.CleanupExpired(balance, s.now())
		if len(txns) == 0 {
			return nil
		}
		for _, t := range txns {
			forfeited += -t.Amount
		}
		return s.persistBalanceOr(balance)
	})
	return forfeited, err
}

func (s *Service) loadPurchaseContext(ctx context.Context, clientPublicID, planPublicID, planType string) (*models.Client, *models.Plan, *models.Brand, error) {
	client, err := s.repos.Client.GetByPublicID(clientPublicID)
	if err != nil {
		return nil, nil, nil, s.notFoundOr(err, ErrClientNotFound, "client lookup failed")
	}
	if !client.IsActive() {
		return nil, nil, nil, ErrClientInactive
	}

	plan, err := s.repos.Plan.GetByPublicID(planPublicID)
	if err != nil {
		return nil, nil, nil, s.notFoundOr(err, ErrPlanNotFound, "plan lookup failed")
	}
	if !plan.IsActive {
		return nil, nil, nil, ErrPlanInactive
	}
	if plan.Type != planType {
		return nil, nil, nil, ErrWrongPlanType
	}

	brand, err := s.repos.Brand.GetByID(plan.BrandID)
	if err != nil {
		return nil, nil, nil, s.notFoundOr(err, ErrBrandNotFound, "brand lookup failed")
	}
	if !brand.IsActive() {
		return nil, nil, nil, ErrBrandNotChargeable
	}

	account, err := s.gateway.GetAccountStatus(ctx, brand.GatewayAccountID)
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			return nil, nil, nil, err
		}
		return nil, nil, nil, wrapErr(CodeGateway, "gateway account lookup failed", err)
	}
	if !account.ChargesEnabled {
		return nil, nil, nil, ErrBrandNotChargeable
	}

	return client, plan, brand, nil
}

func (s *Service) createIntent(ctx context.Context, client *models.Client, plan *models.Plan, brand *models.Brand, paymentType string) (*Intent, error) {
	intent, err := s.gateway.CreateIntent(ctx, CreateIntentRequest{
		AmountMinor:          plan.PriceMinor,
		Currency:             plan.Currency,
		DestinationAccountID: brand.GatewayAccountID,
		Metadata: map[string]string{
			"client_id": client.PublicID,
			"plan_code": plan.Code,
			"type":      paymentType,
		},
	})
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			return nil, err
		}
		return nil, wrapErr(CodeGateway, "gateway intent creation failed", err)
	}
	return intent, nil
}

func (s *Service) createPayment(client *models.Client, plan *models.Plan, brand *models.Brand, intent *Intent, paymentType string, subID, balanceID *uint) (*models.Payment, error) {
	meta, _ := json.Marshal(map[string]string{
		"plan_code":      plan.Code,
		"plan_public_id": plan.PublicID,
	})
	payment := &models.Payment{
		ClientID:         client.ID,
		BrandID:          brand.ID,
		Type:             paymentType,
		Status:           models.PaymentStatusPending,
		AmountMinor:      plan.PriceMinor,
		Currency:         plan.Currency,
		ExternalIntentID: intent.ID,
		SubscriptionID:   subID,
		BalanceID:        balanceID,
		PlanID:           plan.ID,
		MetadataJSON:     string(meta),
	}
	if err := s.repos.Payment.Create(payment); err != nil {
		return nil, wrapErr(CodeIntegrity, "persist payment failed", err)
	}
	return payment, nil
}

func (s *Service) loadClientBrand(clientPublicID, brandPublicID string) (*models.Client, *models.Brand, error) {
	client, err := s.repos.Client.GetByPublicID(clientPublicID)
	if err != nil {
		return nil, nil, s.notFoundOr(err, ErrClientNotFound, "client lookup failed")
	}
	brand, err := s.repos.Brand.GetByPublicID(brandPublicID)
	if err != nil {
		return nil, nil, s.notFoundOr(err, ErrBrandNotFound, "brand lookup failed")
	}
	return client, brand, nil
}

func (s *Service) persistBalanceOr(balance *models.CreditBalance) error {
	if err := s.repos.CreditBalance.Persist(balance); err != nil {
		return wrapErr(CodeIntegrity, "credit balance persist failed", err)
	}
	return nil
}

func (s *Service) notFoundOr(err error, notFound *Error, message string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return notFound
	}
	return wrapErr(CodeIntegrity, message, err)
}

package apiv1

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ClasslyHQ/Classly/app/models"
	"github.com/ClasslyHQ/Classly/internal/pkg/env"
	"github.com/ClasslyHQ/Classly/internal/pkg/metrics/counter"
	"github.com/ClasslyHQ/Classly/internal/pkg/payments"
)

// APIServer exposes the entitlement engine's operations as JSON endpoints.
type APIServer struct {
	svc        *payments.Service
	reconciler *payments.WebhookReconciler
	validate   *validator.Validate
}

// NewAPIServer creates a new API server instance
func NewAPIServer(svc *payments.Service, reconciler *payments.WebhookReconciler) *APIServer {
	return &APIServer{
		svc:        svc,
		reconciler: reconciler,
		validate:   validator.New(),
	}
}

// RegisterHandlers wires all v1 routes onto the given router group.
func RegisterHandlers(r fiber.Router, s *APIServer) {
	r.Post("/purchases/subscription", s.PostPurchaseSubscription)
	r.Post("/purchases/credits", s.PostPurchaseCredits)
	r.Post("/payments/confirm", s.PostConfirmPayment)
	r.Post("/subscriptions/:id/cancel", s.PostCancelSubscription)
	r.Get("/eligibility", s.GetBookingEligibility)
	r.Get("/credit-balance", s.GetCreditBalance)
	r.Post("/credits/deduct", s.PostDeductCredits)
	r.Post("/credits/refund", s.PostRefundCredits)
	r.Post("/webhooks/payments", s.PostPaymentWebhook)
	r.Get("/metrics/payments", s.GetPaymentMetrics)
}

type purchaseRequest struct {
	ClientID string `json:"client_id" validate:"required,uuid4"`
	PlanID   string `json:"plan_id" validate:"required,uuid4"`
}

// PostPurchaseSubscription starts a subscription purchase.
func (s *APIServer) PostPurchaseSubscription(c *fiber.Ctx) error {
	var req purchaseRequest
	if err := s.parse(c, &req); err != nil {
		return err
	}
	result, err := s.svc.PurchaseSubscription(c.Context(), req.ClientID, req.PlanID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

// PostPurchaseCredits starts a credit package purchase.
func (s *APIServer) PostPurchaseCredits(c *fiber.Ctx) error {
	var req purchaseRequest
	if err := s.parse(c, &req); err != nil {
		return err
	}
	result, err := s.svc.PurchaseCredits(c.Context(), req.ClientID, req.PlanID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

type confirmRequest struct {
	ClientID        string `json:"client_id" validate:"required,uuid4"`
	PaymentIntentID string `json:"payment_intent_id" validate:"required"`
}

// PostConfirmPayment resolves a payment against the gateway. A payment that
// was already settled by the webhook is returned as-is instead of failing.
func (s *APIServer) PostConfirmPayment(c *fiber.Ctx) error {
	var req confirmRequest
	if err := s.parse(c, &req); err != nil {
		return err
	}
	result, err := s.svc.ConfirmPayment(c.Context(), req.PaymentIntentID, req.ClientID)
	if err != nil {
		if errors.Is(err, payments.ErrAlreadyProcessed) && result != nil {
			return c.Status(fiber.StatusOK).JSON(result)
		}
		return respondError(c, err)
	}
	if result.Succeeded {
		_ = counter.AddPaymentSucceeded()
	} else if result.Payment != nil && result.Payment.Status == models.PaymentStatusFailed {
		_ = counter.AddPaymentFailed()
	}
	return c.Status(fiber.StatusOK).JSON(result)
}

type cancelRequest struct {
	ClientID string `json:"client_id" validate:"required,uuid4"`
	Reason   string `json:"reason" validate:"max=255"`
}

// PostCancelSubscription cancels a client's subscription.
func (s *APIServer) PostCancelSubscription(c *fiber.Ctx) error {
	var req cancelRequest
	if err := s.parse(c, &req); err != nil {
		return err
	}
	sub, err := s.svc.CancelSubscription(c.Context(), req.ClientID, c.Params("id"), req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(sub)
}

// GetBookingEligibility answers whether a client may book a class.
func (s *APIServer) GetBookingEligibility(c *fiber.Ctx) error {
	clientID := c.Query("client_id")
	brandID := c.Query("brand_id")
	classID := c.Query("class_id")
	if clientID == "" || brandID == "" || classID == "" {
		return badRequest(c, "client_id, brand_id and class_id are required")
	}
	eligibility, err := s.svc.CheckBookingEligibility(c.Context(), clientID, brandID, classID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(eligibility)
}

// GetCreditBalance returns the prepaid ledger for a (client, brand) pair.
func (s *APIServer) GetCreditBalance(c *fiber.Ctx) error {
	clientID := c.Query("client_id")
	brandID := c.Query("brand_id")
	if clientID == "" || brandID == "" {
		return badRequest(c, "client_id and brand_id are required")
	}
	balance, err := s.svc.GetCreditBalance(c.Context(), clientID, brandID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(balance)
}

type creditMutationRequest struct {
	ClientID  string `json:"client_id" validate:"required,uuid4"`
	BrandID   string `json:"brand_id" validate:"required,uuid4"`
	Amount    int    `json:"amount" validate:"required,gt=0"`
	BookingID string `json:"booking_id" validate:"max=191"`
}

// PostDeductCredits spends credits for a booking.
func (s *APIServer) PostDeductCredits(c *fiber.Ctx) error {
	var req creditMutationRequest
	if err := s.parse(c, &req); err != nil {
		return err
	}
	txns, err := s.svc.DeductCreditsForBooking(c.Context(), req.ClientID, req.BrandID, req.Amount, req.BookingID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"transactions": txns})
}

// PostRefundCredits restores credits for a cancelled booking.
func (s *APIServer) PostRefundCredits(c *fiber.Ctx) error {
	var req creditMutationRequest
	if err := s.parse(c, &req); err != nil {
		return err
	}
	txn, err := s.svc.RefundCreditsForBooking(c.Context(), req.ClientID, req.BrandID, req.Amount, req.BookingID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"transaction": txn})
}

type webhookBody struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		IntentID      string `json:"payment_intent_id"`
		FailureReason string `json:"failure_reason"`
	} `json:"data"`
}

// PostPaymentWebhook receives gateway settlement events. The gateway
// retries on non-2xx, so replays and unknown intents are acknowledged.
func (s *APIServer) PostPaymentWebhook(c *fiber.Ctx) error {
	raw := c.Body()
	secret := env.GetEnv("GATEWAY_WEBHOOK_SECRET", "")
	valid := payments.VerifyWebhookSignature(raw, c.Get("X-Gateway-Signature"), secret)
	if !valid {
		log.Warnf("[Webhook] Invalid signature on event delivery")
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "invalid_signature",
			"message": "webhook signature verification failed",
		})
	}

	_ = counter.AddWebhookReceived()

	var body webhookBody
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "invalid webhook payload")
	}

	err := s.reconciler.HandleEvent(c.Context(), payments.WebhookEvent{
		EventID:        body.ID,
		EventType:      body.Type,
		IntentID:       body.Data.IntentID,
		FailureReason:  body.Data.FailureReason,
		PayloadJSON:    string(raw),
		SignatureValid: valid,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "processing_failed",
			"message": "event could not be processed",
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true})
}

// GetPaymentMetrics returns the running settlement counters.
func (s *APIServer) GetPaymentMetrics(c *fiber.Ctx) error {
	totals, err := counter.Totals()
	if err != nil {
		log.Errorf("[API] Failed to read payment counters: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "counter_read_failed",
			"message": "payment counters are unavailable",
		})
	}
	return c.Status(fiber.StatusOK).JSON(totals)
}

func (s *APIServer) parse(c *fiber.Ctx, req interface{}) error {
	if err := c.BodyParser(req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := s.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}
	return nil
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":   string(payments.CodeValidation),
		"message": message,
	})
}

func respondError(c *fiber.Ctx, err error) error {
	code := payments.CodeOf(err)
	status := fiber.StatusInternalServerError
	switch code {
	case payments.CodeValidation:
		status = fiber.StatusBadRequest
	case payments.CodeNotFound:
		status = fiber.StatusNotFound
	case payments.CodeBusinessRule:
		status = fiber.StatusConflict
	case payments.CodeGateway:
		status = fiber.StatusBadGateway
	}

	var e *payments.Error
	message := "internal error"
	if errors.As(err, &e) {
		message = e.Message
	} else {
		log.Errorf("[API] Unclassified error: %v", err)
	}

	return c.Status(status).JSON(fiber.Map{
		"error":   string(code),
		"message": message,
	})
}

package payments

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ClasslyHQ/Classly/app/models"
	"github.com/ClasslyHQ/Classly/app/repository"
	"github.com/ClasslyHQ/Classly/internal/pkg/metrics/counter"
)

// Webhook event types pushed by the gateway.
const (
	WebhookEventSucceeded = "payment_intent.succeeded"
	WebhookEventFailed    = "payment_intent.failed"
)

// GatewayProvider tags journal rows; the engine currently reconciles a
// single gateway.
const GatewayProvider = "gateway"

// WebhookEvent is one normalized gateway notification.
type WebhookEvent struct {
	EventID        string
	EventType      string
	IntentID       string
	FailureReason  string
	PayloadJSON    string
	SignatureValid bool
}

// WebhookReconciler applies gateway-pushed settlement events through the
// same finalize logic the confirm path uses. Duplicated or out-of-order
// delivery is absorbed twice: once by the journal's unique event key and
// once by the payment's status-guarded transition.
type WebhookReconciler struct {
	svc    *Service
	events repository.WebhookEventRepository
}

// NewWebhookReconciler creates the reconciler.
func NewWebhookReconciler(svc *Service, events repository.WebhookEventRepository) *WebhookReconciler {
	return &WebhookReconciler{svc: svc, events: events}
}

// HandleEvent journals and processes one gateway event. It only returns an
// error for infrastructure failures the gateway should retry; unknown
// intents and replays are logged and dropped.
func (r *WebhookReconciler) HandleEvent(ctx context.Context, event WebhookEvent) error {
	if strings.TrimSpace(event.IntentID) == "" {
		log.Warnf("[Webhook] Dropping event %s without intent id", event.EventID)
		return nil
	}

	created, stored, err := r.events.CreateIfNotExists(&models.WebhookEvent{
		Provider:        GatewayProvider,
		ProviderEventID: event.EventID,
		EventType:       event.EventType,
		IntentID:        event.IntentID,
		PayloadJSON:     event.PayloadJSON,
		SignatureValid:  event.SignatureValid,
	})
	if err != nil {
		return err
	}
	if !created {
		log.Infof("[Webhook] Duplicate event %s for intent %s, skipping", event.EventID, event.IntentID)
		_ = counter.AddWebhookDuplicate()
		return nil
	}

	processErr := r.process(ctx, event)
	markErr := ""
	if processErr != nil {
		markErr = processErr.Error()
	}
	if err := r.events.MarkProcessed(stored.ID, markErr); err != nil {
		log.Errorf("[Webhook] Failed to mark event %s processed: %v", event.EventID, err)
	}
	return processErr
}

func (r *WebhookReconciler) process(ctx context.Context, event WebhookEvent) error {
	payment, err := r.svc.repos.Payment.GetByIntentID(event.IntentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// The gateway may notify about intents the engine never
			// tracked, e.g. replayed test events.
			log.Warnf("[Webhook] Unknown intent %s for event %s, dropping", event.IntentID, event.EventID)
			return nil
		}
		return err
	}

	if payment.IsTerminal() {
		log.Infof("[Webhook] Payment %s already %s, event %s is a no-op", payment.PublicID, payment.Status, event.EventID)
		return nil
	}

	switch event.EventType {
	case WebhookEventSucceeded:
		_, err := r.svc.finalizeSuccess(ctx, payment)
		if errors.Is(err, ErrAlreadyProcessed) {
			return nil
		}
		return err
	case WebhookEventFailed:
		_, err := r.svc.finalizeFailure(ctx, payment, event.FailureReason)
		if errors.Is(err, ErrAlreadyProcessed) {
			return nil
		}
		return err
	default:
		log.Warnf("[Webhook] Ignoring unsupported event type %s (event %s)", event.EventType, event.EventID)
		return nil
	}
}

package payments

import (
	"errors"
	"fmt"
)

// ErrorCode classifies failures for callers: validation and business-rule
// errors are the caller's to fix, gateway errors may be retried for reads,
// integrity errors are benign no-ops under concurrent delivery.
type ErrorCode string

const (
	CodeValidation   ErrorCode = "validation_error"
	CodeNotFound     ErrorCode = "not_found"
	CodeBusinessRule ErrorCode = "business_rule_violation"
	CodeGateway      ErrorCode = "gateway_error"
	CodeIntegrity    ErrorCode = "integrity_error"
)

// Error carries a stable code and a caller-safe message. Internal causes
// are wrapped but never rendered to API clients.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match against the package sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == e.Message
}

func newErr(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func wrapErr(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

var (
	ErrClientNotFound       = newErr(CodeNotFound, "client not found")
	ErrBrandNotFound        = newErr(CodeNotFound, "brand not found")
	ErrPlanNotFound         = newErr(CodeNotFound, "plan not found")
	ErrPaymentNotFound      = newErr(CodeNotFound, "payment not found")
	ErrBalanceNotFound      = newErr(CodeNotFound, "credit balance not found")
	ErrSubscriptionNotFound = newErr(CodeNotFound, "subscription not found")

	ErrClientInactive        = newErr(CodeBusinessRule, "client is not active")
	ErrPlanInactive          = newErr(CodeBusinessRule, "plan is not active")
	ErrWrongPlanType         = newErr(CodeBusinessRule, "plan type does not match the purchase")
	ErrBrandNotChargeable    = newErr(CodeBusinessRule, "brand cannot accept payments yet")
	ErrDuplicateSubscription = newErr(CodeBusinessRule, "an active or pending subscription already exists for this brand")
	ErrInsufficientCredits   = newErr(CodeBusinessRule, "insufficient credits")
	ErrCrossBrandPlan        = newErr(CodeBusinessRule, "plan belongs to a different brand")
	ErrSubscriptionNotActive = newErr(CodeBusinessRule, "subscription is not active")

	// ErrAlreadyProcessed marks the losing side of the confirm/webhook
	// race. Callers treat it as a no-op, not a failure.
	ErrAlreadyProcessed = newErr(CodeIntegrity, "payment already processed")

	ErrInvalidAmount = newErr(CodeValidation, "amount must be a positive integer")
)

// CodeOf extracts the error code, defaulting to gateway_error for wrapped
// gateway failures and integrity_error for anything unclassified.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeIntegrity
}

package counter

import (
	"context"
	"strconv"

	"github.com/ClasslyHQ/Classly/internal/pkg/cache"
)

const paymentCountersKey = "payments:counters"

// Hash fields under paymentCountersKey.
const (
	FieldPaymentsSucceeded = "payments_succeeded"
	FieldPaymentsFailed    = "payments_failed"
	FieldWebhooksReceived  = "webhooks_received"
	FieldWebhooksDuplicate = "webhooks_duplicate"
)

// AddPaymentSucceeded increments the settled-payment counter in Redis
func AddPaymentSucceeded() error {
	return incr(FieldPaymentsSucceeded)
}

// AddPaymentFailed increments the failed-payment counter in Redis
func AddPaymentFailed() error {
	return incr(FieldPaymentsFailed)
}

// AddWebhookReceived increments the received-webhook counter in Redis
func AddWebhookReceived() error {
	return incr(FieldWebhooksReceived)
}

// AddWebhookDuplicate increments the duplicate-webhook counter in Redis
func AddWebhookDuplicate() error {
	return incr(FieldWebhooksDuplicate)
}

// Totals reads all payment counters. Missing fields read as zero.
func Totals() (map[string]int64, error) {
	data, err := cache.GetClient().HGetAll(context.Background(), paymentCountersKey).Result()
	if err != nil {
		return nil, err
	}
	totals := make(map[string]int64, len(data))
	for field, raw := range data {
		n, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			continue
		}
		totals[field] = n
	}
	return totals, nil
}

func incr(field string) error {
	return cache.GetClient().HIncrBy(context.Background(), paymentCountersKey, field, 1).Err()
}

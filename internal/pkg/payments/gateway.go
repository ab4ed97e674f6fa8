package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ClasslyHQ/Classly/internal/pkg/env"
)

// Gateway intent statuses as reported by the payment provider.
const (
	IntentStatusSucceeded      = "succeeded"
	IntentStatusProcessing     = "processing"
	IntentStatusRequiresAction = "requires_action"
	IntentStatusFailed         = "failed"
	IntentStatusCanceled       = "canceled"
)

// Intent is the gateway's handle for one in-progress charge.
type Intent struct {
	ID            string `json:"id"`
	ClientSecret  string `json:"client_secret,omitempty"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason,omitempty"`
	AmountMinor   int64  `json:"amount"`
	Currency      string `json:"currency"`
}

// AccountStatus describes a brand's connected gateway account.
type AccountStatus struct {
	ChargesEnabled     bool   `json:"charges_enabled"`
	OnboardingComplete bool   `json:"onboarding_complete"`
	ActionURL          string `json:"action_url,omitempty"`
}

// CreateIntentRequest is the input for a new payment intent.
type CreateIntentRequest struct {
	AmountMinor          int64             `json:"amount"`
	Currency             string            `json:"currency"`
	DestinationAccountID string            `json:"destination_account"`
	Metadata             map[string]string `json:"metadata,omitempty"`
}

// GatewayClient is the surface the engine needs from the external payment
// gateway. Implementations must bound every call with a timeout.
type GatewayClient interface {
	CreateIntent(ctx context.Context, req CreateIntentRequest) (*Intent, error)
	GetIntentStatus(ctx context.Context, intentID string) (*Intent, error)
	GetAccountStatus(ctx context.Context, accountID string) (*AccountStatus, error)
}

const defaultGatewayTimeout = 15 * time.Second

// HTTPGatewayClient talks to the gateway's REST API.
type HTTPGatewayClient struct {
	APIBaseURL string
	APIKey     string

	HTTPClient *http.Client
}

// NewGatewayClientFromEnv builds the gateway client from environment
// configuration.
func NewGatewayClientFromEnv() *HTTPGatewayClient {
	return &HTTPGatewayClient{
		APIBaseURL: strings.TrimRight(env.GetEnv("GATEWAY_API_BASE_URL", "https://api.gateway.example.com/v1"), "/"),
		APIKey:     strings.TrimSpace(env.GetEnv("GATEWAY_API_KEY", "")),
		HTTPClient: &http.Client{
			Timeout: defaultGatewayTimeout,
		},
	}
}

func (c *HTTPGatewayClient) CreateIntent(ctx context.Context, req CreateIntentRequest) (*Intent, error) {
	var intent Intent
	if err := c.doJSON(ctx, http.MethodPost, "/payment_intents", req, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

func (c *HTTPGatewayClient) GetIntentStatus(ctx context.Context, intentID string) (*Intent, error) {
	var intent Intent
	path := "/payment_intents/" + url.PathEscape(intentID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

func (c *HTTPGatewayClient) GetAccountStatus(ctx context.Context, accountID string) (*AccountStatus, error) {
	var status AccountStatus
	path := "/accounts/" + url.PathEscape(accountID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *HTTPGatewayClient) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode gateway request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.APIBaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultGatewayTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return wrapErr(CodeGateway, "gateway request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return wrapErr(CodeGateway, "read gateway response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return wrapErr(CodeGateway,
			fmt.Sprintf("gateway returned status %d", resp.StatusCode),
			fmt.Errorf("%s %s: %s", method, path, strings.TrimSpace(string(raw))))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return wrapErr(CodeGateway, "decode gateway response", err)
	}
	return nil
}

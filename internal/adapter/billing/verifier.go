// Package billing verifies family-plan purchase tokens against the billing
// service.
package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/fennsaji/call-shield-sub001/internal/adapter/resilient"
	"github.com/fennsaji/call-shield-sub001/internal/core/ports"
)

type Verifier struct {
	url    string
	apiKey string
	client *resilient.Client
	logger *slog.Logger
}

var _ ports.SubscriptionVerifier = (*Verifier)(nil)

func NewVerifier(url, apiKey string, cfg resilient.Config, logger *slog.Logger) *Verifier {
	return &Verifier{
		url:    url,
		apiKey: apiKey,
		client: resilient.New(cfg, logger),
		logger: logger.With("component", "billing_verifier"),
	}
}

type verifyRequest struct {
	PurchaseToken string `json:"purchase_token"`
}

type verifyResponse struct {
	Status string `json:"status"`
}

// Verify reports whether purchaseToken belongs to a live subscription.
// Tokens the billing service does not know are treated as expired.
func (v *Verifier) Verify(ctx context.Context, purchaseToken string) (ports.SubscriptionStatus, error) {
	payload, err := json.Marshal(verifyRequest{PurchaseToken: purchaseToken})
	if err != nil {
		return "", fmt.Errorf("failed to encode verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if v.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+v.apiKey)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		var se *resilient.StatusError
		if errors.As(err, &se) && (se.Code == http.StatusNotFound || se.Code == http.StatusGone) {
			return ports.SubscriptionExpired, nil
		}
		return "", fmt.Errorf("failed to verify subscription: %w", err)
	}
	defer resp.Body.Close()

	var out verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode verify response: %w", err)
	}

	switch ports.SubscriptionStatus(out.Status) {
	case ports.SubscriptionActive:
		return ports.SubscriptionActive, nil
	case ports.SubscriptionExpired:
		return ports.SubscriptionExpired, nil
	default:
		v.logger.WarnContext(ctx, "unknown subscription status", "status", out.Status)
		return ports.SubscriptionExpired, nil
	}
}

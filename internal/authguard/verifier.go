// Package authguard validates session tokens at the edge. The primary
// path is a call to the trusted identity service; a restricted
// structure-and-expiry decode exists as a fallback outside production.
package authguard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Result is the outcome of one token validation. Produced fresh per
// request and never cached, so decisions always reflect current
// revocation state.
type Result struct {
	IsValid   bool           `json:"isValid"`
	ExpiresIn int64          `json:"expiresIn"`
	Claims    map[string]any `json:"claims,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Verifier validates a token against the identity service.
type Verifier interface {
	ValidateToken(ctx context.Context, token string) (*Result, error)
}

// HTTPVerifier calls POST {base}/auth/validate-token on the identity
// service with a bounded timeout.
type HTTPVerifier struct {
	baseURL string
	client  *http.Client
}

// NewHTTPVerifier creates a verifier. timeout bounds the whole call so a
// slow identity service can never hang the pipeline.
func NewHTTPVerifier(baseURL string, timeout time.Duration) *HTTPVerifier {
	return &HTTPVerifier{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (v *HTTPVerifier) ValidateToken(ctx context.Context, token string) (*Result, error) {
	payload, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		v.baseURL+"/auth/validate-token", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verification service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("verification service: unexpected status %d", resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("verification service: decode response: %w", err)
	}
	return &result, nil
}

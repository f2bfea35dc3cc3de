package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nexhub/outreach-backend/internal/apperrors"
)

// HTTPProvider talks to a transmissions-style JSON delivery API that accepts
// a list of messages and returns a per-recipient verdict.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPProvider creates a client for the delivery API at baseURL.
func NewHTTPProvider(baseURL, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type transmissionPayload struct {
	Messages []SendRequest `json:"messages"`
}

type transmissionResponse struct {
	Results []struct {
		To        string `json:"to"`
		Status    string `json:"status"` // delivered, bounced, rejected
		MessageID string `json:"message_id"`
		Error     string `json:"error"`
	} `json:"results"`
}

// Send delivers a single message.
func (p *HTTPProvider) Send(ctx context.Context, req SendRequest) (RecipientResult, error) {
	results, err := p.SendBatch(ctx, []SendRequest{req})
	if err != nil {
		return RecipientResult{To: req.To}, err
	}
	return results[0], nil
}

// SendBatch submits every message in one API call and demultiplexes the
// per-recipient results. The returned slice always has one entry per request.
func (p *HTTPProvider) SendBatch(ctx context.Context, reqs []SendRequest) ([]RecipientResult, error) {
	if p.apiKey == "" {
		return nil, apperrors.NewProviderError("delivery API key not configured", false)
	}

	body, err := json.Marshal(transmissionPayload{Messages: reqs})
	if err != nil {
		return nil, apperrors.NewProviderError(fmt.Sprintf("encode payload: %v", err), false)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/transmissions", bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.NewProviderError(err.Error(), false)
	}
	httpReq.Header.Set("Authorization", p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		// Network failure: transient, whole call failed.
		return nil, apperrors.NewProviderError(err.Error(), true)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 400 {
		transient := isRetryableStatus(resp.StatusCode)
		return nil, apperrors.NewProviderError(
			fmt.Sprintf("delivery API returned %d: %s", resp.StatusCode, truncate(raw, 200)), transient)
	}

	var parsed transmissionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, apperrors.NewProviderError(fmt.Sprintf("decode response: %v", err), false)
	}

	byRecipient := make(map[string]RecipientResult, len(parsed.Results))
	for _, r := range parsed.Results {
		byRecipient[r.To] = RecipientResult{
			To:                r.To,
			Success:           r.Status == "delivered",
			Bounced:           r.Status == "bounced",
			ProviderMessageID: r.MessageID,
			Error:             r.Error,
		}
	}

	results := make([]RecipientResult, len(reqs))
	for i, req := range reqs {
		if r, ok := byRecipient[req.To]; ok {
			results[i] = r
			continue
		}
		// The provider omitted this recipient; treat as an individual failure
		// rather than failing the batch.
		results[i] = RecipientResult{To: req.To, Error: "no result returned by provider"}
	}
	return results, nil
}

// isRetryableStatus mirrors the usual transient set: throttling and 5xx.
// Client errors (400, 401, 403, 404) are permanent.
func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

var _ DeliveryProvider = (*HTTPProvider)(nil)

package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nexhub/outreach-backend/internal/apperrors"
)

// HTTPSource pulls contact rows from an address-book style JSON API.
type HTTPSource struct {
	name    string
	baseURL string
	client  *http.Client
}

func NewHTTPSource(name, baseURL string) *HTTPSource {
	return &HTTPSource{
		name:    name,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *HTTPSource) Name() string { return s.name }

// Validate performs a lightweight authenticated probe before any fetch.
func (s *HTTPSource) Validate(ctx context.Context, creds Credentials) error {
	if creds.APIKey == "" && creds.AuthToken == "" {
		return apperrors.NewValidation("credentials", "api key or auth token is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/me", nil)
	if err != nil {
		return apperrors.NewProviderError(err.Error(), false)
	}
	s.authorize(req, creds)

	resp, err := s.client.Do(req)
	if err != nil {
		return apperrors.NewProviderError(err.Error(), true)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return apperrors.NewValidation("credentials", "rejected by contact source")
	}
	if resp.StatusCode >= 400 {
		return apperrors.NewProviderError(fmt.Sprintf("contact source returned %d", resp.StatusCode), resp.StatusCode >= 500)
	}
	return nil
}

func (s *HTTPSource) FetchContacts(ctx context.Context, creds Credentials) ([]Record, error) {
	url := s.baseURL + "/contacts"
	if creds.SheetID != "" {
		url += "?sheet=" + creds.SheetID
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.NewProviderError(err.Error(), false)
	}
	s.authorize(req, creds)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperrors.NewProviderError(err.Error(), true)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, apperrors.NewProviderError(
			fmt.Sprintf("contact source returned %d", resp.StatusCode), resp.StatusCode >= 500)
	}

	var payload struct {
		Contacts []Record `json:"contacts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, apperrors.NewProviderError(fmt.Sprintf("decode contacts: %v", err), false)
	}
	return payload.Contacts, nil
}

func (s *HTTPSource) authorize(req *http.Request, creds Credentials) {
	if creds.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+creds.AuthToken)
		return
	}
	req.Header.Set("X-Api-Key", creds.APIKey)
}

var _ ContactSource = (*HTTPSource)(nil)

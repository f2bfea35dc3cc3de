// Package provider defines the delivery provider contract the dispatcher
// sends through, plus HTTP and SMTP implementations. A whole-call error
// (network, auth) is reported distinctly from an individual recipient
// failure, which arrives inside the per-recipient results.
package provider

import "context"

// TrackingOptions toggles provider-side engagement tracking.
type TrackingOptions struct {
	Opens  bool `json:"opens"`
	Clicks bool `json:"clicks"`
}

// SendRequest is one personalized message ready for delivery.
type SendRequest struct {
	To       string          `json:"to"`
	From     string          `json:"from"`
	Subject  string          `json:"subject"`
	HTML     string          `json:"html"`
	Tracking TrackingOptions `json:"tracking"`
}

// RecipientResult is the provider's verdict for a single recipient.
type RecipientResult struct {
	To                string `json:"to"`
	Success           bool   `json:"success"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
	Bounced           bool   `json:"bounced,omitempty"`
	Error             string `json:"error,omitempty"`
}

// DeliveryProvider is the external delivery collaborator. SendBatch returns
// one result per request in the same order; the call-level error is reserved
// for failures that affected the whole submission.
type DeliveryProvider interface {
	Send(ctx context.Context, req SendRequest) (RecipientResult, error)
	SendBatch(ctx context.Context, reqs []SendRequest) ([]RecipientResult, error)
}

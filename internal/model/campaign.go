package model

import (
	"time"

	"github.com/google/uuid"
)

// CampaignStatus is the lifecycle state of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
	CampaignFailed    CampaignStatus = "failed"
)

type Campaign struct {
	ID           uuid.UUID      `db:"id" json:"id"`
	UserID       uuid.UUID      `db:"user_id" json:"user_id"`
	Name         string         `db:"name" json:"name"`
	Status       CampaignStatus `db:"status" json:"status"`
	StartDate    *time.Time     `db:"start_date" json:"start_date,omitempty"`
	SentCount    int            `db:"sent_count" json:"sent_count"`
	OpenedCount  int            `db:"opened_count" json:"opened_count"`
	RepliedCount int            `db:"replied_count" json:"replied_count"`
	BouncedCount int            `db:"bounced_count" json:"bounced_count"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// campaignTransitions is the single source of truth for legal lifecycle moves.
var campaignTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignDraft:     {CampaignScheduled},
	CampaignScheduled: {CampaignActive, CampaignPaused},
	CampaignActive:    {CampaignPaused, CampaignCompleted, CampaignFailed},
	CampaignPaused:    {CampaignActive},
	CampaignCompleted: {},
	CampaignFailed:    {},
}

// CanTransition reports whether a campaign may move from one status to another.
func CanTransition(from, to CampaignStatus) bool {
	for _, next := range campaignTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func IsTerminal(s CampaignStatus) bool {
	return len(campaignTransitions[s]) == 0
}

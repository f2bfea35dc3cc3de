package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/nexhub/outreach-backend/internal/apperrors"
	"github.com/nexhub/outreach-backend/internal/model"
)

// FollowUpStep is one entry of a follow-up configuration. Subject and
// Content, when empty, fall back to generated defaults.
type FollowUpStep struct {
	DelayDays int    `json:"delay_days"`
	Subject   string `json:"subject,omitempty"`
	Content   string `json:"content,omitempty"`
}

// FollowUpRequest expands a campaign into future-dated follow-up messages.
type FollowUpRequest struct {
	ContactIDs []uuid.UUID    `json:"contact_ids"`
	Steps      []FollowUpStep `json:"steps"`
}

// SequenceResult reports a sequencer run.
type SequenceResult struct {
	CampaignID      uuid.UUID `json:"campaign_id"`
	MessagesCreated int       `json:"messages_created"`
	Skipped         int       `json:"skipped"`
}

// StartFollowUpSequence creates one queued message per (contact, step) pair,
// dated now + delayDays. It is a pure expansion: nothing is sent here, and
// all throttling belongs to the dispatcher. Re-invoking with the same
// configuration creates nothing new, since the (campaign, contact, sequence
// index) key already exists.
func (s *AutomationService) StartFollowUpSequence(ctx context.Context, userID, campaignID uuid.UUID, req FollowUpRequest) (*SequenceResult, error) {
	campaign, err := s.CampaignRepo.GetOwned(ctx, userID, campaignID)
	if err != nil {
		return nil, err
	}
	if model.IsTerminal(campaign.Status) {
		return nil, apperrors.NewInvalidTransition(string(campaign.Status), string(campaign.Status))
	}
	if len(req.Steps) == 0 {
		return nil, apperrors.NewValidation("steps", "at least one follow-up step is required")
	}
	for i, step := range req.Steps {
		if step.DelayDays < 1 {
			return nil, apperrors.NewValidation(fmt.Sprintf("steps[%d].delay_days", i), "must be at least 1")
		}
	}
	if len(req.ContactIDs) == 0 {
		return nil, apperrors.NewValidation("contact_ids", "at least one recipient is required")
	}

	// Only recipients the user actually owns get messages.
	contacts, err := s.ContactRepo.ListByIDs(ctx, userID, req.ContactIDs)
	if err != nil {
		return nil, err
	}
	if len(contacts) == 0 {
		return nil, apperrors.NewNotFound("contacts", "requested recipients")
	}

	now := time.Now()
	result := &SequenceResult{CampaignID: campaignID}
	for _, contact := range contacts {
		for i, step := range req.Steps {
			subject := step.Subject
			if subject == "" {
				subject = fmt.Sprintf("Follow-up %d", i+1)
			}
			content := step.Content
			if content == "" {
				content = renderPlaceholders("<p>Hi {first_name},</p><p>Just following up on my previous note.</p>", contact)
			}

			msg := &model.Message{
				CampaignID:    campaignID,
				ContactID:     contact.ID,
				SequenceIndex: i + 1, // 0 is the initial send
				Subject:       subject,
				Content:       content,
				Status:        model.MessageQueued,
				ScheduledAt:   now.Add(time.Duration(step.DelayDays) * 24 * time.Hour),
			}

			created, err := s.MessageRepo.CreateIfAbsent(ctx, msg)
			if err != nil {
				return nil, err
			}
			if created {
				result.MessagesCreated++
			} else {
				result.Skipped++
			}
		}
	}

	log.Printf("[Sequencer] campaign %s: %d follow-up messages created, %d already present",
		campaignID, result.MessagesCreated, result.Skipped)
	return result, nil
}

// EnqueueInitialSend creates the sequence-index-0 message for each recipient,
// scheduled immediately. Personalized subject and content are baked in here;
// the dispatcher never re-renders.
func (s *AutomationService) EnqueueInitialSend(ctx context.Context, userID, campaignID uuid.UUID, contactIDs []uuid.UUID, subject, content string) (*SequenceResult, error) {
	if _, err := s.CampaignRepo.GetOwned(ctx, userID, campaignID); err != nil {
		return nil, err
	}
	if subject == "" {
		return nil, apperrors.NewValidation("subject", "is required")
	}
	if content == "" {
		return nil, apperrors.NewValidation("content", "is required")
	}

	contacts, err := s.ContactRepo.ListByIDs(ctx, userID, contactIDs)
	if err != nil {
		return nil, err
	}
	if len(contacts) == 0 {
		return nil, apperrors.NewNotFound("contacts", "requested recipients")
	}

	now := time.Now()
	result := &SequenceResult{CampaignID: campaignID}
	for _, contact := range contacts {
		msg := &model.Message{
			CampaignID:    campaignID,
			ContactID:     contact.ID,
			SequenceIndex: 0,
			Subject:       renderPlaceholders(subject, contact),
			Content:       renderPlaceholders(content, contact),
			Status:        model.MessageQueued,
			ScheduledAt:   now,
		}
		created, err := s.MessageRepo.CreateIfAbsent(ctx, msg)
		if err != nil {
			return nil, err
		}
		if created {
			result.MessagesCreated++
		} else {
			result.Skipped++
		}
	}
	return result, nil
}

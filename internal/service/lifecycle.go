package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/nexhub/outreach-backend/internal/apperrors"
	"github.com/nexhub/outreach-backend/internal/model"
	"github.com/nexhub/outreach-backend/internal/queue"
	"github.com/nexhub/outreach-backend/internal/repository"
)

// AutomationService owns the campaign lifecycle and the operations the
// surrounding application calls into. Every operation takes the requesting
// user and checks ownership before touching state.
type AutomationService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	MessageRepo  repository.MessageRepositoryInterface
	ContactRepo  repository.ContactRepositoryInterface
	Queue        queue.Queue
}

// ScheduleResult reports a successful scheduling.
type ScheduleResult struct {
	CampaignID uuid.UUID `json:"campaign_id"`
	Status     string    `json:"status"`
	StartDate  time.Time `json:"start_date"`
}

// PauseResumeResult reports how many messages moved with the campaign.
type PauseResumeResult struct {
	CampaignID      uuid.UUID `json:"campaign_id"`
	Status          string    `json:"status"`
	MessagesFlipped int64     `json:"messages_flipped"`
}

// AutomationStatus is the campaign view returned to the surrounding app.
type AutomationStatus struct {
	CampaignID   uuid.UUID                   `json:"campaign_id"`
	Name         string                      `json:"name"`
	Status       model.CampaignStatus        `json:"status"`
	StartDate    *time.Time                  `json:"start_date,omitempty"`
	SentCount    int                         `json:"sent_count"`
	BouncedCount int                         `json:"bounced_count"`
	MessageStats map[model.MessageStatus]int `json:"message_stats"`
}

// ScheduleCampaign moves a draft campaign to scheduled for a strictly future
// start. Re-scheduling is idempotent only while the campaign is still
// scheduled; an active campaign cannot be re-scheduled.
func (s *AutomationService) ScheduleCampaign(ctx context.Context, userID, campaignID uuid.UUID, when time.Time) (*ScheduleResult, error) {
	campaign, err := s.CampaignRepo.GetOwned(ctx, userID, campaignID)
	if err != nil {
		return nil, err
	}

	if !when.After(time.Now()) {
		return nil, apperrors.NewInvalidSchedule(when, "start must be in the future")
	}

	switch campaign.Status {
	case model.CampaignDraft:
		ok, err := s.CampaignRepo.Transition(ctx, campaignID, model.CampaignDraft, model.CampaignScheduled)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Someone else moved it between our read and the update.
			return nil, apperrors.NewInvalidTransition(string(campaign.Status), string(model.CampaignScheduled))
		}
	case model.CampaignScheduled:
		// Re-scheduling a still-scheduled campaign just moves the date.
	default:
		return nil, apperrors.NewInvalidTransition(string(campaign.Status), string(model.CampaignScheduled))
	}

	if err := s.CampaignRepo.SetSchedule(ctx, campaignID, when); err != nil {
		return nil, err
	}

	log.Printf("[Automation] campaign %s scheduled for %s", campaignID, when.Format(time.RFC3339))
	return &ScheduleResult{
		CampaignID: campaignID,
		Status:     string(model.CampaignScheduled),
		StartDate:  when,
	}, nil
}

// PauseAutomation stops a campaign and its queued messages as one atomic
// unit, so messages cannot keep firing under a paused campaign.
func (s *AutomationService) PauseAutomation(ctx context.Context, userID, campaignID uuid.UUID) (*PauseResumeResult, error) {
	campaign, err := s.CampaignRepo.GetOwned(ctx, userID, campaignID)
	if err != nil {
		return nil, err
	}
	if !model.CanTransition(campaign.Status, model.CampaignPaused) {
		return nil, apperrors.NewInvalidTransition(string(campaign.Status), string(model.CampaignPaused))
	}

	flipped, err := s.CampaignRepo.PauseWithMessages(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	log.Printf("[Automation] campaign %s paused, %d messages held", campaignID, flipped)
	return &PauseResumeResult{
		CampaignID:      campaignID,
		Status:          string(model.CampaignPaused),
		MessagesFlipped: flipped,
	}, nil
}

// ResumeAutomation is the inverse of pause. scheduled_at is not advanced, so
// messages that were overdue before the pause become eligible immediately.
func (s *AutomationService) ResumeAutomation(ctx context.Context, userID, campaignID uuid.UUID) (*PauseResumeResult, error) {
	campaign, err := s.CampaignRepo.GetOwned(ctx, userID, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != model.CampaignPaused {
		return nil, apperrors.NewInvalidTransition(string(campaign.Status), string(model.CampaignActive))
	}

	flipped, err := s.CampaignRepo.ResumeWithMessages(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	if s.Queue != nil {
		if err := s.Queue.PublishDispatch(queue.DispatchJob{CampaignID: campaignID, UserID: userID}); err != nil {
			log.Printf("[Automation] failed to enqueue dispatch for resumed campaign %s: %v", campaignID, err)
		}
	}

	log.Printf("[Automation] campaign %s resumed, %d messages released", campaignID, flipped)
	return &PauseResumeResult{
		CampaignID:      campaignID,
		Status:          string(model.CampaignActive),
		MessagesFlipped: flipped,
	}, nil
}

// ActivateDueCampaigns promotes scheduled campaigns whose start date has
// arrived and enqueues a dispatch job for each. Called by the worker loop.
func (s *AutomationService) ActivateDueCampaigns(ctx context.Context, limit int) (int, error) {
	due, err := s.CampaignRepo.ListDueScheduled(ctx, time.Now(), limit)
	if err != nil {
		return 0, err
	}

	activated := 0
	for _, campaign := range due {
		ok, err := s.CampaignRepo.Transition(ctx, campaign.ID, model.CampaignScheduled, model.CampaignActive)
		if err != nil {
			log.Printf("[Automation] activate %s: %v", campaign.ID, err)
			continue
		}
		if !ok {
			continue // claimed by another worker
		}
		activated++

		if s.Queue != nil {
			if err := s.Queue.PublishDispatch(queue.DispatchJob{CampaignID: campaign.ID, UserID: campaign.UserID}); err != nil {
				log.Printf("[Automation] enqueue dispatch for %s: %v", campaign.ID, err)
			}
		}
	}
	return activated, nil
}

// GetAutomationStatus returns the campaign plus its per-status message
// counts.
func (s *AutomationService) GetAutomationStatus(ctx context.Context, userID, campaignID uuid.UUID) (*AutomationStatus, error) {
	campaign, err := s.CampaignRepo.GetOwned(ctx, userID, campaignID)
	if err != nil {
		return nil, err
	}

	stats, err := s.MessageRepo.StatusCounts(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	return &AutomationStatus{
		CampaignID:   campaign.ID,
		Name:         campaign.Name,
		Status:       campaign.Status,
		StartDate:    campaign.StartDate,
		SentCount:    campaign.SentCount,
		BouncedCount: campaign.BouncedCount,
		MessageStats: stats,
	}, nil
}

// GetExecutionQueue returns the campaign's upcoming queued messages in
// dispatch order.
func (s *AutomationService) GetExecutionQueue(ctx context.Context, userID, campaignID uuid.UUID, limit int) ([]*model.Message, error) {
	if _, err := s.CampaignRepo.GetOwned(ctx, userID, campaignID); err != nil {
		return nil, err
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.MessageRepo.ListQueued(ctx, campaignID, limit)
}

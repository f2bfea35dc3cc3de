package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/nexhub/outreach-backend/internal/apperrors"
	"github.com/nexhub/outreach-backend/internal/model"
	"github.com/nexhub/outreach-backend/internal/provider"
	"github.com/nexhub/outreach-backend/internal/repository"
	"github.com/nexhub/outreach-backend/internal/retry"
)

const (
	DefaultDispatchBatchSize = 10
	DefaultInterBatchDelay   = time.Second
)

// Admitter gates send attempts per actor. Satisfied by ratelimit.Limiter;
// injected as an interface so the limiter stays an explicitly constructed
// component rather than ambient state.
type Admitter interface {
	Allow(ctx context.Context, key string, n int) (allowed bool, retryAfter time.Duration, err error)
}

// Dispatcher drains due messages for a campaign, batch by batch, through the
// delivery provider. Batches run strictly sequentially per campaign with a
// fixed delay between them; that delay is deliberate backpressure on the
// provider, independent of the rate limiter.
type Dispatcher struct {
	CampaignRepo repository.CampaignRepositoryInterface
	MessageRepo  repository.MessageRepositoryInterface
	ContactRepo  repository.ContactRepositoryInterface
	Provider     provider.DeliveryProvider
	Limiter      Admitter

	FromAddress     string
	BatchSize       int
	InterBatchDelay time.Duration
	SendMaxAttempts int
	SendBaseDelay   time.Duration
}

// DispatchSummary reports one full drain of a campaign's due messages.
type DispatchSummary struct {
	CampaignID uuid.UUID `json:"campaign_id"`
	Processed  int       `json:"processed"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Bounced    int       `json:"bounced"`
	Completed  bool      `json:"completed"`
}

func (d *Dispatcher) batchSize() int {
	if d.BatchSize > 0 {
		return d.BatchSize
	}
	return DefaultDispatchBatchSize
}

// pullLimit is the due-query batch size, clamped to the admitter's ceiling
// when it exposes one. Since a denied admission consumes no budget, a pull
// larger than the ceiling would be denied in every window, fresh or not, and
// the drain would never make progress.
func (d *Dispatcher) pullLimit() int {
	size := d.batchSize()
	if c, ok := d.Limiter.(interface{ Ceiling() int }); ok {
		if ceiling := c.Ceiling(); ceiling >= 1 && size > ceiling {
			size = ceiling
		}
	}
	return size
}

func (d *Dispatcher) interBatchDelay() time.Duration {
	if d.InterBatchDelay > 0 {
		return d.InterBatchDelay
	}
	return DefaultInterBatchDelay
}

func (d *Dispatcher) retryOptions() retry.Options {
	attempts := d.SendMaxAttempts
	if attempts < 1 {
		attempts = 3
	}
	base := d.SendBaseDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	return retry.Options{
		MaxAttempts: attempts,
		BaseDelay:   base,
		ShouldRetry: func(err error, attempt int) bool {
			return apperrors.IsTransient(err)
		},
	}
}

// DispatchCampaign drains every currently due message for the campaign. The
// campaign status is re-read before each batch, so flipping it to paused
// stops the drain at the next batch boundary; there is no mid-batch
// cancellation beyond the context.
func (d *Dispatcher) DispatchCampaign(ctx context.Context, userID, campaignID uuid.UUID) (*DispatchSummary, error) {
	summary := &DispatchSummary{CampaignID: campaignID}

	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		campaign, err := d.CampaignRepo.GetOwned(ctx, userID, campaignID)
		if err != nil {
			return summary, err
		}
		if campaign.Status != model.CampaignActive {
			log.Printf("[Dispatcher] campaign %s is %s, not pulling next batch", campaignID, campaign.Status)
			return summary, nil
		}

		batch, err := d.MessageRepo.DueForCampaign(ctx, campaignID, time.Now(), d.pullLimit())
		if err != nil {
			return summary, err
		}
		if len(batch) == 0 {
			completed, err := d.maybeComplete(ctx, campaignID)
			if err != nil {
				return summary, err
			}
			summary.Completed = completed
			return summary, nil
		}

		// Admission is keyed per actor so one user's volume cannot starve
		// another's allowance. On denial we wait out the window rather than
		// dropping the batch.
		allowed, retryAfter, err := d.Limiter.Allow(ctx, userID.String(), len(batch))
		if err != nil {
			return summary, err
		}
		if !allowed {
			log.Printf("[Dispatcher] rate limited for user %s, waiting %s", userID, retryAfter)
			if err := sleepCtx(ctx, retryAfter); err != nil {
				return summary, err
			}
			continue
		}

		if err := d.dispatchBatch(ctx, userID, batch, summary); err != nil {
			var pe *apperrors.ProviderError
			if errors.As(err, &pe) && !pe.Transient {
				// Unrecoverable configuration error (e.g. permanently bad
				// auth): the campaign itself fails.
				if _, terr := d.CampaignRepo.Transition(ctx, campaignID, model.CampaignActive, model.CampaignFailed); terr != nil {
					log.Printf("[Dispatcher] failed to mark campaign %s failed: %v", campaignID, terr)
				}
				return summary, err
			}
			return summary, err
		}

		// Deliberate throttle between batches, even when under the ceiling.
		if err := sleepCtx(ctx, d.interBatchDelay()); err != nil {
			return summary, err
		}
	}
}

// dispatchBatch sends one batch and records per-message outcomes. Whatever
// happens, no message is left in processing.
func (d *Dispatcher) dispatchBatch(ctx context.Context, userID uuid.UUID, batch []*model.Message, summary *DispatchSummary) error {
	ids := make([]uuid.UUID, len(batch))
	for i, m := range batch {
		ids[i] = m.ID
	}
	if err := d.MessageRepo.MarkProcessing(ctx, ids); err != nil {
		return err
	}

	contacts, err := d.contactsFor(ctx, userID, batch)
	if err != nil {
		d.failBatch(ctx, batch, nil, "contact lookup failed: "+err.Error(), summary)
		return err
	}

	reqs := make([]provider.SendRequest, 0, len(batch))
	sendable := make([]*model.Message, 0, len(batch))
	for _, m := range batch {
		contact, ok := contacts[m.ContactID]
		if !ok {
			// Contact was deleted after enqueue; a business failure for this
			// message only.
			if err := d.MessageRepo.MarkFailed(ctx, m.ID, "contact no longer exists"); err != nil {
				log.Printf("[Dispatcher] mark failed %s: %v", m.ID, err)
			}
			summary.Processed++
			summary.Failed++
			continue
		}
		reqs = append(reqs, provider.SendRequest{
			To:       contact.Email,
			From:     d.FromAddress,
			Subject:  m.Subject,
			HTML:     m.Content,
			Tracking: provider.TrackingOptions{Opens: true, Clicks: true},
		})
		sendable = append(sendable, m)
	}
	if len(sendable) == 0 {
		return nil
	}

	results, err := d.send(ctx, reqs)
	if err != nil {
		// The whole call failed (network/outage/auth) even after retries:
		// every unmarked message takes the batch-level error.
		d.failBatch(ctx, sendable, nil, err.Error(), summary)
		return err
	}

	marked := make(map[uuid.UUID]bool, len(sendable))
	sentByCampaign := 0
	bouncedByCampaign := 0
	for i, res := range results {
		m := sendable[i]
		marked[m.ID] = true
		summary.Processed++

		switch {
		case res.Success:
			if err := d.MessageRepo.MarkSent(ctx, m.ID, time.Now()); err != nil {
				log.Printf("[Dispatcher] mark sent %s: %v", m.ID, err)
				continue
			}
			if err := d.ContactRepo.IncrementEmailsSent(ctx, m.ContactID); err != nil {
				log.Printf("[Dispatcher] increment sends for %s: %v", m.ContactID, err)
			}
			summary.Succeeded++
			sentByCampaign++
		case res.Bounced:
			if err := d.MessageRepo.MarkBounced(ctx, m.ID, res.Error); err != nil {
				log.Printf("[Dispatcher] mark bounced %s: %v", m.ID, err)
				continue
			}
			if err := d.ContactRepo.IncrementBounces(ctx, m.ContactID); err != nil {
				log.Printf("[Dispatcher] increment bounces for %s: %v", m.ContactID, err)
			}
			summary.Bounced++
			bouncedByCampaign++
		default:
			// Individual business failure (invalid address and the like): no
			// retry inside the batch.
			reason := res.Error
			if reason == "" {
				reason = "rejected by provider"
			}
			if err := d.MessageRepo.MarkFailed(ctx, m.ID, reason); err != nil {
				log.Printf("[Dispatcher] mark failed %s: %v", m.ID, err)
				continue
			}
			summary.Failed++
		}
	}

	// Defensive sweep: a short provider result list must not strand rows.
	d.failBatch(ctx, sendable, marked, "no provider result", summary)

	if sentByCampaign > 0 || bouncedByCampaign > 0 {
		if err := d.CampaignRepo.IncrementCounters(ctx, sendable[0].CampaignID, sentByCampaign, bouncedByCampaign); err != nil {
			log.Printf("[Dispatcher] increment campaign counters: %v", err)
		}
	}
	return nil
}

// send wraps the provider call in the retry executor. Size-1 batches go
// through the individual send path.
func (d *Dispatcher) send(ctx context.Context, reqs []provider.SendRequest) ([]provider.RecipientResult, error) {
	var results []provider.RecipientResult
	err := retry.Do(ctx, d.retryOptions(), func(ctx context.Context) error {
		var callErr error
		if len(reqs) == 1 {
			var res provider.RecipientResult
			res, callErr = d.Provider.Send(ctx, reqs[0])
			results = []provider.RecipientResult{res}
		} else {
			results, callErr = d.Provider.SendBatch(ctx, reqs)
		}
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (d *Dispatcher) contactsFor(ctx context.Context, userID uuid.UUID, batch []*model.Message) (map[uuid.UUID]*model.Contact, error) {
	seen := make(map[uuid.UUID]bool, len(batch))
	ids := make([]uuid.UUID, 0, len(batch))
	for _, m := range batch {
		if !seen[m.ContactID] {
			seen[m.ContactID] = true
			ids = append(ids, m.ContactID)
		}
	}

	var contacts []*model.Contact
	err := retry.Do(ctx, d.retryOptions(), func(ctx context.Context) error {
		var lerr error
		contacts, lerr = d.ContactRepo.ListByIDs(ctx, userID, ids)
		return lerr
	})
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]*model.Contact, len(contacts))
	for _, c := range contacts {
		byID[c.ID] = c
	}
	return byID, nil
}

// failBatch marks every message not in marked as failed with reason.
func (d *Dispatcher) failBatch(ctx context.Context, batch []*model.Message, marked map[uuid.UUID]bool, reason string, summary *DispatchSummary) {
	for _, m := range batch {
		if marked != nil && marked[m.ID] {
			continue
		}
		if err := d.MessageRepo.MarkFailed(ctx, m.ID, reason); err != nil {
			log.Printf("[Dispatcher] mark failed %s: %v", m.ID, err)
			continue
		}
		summary.Processed++
		summary.Failed++
	}
}

// maybeComplete advances the campaign once nothing is in flight and at least
// one message reached a terminal state. Individual bounces never fail a
// campaign.
func (d *Dispatcher) maybeComplete(ctx context.Context, campaignID uuid.UUID) (bool, error) {
	counts, err := d.MessageRepo.StatusCounts(ctx, campaignID)
	if err != nil {
		return false, err
	}

	if counts[model.MessageQueued] > 0 || counts[model.MessageProcessing] > 0 || counts[model.MessagePaused] > 0 {
		return false, nil
	}
	terminal := counts[model.MessageSent] + counts[model.MessageFailed] + counts[model.MessageBounced]
	if terminal == 0 {
		return false, nil
	}

	ok, err := d.CampaignRepo.Transition(ctx, campaignID, model.CampaignActive, model.CampaignCompleted)
	if err != nil {
		return false, err
	}
	if ok {
		log.Printf("[Dispatcher] campaign %s completed (%d terminal messages)", campaignID, terminal)
	}
	return ok, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

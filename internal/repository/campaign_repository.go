package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/nexhub/outreach-backend/internal/apperrors"
	"github.com/nexhub/outreach-backend/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(ctx context.Context, c *model.Campaign) error
	GetOwned(ctx context.Context, userID, id uuid.UUID) (*model.Campaign, error)
	// Transition performs a conditional status update; it reports false when
	// the campaign was not in the expected state (lost race or stale read).
	Transition(ctx context.Context, id uuid.UUID, from, to model.CampaignStatus) (bool, error)
	SetSchedule(ctx context.Context, id uuid.UUID, when time.Time) error
	// PauseWithMessages and ResumeWithMessages flip the campaign and its
	// queued/paused messages in one transaction, so a concurrent dispatcher
	// pass observes either the pre-pause or post-pause state, never a mix.
	PauseWithMessages(ctx context.Context, id uuid.UUID) (int64, error)
	ResumeWithMessages(ctx context.Context, id uuid.UUID) (int64, error)
	IncrementCounters(ctx context.Context, id uuid.UUID, sent, bounced int) error
	ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]*model.Campaign, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, user_id, name, status, start_date,
	sent_count, opened_count, replied_count, bounced_count, created_at, updated_at`

func scanCampaign(row interface{ Scan(...any) error }) (*model.Campaign, error) {
	var c model.Campaign
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Status, &c.StartDate,
		&c.SentCount, &c.OpenedCount, &c.RepliedCount, &c.BouncedCount,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt

	query := `
        INSERT INTO campaigns (id, user_id, name, status, start_date, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $6)
    `
	_, err := r.DB.ExecContext(ctx, query, c.ID, c.UserID, c.Name, c.Status, c.StartDate, c.CreatedAt)
	if err != nil {
		return apperrors.NewPersistence("campaign create", err, true)
	}
	return nil
}

// GetOwned fetches a campaign only if it belongs to userID. A foreign
// campaign is indistinguishable from a missing one.
func (r *CampaignRepository) GetOwned(ctx context.Context, userID, id uuid.UUID) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1 AND user_id=$2`
	c, err := scanCampaign(r.DB.QueryRowContext(ctx, query, id, userID))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFound("campaign", id.String())
	}
	if err != nil {
		return nil, apperrors.NewPersistence("campaign get", err, true)
	}
	return c, nil
}

func (r *CampaignRepository) Transition(ctx context.Context, id uuid.UUID, from, to model.CampaignStatus) (bool, error) {
	query := `UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2 AND status=$3`
	res, err := r.DB.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return false, apperrors.NewPersistence("campaign transition", err, true)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.NewPersistence("campaign transition", err, true)
	}
	return n == 1, nil
}

func (r *CampaignRepository) SetSchedule(ctx context.Context, id uuid.UUID, when time.Time) error {
	query := `UPDATE campaigns SET start_date=$1, updated_at=NOW() WHERE id=$2`
	_, err := r.DB.ExecContext(ctx, query, when, id)
	if err != nil {
		return apperrors.NewPersistence("campaign set schedule", err, true)
	}
	return nil
}

func (r *CampaignRepository) PauseWithMessages(ctx context.Context, id uuid.UUID) (int64, error) {
	return r.flipWithMessages(ctx, id,
		model.CampaignActive, model.CampaignPaused,
		model.MessageQueued, model.MessagePaused)
}

func (r *CampaignRepository) ResumeWithMessages(ctx context.Context, id uuid.UUID) (int64, error) {
	// scheduled_at is deliberately left untouched: overdue messages become
	// immediately eligible again.
	return r.flipWithMessages(ctx, id,
		model.CampaignPaused, model.CampaignActive,
		model.MessagePaused, model.MessageQueued)
}

func (r *CampaignRepository) flipWithMessages(ctx context.Context, id uuid.UUID,
	campFrom, campTo model.CampaignStatus, msgFrom, msgTo model.MessageStatus) (int64, error) {

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperrors.NewPersistence("campaign flip begin", err, true)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2 AND status=$3`,
		campTo, id, campFrom)
	if err != nil {
		return 0, apperrors.NewPersistence("campaign flip", err, true)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Campaign moved out from under us; neither side takes effect.
		return 0, apperrors.NewInvalidTransition(string(campFrom), string(campTo))
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE messages SET status=$1, updated_at=NOW() WHERE campaign_id=$2 AND status=$3`,
		msgTo, id, msgFrom)
	if err != nil {
		return 0, apperrors.NewPersistence("campaign flip messages", err, true)
	}
	flipped, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, apperrors.NewPersistence("campaign flip commit", err, true)
	}
	return flipped, nil
}

func (r *CampaignRepository) IncrementCounters(ctx context.Context, id uuid.UUID, sent, bounced int) error {
	if sent == 0 && bounced == 0 {
		return nil
	}
	query := `
        UPDATE campaigns
        SET sent_count = sent_count + $1,
            bounced_count = bounced_count + $2,
            updated_at = NOW()
        WHERE id = $3
    `
	_, err := r.DB.ExecContext(ctx, query, sent, bounced, id)
	if err != nil {
		return apperrors.NewPersistence("campaign increment counters", err, true)
	}
	return nil
}

// ListDueScheduled returns scheduled campaigns whose start date has arrived.
func (r *CampaignRepository) ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + `
        FROM campaigns
        WHERE status=$1 AND start_date IS NOT NULL AND start_date <= $2
        ORDER BY start_date ASC
        LIMIT $3`
	rows, err := r.DB.QueryContext(ctx, query, model.CampaignScheduled, now, limit)
	if err != nil {
		return nil, apperrors.NewPersistence("campaign list due", err, true)
	}
	defer rows.Close()

	var due []*model.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, apperrors.NewPersistence("campaign list due scan", err, false)
		}
		due = append(due, c)
	}
	return due, rows.Err()
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)

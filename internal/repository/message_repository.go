package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/nexhub/outreach-backend/internal/apperrors"
	"github.com/nexhub/outreach-backend/internal/model"
)

type MessageRepositoryInterface interface {
	// CreateIfAbsent inserts a message unless one already exists for the same
	// (campaign, contact, sequence index) natural key. Reports whether a row
	// was actually inserted.
	CreateIfAbsent(ctx context.Context, m *model.Message) (bool, error)
	DueForCampaign(ctx context.Context, campaignID uuid.UUID, now time.Time, limit int) ([]*model.Message, error)
	MarkProcessing(ctx context.Context, ids []uuid.UUID) error
	MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	MarkBounced(ctx context.Context, id uuid.UUID, reason string) error
	StatusCounts(ctx context.Context, campaignID uuid.UUID) (map[model.MessageStatus]int, error)
	ListQueued(ctx context.Context, campaignID uuid.UUID, limit int) ([]*model.Message, error)
	IDsByStatus(ctx context.Context, campaignID uuid.UUID, status model.MessageStatus) ([]uuid.UUID, error)
}

type MessageRepository struct {
	DB *sql.DB
}

const messageColumns = `id, campaign_id, contact_id, sequence_index, subject, content,
	status, scheduled_at, sent_at, retry_count, last_error, created_at, updated_at`

func scanMessage(row interface{ Scan(...any) error }) (*model.Message, error) {
	var m model.Message
	err := row.Scan(&m.ID, &m.CampaignID, &m.ContactID, &m.SequenceIndex,
		&m.Subject, &m.Content, &m.Status, &m.ScheduledAt, &m.SentAt,
		&m.RetryCount, &m.LastError, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MessageRepository) CreateIfAbsent(ctx context.Context, m *model.Message) (bool, error) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Status == "" {
		m.Status = model.MessageQueued
	}
	now := time.Now()
	m.CreatedAt = now
	m.UpdatedAt = now

	// Blind re-expansion is the single most likely source of duplicate
	// sends, so the natural key is enforced at the database level.
	query := `
        INSERT INTO messages
        (id, campaign_id, contact_id, sequence_index, subject, content, status, scheduled_at, retry_count, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $9)
        ON CONFLICT (campaign_id, contact_id, sequence_index) DO NOTHING
    `
	res, err := r.DB.ExecContext(ctx, query,
		m.ID, m.CampaignID, m.ContactID, m.SequenceIndex,
		m.Subject, m.Content, m.Status, m.ScheduledAt, now)
	if err != nil {
		return false, apperrors.NewPersistence("message create", err, true)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.NewPersistence("message create", err, true)
	}
	return n == 1, nil
}

// DueForCampaign selects dispatch-eligible messages in time order.
func (r *MessageRepository) DueForCampaign(ctx context.Context, campaignID uuid.UUID, now time.Time, limit int) ([]*model.Message, error) {
	query := `SELECT ` + messageColumns + `
        FROM messages
        WHERE campaign_id=$1 AND status=$2 AND scheduled_at <= $3
        ORDER BY scheduled_at ASC
        LIMIT $4`
	rows, err := r.DB.QueryContext(ctx, query, campaignID, model.MessageQueued, now, limit)
	if err != nil {
		return nil, apperrors.NewPersistence("message due query", err, true)
	}
	defer rows.Close()

	var due []*model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, apperrors.NewPersistence("message due scan", err, false)
		}
		due = append(due, m)
	}
	return due, rows.Err()
}

func (r *MessageRepository) MarkProcessing(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	query := `UPDATE messages SET status=$1, updated_at=NOW() WHERE id = ANY($2) AND status=$3`
	_, err := r.DB.ExecContext(ctx, query, model.MessageProcessing, pq.Array(ids), model.MessageQueued)
	if err != nil {
		return apperrors.NewPersistence("message mark processing", err, true)
	}
	return nil
}

func (r *MessageRepository) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	// sent_at is set once; a replayed update must not move it.
	query := `
        UPDATE messages
        SET status=$1, sent_at=COALESCE(sent_at, $2), last_error='', updated_at=NOW()
        WHERE id=$3
    `
	_, err := r.DB.ExecContext(ctx, query, model.MessageSent, sentAt, id)
	if err != nil {
		return apperrors.NewPersistence("message mark sent", err, true)
	}
	return nil
}

func (r *MessageRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
        UPDATE messages
        SET status=$1, last_error=$2, retry_count=retry_count+1, updated_at=NOW()
        WHERE id=$3
    `
	_, err := r.DB.ExecContext(ctx, query, model.MessageFailed, reason, id)
	if err != nil {
		return apperrors.NewPersistence("message mark failed", err, true)
	}
	return nil
}

func (r *MessageRepository) MarkBounced(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
        UPDATE messages
        SET status=$1, last_error=$2, updated_at=NOW()
        WHERE id=$3
    `
	_, err := r.DB.ExecContext(ctx, query, model.MessageBounced, reason, id)
	if err != nil {
		return apperrors.NewPersistence("message mark bounced", err, true)
	}
	return nil
}

func (r *MessageRepository) StatusCounts(ctx context.Context, campaignID uuid.UUID) (map[model.MessageStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM messages WHERE campaign_id=$1 GROUP BY status`
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, apperrors.NewPersistence("message status counts", err, true)
	}
	defer rows.Close()

	counts := map[model.MessageStatus]int{
		model.MessageQueued:     0,
		model.MessageProcessing: 0,
		model.MessageSent:       0,
		model.MessageFailed:     0,
		model.MessagePaused:     0,
		model.MessageBounced:    0,
	}
	for rows.Next() {
		var status model.MessageStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, apperrors.NewPersistence("message status counts scan", err, false)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// ListQueued returns the upcoming execution queue in scheduled order.
func (r *MessageRepository) ListQueued(ctx context.Context, campaignID uuid.UUID, limit int) ([]*model.Message, error) {
	query := `SELECT ` + messageColumns + `
        FROM messages
        WHERE campaign_id=$1 AND status=$2
        ORDER BY scheduled_at ASC
        LIMIT $3`
	rows, err := r.DB.QueryContext(ctx, query, campaignID, model.MessageQueued, limit)
	if err != nil {
		return nil, apperrors.NewPersistence("message list queued", err, true)
	}
	defer rows.Close()

	var msgs []*model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, apperrors.NewPersistence("message list queued scan", err, false)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (r *MessageRepository) IDsByStatus(ctx context.Context, campaignID uuid.UUID, status model.MessageStatus) ([]uuid.UUID, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id FROM messages WHERE campaign_id=$1 AND status=$2`, campaignID, status)
	if err != nil {
		return nil, apperrors.NewPersistence("message ids by status", err, true)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.NewPersistence("message ids scan", err, false)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

var _ MessageRepositoryInterface = (*MessageRepository)(nil)

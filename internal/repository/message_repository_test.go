package repository_test

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexhub/outreach-backend/internal/model"
	"github.com/nexhub/outreach-backend/internal/repository"
)

func messageRows(msgs ...*model.Message) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "campaign_id", "contact_id", "sequence_index", "subject", "content",
		"status", "scheduled_at", "sent_at", "retry_count", "last_error",
		"created_at", "updated_at",
	})
	for _, m := range msgs {
		rows.AddRow(m.ID, m.CampaignID, m.ContactID, m.SequenceIndex, m.Subject,
			m.Content, m.Status, m.ScheduledAt, m.SentAt, m.RetryCount,
			m.LastError, m.CreatedAt, m.UpdatedAt)
	}
	return rows
}

func TestCreateIfAbsentInserts(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &repository.MessageRepository{DB: db}

	m := &model.Message{
		CampaignID:  uuid.New(),
		ContactID:   uuid.New(),
		Subject:     "hello",
		Content:     "<p>hi</p>",
		ScheduledAt: time.Now(),
	}

	mock.ExpectExec(`INSERT INTO messages`).
		WithArgs(sqlmock.AnyArg(), m.CampaignID, m.ContactID, 0, m.Subject,
			m.Content, model.MessageQueued, m.ScheduledAt, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	created, err := repo.CreateIfAbsent(context.Background(), m)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, uuid.Nil, m.ID)
}

func TestCreateIfAbsentConflictIsNotAnError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &repository.MessageRepository{DB: db}

	m := &model.Message{
		CampaignID:    uuid.New(),
		ContactID:     uuid.New(),
		SequenceIndex: 2,
		Subject:       "Follow-up 2",
		Content:       "<p>again</p>",
		ScheduledAt:   time.Now(),
	}

	// ON CONFLICT DO NOTHING: zero rows affected signals the duplicate.
	mock.ExpectExec(`INSERT INTO messages`).
		WithArgs(sqlmock.AnyArg(), m.CampaignID, m.ContactID, 2, m.Subject,
			m.Content, model.MessageQueued, m.ScheduledAt, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := repo.CreateIfAbsent(context.Background(), m)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestDueForCampaignSelectsEligibleInOrder(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &repository.MessageRepository{DB: db}

	campaignID := uuid.New()
	now := time.Now()
	m := &model.Message{
		ID: uuid.New(), CampaignID: campaignID, ContactID: uuid.New(),
		Subject: "s", Content: "c", Status: model.MessageQueued,
		ScheduledAt: now.Add(-time.Minute), CreatedAt: now, UpdatedAt: now,
	}

	mock.ExpectQuery(`SELECT .+ FROM messages WHERE campaign_id=\$1 AND status=\$2 AND scheduled_at <= \$3 ORDER BY scheduled_at ASC LIMIT \$4`).
		WithArgs(campaignID, model.MessageQueued, now, 10).
		WillReturnRows(messageRows(m))

	due, err := repo.DueForCampaign(context.Background(), campaignID, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, m.ID, due[0].ID)
}

func TestMarkProcessingOnlyMovesQueuedRows(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &repository.MessageRepository{DB: db}

	ids := []uuid.UUID{uuid.New(), uuid.New()}
	mock.ExpectExec(`UPDATE messages SET status=\$1, updated_at=NOW\(\) WHERE id = ANY\(\$2\) AND status=\$3`).
		WithArgs(model.MessageProcessing, sqlmock.AnyArg(), model.MessageQueued).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.MarkProcessing(context.Background(), ids))
}

func TestMarkProcessingNoopOnEmptyBatch(t *testing.T) {
	db, _ := newMockDB(t)
	repo := &repository.MessageRepository{DB: db}
	// No expectation set: an empty batch must not touch the database.
	require.NoError(t, repo.MarkProcessing(context.Background(), nil))
}

func TestMarkSentPreservesFirstSentAt(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &repository.MessageRepository{DB: db}

	id := uuid.New()
	sentAt := time.Now()
	mock.ExpectExec(`SET status=\$1, sent_at=COALESCE\(sent_at, \$2\), last_error='', updated_at=NOW\(\)`).
		WithArgs(model.MessageSent, sentAt, id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkSent(context.Background(), id, sentAt))
}

func TestMarkFailedBumpsRetryCount(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &repository.MessageRepository{DB: db}

	id := uuid.New()
	mock.ExpectExec(`SET status=\$1, last_error=\$2, retry_count=retry_count\+1`).
		WithArgs(model.MessageFailed, "gateway timeout", id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkFailed(context.Background(), id, "gateway timeout"))
}

func TestStatusCountsZeroFillsAllStatuses(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &repository.MessageRepository{DB: db}

	campaignID := uuid.New()
	mock.ExpectQuery(`SELECT status, COUNT\(\*\) FROM messages WHERE campaign_id=\$1 GROUP BY status`).
		WithArgs(campaignID).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow(model.MessageSent, 5).
			AddRow(model.MessageFailed, 1))

	counts, err := repo.StatusCounts(context.Background(), campaignID)
	require.NoError(t, err)
	assert.Equal(t, 5, counts[model.MessageSent])
	assert.Equal(t, 1, counts[model.MessageFailed])
	// Absent statuses are present with explicit zeros.
	assert.Contains(t, counts, model.MessageQueued)
	assert.Equal(t, 0, counts[model.MessageQueued])
	assert.Len(t, counts, 6)
}

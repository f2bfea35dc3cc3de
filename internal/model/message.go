package model

import (
	"time"

	"github.com/google/uuid"
)

// MessageStatus is the delivery state of a single outbound message.
type MessageStatus string

const (
	MessageQueued     MessageStatus = "queued"
	MessageProcessing MessageStatus = "processing"
	MessageSent       MessageStatus = "sent"
	MessageFailed     MessageStatus = "failed"
	MessagePaused     MessageStatus = "paused"
	MessageBounced    MessageStatus = "bounced"
)

// Message is one scheduled or sent communication to a single contact.
// Subject and Content are personalized at enqueue time and immutable after.
// SequenceIndex is 0 for the initial send and N for the Nth follow-up; together
// with CampaignID and ContactID it forms the natural key the sequencer
// deduplicates on.
type Message struct {
	ID            uuid.UUID     `db:"id" json:"id"`
	CampaignID    uuid.UUID     `db:"campaign_id" json:"campaign_id"`
	ContactID     uuid.UUID     `db:"contact_id" json:"contact_id"`
	SequenceIndex int           `db:"sequence_index" json:"sequence_index"`
	Subject       string        `db:"subject" json:"subject"`
	Content       string        `db:"content" json:"content"`
	Status        MessageStatus `db:"status" json:"status"`
	ScheduledAt   time.Time     `db:"scheduled_at" json:"scheduled_at"`
	SentAt        *time.Time    `db:"sent_at" json:"sent_at,omitempty"`
	RetryCount    int           `db:"retry_count" json:"retry_count"`
	LastError     string        `db:"last_error" json:"last_error,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// IsMessageTerminal reports whether a message has reached a final delivery state.
func IsMessageTerminal(s MessageStatus) bool {
	return s == MessageSent || s == MessageFailed || s == MessageBounced
}

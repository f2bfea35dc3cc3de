package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Contact sources.
const (
	SourceManual   = "manual"
	SourceImported = "imported"
	SourceSynced   = "synced"
)

// Contact is an outreach recipient. (UserID, Email) is unique; Email is stored
// lower-cased. Engagement counters are maintained by the dispatcher and by
// tracking webhooks, never by sync runs.
type Contact struct {
	ID              uuid.UUID `db:"id" json:"id"`
	UserID          uuid.UUID `db:"user_id" json:"user_id"`
	Email           string    `db:"email" json:"email"`
	FirstName       string    `db:"first_name" json:"first_name"`
	LastName        string    `db:"last_name" json:"last_name"`
	Company         string    `db:"company" json:"company"`
	Role            string    `db:"role" json:"role"`
	Phone           string    `db:"phone" json:"phone"`
	Source          string    `db:"source" json:"source"`
	SourceDetails   string    `db:"source_details" json:"source_details,omitempty"`
	Tags            []string  `db:"tags" json:"tags"`
	TotalEmailsSent int       `db:"total_emails_sent" json:"total_emails_sent"`
	TotalOpens      int       `db:"total_opens" json:"total_opens"`
	TotalClicks     int       `db:"total_clicks" json:"total_clicks"`
	TotalReplies    int       `db:"total_replies" json:"total_replies"`
	TotalBounces    int       `db:"total_bounces" json:"total_bounces"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// NormalizeEmail lower-cases and trims an address for the (user_id, email) key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ProfileField returns the value of a sync comparison field by column name.
func (c *Contact) ProfileField(name string) string {
	switch name {
	case "first_name":
		return c.FirstName
	case "last_name":
		return c.LastName
	case "company":
		return c.Company
	case "role":
		return c.Role
	case "phone":
		return c.Phone
	}
	return ""
}

// SetProfileField assigns a sync comparison field by column name.
func (c *Contact) SetProfileField(name, value string) {
	switch name {
	case "first_name":
		c.FirstName = value
	case "last_name":
		c.LastName = value
	case "company":
		c.Company = value
	case "role":
		c.Role = value
	case "phone":
		c.Phone = value
	}
}

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

type ContactRepositoryInterface interface {
	Create(ctx context.Context, c *model.Contact) error
	GetOwned(ctx context.Context, userID, id uuid.UUID) (*model.Contact, error)
	GetByEmail(ctx context.Context, userID uuid.UUID, email string) (*model.Contact, error)
	ListByIDs(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]*model.Contact, error)
	// UpdateProfileCAS writes profile fields only if the row still carries
	// expectedUpdatedAt, so concurrent sync runs and engagement increments
	// cannot silently overwrite each other. Reports false on a lost race.
	UpdateProfileCAS(ctx context.Context, c *model.Contact, expectedUpdatedAt time.Time) (bool, error)
	IncrementEmailsSent(ctx context.Context, id uuid.UUID) error
	IncrementBounces(ctx context.Context, id uuid.UUID) error
	DeleteDuplicates(ctx context.Context, userID uuid.UUID) (int64, error)
}

type ContactRepository struct {
	DB *sql.DB
}

const contactColumns = `id, user_id, email, first_name, last_name, company, role, phone,
	source, source_details, tags, total_emails_sent, total_opens, total_clicks,
	total_replies, total_bounces, created_at, updated_at`

func scanContact(row interface{ Scan(...any) error }) (*model.Contact, error) {
	var c model.Contact
	err := row.Scan(&c.ID, &c.UserID, &c.Email, &c.FirstName, &c.LastName,
		&c.Company, &c.Role, &c.Phone, &c.Source, &c.SourceDetails,
		pq.Array(&c.Tags), &c.TotalEmailsSent, &c.TotalOpens, &c.TotalClicks,
		&c.TotalReplies, &c.TotalBounces, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ContactRepository) Create(ctx context.Context, c *model.Contact) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.Email = model.NormalizeEmail(c.Email)
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now

	query := `
        INSERT INTO contacts
        (id, user_id, email, first_name, last_name, company, role, phone, source, source_details, tags, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
    `
	_, err := r.DB.ExecContext(ctx, query,
		c.ID, c.UserID, c.Email, c.FirstName, c.LastName, c.Company, c.Role,
		c.Phone, c.Source, c.SourceDetails, pq.Array(c.Tags), now)
	if err != nil {
		return apperrors.NewPersistence("contact create", err, true)
	}
	return nil
}

func (r *ContactRepository) GetOwned(ctx context.Context, userID, id uuid.UUID) (*model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id=$1 AND user_id=$2`
	c, err := scanContact(r.DB.QueryRowContext(ctx, query, id, userID))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFound("contact", id.String())
	}
	if err != nil {
		return nil, apperrors.NewPersistence("contact get", err, true)
	}
	return c, nil
}

// GetByEmail returns nil without error when no contact matches, because
// absence is an expected sync outcome rather than a failure.
func (r *ContactRepository) GetByEmail(ctx context.Context, userID uuid.UUID, email string) (*model.Contact, error) {
	query := `SELECT ` + contactColumns + `
        FROM contacts WHERE user_id=$1 AND email=$2
        ORDER BY updated_at DESC
        LIMIT 1`
	c, err := scanContact(r.DB.QueryRowContext(ctx, query, userID, model.NormalizeEmail(email)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewPersistence("contact get by email", err, true)
	}
	return c, nil
}

func (r *ContactRepository) ListByIDs(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]*model.Contact, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE user_id=$1 AND id = ANY($2)`
	rows, err := r.DB.QueryContext(ctx, query, userID, pq.Array(ids))
	if err != nil {
		return nil, apperrors.NewPersistence("contact list", err, true)
	}
	defer rows.Close()

	var contacts []*model.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, apperrors.NewPersistence("contact list scan", err, false)
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func (r *ContactRepository) UpdateProfileCAS(ctx context.Context, c *model.Contact, expectedUpdatedAt time.Time) (bool, error) {
	query := `
        UPDATE contacts
        SET first_name=$1, last_name=$2, company=$3, role=$4, phone=$5,
            source=$6, source_details=$7, updated_at=NOW()
        WHERE id=$8 AND updated_at=$9
    `
	res, err := r.DB.ExecContext(ctx, query,
		c.FirstName, c.LastName, c.Company, c.Role, c.Phone,
		c.Source, c.SourceDetails, c.ID, expectedUpdatedAt)
	if err != nil {
		return false, apperrors.NewPersistence("contact update", err, true)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.NewPersistence("contact update", err, true)
	}
	return n == 1, nil
}

func (r *ContactRepository) IncrementEmailsSent(ctx context.Context, id uuid.UUID) error {
	return r.increment(ctx, id, "total_emails_sent")
}

func (r *ContactRepository) IncrementBounces(ctx context.Context, id uuid.UUID) error {
	return r.increment(ctx, id, "total_bounces")
}

func (r *ContactRepository) increment(ctx context.Context, id uuid.UUID, column string) error {
	// Column name comes from a fixed internal set, never from input.
	query := `UPDATE contacts SET ` + column + ` = ` + column + ` + 1 WHERE id=$1`
	_, err := r.DB.ExecContext(ctx, query, id)
	if err != nil {
		return apperrors.NewPersistence("contact increment "+column, err, true)
	}
	return nil
}

// DeleteDuplicates keeps the most recently updated contact per (user, email)
// and removes the rest. Destructive; only runs as an explicit maintenance
// operation, never as part of a sync run.
func (r *ContactRepository) DeleteDuplicates(ctx context.Context, userID uuid.UUID) (int64, error) {
	query := `
        DELETE FROM contacts
        WHERE user_id = $1 AND id NOT IN (
            SELECT DISTINCT ON (email) id
            FROM contacts
            WHERE user_id = $1
            ORDER BY email, updated_at DESC
        )
    `
	res, err := r.DB.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, apperrors.NewPersistence("contact delete duplicates", err, true)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.NewPersistence("contact delete duplicates", err, true)
	}
	return n, nil
}

var _ ContactRepositoryInterface = (*ContactRepository)(nil)

// Package crm defines the external contact source contract consumed by the
// synchronizer, plus an HTTP address-book client.
package crm

import "context"

// Record is one flat externally-sourced contact row. Email is the only
// mandatory field; the rest are the standard comparison fields.
type Record struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
	Role      string `json:"role"`
	Phone     string `json:"phone"`
}

// Field returns a comparison field by column name.
func (r Record) Field(name string) string {
	switch name {
	case "first_name":
		return r.FirstName
	case "last_name":
		return r.LastName
	case "company":
		return r.Company
	case "role":
		return r.Role
	case "phone":
		return r.Phone
	}
	return ""
}

// Credentials are opaque to the engine and must never be logged raw.
type Credentials struct {
	APIKey    string
	SheetID   string
	AuthToken string
}

// ContactSource is an address-book or spreadsheet-style collaborator.
type ContactSource interface {
	// Name identifies the source for Contact.Source provenance.
	Name() string
	// Validate checks the credentials before any fetch.
	Validate(ctx context.Context, creds Credentials) error
	// FetchContacts returns the full batch of external records.
	FetchContacts(ctx context.Context, creds Credentials) ([]Record, error)
}

package service

import (
	"strings"

	"github.com/nexhub/outreach-backend/internal/model"
)

// renderPlaceholders substitutes {first_name}-style tokens with contact
// fields. An empty first name falls back to a neutral greeting; other empty
// fields render blank rather than leaking the raw token.
func renderPlaceholders(template string, contact *model.Contact) string {
	firstName := contact.FirstName
	if firstName == "" {
		firstName = "there"
	}

	replacements := map[string]string{
		"{first_name}": firstName,
		"{last_name}":  contact.LastName,
		"{company}":    contact.Company,
		"{role}":       contact.Role,
		"{email}":      contact.Email,
	}

	result := template
	for token, value := range replacements {
		result = strings.ReplaceAll(result, token, value)
	}
	return result
}

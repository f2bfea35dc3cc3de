package service

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/nexhub/outreach-backend/internal/apperrors"
	"github.com/nexhub/outreach-backend/internal/crm"
	"github.com/nexhub/outreach-backend/internal/model"
	"github.com/nexhub/outreach-backend/internal/repository"
	"github.com/nexhub/outreach-backend/internal/retry"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// SyncService reconciles externally-sourced contact records against the
// local contact store. Runs are independent of dispatch and share the store
// through conditional updates only.
type SyncService struct {
	ContactRepo repository.ContactRepositoryInterface

	// PersistAttempts bounds the CAS retry loop per record.
	PersistAttempts  int
	PersistBaseDelay time.Duration
}

// SyncRequest is one synchronization run's input.
type SyncRequest struct {
	Strategy model.ConflictStrategy
	// FieldPriorities optionally resolves individual fields under the merge
	// strategy; unspecified fields default to the external value.
	FieldPriorities map[string]model.ConflictStrategy
}

// SyncContacts pulls the source's records and reconciles each one
// independently: a single record's failure is recorded in the summary, never
// allowed to abort the rest of the batch.
func (s *SyncService) SyncContacts(ctx context.Context, userID uuid.UUID, source crm.ContactSource, creds crm.Credentials, req SyncRequest) (*model.SyncSummary, error) {
	switch req.Strategy {
	case model.StrategyLocal, model.StrategyCRM, model.StrategyMerge, model.StrategyManual:
	case "":
		req.Strategy = model.StrategyCRM
	default:
		return nil, apperrors.NewValidation("strategy", fmt.Sprintf("unknown strategy %q", req.Strategy))
	}

	if err := source.Validate(ctx, creds); err != nil {
		return nil, err
	}

	records, err := source.FetchContacts(ctx, creds)
	if err != nil {
		return nil, err
	}

	summary := &model.SyncSummary{}
	for _, record := range records {
		detail := s.syncRecord(ctx, userID, source.Name(), record, req)
		summary.Details = append(summary.Details, detail)

		switch detail.Outcome {
		case model.SyncCreated:
			summary.Processed++
			summary.Created++
		case model.SyncUpdated:
			summary.Processed++
			summary.Updated++
		case model.SyncSkipped:
			summary.Skipped++
		case model.SyncConflictOutcome:
			summary.Processed++
			summary.Conflicts++
			if detail.Resolved {
				summary.Resolved++
			}
		case model.SyncErrored:
			summary.Failed++
		}
	}

	log.Printf("[Sync] %s run for user %s: %d processed, %d created, %d updated, %d conflicts (%d resolved), %d skipped, %d failed",
		source.Name(), userID, summary.Processed, summary.Created, summary.Updated,
		summary.Conflicts, summary.Resolved, summary.Skipped, summary.Failed)
	return summary, nil
}

func (s *SyncService) syncRecord(ctx context.Context, userID uuid.UUID, sourceName string, record crm.Record, req SyncRequest) model.SyncDetail {
	email := model.NormalizeEmail(record.Email)
	if email == "" {
		return model.SyncDetail{Outcome: model.SyncSkipped, Reason: "missing email"}
	}
	if !emailPattern.MatchString(email) {
		return model.SyncDetail{Email: email, Outcome: model.SyncSkipped, Reason: "invalid email format"}
	}

	local, err := s.ContactRepo.GetByEmail(ctx, userID, email)
	if err != nil {
		return model.SyncDetail{Email: email, Outcome: model.SyncErrored, Reason: err.Error()}
	}

	if local == nil {
		contact := &model.Contact{
			UserID:        userID,
			Email:         email,
			FirstName:     record.FirstName,
			LastName:      record.LastName,
			Company:       record.Company,
			Role:          record.Role,
			Phone:         record.Phone,
			Source:        model.SourceSynced,
			SourceDetails: sourceName,
		}
		if err := s.persist(ctx, func(ctx context.Context) error {
			return s.ContactRepo.Create(ctx, contact)
		}); err != nil {
			return model.SyncDetail{Email: email, Outcome: model.SyncErrored, Reason: err.Error()}
		}
		return model.SyncDetail{Email: email, Outcome: model.SyncCreated}
	}

	conflict := diffContact(local, record)

	if len(conflict.Fields) == 0 {
		changed := fillEmptyFields(local, record)
		if !changed {
			return model.SyncDetail{Email: email, Outcome: model.SyncUpdated, Reason: "no changes"}
		}
		if err := s.update(ctx, userID, local); err != nil {
			return model.SyncDetail{Email: email, Outcome: model.SyncErrored, Reason: err.Error()}
		}
		return model.SyncDetail{Email: email, Outcome: model.SyncUpdated}
	}

	if req.Strategy == model.StrategyManual {
		// Resolution is deferred; the conflict is reported, nothing mutates.
		return model.SyncDetail{
			Email:   email,
			Outcome: model.SyncConflictOutcome,
			Reason:  fmt.Sprintf("%d conflicting fields, manual resolution required", len(conflict.Fields)),
		}
	}

	resolveConflict(local, record, req, conflict)
	fillEmptyFields(local, record)
	if err := s.update(ctx, userID, local); err != nil {
		return model.SyncDetail{Email: email, Outcome: model.SyncErrored, Reason: err.Error()}
	}
	return model.SyncDetail{Email: email, Outcome: model.SyncConflictOutcome, Resolved: true}
}

// update pushes the contact through a CAS write, re-reading and re-resolving
// nothing: a lost race surfaces as a transient error and the retry loop
// re-reads updated_at before trying again.
func (s *SyncService) update(ctx context.Context, userID uuid.UUID, contact *model.Contact) error {
	return s.persist(ctx, func(ctx context.Context) error {
		ok, err := s.ContactRepo.UpdateProfileCAS(ctx, contact, contact.UpdatedAt)
		if err != nil {
			return err
		}
		if !ok {
			// Concurrent writer moved updated_at; refresh the token and let
			// the retry loop take another pass.
			fresh, gerr := s.ContactRepo.GetByEmail(ctx, userID, contact.Email)
			if gerr == nil && fresh != nil {
				contact.UpdatedAt = fresh.UpdatedAt
			}
			return apperrors.NewPersistence("contact cas update", fmt.Errorf("lost update race for %s", contact.Email), true)
		}
		return nil
	})
}

func (s *SyncService) persist(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := s.PersistAttempts
	if attempts < 1 {
		attempts = 3
	}
	base := s.PersistBaseDelay
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	return retry.Do(ctx, retry.Options{
		MaxAttempts: attempts,
		BaseDelay:   base,
		ShouldRetry: func(err error, attempt int) bool { return apperrors.IsTransient(err) },
	}, op)
}

// diffContact computes the field-level conflict set. Two values conflict only
// when both are present and different; an empty side is never a conflict.
func diffContact(local *model.Contact, record crm.Record) *model.SyncConflict {
	conflict := &model.SyncConflict{
		Email:    local.Email,
		Local:    *local,
		External: map[string]string{},
	}
	for _, field := range model.SyncComparisonFields {
		localVal := local.ProfileField(field)
		externalVal := record.Field(field)
		conflict.External[field] = externalVal

		if localVal == "" || externalVal == "" || localVal == externalVal {
			continue
		}
		conflict.Fields = append(conflict.Fields, model.ConflictField{
			Field:          field,
			LocalValue:     localVal,
			ExternalValue:  externalVal,
			LocalUpdatedAt: local.UpdatedAt,
		})
	}
	return conflict
}

// fillEmptyFields copies external values onto empty local fields. Empty never
// wins over a present value. Reports whether anything changed.
func fillEmptyFields(local *model.Contact, record crm.Record) bool {
	changed := false
	for _, field := range model.SyncComparisonFields {
		if local.ProfileField(field) == "" {
			if v := record.Field(field); v != "" {
				local.SetProfileField(field, v)
				changed = true
			}
		}
	}
	return changed
}

// resolveConflict applies the configured strategy to each conflicting field.
func resolveConflict(local *model.Contact, record crm.Record, req SyncRequest, conflict *model.SyncConflict) {
	for _, cf := range conflict.Fields {
		strategy := req.Strategy
		if strategy == model.StrategyMerge {
			// Per-field priority, defaulting to the external value.
			strategy = model.StrategyCRM
			if p, ok := req.FieldPriorities[cf.Field]; ok {
				strategy = p
			}
		}

		switch strategy {
		case model.StrategyLocal:
			// keep the existing value
		default:
			local.SetProfileField(cf.Field, cf.ExternalValue)
		}
	}
}

// CleanupDuplicates removes redundant contacts sharing (user, email), keeping
// the most recently updated. Explicit, deliberate operation.
func (s *SyncService) CleanupDuplicates(ctx context.Context, userID uuid.UUID) (int64, error) {
	removed, err := s.ContactRepo.DeleteDuplicates(ctx, userID)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		log.Printf("[Sync] removed %d duplicate contacts for user %s", removed, userID)
	}
	return removed, nil
}

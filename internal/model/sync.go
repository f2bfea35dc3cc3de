package model

import "time"

// ConflictStrategy selects how field-level sync conflicts are resolved.
type ConflictStrategy string

const (
	StrategyLocal  ConflictStrategy = "local"
	StrategyCRM    ConflictStrategy = "crm"
	StrategyMerge  ConflictStrategy = "merge"
	StrategyManual ConflictStrategy = "manual"
)

// SyncComparisonFields is the fixed set of profile columns diffed during a
// sync run, in stable order.
var SyncComparisonFields = []string{"first_name", "last_name", "company", "role", "phone"}

// ConflictField is one field-level disagreement between a local contact and
// its externally sourced counterpart.
type ConflictField struct {
	Field          string    `json:"field"`
	LocalValue     string    `json:"local_value"`
	ExternalValue  string    `json:"external_value"`
	LocalUpdatedAt time.Time `json:"local_updated_at"`
}

// SyncConflict pairs a local contact snapshot with the external record that
// disagrees with it. It lives only for the duration of one sync run.
type SyncConflict struct {
	Email    string            `json:"email"`
	Local    Contact           `json:"local"`
	External map[string]string `json:"external"`
	Fields   []ConflictField   `json:"fields"`
}

// Sync record outcomes.
const (
	SyncCreated         = "create"
	SyncUpdated         = "update"
	SyncSkipped         = "skip"
	SyncConflictOutcome = "conflict"
	SyncErrored         = "error"
)

// SyncDetail is the per-record entry in a sync run summary.
type SyncDetail struct {
	Email    string `json:"email"`
	Outcome  string `json:"outcome"`
	Reason   string `json:"reason,omitempty"`
	Resolved bool   `json:"resolved,omitempty"`
}

// SyncSummary is the structured result of one synchronization run. Partial
// success is the expected steady state; a failed record shows up in Details
// with an error outcome instead of aborting the run.
type SyncSummary struct {
	Processed int          `json:"processed"`
	Created   int          `json:"created"`
	Updated   int          `json:"updated"`
	Skipped   int          `json:"skipped"`
	Conflicts int          `json:"conflicts"`
	Resolved  int          `json:"resolved"`
	Failed    int          `json:"failed"`
	Details   []SyncDetail `json:"details"`
}

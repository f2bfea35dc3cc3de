package handler

import (
	"encoding/json"
	"net/http"

	"github.com/nexhub/outreach-backend/internal/apperrors"
	"github.com/nexhub/outreach-backend/internal/crm"
	"github.com/nexhub/outreach-backend/internal/model"
	"github.com/nexhub/outreach-backend/internal/service"
)

// SyncHandler exposes contact synchronization and maintenance.
type SyncHandler struct {
	Service *service.SyncService
	// Sources maps source names to configured clients.
	Sources map[string]crm.ContactSource
}

type syncRequest struct {
	Source      string `json:"source"`
	Credentials struct {
		APIKey    string `json:"api_key"`
		SheetID   string `json:"sheet_id"`
		AuthToken string `json:"auth_token"`
	} `json:"credentials"`
	Strategy        string            `json:"strategy"`
	FieldPriorities map[string]string `json:"field_priorities,omitempty"`
}

func (h *SyncHandler) SyncContacts(w http.ResponseWriter, r *http.Request) {
	userID, err := requestUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var body syncRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperrors.NewValidation("body", "invalid JSON"))
		return
	}

	source, ok := h.Sources[body.Source]
	if !ok {
		writeError(w, apperrors.NewValidation("source", "unknown contact source"))
		return
	}

	req := service.SyncRequest{Strategy: model.ConflictStrategy(body.Strategy)}
	if len(body.FieldPriorities) > 0 {
		req.FieldPriorities = make(map[string]model.ConflictStrategy, len(body.FieldPriorities))
		for field, strategy := range body.FieldPriorities {
			req.FieldPriorities[field] = model.ConflictStrategy(strategy)
		}
	}

	creds := crm.Credentials{
		APIKey:    body.Credentials.APIKey,
		SheetID:   body.Credentials.SheetID,
		AuthToken: body.Credentials.AuthToken,
	}

	summary, err := h.Service.SyncContacts(r.Context(), userID, source, creds, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *SyncHandler) CleanupDuplicates(w http.ResponseWriter, r *http.Request) {
	userID, err := requestUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	removed, err := h.Service.CleanupDuplicates(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"removed": removed})
}

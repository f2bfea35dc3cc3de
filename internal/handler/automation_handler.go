package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nexhub/outreach-backend/internal/apperrors"
	"github.com/nexhub/outreach-backend/internal/service"
)

// AutomationHandler exposes the engine operations over HTTP. It owns no
// business rules; everything is typed requests in, typed results out.
type AutomationHandler struct {
	Service *service.AutomationService
}

// userID comes from the authenticating front layer via header; the engine
// itself stays out of session mechanics.
func requestUserID(r *http.Request) (uuid.UUID, error) {
	raw := r.Header.Get("X-User-ID")
	if raw == "" {
		return uuid.Nil, apperrors.NewValidation("X-User-ID", "header is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperrors.NewValidation("X-User-ID", "must be a UUID")
	}
	return id, nil
}

func campaignIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, apperrors.NewValidation("id", "must be a UUID")
	}
	return id, nil
}

type scheduleRequest struct {
	StartDate time.Time `json:"start_date"`
}

func (h *AutomationHandler) ScheduleCampaign(w http.ResponseWriter, r *http.Request) {
	userID, err := requestUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	campaignID, err := campaignIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var body scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperrors.NewValidation("body", "invalid JSON"))
		return
	}
	if body.StartDate.IsZero() {
		writeError(w, apperrors.NewValidation("start_date", "is required"))
		return
	}

	result, err := h.Service.ScheduleCampaign(r.Context(), userID, campaignID, body.StartDate)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *AutomationHandler) PauseAutomation(w http.ResponseWriter, r *http.Request) {
	userID, err := requestUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	campaignID, err := campaignIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.Service.PauseAutomation(r.Context(), userID, campaignID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *AutomationHandler) ResumeAutomation(w http.ResponseWriter, r *http.Request) {
	userID, err := requestUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	campaignID, err := campaignIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.Service.ResumeAutomation(r.Context(), userID, campaignID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type followUpRequest struct {
	ContactIDs []uuid.UUID `json:"contact_ids"`
	Steps      []struct {
		DelayDays int    `json:"delay_days"`
		Subject   string `json:"subject"`
		Content   string `json:"content"`
	} `json:"steps"`
}

func (h *AutomationHandler) StartFollowUpSequence(w http.ResponseWriter, r *http.Request) {
	userID, err := requestUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	campaignID, err := campaignIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var body followUpRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperrors.NewValidation("body", "invalid JSON"))
		return
	}

	req := service.FollowUpRequest{ContactIDs: body.ContactIDs}
	for _, s := range body.Steps {
		req.Steps = append(req.Steps, service.FollowUpStep{
			DelayDays: s.DelayDays,
			Subject:   s.Subject,
			Content:   s.Content,
		})
	}

	result, err := h.Service.StartFollowUpSequence(r.Context(), userID, campaignID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

type enqueueRequest struct {
	ContactIDs []uuid.UUID `json:"contact_ids"`
	Subject    string      `json:"subject"`
	Content    string      `json:"content"`
}

func (h *AutomationHandler) EnqueueInitialSend(w http.ResponseWriter, r *http.Request) {
	userID, err := requestUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	campaignID, err := campaignIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var body enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperrors.NewValidation("body", "invalid JSON"))
		return
	}

	result, err := h.Service.EnqueueInitialSend(r.Context(), userID, campaignID, body.ContactIDs, body.Subject, body.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *AutomationHandler) GetAutomationStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := requestUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	campaignID, err := campaignIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	status, err := h.Service.GetAutomationStatus(r.Context(), userID, campaignID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *AutomationHandler) GetExecutionQueue(w http.ResponseWriter, r *http.Request) {
	userID, err := requestUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	campaignID, err := campaignIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	msgs, err := h.Service.GetExecutionQueue(r.Context(), userID, campaignID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs, "count": len(msgs)})
}

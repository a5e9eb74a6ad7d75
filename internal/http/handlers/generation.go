package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"mystorykid/internal/domain"
	"mystorykid/internal/generation"
	"mystorykid/internal/providers/dzine"
)

type generateRequest struct {
	Mode           string `json:"mode"`
	Prompt         string `json:"prompt"`
	StyleCode      string `json:"style_code"`
	ImageData      string `json:"image_data"`
	Filename       string `json:"filename"`
	NegativePrompt string `json:"negative_prompt"`
}

type jobStatusResponse struct {
	SubjectID    string `json:"subject_id"`
	Status       string `json:"status"`
	TaskID       string `json:"task_id,omitempty"`
	PreviewURL   string `json:"preview_url,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	Message      string `json:"message,omitempty"`
	Confirmed    bool   `json:"confirmed"`
}

// StartGeneration handles POST /generation/{subjectId}: submit an img2img or
// txt2img job for the subject. Submission is asynchronous; callers poll the
// status endpoint.
func (a *App) StartGeneration(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectId")
	if subjectID == "" {
		a.error(w, http.StatusBadRequest, "MISSING_SUBJECT_ID", "Subject ID is required")
		return
	}
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request payload")
		return
	}
	genReq := generation.Request{
		Prompt:         req.Prompt,
		StyleCode:      req.StyleCode,
		NegativePrompt: req.NegativePrompt,
	}
	switch strings.ToLower(strings.TrimSpace(req.Mode)) {
	case string(generation.ModeImageToImage):
		genReq.Mode = generation.ModeImageToImage
		// Resolve an ambiguous upload content type to a concrete image MIME
		// before submission; the task API rejects generic payloads.
		normalized, err := dzine.NormalizeDataURI(req.ImageData, req.Filename)
		if err != nil {
			a.error(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
			return
		}
		genReq.ImageData = normalized
	case string(generation.ModeTextToImage):
		genReq.Mode = generation.ModeTextToImage
	default:
		a.error(w, http.StatusBadRequest, "BAD_REQUEST", "mode must be img2img or txt2img")
		return
	}
	if err := a.Coordinator.Submit(subjectID, genReq); err != nil {
		a.error(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	a.json(w, http.StatusAccepted, map[string]string{
		"subject_id": subjectID,
		"status":     string(generation.StateSubmitting),
	})
}

// GenerationStatus handles GET /generation/{subjectId}.
func (a *App) GenerationStatus(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectId")
	snap, ok := a.Coordinator.Status(subjectID)
	if !ok {
		a.error(w, http.StatusNotFound, "NOT_FOUND", "No generation job for subject")
		return
	}
	a.json(w, http.StatusOK, jobStatusResponse{
		SubjectID:    snap.SubjectID,
		Status:       string(snap.State),
		TaskID:       snap.TaskID,
		PreviewURL:   snap.ResultURL,
		ErrorMessage: snap.ErrorReason,
		Message:      snap.Message,
		Confirmed:    snap.Confirmed,
	})
}

// GenerationBatchStatus handles GET /generation/batch?subjects=a,b and gates
// the caller's "continue" action on every job being terminal.
func (a *App) GenerationBatchStatus(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("subjects"))
	if raw == "" {
		a.error(w, http.StatusBadRequest, "MISSING_SUBJECTS", "subjects query parameter is required")
		return
	}
	var subjects []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			subjects = append(subjects, s)
		}
	}
	batch := a.Coordinator.BatchStatus(subjects)
	a.json(w, http.StatusOK, map[string]any{
		"all_terminal":    batch.AllTerminal,
		"succeeded_count": batch.Succeeded,
		"failed_count":    batch.Failed,
		"pending_count":   batch.Pending,
	})
}

// ConfirmGeneration handles POST /generation/{subjectId}/confirm.
func (a *App) ConfirmGeneration(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectId")
	if err := a.Coordinator.Confirm(subjectID); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			a.error(w, http.StatusNotFound, "NOT_FOUND", "No generation job for subject")
		case errors.Is(err, domain.ErrNotReady):
			a.error(w, http.StatusConflict, "NOT_READY", err.Error())
		default:
			a.error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to confirm generation")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RetryGeneration handles POST /generation/{subjectId}/retry: resubmit a
// terminal job with identical inputs.
func (a *App) RetryGeneration(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectId")
	if err := a.Coordinator.Retry(subjectID); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			a.error(w, http.StatusNotFound, "NOT_FOUND", "No generation job for subject")
		case errors.Is(err, domain.ErrNotReady):
			a.error(w, http.StatusConflict, "NOT_READY", err.Error())
		default:
			a.error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to retry generation")
		}
		return
	}
	a.json(w, http.StatusAccepted, map[string]string{
		"subject_id": subjectID,
		"status":     string(generation.StateSubmitting),
	})
}

// CancelGeneration handles DELETE /generation/{subjectId}. Cancellation is
// idempotent, so the response is 204 regardless of prior state.
func (a *App) CancelGeneration(w http.ResponseWriter, r *http.Request) {
	a.Coordinator.Cancel(chi.URLParam(r, "subjectId"))
	w.WriteHeader(http.StatusNoContent)
}

// ListStyles handles GET /styles from the TTL-cached catalog.
func (a *App) ListStyles(w http.ResponseWriter, r *http.Request) {
	styles, err := a.Styles.List(r.Context())
	if err != nil {
		a.Logger.Error().Err(err).Msg("styles: catalog fetch failed")
		a.error(w, http.StatusBadGateway, "UPSTREAM_ERROR", "Failed to load style catalog")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"styles": styles})
}

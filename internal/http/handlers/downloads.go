package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"mystorykid/internal/domain"
	"mystorykid/internal/download"
	"mystorykid/internal/middleware"
)

type grantDetails struct {
	DownloadCount int       `json:"downloadCount"`
	MaxDownloads  int       `json:"maxDownloads"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// SecureDownload handles GET /downloads/{token}: validate the bearer token,
// consume one attempt, and answer with a short-lived signed URL.
func (a *App) SecureDownload(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		a.error(w, http.StatusBadRequest, "MISSING_TOKEN", "Download token is required")
		return
	}
	attempt := download.AttemptInfo{
		IPAddress: middleware.ClientIP(r),
		Country:   middleware.CountryFromContext(r.Context()),
		UserAgent: r.UserAgent(),
	}
	result, verdict, err := a.Downloads.SecureDownload(r.Context(), token, attempt)
	if err != nil {
		if errors.Is(err, domain.ErrStoreUnavailable) {
			a.Logger.Error().Err(err).Msg("downloads: store unavailable")
			a.error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to process download request")
			return
		}
		a.Logger.Error().Err(err).Str("download_id", verdict.DownloadID).Msg("downloads: delivery failed")
		a.error(w, http.StatusNotFound, "DOWNLOAD_FAILED", "Failed to prepare the download file")
		return
	}
	if !verdict.Valid {
		a.rejectDownload(w, verdict)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"success":            true,
		"downloadUrl":        result.URL,
		"filename":           result.Filename,
		"expiresAt":          result.ExpiresAt,
		"remainingDownloads": result.Remaining,
	})
}

// rejectDownload maps a failed validation onto the 403 vocabulary, carrying
// the grant counters when the grant was found so the UI can explain why.
func (a *App) rejectDownload(w http.ResponseWriter, verdict download.Validation) {
	code := "INVALID_TOKEN"
	message := "Invalid or expired download link"
	switch verdict.Reason {
	case download.ReasonTokenExpired, download.ReasonGrantExpired:
		code = "LINK_EXPIRED"
		message = "Download link has expired. Please contact support for a new link."
	case download.ReasonLimitExceeded:
		code = "DOWNLOAD_LIMIT_EXCEEDED"
		message = "Maximum download attempts exceeded."
		if verdict.Grant != nil {
			message = fmt.Sprintf("Maximum download attempts (%d) exceeded.", verdict.Grant.MaxDownloads)
		}
	}
	if verdict.Grant != nil {
		a.errorWithDetails(w, http.StatusForbidden, code, message, grantDetails{
			DownloadCount: verdict.Grant.DownloadCount,
			MaxDownloads:  verdict.Grant.MaxDownloads,
			ExpiresAt:     verdict.Grant.ExpiresAt,
		})
		return
	}
	a.error(w, http.StatusForbidden, code, message)
}

// DownloadStatus handles GET /downloads/status/{downloadId}: a read-only
// grant snapshot that never consumes an attempt.
func (a *App) DownloadStatus(w http.ResponseWriter, r *http.Request) {
	downloadID := chi.URLParam(r, "downloadId")
	if downloadID == "" {
		a.error(w, http.StatusBadRequest, "MISSING_DOWNLOAD_ID", "Download ID is required")
		return
	}
	snap, err := a.Downloads.Status(r.Context(), downloadID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "DOWNLOAD_NOT_FOUND", "Download not found")
			return
		}
		a.Logger.Error().Err(err).Str("download_id", downloadID).Msg("downloads: status lookup failed")
		a.error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to check download status")
		return
	}
	grant := snap.Grant
	a.json(w, http.StatusOK, map[string]any{
		"success":            true,
		"downloadId":         grant.ID,
		"status":             snap.Status,
		"downloadCount":      grant.DownloadCount,
		"maxDownloads":       grant.MaxDownloads,
		"remainingDownloads": snap.Remaining,
		"expiresAt":          grant.ExpiresAt,
		"canDownload":        snap.Status == domain.DownloadStatusActive,
		"bookTitle":          grant.BookTitle,
		"filename":           download.DeliveryFilename(grant.BookTitle),
	})
}

// UserDownloads handles GET /downloads/user/{userId}: download history with
// derived statuses and summary counts. The optional status query filters.
func (a *App) UserDownloads(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if userID == "" {
		a.error(w, http.StatusBadRequest, "MISSING_USER_ID", "User ID is required")
		return
	}
	items, err := a.Downloads.History(r.Context(), userID)
	if err != nil {
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("downloads: history lookup failed")
		a.error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to retrieve download history")
		return
	}
	filter := domain.DownloadStatus(r.URL.Query().Get("status"))
	summary := map[domain.DownloadStatus]int{}
	downloads := make([]map[string]any, 0, len(items))
	for _, item := range items {
		summary[item.Status]++
		if filter != "" && item.Status != filter {
			continue
		}
		grant := item.Grant
		downloads = append(downloads, map[string]any{
			"id":                 grant.ID,
			"bookId":             grant.BookID,
			"bookTitle":          grant.BookTitle,
			"orderId":            grant.OrderID,
			"filename":           download.DeliveryFilename(grant.BookTitle),
			"fileSize":           grant.FileSizeBytes,
			"downloadCount":      grant.DownloadCount,
			"maxDownloads":       grant.MaxDownloads,
			"remainingDownloads": item.Remaining,
			"status":             item.Status,
			"createdAt":          grant.CreatedAt,
			"expiresAt":          grant.ExpiresAt,
			"canDownload":        item.Status == domain.DownloadStatusActive,
		})
	}
	a.json(w, http.StatusOK, map[string]any{
		"success":   true,
		"downloads": downloads,
		"summary": map[string]int{
			"total":     len(items),
			"active":    summary[domain.DownloadStatusActive],
			"expired":   summary[domain.DownloadStatusExpired],
			"exhausted": summary[domain.DownloadStatusExhausted],
		},
	})
}

package handlers

import (
	"errors"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"mystorykid/internal/storage"
)

// ServeFile handles GET /files/* — the target of signed download URLs. The
// signature and expiry minted by the download flow are verified before any
// bytes leave the store.
func (a *App) ServeFile(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	q := r.URL.Query()
	if err := a.FileSigner.Verify(key, q.Get("expires"), q.Get("sig")); err != nil {
		if errors.Is(err, storage.ErrSignatureExpired) {
			a.error(w, http.StatusForbidden, "LINK_EXPIRED", "Signed URL has expired")
			return
		}
		a.error(w, http.StatusForbidden, "INVALID_SIGNATURE", "Signed URL failed verification")
		return
	}
	path, err := a.Files.Resolve(key)
	if err != nil {
		a.error(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid file key")
		return
	}
	if _, err := os.Stat(path); err != nil {
		a.error(w, http.StatusNotFound, "DOWNLOAD_FAILED", "File not found")
		return
	}
	http.ServeFile(w, r, path)
}

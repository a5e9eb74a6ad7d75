package handlers

import (
	"encoding/json"
	"net/http"

	"mystorykid/internal/download"
	"mystorykid/internal/generation"
	"mystorykid/internal/infra"
	"mystorykid/internal/providers/dzine"
	"mystorykid/internal/storage"
)

// App bundles the handler dependencies.
type App struct {
	Downloads   *download.Service
	Coordinator *generation.Coordinator
	Styles      *dzine.StyleCache
	Files       *storage.FileStore
	FileSigner  *storage.URLSigner
	Logger      infra.Logger
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]any{"error": message, "code": code})
}

func (a *App) errorWithDetails(w http.ResponseWriter, status int, code, message string, details any) {
	a.json(w, status, map[string]any{"error": message, "code": code, "details": details})
}

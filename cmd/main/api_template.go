package main

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/CTAG07/tplsource/pkg/manifest"
	"github.com/CTAG07/tplsource/pkg/provider"
)

// TemplateAPI holds the dependencies for the template API handlers.
type TemplateAPI struct {
	p          *provider.Provider
	extensions []string
	cacheDir   string
	logger     *slog.Logger
}

// NewTemplateAPI creates a new instance of the TemplateAPI.
func NewTemplateAPI(p *provider.Provider, config *Config, logger *slog.Logger) *TemplateAPI {
	return &TemplateAPI{
		p:          p,
		extensions: config.Extensions,
		cacheDir:   config.CacheDir,
		logger:     logger,
	}
}

// RegisterRoutes sets up the routing for the template and cache endpoints.
func (t *TemplateAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/templates", t.handleList)
	mux.HandleFunc("/api/templates/", t.handleFile)
	mux.HandleFunc("/api/verify", t.handleVerify)
	mux.HandleFunc("/api/cache/clean", t.handleClean)
}

// handleList returns the names of all templates under the root.
func (t *TemplateAPI) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	names, err := t.p.GetList(t.extensions...)
	if err != nil {
		t.logger.Error("Failed to list templates", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list templates: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, names)
}

// handleFile serves the source of a single template. Conditional requests are
// answered from the template's modification time.
func (t *TemplateAPI) handleFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/api/templates/")
	if name == "" || strings.HasSuffix(name, "/") {
		respondWithError(w, http.StatusNotFound, "Not Found")
		return
	}

	content, mtime, err := t.p.GetSource(name)
	if err != nil {
		if errors.Is(err, provider.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, fmt.Sprintf("Template '%s' not found", name))
			return
		}
		t.logger.Error("Failed to read template", "template", name, "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to read template: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	http.ServeContent(w, r, name, time.Unix(mtime, 0), bytes.NewReader(content))
}

// handleVerify checks a posted manifest ({"name": mtime, ...}) against the
// current modification times.
func (t *TemplateAPI) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	deps, err := manifest.Decode(r.Body)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid manifest: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{"fresh": t.p.Verify(deps)})
}

// handleClean empties the compile cache directory.
func (t *TemplateAPI) handleClean(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if t.cacheDir == "" {
		respondWithError(w, http.StatusConflict, "No cache directory configured")
		return
	}
	if err := provider.Clean(t.cacheDir); err != nil {
		t.logger.Error("Failed to clean cache", "cache_dir", t.cacheDir, "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to clean cache: %v", err))
		return
	}
	t.logger.Info("Cache cleaned via API", "cache_dir", t.cacheDir)
	w.WriteHeader(http.StatusNoContent)
}

package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/Desjajja/o2a/internal/config"
	"github.com/Desjajja/o2a/internal/translate"
	"github.com/Desjajja/o2a/internal/upstream"
)

// AdminHandler manages the staged configuration lifecycle. Provider secrets
// are revealed in cleartext in this view only.
type AdminHandler struct {
	store  *config.Store
	pool   *upstream.Pool
	logger *slog.Logger
}

func NewAdminHandler(store *config.Store, pool *upstream.Pool, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		store:  store,
		pool:   pool,
		logger: logger,
	}
}

type configView struct {
	Providers    []config.Provider `json:"providers"`
	NeedsRestart bool              `json:"needs_restart"`
	StagedAt     *int64            `json:"staged_at"`
}

func viewOf(staged config.Staged) configView {
	providers := staged.Config.Providers
	if providers == nil {
		providers = []config.Provider{}
	}

	return configView{
		Providers:    providers,
		NeedsRestart: staged.NeedsRestart,
		StagedAt:     staged.StagedAt,
	}
}

// GetConfig handles GET /admin/config.
func (h *AdminHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, viewOf(h.store.StagedSnapshot()))
}

// PutConfig handles PUT /admin/config: stages a full candidate document.
func (h *AdminHandler) PutConfig(w http.ResponseWriter, r *http.Request) {
	var candidate config.ProxyConfig
	if err := json.NewDecoder(r.Body).Decode(&candidate); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "malformed configuration document: "+err.Error())
		return
	}

	staged, err := h.store.Stage(candidate)
	if err != nil {
		if errors.Is(err, config.ErrInvalidConfig) {
			writeError(w, http.StatusUnprocessableEntity, "invalid_request_error", err.Error())
			return
		}

		writeError(w, http.StatusInternalServerError, "api_error", err.Error())

		return
	}

	h.logger.Info("Staged configuration", "providers", len(staged.Config.Providers))
	writeJSON(w, http.StatusOK, viewOf(staged))
}

// Restart handles POST /admin/restart: applies the staged configuration and
// rebuilds the upstream client pool before replying, so no pooled client
// outlives the promoted snapshot.
func (h *AdminHandler) Restart(w http.ResponseWriter, r *http.Request) {
	staged, err := h.store.Apply()
	if err != nil {
		if errors.Is(err, config.ErrNoStagedConfig) {
			writeError(w, http.StatusConflict, "invalid_request_error", err.Error())
			return
		}

		writeError(w, http.StatusInternalServerError, "api_error", err.Error())

		return
	}

	h.pool.Rebuild(h.store.Active())

	h.logger.Info("Applied staged configuration", "providers", len(staged.Config.Providers))
	writeJSON(w, http.StatusOK, viewOf(staged))
}

// TestChat handles POST /admin/test-chat: one non-streaming round trip
// through the full translation pipeline.
func (h *AdminHandler) TestChat(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "failed to read request body")
		return
	}

	var req translate.MessagesRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}

	if req.Model == "" {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "model is required")
		return
	}

	req.Stream = false

	resp := sendUpstream(w, r, h.store, h.pool, h.logger, &req, body)
	if resp == nil {
		return
	}
	defer resp.Body.Close()

	respondBuffered(w, resp, req.Model, h.logger)
}

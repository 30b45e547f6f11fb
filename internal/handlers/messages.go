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

// MessagesHandler serves the Anthropic-compatible client surface: it
// resolves the requested model against the active configuration, translates
// the request, performs a single upstream attempt through the pooled client,
// and translates the response or error back.
type MessagesHandler struct {
	store  *config.Store
	pool   *upstream.Pool
	logger *slog.Logger
}

func NewMessagesHandler(store *config.Store, pool *upstream.Pool, logger *slog.Logger) *MessagesHandler {
	return &MessagesHandler{
		store:  store,
		pool:   pool,
		logger: logger,
	}
}

// Create handles POST /v1/messages.
func (h *MessagesHandler) Create(w http.ResponseWriter, r *http.Request) {
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

	resp := sendUpstream(w, r, h.store, h.pool, h.logger, &req, body)
	if resp == nil {
		return
	}
	defer resp.Body.Close()

	if req.Stream {
		h.streamResponse(w, resp, req.Model)
		return
	}

	respondBuffered(w, resp, req.Model, h.logger)
}

// sendUpstream resolves the proxy model against the active configuration,
// translates the request, and performs a single upstream attempt through the
// pooled client. Failures are written to w; the caller proceeds only on a
// non-nil response. Shared by the client surface and the admin test-chat
// round trip.
func sendUpstream(w http.ResponseWriter, r *http.Request, store *config.Store, pool *upstream.Pool, logger *slog.Logger, req *translate.MessagesRequest, body []byte) *http.Response {
	provider, mapping, err := store.LookupModel(req.Model)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found_error", err.Error())
		return nil
	}

	chatReq, err := translate.MessagesToChatRequest(req, mapping.UpstreamName)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", err.Error())
		return nil
	}

	logger.Info("Proxying request",
		"model", req.Model,
		"upstream_model", mapping.UpstreamName,
		"provider", provider.Name,
		"stream", req.Stream,
		"input_tokens_estimate", estimateTokens(body, logger),
	)

	resp, err := pool.Get(provider).ChatCompletions(r.Context(), chatReq)
	if err != nil {
		writeError(w, http.StatusBadGateway, "api_error", err.Error())
		return nil
	}

	return resp
}

// respondBuffered reads the whole upstream body and writes the translated
// non-streaming response, or the translated error envelope for error
// statuses.
func respondBuffered(w http.ResponseWriter, resp *http.Response, proxyModel string, logger *slog.Logger) {
	reader, err := decompressReader(resp)
	if err != nil {
		writeError(w, http.StatusBadGateway, "api_error", "decompression error: "+err.Error())
		return
	}

	respBody, err := io.ReadAll(reader)
	if err != nil {
		writeError(w, http.StatusBadGateway, "api_error", "failed to read upstream response")
		return
	}

	if resp.StatusCode >= 400 {
		logger.Error("Upstream error response", "status", resp.StatusCode)
		writeJSON(w, resp.StatusCode, translate.TranslateErrorBody(respBody))

		return
	}

	out, err := translate.ChatToMessagesResponse(respBody, proxyModel)
	if err != nil {
		status := http.StatusBadGateway
		if !errors.Is(err, translate.ErrUpstreamContract) {
			status = http.StatusInternalServerError
		}

		writeError(w, status, "api_error", err.Error())

		return
	}

	writeJSON(w, http.StatusOK, out)
}

func (h *MessagesHandler) streamResponse(w http.ResponseWriter, resp *http.Response, proxyModel string) {
	reader, err := decompressReader(resp)
	if err != nil {
		writeError(w, http.StatusBadGateway, "api_error", "decompression error: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(reader)
		h.logger.Error("Upstream streaming error response", "status", resp.StatusCode)

		// Exactly one error payload, then the stream ends.
		w.WriteHeader(http.StatusOK)
		detail, _ := json.Marshal(translate.TranslateErrorBody(respBody))
		_, _ = w.Write([]byte("data: " + string(detail) + "\n\n"))
		flushResponse(w)

		return
	}

	w.WriteHeader(http.StatusOK)

	err = translate.ReframeStream(reader, proxyModel, func(chunk string) error {
		if _, err := io.WriteString(w, chunk); err != nil {
			return err
		}

		flushResponse(w)

		return nil
	})
	if err != nil {
		// Mid-stream failures terminate the stream; nothing coherent can
		// still be sent to the client.
		h.logger.Error("Stream translation error", "error", err)
	}
}

type modelEntry struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type modelList struct {
	Data []modelEntry `json:"data"`
}

// ListModels handles GET /v1/models. Only proxy-visible names are exposed;
// upstream names and provider identity stay private.
func (h *MessagesHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	active := h.store.Active()

	list := modelList{Data: make([]modelEntry, 0)}
	for _, provider := range active.Providers {
		for _, mapping := range provider.Models {
			list.Data = append(list.Data, modelEntry{ID: mapping.ProxyName, Type: "model"})
		}
	}

	writeJSON(w, http.StatusOK, list)
}

package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Desjajja/o2a/internal/config"
	"github.com/Desjajja/o2a/internal/translate"
	"github.com/Desjajja/o2a/internal/upstream"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestEnv builds a store whose single provider routes claude-sonnet to
// gpt-4.1 on the given upstream URL, applied and ready to serve.
func newTestEnv(t *testing.T, upstreamURL string) (*config.Store, *upstream.Pool) {
	t.Helper()

	store := config.NewStore(t.TempDir() + "/settings.json")
	require.NoError(t, store.Startup())

	_, err := store.Stage(config.ProxyConfig{
		Providers: []config.Provider{
			{
				ID:      "p1",
				Name:    "OpenAI",
				BaseURL: upstreamURL,
				APIKey:  "sk-test",
				Models: []config.ModelMapping{
					{ProxyName: "claude-sonnet", UpstreamName: "gpt-4.1"},
				},
			},
		},
	})
	require.NoError(t, err)

	_, err = store.Apply()
	require.NoError(t, err)

	pool := upstream.NewPool()
	pool.Rebuild(store.Active())
	t.Cleanup(pool.Shutdown)

	return store, pool
}

func postMessages(t *testing.T, h *MessagesHandler, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	return rec
}

func TestMessagesCreate(t *testing.T) {
	var gotUpstream translate.ChatRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotUpstream))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"choices": [{"message":{"content":"Hi"},"finish_reason":"stop"}],
			"usage": {"prompt_tokens": 1, "completion_tokens": 1}
		}`))
	}))
	defer srv.Close()

	store, pool := newTestEnv(t, srv.URL)
	h := NewMessagesHandler(store, pool, testLogger())

	rec := postMessages(t, h, `{
		"model": "claude-sonnet",
		"system": "Be terse",
		"messages": [{"role":"user","content":[{"type":"text","text":"Ping"}]}]
	}`)

	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "gpt-4.1", gotUpstream.Model, "upstream sees the mapped name")
	require.NotEmpty(t, gotUpstream.Messages)
	assert.Equal(t, translate.ChatMessage{Role: "system", Content: "Be terse"}, gotUpstream.Messages[0])

	var out translate.MessagesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "claude-sonnet", out.Model, "client sees the proxy name")
	require.NotNil(t, out.StopReason)
	assert.Equal(t, "end_turn", *out.StopReason)
	require.Len(t, out.Content, 1)
	assert.Equal(t, "Hi", out.Content[0].Text)
}

func TestMessagesCreate_InvalidRequests(t *testing.T) {
	store, pool := newTestEnv(t, "https://unused.example.com")
	h := NewMessagesHandler(store, pool, testLogger())

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantType   string
	}{
		{"not json", `{broken`, http.StatusBadRequest, "invalid_request_error"},
		{"missing model", `{"messages":[{"role":"user","content":"hi"}]}`, http.StatusBadRequest, "invalid_request_error"},
		{"bad content shape", `{"model":"claude-sonnet","messages":[{"role":"user","content":7}]}`, http.StatusBadRequest, "invalid_request_error"},
		{"unknown model", `{"model":"claude-opus","messages":[{"role":"user","content":"hi"}]}`, http.StatusNotFound, "not_found_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postMessages(t, h, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)

			var out translate.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
			assert.Equal(t, "error", out.Type)
			assert.Equal(t, tt.wantType, out.Error.Type)
		})
	}
}

func TestMessagesCreate_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_api_key","message":"Incorrect API key"}}`))
	}))
	defer srv.Close()

	store, pool := newTestEnv(t, srv.URL)
	h := NewMessagesHandler(store, pool, testLogger())

	rec := postMessages(t, h, `{"model":"claude-sonnet","messages":[{"role":"user","content":"hi"}]}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code, "upstream status is surfaced")

	var out translate.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "authentication_error", out.Error.Type)
	assert.Equal(t, "Incorrect API key", out.Error.Message)
}

func TestMessagesCreate_UpstreamContractViolation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	store, pool := newTestEnv(t, srv.URL)
	h := NewMessagesHandler(store, pool, testLogger())

	rec := postMessages(t, h, `{"model":"claude-sonnet","messages":[{"role":"user","content":"hi"}]}`)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestMessagesCreate_Streaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req translate.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\n"))
		_, _ = w.Write([]byte("data: {\"choices\":[{\"finish_reason\":\"stop\"}]}\n\n"))
	}))
	defer srv.Close()

	store, pool := newTestEnv(t, srv.URL)
	h := NewMessagesHandler(store, pool, testLogger())

	rec := postMessages(t, h, `{"model":"claude-sonnet","stream":true,"messages":[{"role":"user","content":"hi"}]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: content_block_delta\n")
	assert.Contains(t, body, `"text":"Hi"`)
	assert.Contains(t, body, "event: message_stop\n")
	assert.Contains(t, body, `"stop_reason":"end_turn"`)
	assert.Equal(t, 1, strings.Count(body, "data: [DONE]"))
	assert.True(t, strings.HasSuffix(body, translate.StreamTerminator))
}

func TestMessagesCreate_StreamingUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"type":"rate_limit_exceeded","message":"slow down"}}`))
	}))
	defer srv.Close()

	store, pool := newTestEnv(t, srv.URL)
	h := NewMessagesHandler(store, pool, testLogger())

	rec := postMessages(t, h, `{"model":"claude-sonnet","stream":true,"messages":[{"role":"user","content":"hi"}]}`)

	body := rec.Body.String()
	require.True(t, strings.HasPrefix(body, "data: "))
	assert.Equal(t, 1, strings.Count(body, "data: "), "exactly one error payload")
	assert.Contains(t, body, `"rate_limit_error"`)
	assert.NotContains(t, body, "[DONE]")
}

func TestMessagesCreate_ClientDisconnectCancelsUpstream(t *testing.T) {
	firstChunk := make(chan struct{})
	upstreamDone := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\n"))

		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}

		close(firstChunk)

		// Hold the stream open until the proxy drops the connection.
		<-r.Context().Done()
		close(upstreamDone)
	}))
	defer srv.Close()

	store, pool := newTestEnv(t, srv.URL)
	h := NewMessagesHandler(store, pool, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	body := `{"model":"claude-sonnet","stream":true,"messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(body)).WithContext(ctx)
	rec := httptest.NewRecorder()

	handlerDone := make(chan struct{})

	go func() {
		h.Create(rec, req)
		close(handlerDone)
	}()

	select {
	case <-firstChunk:
	case <-time.After(5 * time.Second):
		t.Fatal("upstream never delivered the first chunk")
	}

	// Client walks away mid-stream.
	cancel()

	select {
	case <-upstreamDone:
	case <-time.After(5 * time.Second):
		t.Fatal("upstream request still running after client disconnect")
	}

	select {
	case <-handlerDone:
	case <-time.After(5 * time.Second):
		t.Fatal("handler still running after client disconnect")
	}

	assert.NotContains(t, rec.Body.String(), "[DONE]", "a torn-down stream is not terminated as complete")
}

func TestListModels(t *testing.T) {
	store, pool := newTestEnv(t, "https://api.example.com/v1")
	h := NewMessagesHandler(store, pool, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	h.ListModels(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Data []map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))

	require.Len(t, out.Data, 1)
	assert.Equal(t, map[string]string{"id": "claude-sonnet", "type": "model"}, out.Data[0])

	// Upstream names and provider identity stay private.
	assert.NotContains(t, rec.Body.String(), "gpt-4.1")
	assert.NotContains(t, rec.Body.String(), "sk-test")
}

package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Desjajja/o2a/internal/config"
)

const defaultTimeout = 60 * time.Second

// Client talks to one OpenAI-compatible provider. It carries the provider's
// base URL and bearer credential, so it must be discarded whenever that
// provider's configuration changes.
type Client struct {
	baseURL string
	apiKey  config.Secret
	http    *http.Client
}

func NewClient(provider config.Provider) *Client {
	return &Client{
		baseURL: strings.TrimRight(provider.BaseURL, "/"),
		apiKey:  provider.APIKey,
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

// ChatCompletions posts a chat completions request. The response body is
// read lazily by the caller, so the same call serves both buffered and
// streaming responses; cancelling ctx tears the upstream connection down.
func (c *Client) ChatCompletions(ctx context.Context, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal upstream payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+string(c.apiKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request: %w", err)
	}

	return resp, nil
}

func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

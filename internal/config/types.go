package config

import (
	"fmt"
	"log/slog"
	"net/url"
)

// Secret is an API key. It marshals in cleartext: the on-disk document and
// the admin view carry keys as-is, protected only by filesystem permissions.
// It redacts itself when logged through slog.
type Secret string

func (s Secret) LogValue() slog.Value {
	return slog.StringValue("[redacted]")
}

// ModelMapping links the model name proxy clients request to the model name
// sent upstream.
type ModelMapping struct {
	ProxyName    string `json:"proxy_name"`
	UpstreamName string `json:"upstream_name"`
}

// Provider is one OpenAI-compatible upstream. ID is assigned at creation and
// never changes; it keys the upstream client pool.
type Provider struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	BaseURL string         `json:"base_url"`
	APIKey  Secret         `json:"api_key"`
	Models  []ModelMapping `json:"models"`
}

// ProxyConfig is the persisted configuration document. It is staged and
// applied as a whole, never partially.
type ProxyConfig struct {
	Providers []Provider `json:"providers"`
}

// Staged is the candidate configuration that becomes active on apply.
type Staged struct {
	Config       ProxyConfig `json:"config"`
	NeedsRestart bool        `json:"needs_restart"`
	StagedAt     *int64      `json:"staged_at"`
}

// Validate checks the whole document. Any failure rejects the document
// atomically; nothing is ever staged from a partially valid one. Duplicate
// proxy-visible model names are rejected rather than letting a later
// provider silently shadow an earlier one.
func (c *ProxyConfig) Validate() error {
	seen := make(map[string]string)

	for i, provider := range c.Providers {
		label := provider.Name
		if label == "" {
			label = fmt.Sprintf("provider %d", i)
		}

		if provider.Name == "" {
			return fmt.Errorf("%w: %s: name is required", ErrInvalidConfig, label)
		}

		if provider.APIKey == "" {
			return fmt.Errorf("%w: %s: api_key is required", ErrInvalidConfig, label)
		}

		if err := validateBaseURL(provider.BaseURL); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, label, err)
		}

		for _, mapping := range provider.Models {
			if mapping.ProxyName == "" || mapping.UpstreamName == "" {
				return fmt.Errorf("%w: %s: model mappings need proxy_name and upstream_name", ErrInvalidConfig, label)
			}

			if owner, dup := seen[mapping.ProxyName]; dup {
				return fmt.Errorf("%w: model %q mapped by both %s and %s", ErrInvalidConfig, mapping.ProxyName, owner, label)
			}

			seen[mapping.ProxyName] = label
		}
	}

	return nil
}

func validateBaseURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("base_url is required")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("base_url %q is not a valid URL", raw)
	}

	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("base_url %q must be an absolute http(s) URL", raw)
	}

	return nil
}

func (c ProxyConfig) clone() ProxyConfig {
	out := ProxyConfig{Providers: make([]Provider, len(c.Providers))}

	for i, provider := range c.Providers {
		clone := provider
		clone.Models = append([]ModelMapping(nil), provider.Models...)
		out.Providers[i] = clone
	}

	return out
}

package translate

import (
	"encoding/json"
	"fmt"
)

// MessagesToChatRequest converts an Anthropic-shaped chat request into the
// OpenAI chat completions shape, targeting the given upstream model name.
// The client-visible model name never reaches the upstream.
func MessagesToChatRequest(req *MessagesRequest, upstreamModel string) (*ChatRequest, error) {
	messages := make([]ChatMessage, 0, len(req.Messages)+1)

	if req.System.Set() && !req.System.Empty() {
		messages = append(messages, ChatMessage{Role: "system", Content: req.System.Collapse()})
	}

	for i, msg := range req.Messages {
		if !msg.Content.Set() {
			return nil, fmt.Errorf("%w: message %d has no content", ErrInvalidRequest, i)
		}

		messages = append(messages, ChatMessage{Role: msg.Role, Content: msg.Content.Collapse()})
	}

	out := &ChatRequest{
		Model:    upstreamModel,
		Messages: messages,
		Stream:   req.Stream,

		// Optional knobs pass through untouched; absent fields stay absent.
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Metadata:    req.Metadata,
		Stop:        req.StopSequences,
	}

	if len(req.Schema) > 0 {
		out.ResponseFormat = &ResponseFormat{
			Type:   "json_schema",
			Schema: json.RawMessage(req.Schema),
		}
	}

	return out, nil
}

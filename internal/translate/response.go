package translate

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// MapStopReason converts an OpenAI finish reason to the Anthropic stop
// reason vocabulary. Total over its input: unknown reasons become
// "end_turn" rather than failing.
func MapStopReason(finishReason *string) *string {
	if finishReason == nil {
		return nil
	}

	var mapped string

	switch *finishReason {
	case "stop":
		mapped = "end_turn"
	case "length":
		mapped = "max_tokens"
	case "content_filter":
		mapped = "content_filter"
	default:
		mapped = "end_turn"
	}

	return &mapped
}

// ChatToMessagesResponse converts an OpenAI chat completions response body
// into the Anthropic message shape, tagged with the client-visible model name.
func ChatToMessagesResponse(body []byte, proxyModel string) (*MessagesResponse, error) {
	var resp ChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode upstream response: %v", ErrUpstreamContract, err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: missing choices", ErrUpstreamContract)
	}

	choice := resp.Choices[0]

	id := resp.ID
	if id == "" {
		id = uuid.NewString()
	}

	out := &MessagesResponse{
		ID:         id,
		Type:       "message",
		Role:       "assistant",
		Model:      proxyModel,
		StopReason: MapStopReason(choice.FinishReason),
		Content: []TextContent{
			{Type: "text", Text: choice.Message.Content.Collapse(), Citations: nil},
		},
	}

	if resp.Usage != nil {
		out.Usage = Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}

	return out, nil
}

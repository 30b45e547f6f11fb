package translate

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest marks inbound payloads the proxy cannot interpret.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrUpstreamContract marks upstream responses missing fields the
	// OpenAI chat completions shape guarantees.
	ErrUpstreamContract = errors.New("upstream response missing expected fields")
)

// ContentBlock is a single typed block inside an Anthropic-style content list.
// Only "text" blocks carry data the proxy forwards; other types are ignored.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Prompt holds content that may arrive either as a bare JSON string or as a
// list of content blocks. Both the Anthropic request side (system prompt,
// message content) and the OpenAI response side (choice message content) use
// this shape, so it is decoded once here and collapsed by a single rule.
type Prompt struct {
	set    bool
	isText bool
	text   string
	blocks []ContentBlock
}

func TextPrompt(text string) Prompt {
	return Prompt{set: true, isText: true, text: text}
}

func BlocksPrompt(blocks ...ContentBlock) Prompt {
	return Prompt{set: true, blocks: blocks}
}

func (p *Prompt) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}

	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*p = TextPrompt(text)
		return nil
	}

	var blocks []ContentBlock
	if err := json.Unmarshal(data, &blocks); err == nil {
		*p = Prompt{set: true, blocks: blocks}
		return nil
	}

	return fmt.Errorf("%w: content must be a string or a list of content blocks", ErrInvalidRequest)
}

// Set reports whether the field was present and non-null in the payload.
func (p Prompt) Set() bool {
	return p.set
}

// Empty reports whether the prompt carries nothing: an empty string or an
// empty block list.
func (p Prompt) Empty() bool {
	if p.isText {
		return p.text == ""
	}

	return len(p.blocks) == 0
}

// Collapse flattens the prompt to plain text: the string itself, or the
// in-order concatenation of "text" blocks with other block types skipped.
func (p Prompt) Collapse() string {
	if p.isText {
		return p.text
	}

	var out string
	for _, block := range p.blocks {
		if block.Type == "text" {
			out += block.Text
		}
	}

	return out
}

// MessagesRequest is the Anthropic-shaped inbound chat request.
type MessagesRequest struct {
	Model         string           `json:"model"`
	System        Prompt           `json:"system,omitempty"`
	Messages      []InboundMessage `json:"messages"`
	MaxTokens     *int             `json:"max_tokens,omitempty"`
	Temperature   *float64         `json:"temperature,omitempty"`
	TopP          *float64         `json:"top_p,omitempty"`
	Metadata      map[string]any   `json:"metadata,omitempty"`
	StopSequences []string         `json:"stop_sequences,omitempty"`
	Schema        json.RawMessage  `json:"schema,omitempty"`
	Stream        bool             `json:"stream,omitempty"`
}

type InboundMessage struct {
	Role    string `json:"role"`
	Content Prompt `json:"content"`
}

// ChatRequest is the OpenAI-shaped upstream chat completions request.
type ChatRequest struct {
	Model          string          `json:"model"`
	Messages       []ChatMessage   `json:"messages"`
	Stream         bool            `json:"stream"`
	MaxTokens      *int            `json:"max_tokens,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty"`
	TopP           *float64        `json:"top_p,omitempty"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
	Stop           []string        `json:"stop,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ResponseFormat struct {
	Type   string          `json:"type"`
	Schema json.RawMessage `json:"schema"`
}

// ChatResponse is the OpenAI-shaped upstream chat completions response.
type ChatResponse struct {
	ID      string       `json:"id"`
	Choices []ChatChoice `json:"choices"`
	Usage   *ChatUsage   `json:"usage"`
}

type ChatChoice struct {
	Message      ChoiceMessage `json:"message"`
	FinishReason *string       `json:"finish_reason"`
}

type ChoiceMessage struct {
	Role    string `json:"role"`
	Content Prompt `json:"content"`
}

type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// MessagesResponse is the Anthropic-shaped response returned to proxy clients.
type MessagesResponse struct {
	ID           string        `json:"id"`
	Type         string        `json:"type"`
	Role         string        `json:"role"`
	Model        string        `json:"model"`
	StopReason   *string       `json:"stop_reason"`
	StopSequence *string       `json:"stop_sequence"`
	Content      []TextContent `json:"content"`
	Usage        Usage         `json:"usage"`
}

type TextContent struct {
	Type      string `json:"type"`
	Text      string `json:"text"`
	Citations any    `json:"citations"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ErrorResponse is the Anthropic-shaped error envelope.
type ErrorResponse struct {
	Type  string      `json:"type"`
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

package translate

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// StreamTerminator is the sentinel ending every outbound event stream.
const StreamTerminator = "data: [DONE]\n\n"

const maxStreamLine = 1024 * 1024

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

type contentBlockDelta struct {
	Type  string    `json:"type"`
	Index int       `json:"index"`
	Delta textDelta `json:"delta"`
	Model string    `json:"model"`
}

type textDelta struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type messageStop struct {
	Type       string  `json:"type"`
	StopReason *string `json:"stop_reason"`
	Model      string  `json:"model"`
}

// FormatSSEEvent frames a payload as a named Server-Sent Event.
func FormatSSEEvent(event string, payload any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		return "event: error\ndata: {\"error\":\"failed to marshal event\"}\n\n"
	}

	return fmt.Sprintf("event: %s\ndata: %s\n\n", event, data)
}

// ReframeStream reads an OpenAI chat completions SSE stream and emits the
// Anthropic-shaped event sequence, chunk by chunk, without buffering the
// whole response. Lines without a "data: " prefix (keep-alives, comments)
// are skipped. The outbound stream ends with exactly one terminator
// sentinel: after the upstream [DONE], immediately after a finish reason,
// or synthesized when the upstream closes without either. A chunk that is
// not valid JSON aborts the stream with an error and no terminator.
func ReframeStream(upstream io.Reader, proxyModel string, emit func(chunk string) error) error {
	scanner := bufio.NewScanner(upstream)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLine)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		payload := strings.TrimPrefix(line, "data: ")
		if strings.TrimSpace(payload) == "[DONE]" {
			return emit(StreamTerminator)
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return fmt.Errorf("decode upstream stream chunk: %w", err)
		}

		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]

		if choice.Delta.Content != "" {
			event := contentBlockDelta{
				Type:  "content_block_delta",
				Index: 0,
				Delta: textDelta{Type: "text_delta", Text: choice.Delta.Content},
				Model: proxyModel,
			}
			if err := emit(FormatSSEEvent("content_block_delta", event)); err != nil {
				return err
			}
		}

		if choice.FinishReason != nil && *choice.FinishReason != "" {
			stop := messageStop{
				Type:       "message_stop",
				StopReason: MapStopReason(choice.FinishReason),
				Model:      proxyModel,
			}
			if err := emit(FormatSSEEvent("message_stop", stop)); err != nil {
				return err
			}

			// Do not wait for the upstream [DONE].
			return emit(StreamTerminator)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read upstream stream: %w", err)
	}

	// Upstream closed without a finish reason or [DONE].
	endTurn := "end_turn"
	stop := messageStop{Type: "message_stop", StopReason: &endTurn, Model: proxyModel}

	if err := emit(FormatSSEEvent("message_stop", stop)); err != nil {
		return err
	}

	return emit(StreamTerminator)
}

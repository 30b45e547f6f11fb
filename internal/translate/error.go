package translate

import (
	"encoding/json"
	"strings"
)

type upstreamError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// TranslateErrorBody converts an OpenAI error body into the Anthropic error
// envelope. Bodies that are not JSON are surfaced as an api_error carrying
// the raw text.
func TranslateErrorBody(body []byte) *ErrorResponse {
	var parsed upstreamError
	if err := json.Unmarshal(body, &parsed); err != nil {
		message := strings.TrimSpace(string(body))
		if message == "" {
			message = "Upstream error"
		}

		return &ErrorResponse{
			Type:  "error",
			Error: ErrorDetail{Type: "api_error", Message: message},
		}
	}

	message := parsed.Error.Message
	if message == "" {
		message = "Upstream error"
	}

	return &ErrorResponse{
		Type:  "error",
		Error: ErrorDetail{Type: mapErrorType(parsed.Error.Type), Message: message},
	}
}

func mapErrorType(openaiType string) string {
	mapping := map[string]string{
		"invalid_api_key":     "authentication_error",
		"insufficient_quota":  "rate_limit_error",
		"rate_limit_exceeded": "rate_limit_error",
		"model_not_found":     "invalid_request_error",
	}

	if anthropicType, ok := mapping[openaiType]; ok {
		return anthropicType
	}

	return "api_error"
}

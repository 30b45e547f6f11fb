package handlers

import (
	"compress/gzip"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/andybalholm/brotli"
	"github.com/pkoukk/tiktoken-go"

	"github.com/Desjajja/o2a/internal/translate"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, &translate.ErrorResponse{
		Type:  "error",
		Error: translate.ErrorDetail{Type: errType, Message: message},
	})
}

// decompressReader unwraps gzip/brotli encoded upstream bodies.
func decompressReader(resp *http.Response) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(resp.Body)
	case "br":
		return brotli.NewReader(resp.Body), nil
	default:
		return resp.Body, nil
	}
}

// estimateTokens gives a rough cl100k_base token count of the inbound body,
// used only for request logging.
func estimateTokens(body []byte, logger *slog.Logger) int {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		logger.Error("Failed to get tiktoken encoding", "error", err)
		return 0
	}

	return len(enc.Encode(string(body), nil, nil))
}

func flushResponse(w http.ResponseWriter) {
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

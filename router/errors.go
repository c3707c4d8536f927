package router

import (
	"encoding/json"
	"net/http"

	"github.com/viant/mcp-bridge/fault"
)

type errorDetail struct {
	Kind    fault.Kind `json:"kind"`
	Message string     `json:"message"`
	State   string     `json:"state,omitempty"`
}

type errorEnvelope struct {
	Error errorDetail `json:"error"`
}

// writeError renders the standard envelope; state carries the supervisor
// diagnostic on unavailability responses.
func writeError(writer http.ResponseWriter, status int, kind fault.Kind, message, state string) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	_ = json.NewEncoder(writer).Encode(errorEnvelope{Error: errorDetail{Kind: kind, Message: message, State: state}})
}

func writeJSON(writer http.ResponseWriter, status int, payload []byte) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	_, _ = writer.Write(payload)
}

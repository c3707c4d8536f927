package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/viant/jsonrpc"
	"github.com/viant/mcp-protocol/schema"

	"github.com/viant/mcp-bridge/fault"
	"github.com/viant/mcp-bridge/supervisor"
)

// JSON-RPC error codes that map onto distinct HTTP statuses.
const (
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

// invoke is the per-route hot path: gate, validate, call, shape.
func (r *Router) invoke(writer http.ResponseWriter, request *http.Request, current *table, bound *route) {
	state, generation := r.state.Snapshot()
	if state != supervisor.StateReady || generation != current.generation {
		r.serveUnavailable(writer)
		return
	}

	body, err := io.ReadAll(io.LimitReader(request.Body, maxBodyBytes))
	if err != nil {
		writeError(writer, http.StatusBadRequest, fault.KindSchemaValidation, "failed to read request body", "")
		return
	}
	if len(body) == 0 {
		body = []byte("{}")
	}
	var arguments map[string]interface{}
	if err := json.Unmarshal(body, &arguments); err != nil {
		writeError(writer, http.StatusBadRequest, fault.KindSchemaValidation, "request body is not a JSON object", "")
		return
	}
	if err := bound.input.VisitJSON(arguments); err != nil {
		writeError(writer, http.StatusUnprocessableEntity, fault.KindSchemaValidation, err.Error(), "")
		return
	}

	params := &schema.CallToolRequestParams{
		Name:      bound.descriptor.Name,
		Arguments: arguments,
	}
	// The per-call deadline stands on its own; a client disconnect must not
	// cancel a call the subprocess is already working on.
	ctx := context.WithoutCancel(request.Context())
	raw, err := current.caller.Call(ctx, schema.MethodToolsCall, params, r.callTimeout)
	if err != nil {
		r.writeCallError(writer, err)
		return
	}
	r.writeCallResult(writer, raw)
}

// writeCallError maps a failed tools/call onto the HTTP error taxonomy.
func (r *Router) writeCallError(writer http.ResponseWriter, err error) {
	var rpcErr *jsonrpc.Error
	if errors.As(err, &rpcErr) {
		status := http.StatusBadGateway
		switch rpcErr.Code {
		case codeInvalidParams:
			status = http.StatusBadRequest
		case codeMethodNotFound:
			status = http.StatusNotFound
		}
		writeError(writer, status, fault.KindToolInvocation, rpcErr.Message, "")
		return
	}
	switch kind, _ := fault.KindOf(err); kind {
	case fault.KindTimeout:
		writeError(writer, http.StatusGatewayTimeout, fault.KindTimeout, err.Error(), "")
	case fault.KindTransport, fault.KindUnavailable:
		state, _ := r.state.Snapshot()
		writeError(writer, http.StatusServiceUnavailable, fault.KindUnavailable, err.Error(), state.String())
	default:
		writeError(writer, http.StatusBadGateway, fault.KindToolInvocation, err.Error(), "")
	}
}

// writeCallResult relays a successful tools/call. A CallToolResult with
// content gets unwrapped the way the upstream result is meant to be read:
// one text block parses as JSON when it can, several become an array.
// Anything else is relayed verbatim.
func (r *Router) writeCallResult(writer http.ResponseWriter, raw json.RawMessage) {
	var result schema.CallToolResult
	if err := json.Unmarshal(raw, &result); err != nil || len(result.Content) == 0 {
		if shaped := shapeStructured(&result); shaped != nil {
			writeJSON(writer, http.StatusOK, shaped)
			return
		}
		writeJSON(writer, http.StatusOK, raw)
		return
	}
	if result.IsError != nil && *result.IsError {
		writeError(writer, http.StatusBadGateway, fault.KindToolInvocation, joinText(result.Content), "")
		return
	}
	writeJSON(writer, http.StatusOK, shapeContent(result.Content))
}

// shapeStructured prefers a declared structuredContent payload when the
// result parsed but carried no content blocks.
func shapeStructured(result *schema.CallToolResult) []byte {
	if result == nil || result.StructuredContent == nil {
		return nil
	}
	shaped, err := json.Marshal(result.StructuredContent)
	if err != nil {
		return nil
	}
	return shaped
}

func shapeContent(content []schema.CallToolResultContentElem) []byte {
	if len(content) == 1 {
		return shapeText(content[0].Text)
	}
	shaped := make([]json.RawMessage, 0, len(content))
	for _, elem := range content {
		shaped = append(shaped, shapeText(elem.Text))
	}
	data, _ := json.Marshal(shaped)
	return data
}

// shapeText returns the text verbatim when it is already a JSON value,
// otherwise as a JSON string.
func shapeText(text string) []byte {
	trimmed := strings.TrimSpace(text)
	if json.Valid([]byte(trimmed)) && trimmed != "" {
		return []byte(trimmed)
	}
	quoted, _ := json.Marshal(text)
	return quoted
}

func joinText(content []schema.CallToolResultContentElem) string {
	parts := make([]string, 0, len(content))
	for _, elem := range content {
		if elem.Text != "" {
			parts = append(parts, elem.Text)
		}
	}
	if len(parts) == 0 {
		return "tool reported an error"
	}
	return strings.Join(parts, "\n")
}

package stdio

import (
	"bytes"
	"encoding/json"

	"github.com/viant/jsonrpc"

	"github.com/viant/mcp-bridge/fault"
)

// Message is one decoded frame, classified as exactly one of a request,
// response or notification.
type Message struct {
	Request      *jsonrpc.Request
	Response     *jsonrpc.Response
	Notification *jsonrpc.Notification
}

// probe captures the discriminating fields of a JSON-RPC frame before it is
// classified.
type probe struct {
	Jsonrpc string          `json:"jsonrpc"`
	Id      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpc.Error  `json:"error,omitempty"`
}

var nullLiteral = []byte("null")

// decodeMessage parses a single line into a classified Message. A line that
// is not a JSON object, or that carries neither method nor id, yields a
// protocol fault scoped to that line only.
func decodeMessage(line []byte) (*Message, error) {
	var p probe
	if err := json.Unmarshal(line, &p); err != nil {
		return nil, fault.Wrap(fault.KindProtocol, "malformed frame", err)
	}
	hasId := len(p.Id) > 0 && !bytes.Equal(p.Id, nullLiteral)
	var id interface{}
	if hasId {
		if err := json.Unmarshal(p.Id, &id); err != nil {
			return nil, fault.Wrap(fault.KindProtocol, "malformed message id", err)
		}
	}
	switch {
	case p.Method != "" && hasId:
		return &Message{Request: &jsonrpc.Request{
			Jsonrpc: p.Jsonrpc,
			Id:      id,
			Method:  p.Method,
			Params:  p.Params,
		}}, nil
	case p.Method != "":
		return &Message{Notification: &jsonrpc.Notification{
			Method: p.Method,
			Params: p.Params,
		}}, nil
	case hasId:
		return &Message{Response: &jsonrpc.Response{
			Jsonrpc: p.Jsonrpc,
			Id:      id,
			Result:  p.Result,
			Error:   p.Error,
		}}, nil
	}
	return nil, fault.New(fault.KindProtocol, "frame carries neither method nor id")
}

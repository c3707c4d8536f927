package discovery

import "encoding/json"

// ToolDescriptor is one discovered tool, immutable once published. Schemas
// are carried verbatim as raw JSON so the translated document reflects
// exactly what the server declared.
type ToolDescriptor struct {
	Name         string
	Description  string
	InputSchema  json.RawMessage
	OutputSchema json.RawMessage
	Path         string
}

// Result is a completed discovery pass for one process generation.
type Result struct {
	Generation      uint64
	ProtocolVersion string
	ServerName      string
	ServerVersion   string
	Tools           []*ToolDescriptor
}

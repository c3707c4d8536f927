// Package discovery performs the MCP handshake and tool enumeration for a
// freshly spawned subprocess generation: initialize, notifications/initialized,
// then tools/list with cursor pagination, validating and sanitizing every
// entry before descriptors are published.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/viant/mcp-protocol/schema"

	"github.com/viant/mcp-bridge/fault"
)

// maxPages bounds cursor pagination so a misbehaving server cannot loop the
// bridge forever.
const maxPages = 128

// Caller issues JSON-RPC calls and notifications on the current generation.
type Caller interface {
	Call(ctx context.Context, method string, params interface{}, timeout time.Duration) (json.RawMessage, error)
	Notify(ctx context.Context, method string, params interface{}) error
}

// Config identifies the bridge to the server and bounds handshake calls.
type Config struct {
	ClientName    string
	ClientVersion string
	Timeout       time.Duration
	Logger        *slog.Logger
}

// Service runs discovery passes. One instance serves all generations; the
// caller passed to Discover binds the pass to a generation.
type Service struct {
	config Config
	logger *slog.Logger
}

// New returns a discovery service.
func New(config Config) *Service {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.ClientName == "" {
		config.ClientName = "mcp-bridge"
	}
	return &Service{config: config, logger: logger}
}

// listToolsPage mirrors the tools/list result shape on the wire; schemas
// stay raw.
type listToolsPage struct {
	Tools []struct {
		Name         string          `json:"name"`
		Description  string          `json:"description"`
		InputSchema  json.RawMessage `json:"inputSchema"`
		OutputSchema json.RawMessage `json:"outputSchema"`
	} `json:"tools"`
	NextCursor string `json:"nextCursor"`
}

// Discover runs the handshake and enumerates tools for generation. Invalid
// entries are dropped with a warning; a handshake failure fails the pass.
func (s *Service) Discover(ctx context.Context, caller Caller, generation uint64) (*Result, error) {
	result, err := s.initialize(ctx, caller)
	if err != nil {
		return nil, err
	}
	result.Generation = generation

	if err := caller.Notify(ctx, schema.MethodNotificationInitialized, nil); err != nil {
		return nil, fmt.Errorf("failed to notify initialized: %w", err)
	}

	tools, err := s.listTools(ctx, caller)
	if err != nil {
		return nil, err
	}
	result.Tools = s.validate(tools)
	s.logger.Info("discovery completed",
		"generation", generation,
		"server", result.ServerName,
		"tools", len(result.Tools))
	return result, nil
}

func (s *Service) initialize(ctx context.Context, caller Caller) (*Result, error) {
	params := &schema.InitializeRequestParams{
		Capabilities:    schema.ClientCapabilities{},
		ClientInfo:      schema.Implementation{Name: s.config.ClientName, Version: s.config.ClientVersion},
		ProtocolVersion: schema.LatestProtocolVersion,
	}
	raw, err := caller.Call(ctx, schema.MethodInitialize, params, s.config.Timeout)
	if err != nil {
		return nil, err
	}
	var initialized schema.InitializeResult
	if err := json.Unmarshal(raw, &initialized); err != nil {
		return nil, fault.Wrap(fault.KindProtocol, "malformed initialize result", err)
	}
	if initialized.ProtocolVersion == "" {
		return nil, fault.New(fault.KindProtocol, "initialize result carries no protocol version")
	}
	return &Result{
		ProtocolVersion: initialized.ProtocolVersion,
		ServerName:      initialized.ServerInfo.Name,
		ServerVersion:   initialized.ServerInfo.Version,
	}, nil
}

func (s *Service) listTools(ctx context.Context, caller Caller) ([]*ToolDescriptor, error) {
	var tools []*ToolDescriptor
	var cursor *string
	for page := 0; page < maxPages; page++ {
		raw, err := caller.Call(ctx, schema.MethodToolsList, &schema.ListToolsRequestParams{Cursor: cursor}, s.config.Timeout)
		if err != nil {
			return nil, err
		}
		var listed listToolsPage
		if err := json.Unmarshal(raw, &listed); err != nil {
			return nil, fault.Wrap(fault.KindProtocol, "malformed tools/list result", err)
		}
		for _, tool := range listed.Tools {
			tools = append(tools, &ToolDescriptor{
				Name:         tool.Name,
				Description:  tool.Description,
				InputSchema:  tool.InputSchema,
				OutputSchema: tool.OutputSchema,
			})
		}
		if listed.NextCursor == "" {
			return tools, nil
		}
		next := listed.NextCursor
		cursor = &next
	}
	return nil, fault.Newf(fault.KindProtocol, "tools/list pagination did not terminate within %d pages", maxPages)
}

// reservedPaths are served by the bridge itself and never bound to a tool.
var reservedPaths = map[string]bool{
	"openapi.json": true,
	"status":       true,
}

// validate drops invalid entries and resolves path collisions; survivors
// get their sanitized Path assigned, preserving discovery order.
func (s *Service) validate(tools []*ToolDescriptor) []*ToolDescriptor {
	byName := map[string]bool{}
	byPath := map[string]*ToolDescriptor{}
	var valid []*ToolDescriptor
	for _, tool := range tools {
		if tool.Name == "" {
			s.logger.Warn("tool dropped: empty name")
			continue
		}
		if byName[tool.Name] {
			s.logger.Warn("tool dropped: duplicate name", "tool", tool.Name)
			continue
		}
		if err := validateObjectSchema(tool.InputSchema); err != nil {
			s.logger.Warn("tool dropped: invalid input schema", "tool", tool.Name, "error", err)
			continue
		}
		if len(tool.InputSchema) == 0 || string(tool.InputSchema) == "null" {
			tool.InputSchema = json.RawMessage(`{"type":"object"}`)
		}
		path := SanitizeName(tool.Name)
		if path == "" {
			s.logger.Warn("tool dropped: name sanitizes to nothing", "tool", tool.Name)
			continue
		}
		if reservedPaths[path] {
			s.logger.Warn("tool dropped: reserved path", "tool", tool.Name, "path", path)
			continue
		}
		if previous, collided := byPath[path]; collided {
			s.logger.Warn("tool dropped: sanitized path collision",
				"tool", tool.Name, "path", path, "collidesWith", previous.Name)
			continue
		}
		tool.Path = path
		byName[tool.Name] = true
		byPath[path] = tool
		valid = append(valid, tool)
	}
	return valid
}

// validateObjectSchema accepts an empty schema or a JSON object whose type,
// when declared, is "object".
func validateObjectSchema(raw json.RawMessage) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var parsed map[string]interface{}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("input schema is not a JSON object: %w", err)
	}
	if declared, ok := parsed["type"].(string); ok && declared != "object" {
		return fmt.Errorf("input schema type is %q, expected object", declared)
	}
	return nil
}

// SanitizeName maps a tool name onto a safe path segment: runes outside
// [A-Za-z0-9_.-] become underscores.
func SanitizeName(name string) string {
	var builder strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
			builder.WriteRune(r)
		default:
			builder.WriteRune('_')
		}
	}
	sanitized := builder.String()
	if strings.Trim(sanitized, "_.") == "" {
		return ""
	}
	return sanitized
}

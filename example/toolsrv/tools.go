package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/viant/afs/url"
	"github.com/viant/jsonrpc"
	"github.com/viant/mcp-protocol/schema"
)

// toolDefinition is the tools/list entry shape on the wire.
type toolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

type tool struct {
	definition toolDefinition
	call       func(ctx context.Context, arguments map[string]interface{}) (*schema.CallToolResult, *jsonrpc.Error)
}

func textResult(text string, isError bool) *schema.CallToolResult {
	result := &schema.CallToolResult{
		Content: []schema.CallToolResultContentElem{{Type: "text", Text: text}},
	}
	if isError {
		result.IsError = &isError
	}
	return result
}

func jsonResult(value interface{}) (*schema.CallToolResult, *jsonrpc.Error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, jsonrpc.NewInternalError(err.Error(), nil)
	}
	return textResult(string(data), false), nil
}

func listFilesTool(s *server) *tool {
	return &tool{
		definition: toolDefinition{
			Name:        "list_files",
			Description: "List files under a location relative to the base URL",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"location": {"type": "string", "description": "location relative to the base URL"}
				}
			}`),
		},
		call: func(ctx context.Context, arguments map[string]interface{}) (*schema.CallToolResult, *jsonrpc.Error) {
			location, _ := arguments["location"].(string)
			objects, err := s.fs.List(ctx, url.Join(s.baseURL, location))
			if err != nil {
				return nil, jsonrpc.NewInternalError(err.Error(), nil)
			}
			var files []map[string]interface{}
			for _, object := range objects {
				files = append(files, map[string]interface{}{
					"name": object.Name(),
					"url":  object.URL(),
					"dir":  object.IsDir(),
					"size": object.Size(),
				})
			}
			return jsonResult(map[string]interface{}{"files": files})
		},
	}
}

func readFileTool(s *server) *tool {
	return &tool{
		definition: toolDefinition{
			Name:        "read_file",
			Description: "Read a file relative to the base URL",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"location": {"type": "string"}
				},
				"required": ["location"]
			}`),
		},
		call: func(ctx context.Context, arguments map[string]interface{}) (*schema.CallToolResult, *jsonrpc.Error) {
			location, _ := arguments["location"].(string)
			if location == "" {
				return nil, jsonrpc.NewInvalidParamsError("location is required", nil)
			}
			data, err := s.fs.DownloadWithURL(ctx, url.Join(s.baseURL, location))
			if err != nil {
				return textResult(err.Error(), true), nil
			}
			return textResult(string(data), false), nil
		},
	}
}

func terminalTool(s *server) *tool {
	return &tool{
		definition: toolDefinition{
			Name:        "terminal",
			Description: "Run shell commands and return combined output",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"commands": {"type": "array", "items": {"type": "string"}}
				},
				"required": ["commands"]
			}`),
		},
		call: func(ctx context.Context, arguments map[string]interface{}) (*schema.CallToolResult, *jsonrpc.Error) {
			raw, _ := arguments["commands"].([]interface{})
			var commands []string
			for _, item := range raw {
				if command, ok := item.(string); ok {
					commands = append(commands, command)
				}
			}
			if len(commands) == 0 {
				return nil, jsonrpc.NewInvalidParamsError("commands is required", nil)
			}
			output, code, err := s.terminal.Run(ctx, strings.Join(commands, " && "))
			if err != nil {
				return nil, jsonrpc.NewInternalError(err.Error(), nil)
			}
			if code != 0 {
				return textResult(fmt.Sprintf("exit %d: %s", code, output), true), nil
			}
			return textResult(output, false), nil
		},
	}
}

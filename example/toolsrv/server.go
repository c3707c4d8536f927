package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/gosh"
	"github.com/viant/gosh/runner/local"
	"github.com/viant/jsonrpc"
	"github.com/viant/mcp-protocol/schema"
)

// maxLineBytes bounds a single inbound frame.
const maxLineBytes = 4 << 20

type server struct {
	tools    []*tool
	byName   map[string]*tool
	writeMu  sync.Mutex
	fs       afs.Service
	terminal *gosh.Service
	baseURL  string
}

func newServer(ctx context.Context, baseURL string) (*server, error) {
	terminal, err := gosh.New(ctx, local.New())
	if err != nil {
		return nil, fmt.Errorf("failed to create terminal service: %w", err)
	}
	s := &server{
		fs:       afs.New(),
		terminal: terminal,
		baseURL:  baseURL,
		byName:   map[string]*tool{},
	}
	s.register(listFilesTool(s), readFileTool(s), terminalTool(s))
	return s, nil
}

func (s *server) register(tools ...*tool) {
	for _, t := range tools {
		s.tools = append(s.tools, t)
		s.byName[t.definition.Name] = t
	}
}

// serve reads newline-delimited JSON-RPC frames until end of input.
func (s *server) serve(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var request jsonrpc.Request
		if err := json.Unmarshal(line, &request); err != nil {
			continue
		}
		if request.Method == "" {
			continue
		}
		if request.Id == nil {
			// notification, nothing to answer
			continue
		}
		response := &jsonrpc.Response{Jsonrpc: jsonrpc.Version, Id: request.Id}
		s.handle(ctx, &request, response)
		if err := s.reply(out, response); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (s *server) reply(out io.Writer, response *jsonrpc.Response) error {
	data, err := json.Marshal(response)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err = out.Write(append(data, '\n'))
	return err
}

func (s *server) handle(ctx context.Context, request *jsonrpc.Request, response *jsonrpc.Response) {
	switch request.Method {
	case schema.MethodInitialize:
		s.setResult(response, &schema.InitializeResult{
			ProtocolVersion: schema.LatestProtocolVersion,
			ServerInfo:      schema.Implementation{Name: "toolsrv", Version: "0.1.0"},
		})
	case schema.MethodPing:
		s.setResult(response, map[string]interface{}{})
	case schema.MethodToolsList:
		s.listTools(response)
	case schema.MethodToolsCall:
		s.callTool(ctx, request, response)
	default:
		response.Error = jsonrpc.NewMethodNotFound(fmt.Sprintf("method %v not found", request.Method), nil)
	}
}

func (s *server) listTools(response *jsonrpc.Response) {
	definitions := make([]toolDefinition, 0, len(s.tools))
	for _, t := range s.tools {
		definitions = append(definitions, t.definition)
	}
	s.setResult(response, map[string]interface{}{"tools": definitions})
}

func (s *server) callTool(ctx context.Context, request *jsonrpc.Request, response *jsonrpc.Response) {
	var params schema.CallToolRequestParams
	if err := json.Unmarshal(request.Params, &params); err != nil {
		response.Error = jsonrpc.NewInvalidParamsError(err.Error(), nil)
		return
	}
	bound, ok := s.byName[params.Name]
	if !ok {
		response.Error = jsonrpc.NewMethodNotFound(fmt.Sprintf("tool %v not found", params.Name), nil)
		return
	}
	result, rpcErr := bound.call(ctx, params.Arguments)
	if rpcErr != nil {
		response.Error = rpcErr
		return
	}
	s.setResult(response, result)
}

func (s *server) setResult(response *jsonrpc.Response, result interface{}) {
	data, err := json.Marshal(result)
	if err != nil {
		response.Error = jsonrpc.NewInternalError(err.Error(), nil)
		return
	}
	response.Result = data
}

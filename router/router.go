// Package router serves the HTTP surface synthesized from discovered tools.
// The route table is immutable and swapped wholesale after each discovery
// pass, so concurrent requests always observe either the fully previous or
// the fully current binding set.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/viant/mcp-bridge/discovery"
	"github.com/viant/mcp-bridge/fault"
	"github.com/viant/mcp-bridge/openapi"
	"github.com/viant/mcp-bridge/supervisor"
)

// maxBodyBytes bounds tool request bodies.
const maxBodyBytes = 1 << 20

// StateProvider exposes the supervisor view the router gates traffic on.
type StateProvider interface {
	Snapshot() (supervisor.State, uint64)
	Restarts() uint64
}

// Caller issues tools/call requests on the generation a table was built for.
type Caller interface {
	Call(ctx context.Context, method string, params interface{}, timeout time.Duration) (json.RawMessage, error)
}

type route struct {
	descriptor *discovery.ToolDescriptor
	input      *openapi3.Schema
}

// table binds one generation's routes, caller and rendered document.
type table struct {
	generation uint64
	caller     Caller
	routes     map[string]*route
	document   []byte
}

// Config drives a Router.
type Config struct {
	CallTimeout time.Duration
	Cors        *Cors
	Logger      *slog.Logger
}

// Router dispatches tool calls, the OpenAPI document and status diagnostics.
type Router struct {
	state       StateProvider
	logger      *slog.Logger
	callTimeout time.Duration
	cors        *Cors
	current     atomic.Pointer[table]
}

// New returns a Router gated on state.
func New(state StateProvider, config Config) *Router {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = 30 * time.Second
	}
	cors := config.Cors
	if cors == nil {
		cors = &Cors{}
	}
	return &Router{
		state:       state,
		logger:      logger,
		callTimeout: config.CallTimeout,
		cors:        cors,
	}
}

// Rebuild compiles a fresh table from a completed discovery pass and swaps
// it in atomically. Nothing is installed if any part fails to compile.
func (r *Router) Rebuild(result *discovery.Result, caller Caller) error {
	document, err := openapi.Translate(openapi.Info{Title: result.ServerName, Version: result.ServerVersion}, result.Tools)
	if err != nil {
		return err
	}
	rendered, err := openapi.MarshalDocument(document)
	if err != nil {
		return err
	}
	routes := make(map[string]*route, len(result.Tools))
	for _, descriptor := range result.Tools {
		input, err := openapi.CompileInputSchema(descriptor.InputSchema)
		if err != nil {
			return fmt.Errorf("tool %v: %w", descriptor.Name, err)
		}
		routes[descriptor.Path] = &route{descriptor: descriptor, input: input}
	}
	r.current.Store(&table{
		generation: result.Generation,
		caller:     caller,
		routes:     routes,
		document:   rendered,
	})
	r.logger.Info("route table swapped", "generation", result.Generation, "routes", len(routes))
	return nil
}

// Handler returns the composed HTTP handler.
func (r *Router) Handler() http.Handler {
	return chainMiddleware(http.HandlerFunc(r.dispatch),
		accessLogMiddleware(r.logger),
		corsMiddleware(r.cors),
	)
}

func (r *Router) dispatch(writer http.ResponseWriter, request *http.Request) {
	path := strings.Trim(request.URL.Path, "/")
	switch path {
	case "openapi.json":
		r.serveDocument(writer, request)
		return
	case "status":
		r.serveStatus(writer, request)
		return
	}
	current := r.current.Load()
	if current == nil {
		r.serveUnavailable(writer)
		return
	}
	bound, ok := current.routes[path]
	if !ok {
		writeError(writer, http.StatusNotFound, fault.KindProtocol, fmt.Sprintf("no such tool path: /%v", path), "")
		return
	}
	if request.Method != http.MethodPost {
		writeError(writer, http.StatusMethodNotAllowed, fault.KindProtocol, "tool routes accept POST only", "")
		return
	}
	r.invoke(writer, request, current, bound)
}

func (r *Router) serveDocument(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet {
		writeError(writer, http.StatusMethodNotAllowed, fault.KindProtocol, "openapi.json accepts GET only", "")
		return
	}
	current := r.current.Load()
	if current == nil {
		r.serveUnavailable(writer)
		return
	}
	writeJSON(writer, http.StatusOK, current.document)
}

type statusBody struct {
	State      string `json:"state"`
	Generation uint64 `json:"generation"`
	Tools      int    `json:"tools"`
	Restarts   uint64 `json:"restarts"`
}

func (r *Router) serveStatus(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet {
		writeError(writer, http.StatusMethodNotAllowed, fault.KindProtocol, "status accepts GET only", "")
		return
	}
	state, generation := r.state.Snapshot()
	tools := 0
	if current := r.current.Load(); current != nil {
		tools = len(current.routes)
	}
	payload, _ := json.Marshal(statusBody{
		State:      state.String(),
		Generation: generation,
		Tools:      tools,
		Restarts:   r.state.Restarts(),
	})
	writeJSON(writer, http.StatusOK, payload)
}

func (r *Router) serveUnavailable(writer http.ResponseWriter) {
	state, _ := r.state.Snapshot()
	writeError(writer, http.StatusServiceUnavailable, fault.KindUnavailable,
		"tool server is not ready", state.String())
}

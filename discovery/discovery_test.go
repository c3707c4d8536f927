package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/mcp-bridge/fault"
)

// fakeCaller replays canned results per method, recording what was asked.
type fakeCaller struct {
	initialize string
	pages      []string
	calls      []string
	notified   []string
	pageIndex  int
}

func (f *fakeCaller) Call(_ context.Context, method string, params interface{}, _ time.Duration) (json.RawMessage, error) {
	f.calls = append(f.calls, method)
	switch method {
	case "initialize":
		return json.RawMessage(f.initialize), nil
	case "tools/list":
		if f.pageIndex >= len(f.pages) {
			return nil, fmt.Errorf("unexpected tools/list call %d", f.pageIndex)
		}
		page := f.pages[f.pageIndex]
		f.pageIndex++
		return json.RawMessage(page), nil
	}
	return nil, fmt.Errorf("unexpected method %v", method)
}

func (f *fakeCaller) Notify(_ context.Context, method string, _ interface{}) error {
	f.notified = append(f.notified, method)
	return nil
}

const initializeOK = `{"protocolVersion":"2025-06-18","serverInfo":{"name":"toolsrv","version":"0.1"},"capabilities":{}}`

func TestDiscoverHappyPath(t *testing.T) {
	caller := &fakeCaller{
		initialize: initializeOK,
		pages: []string{
			`{"tools":[{"name":"echo","description":"echoes","inputSchema":{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}}]}`,
		},
	}
	service := New(Config{ClientName: "mcp-bridge", ClientVersion: "0.1"})

	result, err := service.Discover(context.Background(), caller, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), result.Generation)
	assert.Equal(t, "toolsrv", result.ServerName)
	assert.Equal(t, "2025-06-18", result.ProtocolVersion)
	require.Len(t, result.Tools, 1)
	assert.Equal(t, "echo", result.Tools[0].Name)
	assert.Equal(t, "echo", result.Tools[0].Path)
	assert.JSONEq(t,
		`{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`,
		string(result.Tools[0].InputSchema))

	assert.Equal(t, []string{"initialize", "tools/list"}, caller.calls)
	assert.Equal(t, []string{"notifications/initialized"}, caller.notified)
}

func TestDiscoverPagination(t *testing.T) {
	caller := &fakeCaller{
		initialize: initializeOK,
		pages: []string{
			`{"tools":[{"name":"a","inputSchema":{"type":"object"}}],"nextCursor":"p2"}`,
			`{"tools":[{"name":"b","inputSchema":{"type":"object"}}],"nextCursor":"p3"}`,
			`{"tools":[{"name":"c","inputSchema":{"type":"object"}}]}`,
		},
	}
	result, err := New(Config{}).Discover(context.Background(), caller, 1)
	require.NoError(t, err)
	require.Len(t, result.Tools, 3)
	assert.Equal(t, 3, caller.pageIndex)
}

func TestDiscoverHandshakeMismatch(t *testing.T) {
	caller := &fakeCaller{initialize: `{"serverInfo":{"name":"x"}}`}
	_, err := New(Config{}).Discover(context.Background(), caller, 1)
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindProtocol))
	assert.Empty(t, caller.notified, "initialized must not be sent after a failed handshake")
}

func TestDiscoverDropsInvalidEntriesKeepsRest(t *testing.T) {
	caller := &fakeCaller{
		initialize: initializeOK,
		pages: []string{`{"tools":[
			{"name":"good","inputSchema":{"type":"object"}},
			{"name":"","inputSchema":{"type":"object"}},
			{"name":"good","inputSchema":{"type":"object"}},
			{"name":"badschema","inputSchema":{"type":"string"}},
			{"name":"noschema"},
			{"name":"openapi.json","inputSchema":{"type":"object"}}
		]}`},
	}
	result, err := New(Config{}).Discover(context.Background(), caller, 1)
	require.NoError(t, err)
	require.Len(t, result.Tools, 2)
	assert.Equal(t, "good", result.Tools[0].Name)
	assert.Equal(t, "noschema", result.Tools[1].Name)
	assert.JSONEq(t, `{"type":"object"}`, string(result.Tools[1].InputSchema),
		"a missing input schema defaults to an open object")
}

func TestDiscoverSanitizationCollision(t *testing.T) {
	caller := &fakeCaller{
		initialize: initializeOK,
		pages: []string{`{"tools":[
			{"name":"read file","inputSchema":{"type":"object"}},
			{"name":"read/file","inputSchema":{"type":"object"}}
		]}`},
	}
	result, err := New(Config{}).Discover(context.Background(), caller, 1)
	require.NoError(t, err)
	require.Len(t, result.Tools, 1)
	assert.Equal(t, "read file", result.Tools[0].Name)
	assert.Equal(t, "read_file", result.Tools[0].Path)
}

func TestSanitizeName(t *testing.T) {
	testCases := []struct {
		name     string
		expected string
	}{
		{name: "echo", expected: "echo"},
		{name: "read file", expected: "read_file"},
		{name: "ns/tool", expected: "ns_tool"},
		{name: "v1.2-beta_x", expected: "v1.2-beta_x"},
		{name: "日本語", expected: ""},
		{name: "///", expected: ""},
	}
	for _, testCase := range testCases {
		assert.Equal(t, testCase.expected, SanitizeName(testCase.name), testCase.name)
	}
}

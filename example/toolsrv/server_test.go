package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveOnce(t *testing.T, baseURL string, frames ...string) []map[string]interface{} {
	t.Helper()
	server, err := newServer(context.Background(), baseURL)
	require.NoError(t, err)

	in := strings.NewReader(strings.Join(frames, "\n") + "\n")
	var out bytes.Buffer
	require.NoError(t, server.serve(context.Background(), in, &out))

	var responses []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &decoded), line)
		responses = append(responses, decoded)
	}
	return responses
}

func TestServerHandshakeAndListing(t *testing.T) {
	responses := serveOnce(t, t.TempDir(),
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list","params":{}}`,
	)
	require.Len(t, responses, 2, "the notification must not be answered")

	initialize := responses[0]["result"].(map[string]interface{})
	assert.NotEmpty(t, initialize["protocolVersion"])
	assert.Equal(t, "toolsrv", initialize["serverInfo"].(map[string]interface{})["name"])

	listed := responses[1]["result"].(map[string]interface{})["tools"].([]interface{})
	names := make([]string, 0, len(listed))
	for _, item := range listed {
		names = append(names, item.(map[string]interface{})["name"].(string))
	}
	assert.ElementsMatch(t, []string{"list_files", "read_file", "terminal"}, names)
}

func TestServerReadFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello"), 0o644))

	responses := serveOnce(t, dir,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"read_file","arguments":{"location":"hello.txt"}}}`,
	)
	require.Len(t, responses, 1)
	result := responses[0]["result"].(map[string]interface{})
	content := result["content"].([]interface{})
	require.Len(t, content, 1)
	assert.Equal(t, "hello", content[0].(map[string]interface{})["text"])
}

func TestServerUnknownToolAndMethod(t *testing.T) {
	responses := serveOnce(t, t.TempDir(),
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"nope","arguments":{}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"resources/list","params":{}}`,
	)
	require.Len(t, responses, 2)
	for i, response := range responses {
		assert.NotNil(t, response["error"], fmt.Sprintf("response %d", i))
	}
}

package openapi

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/mcp-bridge/discovery"
)

func descriptor(name string, input string) *discovery.ToolDescriptor {
	return &discovery.ToolDescriptor{
		Name:        name,
		Path:        discovery.SanitizeName(name),
		InputSchema: json.RawMessage(input),
	}
}

func TestTranslateRequestSchemaRoundTrip(t *testing.T) {
	input := `{"type":"object","properties":{"text":{"type":"string"},"count":{"type":"integer"}},"required":["text"]}`
	document, err := Translate(Info{Title: "toolsrv", Version: "0.1"}, []*discovery.ToolDescriptor{
		descriptor("echo", input),
	})
	require.NoError(t, err)

	data, err := MarshalDocument(document)
	require.NoError(t, err)

	var decoded struct {
		Paths map[string]struct {
			Post *struct {
				RequestBody struct {
					Required bool `json:"required"`
					Content  map[string]struct {
						Schema struct {
							Type       string   `json:"type"`
							Required   []string `json:"required"`
							Properties map[string]struct {
								Type string `json:"type"`
							} `json:"properties"`
						} `json:"schema"`
					} `json:"content"`
				} `json:"requestBody"`
			} `json:"post"`
		} `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))

	echo, ok := decoded.Paths["/echo"]
	require.True(t, ok, "echo path missing: %v", string(data))
	require.NotNil(t, echo.Post)
	body := echo.Post.RequestBody
	assert.True(t, body.Required)
	schema := body.Content["application/json"].Schema
	assert.Equal(t, "object", schema.Type)
	assert.Equal(t, []string{"text"}, schema.Required)
	assert.Equal(t, "string", schema.Properties["text"].Type)
	assert.Equal(t, "integer", schema.Properties["count"].Type)
}

func TestTranslateDeterministicOrder(t *testing.T) {
	descriptors := []*discovery.ToolDescriptor{
		descriptor("zeta", `{"type":"object"}`),
		descriptor("alpha", `{"type":"object"}`),
		descriptor("mid", `{"type":"object"}`),
	}
	first, err := Translate(Info{}, descriptors)
	require.NoError(t, err)
	second, err := Translate(Info{}, []*discovery.ToolDescriptor{descriptors[2], descriptors[0], descriptors[1]})
	require.NoError(t, err)

	firstData, err := MarshalDocument(first)
	require.NoError(t, err)
	secondData, err := MarshalDocument(second)
	require.NoError(t, err)
	assert.Equal(t, string(firstData), string(secondData))
}

func TestTranslateErrorEnvelopeComponent(t *testing.T) {
	document, err := Translate(Info{}, []*discovery.ToolDescriptor{descriptor("echo", `{"type":"object"}`)})
	require.NoError(t, err)
	data, err := MarshalDocument(document)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	components := decoded["components"].(map[string]interface{})
	schemas := components["schemas"].(map[string]interface{})
	_, ok := schemas["ErrorEnvelope"]
	assert.True(t, ok)
	assert.Contains(t, string(data), errorEnvelopeRef)
}

func TestTranslateMissingOutputSchemaIsOpenObject(t *testing.T) {
	document, err := Translate(Info{}, []*discovery.ToolDescriptor{descriptor("echo", `{"type":"object"}`)})
	require.NoError(t, err)
	data, err := MarshalDocument(document)
	require.NoError(t, err)

	var decoded struct {
		Paths map[string]struct {
			Post *struct {
				Responses map[string]struct {
					Content map[string]struct {
						Schema struct {
							Type string `json:"type"`
						} `json:"schema"`
					} `json:"content"`
				} `json:"responses"`
			} `json:"post"`
		} `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	ok := decoded.Paths["/echo"].Post.Responses["200"]
	assert.Equal(t, "object", ok.Content["application/json"].Schema.Type)
}

func TestCompileInputSchemaRejectsGarbage(t *testing.T) {
	_, err := CompileInputSchema(json.RawMessage(`["not","a","schema"]`))
	assert.Error(t, err)
}

func TestTranslateIncludesDocumentPath(t *testing.T) {
	document, err := Translate(Info{}, nil)
	require.NoError(t, err)
	data, err := MarshalDocument(document)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"/openapi.json"`)
}

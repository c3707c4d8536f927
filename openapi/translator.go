// Package openapi translates discovered tool descriptors into an OpenAPI 3
// document: one POST path per tool, request body carrying the tool input
// schema verbatim, and a shared error envelope component for non-2xx
// responses.
package openapi

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/viant/mcp-bridge/discovery"
	"github.com/viant/mcp-bridge/fault"
)

// errorEnvelopeRef names the shared non-2xx response schema component.
const errorEnvelopeRef = "#/components/schemas/ErrorEnvelope"

// Info captures document identity, normally the initialize result's server
// implementation with bridge defaults as fallback.
type Info struct {
	Title   string
	Version string
}

// Translate maps descriptors onto an OpenAPI document. The mapping is pure
// and deterministic: paths are emitted in sorted order and nothing in the
// input is mutated.
func Translate(info Info, descriptors []*discovery.ToolDescriptor) (*openapi3.T, error) {
	if info.Title == "" {
		info.Title = "mcp-bridge"
	}
	if info.Version == "" {
		info.Version = "0.0.0"
	}
	document := &openapi3.T{
		OpenAPI: "3.0.3",
		Info:    &openapi3.Info{Title: info.Title, Version: info.Version},
		Paths:   openapi3.NewPaths(),
		Components: &openapi3.Components{
			Schemas: openapi3.Schemas{"ErrorEnvelope": openapi3.NewSchemaRef("", errorEnvelopeSchema())},
		},
	}

	ordered := make([]*discovery.ToolDescriptor, len(descriptors))
	copy(ordered, descriptors)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Path < ordered[j].Path })

	for _, descriptor := range ordered {
		operation, err := toolOperation(descriptor)
		if err != nil {
			return nil, err
		}
		document.Paths.Set("/"+descriptor.Path, &openapi3.PathItem{Post: operation})
	}
	document.Paths.Set("/openapi.json", &openapi3.PathItem{Get: documentOperation()})
	return document, nil
}

// MarshalDocument renders the document as JSON bytes, cached by the router
// per route-table generation.
func MarshalDocument(document *openapi3.T) ([]byte, error) {
	data, err := json.Marshal(document)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal OpenAPI document: %w", err)
	}
	return data, nil
}

// CompileInputSchema decodes a raw tool input schema for request validation.
func CompileInputSchema(raw json.RawMessage) (*openapi3.Schema, error) {
	schema := &openapi3.Schema{}
	if err := json.Unmarshal(raw, schema); err != nil {
		return nil, fault.Wrap(fault.KindProtocol, "tool input schema does not compile", err)
	}
	return schema, nil
}

func toolOperation(descriptor *discovery.ToolDescriptor) (*openapi3.Operation, error) {
	input, err := CompileInputSchema(descriptor.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("tool %v: %w", descriptor.Name, err)
	}
	responses := openapi3.NewResponses()
	responses.Set("200", &openapi3.ResponseRef{
		Value: openapi3.NewResponse().
			WithDescription("Tool invocation result").
			WithContent(openapi3.NewContentWithJSONSchema(outputSchema(descriptor))),
	})
	responses.Set("default", &openapi3.ResponseRef{
		Value: openapi3.NewResponse().
			WithDescription("Error envelope").
			WithContent(openapi3.NewContentWithJSONSchemaRef(openapi3.NewSchemaRef(errorEnvelopeRef, nil))),
	})
	return &openapi3.Operation{
		OperationID: descriptor.Path,
		Summary:     descriptor.Name,
		Description: descriptor.Description,
		RequestBody: &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().
				WithRequired(true).
				WithJSONSchema(input),
		},
		Responses: responses,
	}, nil
}

// outputSchema decodes the declared output schema, or presents the result
// as an open object when the tool declares none.
func outputSchema(descriptor *discovery.ToolDescriptor) *openapi3.Schema {
	if len(descriptor.OutputSchema) == 0 || string(descriptor.OutputSchema) == "null" {
		return openapi3.NewObjectSchema()
	}
	schema := &openapi3.Schema{}
	if err := json.Unmarshal(descriptor.OutputSchema, schema); err != nil {
		return openapi3.NewObjectSchema()
	}
	return schema
}

func documentOperation() *openapi3.Operation {
	responses := openapi3.NewResponses()
	responses.Set("200", &openapi3.ResponseRef{
		Value: openapi3.NewResponse().
			WithDescription("This OpenAPI document").
			WithContent(openapi3.NewContentWithJSONSchema(openapi3.NewObjectSchema())),
	})
	return &openapi3.Operation{
		OperationID: "openapi.json",
		Summary:     "OpenAPI document",
		Responses:   responses,
	}
}

func errorEnvelopeSchema() *openapi3.Schema {
	detail := openapi3.NewObjectSchema().
		WithProperty("kind", openapi3.NewStringSchema()).
		WithProperty("message", openapi3.NewStringSchema()).
		WithProperty("state", openapi3.NewStringSchema())
	detail.Required = []string{"kind", "message"}
	envelope := openapi3.NewObjectSchema().WithProperty("error", detail)
	envelope.Required = []string{"error"}
	return envelope
}

package mcp

import "context"

// ResourceHandlerFunc is the closure a registered Resource invokes when read.
type ResourceHandlerFunc func(ctx context.Context, session *Session, uri string) (any, error)

// Resource represents a piece of data or content that can be read by the
// client. Resources provide contextual information that can be used by
// LLMs. They are identified by URIs and can contain various types of
// content such as text, structured data, or references to external
// systems.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`

	// Handler is never serialized; it is the closure the dispatcher invokes.
	Handler ResourceHandlerFunc `json:"-"`
}

// ResourceResponse is the response to a resource read request. Contents are
// generic MCP content items (§4.9) rather than bare text, so a resource's
// handler can return blobs or structured JSON as naturally as plain text.
type ResourceResponse struct {
	Contents []ContentItem `json:"contents"`
}

// ResourceTemplate represents a parameterized resource using URI templates.
// Not part of spec.md's core data model, but present in the original
// implementation this core was distilled from; kept as an optional,
// separately-registered supplement since no Non-goal excludes it.
type ResourceTemplate struct {
	URITemplate string `json:"uriTemplate"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ResourceParams contains the parameters for reading a resource.
type ResourceParams struct {
	URI string `json:"uri"`
}

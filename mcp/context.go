package mcp

import "strings"

// RequestContext is the immutable bundle of transport-level metadata a
// transport attaches to every inbound message before handing it to the
// dispatcher. Once built it is never mutated.
type RequestContext struct {
	// Headers holds request headers, keyed case-insensitively (see Header).
	headers map[string]string

	// Params holds query-string or form parameters.
	params map[string]string

	// Method is the JSON-RPC method name the frame carries (not the HTTP verb).
	Method string

	// Path is the transport path the message arrived on (e.g. "/mcp").
	Path string

	// TransportKind tags which transport produced this context ("stdio", "http").
	TransportKind string

	// Meta carries arbitrary transport-specific metadata (remote addr, etc).
	meta map[string]string
}

// NewRequestContext builds a RequestContext, normalizing header keys to
// their canonical lower-case form so lookups are case-insensitive per
// HTTP convention.
func NewRequestContext(transportKind, path, method string, headers, params, meta map[string]string) RequestContext {
	rc := RequestContext{
		Method:        method,
		Path:          path,
		TransportKind: transportKind,
		headers:       make(map[string]string, len(headers)),
		params:        make(map[string]string, len(params)),
		meta:          make(map[string]string, len(meta)),
	}
	for k, v := range headers {
		rc.headers[strings.ToLower(k)] = v
	}
	for k, v := range params {
		rc.params[k] = v
	}
	for k, v := range meta {
		rc.meta[k] = v
	}
	return rc
}

// Header returns a request header by name, case-insensitively. The second
// return reports whether the header was present.
func (rc RequestContext) Header(name string) (string, bool) {
	v, ok := rc.headers[strings.ToLower(name)]
	return v, ok
}

// Param returns a query or form parameter by name.
func (rc RequestContext) Param(name string) (string, bool) {
	v, ok := rc.params[name]
	return v, ok
}

// Meta returns a transport metadata value by name.
func (rc RequestContext) Meta(name string) (string, bool) {
	v, ok := rc.meta[name]
	return v, ok
}

// Headers returns a defensive copy of all headers.
func (rc RequestContext) Headers() map[string]string { return copyMap(rc.headers) }

// Params returns a defensive copy of all params.
func (rc RequestContext) Params() map[string]string { return copyMap(rc.params) }

func copyMap(m map[string]string) map[string]string {
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

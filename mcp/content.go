package mcp

import (
	"encoding/base64"
	"encoding/json"

	"github.com/h2non/filetype"
)

// ToContentItems maps an arbitrary handler return value into the MCP
// content-item sequence per spec.md §4.9:
//   - a string becomes a text item
//   - a []byte becomes a blob item, with its MIME type sniffed from magic
//     numbers when not already known
//   - a []ContentItem (or []*ContentItem) passes through unchanged, gaining
//     uri when it is empty and defaultURI is non-empty
//   - anything else is JSON-encoded and wrapped as a text item with
//     mimeType "application/json"
//
// defaultMimeType is used for text/blob items that don't otherwise carry
// one; defaultURI is used to fill in ContentItem.URI when a pass-through
// item omits it (resources/read attaches the resource's own URI this way).
func ToContentItems(value any, defaultMimeType, defaultURI string) []ContentItem {
	switch v := value.(type) {
	case nil:
		return []ContentItem{textItem("", defaultMimeType, defaultURI)}
	case string:
		return []ContentItem{textItem(v, orDefault(defaultMimeType, "text/plain"), defaultURI)}
	case []byte:
		return []ContentItem{blobItem(v, defaultMimeType, defaultURI)}
	case ContentItem:
		return []ContentItem{fillURI(v, defaultURI)}
	case []ContentItem:
		out := make([]ContentItem, len(v))
		for i, item := range v {
			out[i] = fillURI(item, defaultURI)
		}
		return out
	case []*ContentItem:
		out := make([]ContentItem, 0, len(v))
		for _, item := range v {
			if item != nil {
				out = append(out, fillURI(*item, defaultURI))
			}
		}
		return out
	case ToolResponse:
		return v.Content
	case *ToolResponse:
		return v.Content
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return []ContentItem{textItem(err.Error(), "text/plain", defaultURI)}
		}
		return []ContentItem{textItem(string(encoded), "application/json", defaultURI)}
	}
}

func textItem(text, mimeType, uri string) ContentItem {
	return ContentItem{Type: "text", Text: text, MimeType: mimeType, URI: uri}
}

func blobItem(data []byte, mimeType, uri string) ContentItem {
	if mimeType == "" {
		mimeType = SniffMimeType(data)
	}
	return ContentItem{
		Type:     "blob",
		Blob:     base64.StdEncoding.EncodeToString(data),
		MimeType: mimeType,
		URI:      uri,
	}
}

func fillURI(item ContentItem, defaultURI string) ContentItem {
	if item.URI == "" && defaultURI != "" {
		item.URI = defaultURI
	}
	return item
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// SniffMimeType detects the MIME type of common image formats (JPEG, PNG,
// GIF, WEBP) from their magic numbers, falling back to a generic binary
// type when nothing matches. Used to populate ContentItem.MimeType when a
// handler hands back raw image bytes without specifying one.
func SniffMimeType(data []byte) string {
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return "application/octet-stream"
	}
	return kind.MIME.Value
}
